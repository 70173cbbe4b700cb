// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gradtest holds test utilities for packages that build computations with autograd.
package gradtest

import (
	"fmt"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/autograd/gradcheck"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

// CheckGradients verifies the gradients of forward with respect to all inputs against finite
// differences, using relTolerance as the relative tolerance. It fails the test on any mismatch.
func CheckGradients(t *testing.T, name string, forward gradcheck.ForwardFn, relTolerance float64, inputs ...*tensors.Buffer) {
	t.Helper()
	Check(t, gradcheck.Case{Name: name, Inputs: inputs, Forward: forward}, relTolerance)
}

// Check runs gradcheck.Check on c with the given relative tolerance and fails the test on any
// mismatch.
func Check(t *testing.T, c gradcheck.Case, relTolerance float64) {
	t.Helper()
	opts := gradcheck.DefaultOptions()
	opts.RelativeTolerance = relTolerance
	report := gradcheck.Check(c, opts)
	fmt.Printf("\t%s\n", report)
	require.NoErrorf(t, report.Err, "gradient check %q failed", c.Name)
	for _, mismatch := range report.Mismatches {
		t.Errorf("%s: %s", c.Name, mismatch)
	}
}

// RequireGrad fails the test if node's gradient is not within delta of want, element-wise.
func RequireGrad(t *testing.T, node autograd.Node, want *tensors.Buffer, delta float64) {
	t.Helper()
	got := node.GradOrZeros()
	require.Truef(t, got.InDelta(want, delta), "gradient of %s:\n\tgot  %s\n\twant %s", node, got.Summary(6), want.Summary(6))
}
