// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gradcheck

import (
	"fmt"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	cases := Catalog()
	covered := make(map[autograd.OpType]bool)
	for _, c := range cases {
		covered[c.Op] = true
	}
	for op := autograd.OpTypeAdd; op <= autograd.OpTypeCrossEntropy; op++ {
		assert.Truef(t, covered[op], "no gradcheck case for %s", op)
	}

	for _, report := range CheckAll(cases, DefaultOptions()) {
		fmt.Printf("\t%s\n", report)
		assert.Truef(t, report.Passed(), "%s", report)
		assert.Greater(t, report.NumChecked, 0)
	}
}

func TestCheckDetectsWrongGradient(t *testing.T) {
	// Detach hides one of the two paths from the backward pass, so the analytic gradient is half the
	// numeric one.
	c := Case{
		Name:   "Detached",
		Inputs: []*tensors.Buffer{tensors.FromRow(1.0, 2.0)},
		Forward: func(x []autograd.Node) autograd.Node {
			return autograd.Mul(x[0], autograd.Detach(x[0]))
		},
	}
	report := Check(c, DefaultOptions())
	fmt.Printf("\t%s\n", report)
	require.NoError(t, report.Err)
	require.False(t, report.Passed())
	require.Len(t, report.Mismatches, 2)
	require.InDelta(t, 1.0, report.Mismatches[0].Numeric, 1e-6)
	require.InDelta(t, 0.5, report.Mismatches[0].Analytic, 1e-9)
}

func TestCheckReportsPanics(t *testing.T) {
	c := Case{
		Name:   "Mismatch",
		Inputs: []*tensors.Buffer{tensors.FromRow(1.0, 2.0), tensors.FromRow(1.0, 2.0, 3.0)},
		Forward: func(x []autograd.Node) autograd.Node {
			return autograd.Add(x[0], x[1])
		},
	}
	report := Check(c, DefaultOptions())
	require.Error(t, report.Err)
	require.ErrorIs(t, report.Err, autograd.ErrShapeMismatch)
	require.False(t, report.Passed())
	require.Contains(t, report.String(), "failed")
}
