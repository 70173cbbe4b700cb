// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd/gradcheck"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	numFailed, err := run(&out, "^(Add|Mul)", gradcheck.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 0, numFailed)
	fmt.Printf("%s\n", out.String())
	require.Contains(t, out.String(), "AddBroadcast")
	require.Contains(t, out.String(), "MulSelf")
	require.Contains(t, out.String(), "0 failed.")

	_, err = run(&out, "NoSuchCase", gradcheck.DefaultOptions())
	require.Error(t, err)
	_, err = run(&out, "(", gradcheck.DefaultOptions())
	require.Error(t, err)
}
