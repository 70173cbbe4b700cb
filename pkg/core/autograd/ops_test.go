// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/autograd/gradcheck"
	"github.com/gomlx/gograd/pkg/core/autograd/gradtest"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// matMulReference computes x[b] · w[b'] with gonum, for every batch element.
func matMulReference(x, w *tensors.Buffer) *tensors.Buffer {
	xShape, wShape := x.Shape(), w.Shape()
	batchSize, seqLen, inputDim, outputDim := xShape.Outer(), xShape.Middle(), xShape.Inner(), wShape.Inner()
	output := tensors.Zeros(shapes.Make(batchSize, seqLen, outputDim))
	for b := range batchSize {
		wb := b
		if wShape.Outer() == 1 {
			wb = 0
		}
		xMat := mat.NewDense(seqLen, inputDim, x.Flat()[b*seqLen*inputDim:(b+1)*seqLen*inputDim])
		wMat := mat.NewDense(inputDim, outputDim, w.Flat()[wb*inputDim*outputDim:(wb+1)*inputDim*outputDim])
		var result mat.Dense
		result.Mul(xMat, wMat)
		copy(output.Flat()[b*seqLen*outputDim:], result.RawMatrix().Data)
	}
	return output
}

func TestMatMulAgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, weightsBatch := range []int{1, 3} {
		x := gradcheck.RandomBuffer(rng, shapes.Make(3, 4, 5), 1)
		w := gradcheck.RandomBuffer(rng, shapes.Make(weightsBatch, 5, 2), 1)
		tape := autograd.NewTape("")
		xNode, wNode := tape.Parameter(x), tape.Parameter(w)
		y := autograd.MatMul(xNode, wNode)
		want := matMulReference(x, w)
		require.Truef(t, y.Value().InDelta(want, 1e-12), "got %s, want %s", y.Value(), want)

		// With upstream gradient of ones, grad_w[k, n] = Σ_{b,s} x[b,s,k] (per batch if batched).
		autograd.Mean(y).Backward()
		n := float64(y.Shape().Size())
		wantGradW := tensors.Zeros(w.Shape())
		for b := range 3 {
			wb := min(b, weightsBatch-1)
			for s := range 4 {
				for k := range 5 {
					for o := range 2 {
						wantGradW.Set(wb, k, o, wantGradW.At(wb, k, o)+x.At(b, s, k)/n)
					}
				}
			}
		}
		gradtest.RequireGrad(t, wNode, wantGradW, 1e-12)
	}
}

func TestLinearShapes(t *testing.T) {
	tape := autograd.NewTape("")
	x := tape.Constant(tensors.Ones(shapes.Make(2, 3, 4)))
	w := tape.Parameter(tensors.Full(shapes.Make(1, 4, 5), 0.5))
	bias := tape.Parameter(tensors.FromRow(1.0, 2.0, 3.0, 4.0, 5.0))
	y := autograd.Linear(x, w, bias)
	require.Equal(t, shapes.Make(2, 3, 5), y.Shape())
	require.Equal(t, 2.0+1, y.Value().At(1, 2, 0))
	require.Equal(t, 2.0+5, y.Value().At(0, 1, 4))
	autograd.Mean(y).Backward()
	gradtest.RequireGrad(t, bias, tensors.Full(bias.Shape(), 6.0/30), 1e-12)
	require.Nil(t, x.Grad())

	require.Panics(t, func() { autograd.Linear(x, w, tape.Constant(tensors.FromRow(1.0, 2.0))) })
	require.Panics(t, func() { autograd.MatMul(x, tape.Constant(tensors.Ones(shapes.Make(3, 4, 5)))) })
}

func TestActivationValues(t *testing.T) {
	tape := autograd.NewTape("")
	x := tape.Constant(tensors.FromRow(-1.0, 0.0, 1.0))
	gelu := autograd.Gelu(x).Value()
	require.InDelta(t, -0.158808, gelu.At(0, 0, 0), 1e-5)
	require.Equal(t, 0.0, gelu.At(0, 0, 1))
	require.InDelta(t, 0.841192, gelu.At(0, 0, 2), 1e-5)

	silu := autograd.Silu(x).Value()
	require.InDelta(t, -1/(1+math.E), silu.At(0, 0, 0), 1e-12)
	require.InDelta(t, 1/(1+math.Exp(-1)), silu.At(0, 0, 2), 1e-12)

	softmax := autograd.Softmax(tape.Constant(tensors.New(shapes.Make(2, 2, 3), func(i, j, k int) float64 {
		return float64(i*k - j)
	}))).Value()
	for row := range 4 {
		var sum float64
		for _, v := range softmax.Flat()[row*3 : row*3+3] {
			sum += v
		}
		require.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestRMSNormValues(t *testing.T) {
	tape := autograd.NewTape("")
	x := tape.Constant(tensors.FromRow(3.0, 4.0))
	weight := tape.Constant(tensors.FromRow(1.0, 2.0))
	rms := math.Sqrt((9.0+16)/2 + 1e-6)
	y := autograd.RMSNorm(x, weight, 1e-6).Value()
	require.InDelta(t, 3/rms, y.At(0, 0, 0), 1e-12)
	require.InDelta(t, 2*4/rms, y.At(0, 0, 1), 1e-12)
	require.Panics(t, func() { autograd.RMSNorm(x, weight, 0) })
	require.Panics(t, func() { autograd.RMSNorm(x, tape.Constant(tensors.FromRow(1.0)), 1e-6) })
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	random := func(outer, middle, inner int) *tensors.Buffer {
		return gradcheck.RandomBuffer(rng, shapes.Make(outer, middle, inner), 1)
	}

	// Shared weights used twice: gradients of both uses are summed.
	gradtest.CheckGradients(t, "SharedWeights", func(x []autograd.Node) autograd.Node {
		h := autograd.Gelu(autograd.MatMul(x[0], x[1]))
		return autograd.Softmax(autograd.MatMul(h, x[2]))
	}, 1e-3, random(2, 3, 4), random(1, 4, 4), random(1, 4, 3))

	// Two-layer network with cross-entropy loss.
	gradtest.CheckGradients(t, "MLP", func(x []autograd.Node) autograd.Node {
		hidden := autograd.Silu(autograd.Linear(x[0], x[1], x[2]))
		logits := autograd.Linear(autograd.RMSNorm(hidden, autograd.Node{}, 1e-5), x[3], autograd.Node{})
		return autograd.CrossEntropyFromLogits(logits, []int{0, 1, 2, 1, 0, 2})
	}, 1e-3, random(2, 3, 4), random(1, 4, 5), random(1, 1, 5), random(1, 5, 3))

	// MSE with trainable targets.
	gradtest.CheckGradients(t, "MSE", func(x []autograd.Node) autograd.Node {
		return autograd.MeanSquaredError(autograd.MulScalar(x[0], 2), autograd.Sub(x[1], x[0]))
	}, 1e-3, random(1, 2, 3), random(1, 2, 3))

	for _, c := range gradcheck.Catalog() {
		t.Run(c.Name, func(t *testing.T) { gradtest.Check(t, c, 1e-3) })
	}
}

func TestTryBackwardStaleHandle(t *testing.T) {
	tape := autograd.NewTape("")
	x := tape.Parameter(tensors.FromRow(1.0, 2.0))
	loss := autograd.Mean(autograd.Gelu(x))
	must.M(autograd.TryBackward(loss))
	require.Greater(t, x.Grad().At(0, 0, 0), 0.0)

	// A handle discarded by Truncate is reported as an error.
	mark := tape.Mark()
	stale := autograd.Mean(x)
	tape.Truncate(mark)
	require.Error(t, autograd.TryBackward(stale))
}
