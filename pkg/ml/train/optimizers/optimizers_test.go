// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimize runs numSteps of opt on loss = mean((w - target)²) and returns the final value of w.
func minimize(t *testing.T, opt Interface, numSteps int) *tensors.Buffer {
	tape := autograd.NewTape("minimize")
	w := tape.Parameter(tensors.FromRow(0.0, 0.0))
	target := tape.Constant(tensors.FromRow(3.0, -1.0))
	mark := tape.Mark()
	for range numSteps {
		loss := autograd.MeanSquaredError(w, target)
		loss.Backward()
		opt.Step([]autograd.Node{w})
		ZeroGradients([]autograd.Node{w})
		tape.Truncate(mark)
	}
	require.Equal(t, mark, tape.Len())
	return w.Value()
}

func TestOptimizersConverge(t *testing.T) {
	want := tensors.FromRow(3.0, -1.0)
	for name, opt := range map[string]Interface{
		"sgd":          StochasticGradientDescent().WithDecay(false).WithLearningRate(0.5).Done(),
		"sgd+momentum": StochasticGradientDescent().WithDecay(false).WithLearningRate(0.1).WithMomentum(0.5).Done(),
		"adam":         Adam().LearningRate(0.1).Done(),
		"adamax":       Adam().LearningRate(0.1).Adamax().Done(),
		"rmsprop":      RMSProp().LearningRate(0.05).Done(),
	} {
		got := minimize(t, opt, 1000)
		fmt.Printf("\t%s: %s\n", name, got)
		assert.Truef(t, got.InDelta(want, 0.05), "%s didn't converge: got %s", name, got)
	}
}

func TestAdamFirstStep(t *testing.T) {
	tape := autograd.NewTape("")
	w := tape.Parameter(tensors.FromRow(1.0, 1.0))
	w.SetGrad(tensors.FromRow(0.5, -2.0))
	opt := Adam().LearningRate(0.1).Epsilon(1e-12).Done()
	opt.Step([]autograd.Node{w})
	// With the bias correction, the first step is learningRate * sign(grad).
	require.True(t, w.Value().InDelta(tensors.FromRow(0.9, 1.1), 1e-9), "got %s", w.Value())

	// Gradients are not cleared by Step.
	require.NotNil(t, w.Grad())

	// Backoff steps only update the moments.
	w2 := tape.Parameter(tensors.FromRow(1.0))
	w2.SetGrad(tensors.FromRow(1.0))
	opt = Adam().WithBackoffSteps(2).Done()
	opt.Step([]autograd.Node{w2})
	opt.Step([]autograd.Node{w2})
	require.Equal(t, 1.0, w2.Value().Value())
	opt.Step([]autograd.Node{w2})
	require.Less(t, w2.Value().Value(), 1.0)

	// AdamW decays weights even with zero gradients.
	w3 := tape.Parameter(tensors.FromRow(2.0))
	w3.SetGrad(tensors.FromRow(0.0))
	Adam().LearningRate(0.1).WeightDecay(0.5).Done().Step([]autograd.Node{w3})
	require.InDelta(t, 2.0-0.1*0.5*2.0, w3.Value().Value(), 1e-6)
}

func TestStepSkipsUntrainable(t *testing.T) {
	tape := autograd.NewTape("")
	constant := tape.Constant(tensors.FromRow(1.0))
	noGrad := tape.Parameter(tensors.FromRow(1.0))
	for name := range KnownOptimizers {
		opt := ByName(name)
		opt.Step([]autograd.Node{constant, noGrad})
		require.Equal(t, 1.0, constant.Value().Value(), name)
		require.Equal(t, 1.0, noGrad.Value().Value(), name)
		opt.Clear()
	}
	require.Panics(t, func() { ByName("lbfgs") })
}

func TestClipNaN(t *testing.T) {
	tape := autograd.NewTape("")
	w := tape.Parameter(tensors.FromRow(1.0, 1.0))
	w.SetGrad(tensors.FromRow(math.NaN(), 1.0))
	Adam().LearningRate(0.1).ClipNaN(true).Done().Step([]autograd.Node{w})
	require.False(t, w.Value().HasNaNOrInf())
	require.Equal(t, 1.0, w.Value().At(0, 0, 0))
	require.InDelta(t, 0.9, w.Value().At(0, 0, 1), 1e-6)
}

func TestClipping(t *testing.T) {
	tape := autograd.NewTape("")
	a := tape.Parameter(tensors.FromRow(0.0))
	b := tape.Parameter(tensors.FromRow(0.0))
	empty := tape.Parameter(tensors.FromRow(0.0))
	params := []autograd.Node{a, b, empty}
	a.SetGrad(tensors.FromRow(3.0))
	b.SetGrad(tensors.FromRow(-4.0))
	require.InDelta(t, 5.0, GlobalNorm(params), 1e-12)

	norm := ClipGradientsByGlobalNorm(params, 1.0)
	require.InDelta(t, 5.0, norm, 1e-12)
	require.InDelta(t, 1.0, GlobalNorm(params), 1e-12)
	require.InDelta(t, 0.6, a.Grad().Value(), 1e-12)
	require.InDelta(t, -0.8, b.Grad().Value(), 1e-12)
	require.Nil(t, empty.Grad())

	// Below the threshold nothing changes.
	ClipGradientsByGlobalNorm(params, 10)
	require.InDelta(t, 0.6, a.Grad().Value(), 1e-12)

	ClipGradientsByValue(params, 0.7)
	require.InDelta(t, 0.6, a.Grad().Value(), 1e-12)
	require.InDelta(t, -0.7, b.Grad().Value(), 1e-12)

	ZeroGradients(params)
	require.Nil(t, a.Grad())
	require.Nil(t, b.Grad())
	require.Panics(t, func() { ClipGradientsByGlobalNorm(params, 0) })
}

func TestLearningRateSetter(t *testing.T) {
	for name := range KnownOptimizers {
		setter, ok := ByName(name).(LearningRateSetter)
		require.Truef(t, ok, "%s doesn't implement LearningRateSetter", name)
		setter.SetLearningRate(0.123)
		require.Equal(t, 0.123, setter.LearningRate())
	}
}
