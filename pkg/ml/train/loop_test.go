// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"
	"testing"
	"time"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop() (*Loop, autograd.Node) {
	trainer, w := newScalarTrainer(
		optimizers.StochasticGradientDescent().WithDecay(false).WithLearningRate(0.01).Done())
	return NewLoop(trainer), w
}

func TestLoopHooks(t *testing.T) {
	loop, _ := newTestLoop()
	var calls []string
	loop.OnStart("second", 1, func(_ *Loop, _ Dataset) error {
		calls = append(calls, "start:second")
		return nil
	})
	loop.OnStart("first", -1, func(_ *Loop, ds Dataset) error {
		calls = append(calls, "start:first:"+ds.Name())
		return nil
	})
	loop.OnStep("step", 0, func(loop *Loop, metrics []float64) error {
		require.Len(t, metrics, 1)
		calls = append(calls, "step")
		return nil
	})
	loop.OnEnd("end", 0, func(loop *Loop, _ []float64) error {
		calls = append(calls, "end")
		return nil
	})

	ds := &scalarsDataset{xs: []float64{1, 2}, ys: []float64{1, 2}, infinite: true}
	metricValues, err := loop.RunSteps(ds, 3)
	require.NoError(t, err)
	require.Len(t, metricValues, 1)
	require.Equal(t, []string{"start:first:scalars", "start:second", "step", "step", "step", "end"}, calls)
	require.Equal(t, 3, loop.LoopStep)
	require.Equal(t, 0, loop.StartStep)
	require.Equal(t, 3, loop.EndStep)
	require.Len(t, loop.TrainStepDurations, 3)
	require.Greater(t, loop.MedianTrainStepDuration(), time.Duration(0))

	// Picks up where it stopped.
	_, err = loop.RunSteps(ds, 2)
	require.NoError(t, err)
	require.Equal(t, 3, loop.StartStep)
	require.Equal(t, 5, loop.LoopStep)
	require.Equal(t, 5, loop.Trainer.GlobalStep())
}

func TestLoopErrors(t *testing.T) {
	loop, _ := newTestLoop()

	// Finite dataset shorter than the requested steps.
	_, err := loop.RunSteps(&scalarsDataset{xs: []float64{1}, ys: []float64{1}}, 2)
	require.ErrorContains(t, err, "reached Dataset end")

	// Hook errors are wrapped with the hook name.
	loop, _ = newTestLoop()
	hookErr := errors.New("stop now")
	loop.OnStep("stopper", 0, func(_ *Loop, _ []float64) error { return hookErr })
	_, err = loop.RunSteps(&scalarsDataset{xs: []float64{1}, ys: []float64{1}, infinite: true}, 2)
	require.ErrorIs(t, err, hookErr)
	require.ErrorContains(t, err, "stopper")

	// NaN loss interrupts training.
	loop, _ = newTestLoop()
	_, err = loop.RunSteps(&scalarsDataset{xs: []float64{1}, ys: []float64{math.NaN()}, infinite: true}, 2)
	require.ErrorContains(t, err, "NaN")
	require.Equal(t, 0, loop.LoopStep)
}

func TestRunEpochs(t *testing.T) {
	loop, w := newTestLoop()
	ds := &scalarsDataset{xs: []float64{1, 2, 3}, ys: []float64{2, 4, 6}}
	var endSteps []int
	var epochs []int
	loop.OnStep("record", 0, func(loop *Loop, _ []float64) error {
		endSteps = append(endSteps, loop.EndStep)
		epochs = append(epochs, loop.Epoch)
		return nil
	})
	_, err := loop.RunEpochs(ds, 2)
	require.NoError(t, err)
	require.Equal(t, 6, loop.LoopStep)
	require.Equal(t, []int{-1, -1, -1, 6, 6, 6}, endSteps)
	require.Equal(t, []int{0, 0, 0, 1, 1, 1}, epochs)
	require.Equal(t, 0, ds.next, "dataset is reset after the last epoch")
	require.Greater(t, w.Value().Value(), 0.0)

	_, err = loop.RunEpochs(&scalarsDataset{}, 1)
	require.Error(t, err)
}

func TestRunToGlobalStep(t *testing.T) {
	loop, _ := newTestLoop()
	require.NoError(t, loop.Trainer.AccumulateGradients(2))
	ds := &scalarsDataset{xs: []float64{1}, ys: []float64{1}, infinite: true}
	_, err := loop.RunToGlobalStep(ds, 3)
	require.NoError(t, err)
	require.Equal(t, 3, loop.Trainer.GlobalStep())
	require.Equal(t, 6, loop.LoopStep)

	metricValues, err := loop.RunToGlobalStep(ds, 2)
	require.NoError(t, err)
	require.Nil(t, metricValues)

	// A new loop starts from the trainer's global step.
	require.Equal(t, 6, NewLoop(loop.Trainer).LoopStep)
}

func TestCallbacks(t *testing.T) {
	loop, _ := newTestLoop()
	var everyN, nTimes, exponential, periodic []int
	EveryNSteps(loop, 3, "everyN", 0, func(loop *Loop, _ []float64) error {
		everyN = append(everyN, loop.LoopStep)
		return nil
	})
	NTimesDuringLoop(loop, 4, "nTimes", 0, func(loop *Loop, _ []float64) error {
		nTimes = append(nTimes, loop.LoopStep)
		return nil
	})
	ExponentialCallback(loop, 2, 2, true, "exponential", 0, func(loop *Loop, _ []float64) error {
		exponential = append(exponential, loop.LoopStep)
		return nil
	})
	PeriodicCallback(loop, 0, false, "periodic", 0, func(loop *Loop, _ []float64) error {
		periodic = append(periodic, loop.LoopStep)
		return nil
	})

	ds := &scalarsDataset{xs: []float64{1}, ys: []float64{1}, infinite: true}
	_, err := loop.RunSteps(ds, 20)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 8, 11, 14, 17}, everyN)
	// Called on the first step, then every 5 steps, and always on the last step.
	assert.Equal(t, []int{0, 4, 9, 14, 19}, nTimes)
	// Called at steps 2, 2+4=6, 6+8=14 and at the end (LoopStep == EndStep).
	assert.Equal(t, []int{2, 6, 14, 20}, exponential)
	// The clock starts on the first step.
	assert.Len(t, periodic, 19)

	require.Panics(t, func() { ExponentialCallback(loop, 0, 2, false, "bad", 0, nil) })
	require.Panics(t, func() { EveryNSteps(loop, 0, "bad", 0, nil) })
	require.Panics(t, func() { NTimesDuringLoop(loop, 0, "bad", 0, nil) })
}
