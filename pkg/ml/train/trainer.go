// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds tools to help run a training loop: Trainer executes one training step
// (forward, backward and optimizer update), Loop runs many of them over a Dataset and calls hooks.
package train

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/gomlx/gograd/pkg/ml/train/metrics"
	"github.com/gomlx/gograd/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelFn builds the forward pass of a model on the tape, given the inputs of a batch (recorded as
// constants), and returns the predictions.
type ModelFn func(tape *autograd.Tape, inputs []autograd.Node) (predictions autograd.Node)

// LossFn returns the scalar loss given the labels of a batch (recorded as constants) and the
// predictions of the model.
type LossFn func(labels []autograd.Node, predictions autograd.Node) (loss autograd.Node)

// Trainer is a helper object to orchestrate a training step and evaluation.
//
// Given the model parameters (created on the tape before the trainer), a model function, a loss
// function and an optimizer, each TrainStep records the forward pass on the tape, back-propagates
// the loss, and once enough steps are accumulated, updates the parameters with the optimizer.
// After each step the tape is truncated back to where it was when the trainer was created, so
// only the parameters survive across steps.
//
// Trainer is not safe for concurrent use.
type Trainer struct {
	tape *autograd.Tape
	mark int

	params    []autograd.Node
	modelFn   ModelFn
	lossFn    LossFn
	optimizer optimizers.Interface

	trainMetrics, evalMetrics []metrics.Interface

	// maxGradientNorm and maxGradientValue are disabled if <= 0.
	maxGradientNorm, maxGradientValue float64
	lastGradientNorm                  float64

	numAccumulatingSteps, accumulatedSteps int
	globalStep                             int
}

// NewTrainer constructs a trainer for the given parameters, that must all have been created on tape.
//
// Any node created on the tape after NewTrainer returns is discarded after each train or eval step.
//
// The first train metric is always the "Batch Loss", and the first eval metric is always the
// "Mean Loss": the given trainMetrics and evalMetrics are appended to them.
func NewTrainer(tape *autograd.Tape, params []autograd.Node, modelFn ModelFn, lossFn LossFn,
	optimizer optimizers.Interface, trainMetrics, evalMetrics []metrics.Interface) *Trainer {
	if tape == nil || modelFn == nil || lossFn == nil || optimizer == nil {
		exceptions.Panicf("NewTrainer requires a tape, a model function, a loss function and an optimizer")
	}
	for ii, param := range params {
		param.AssertValid()
		if param.Tape() != tape {
			exceptions.Panicf("NewTrainer: parameter #%d (%s) belongs to %s, not to %s", ii, param, param.Tape(), tape)
		}
	}
	r := &Trainer{
		tape:                 tape,
		mark:                 tape.Mark(),
		params:               params,
		modelFn:              modelFn,
		lossFn:               lossFn,
		optimizer:            optimizer,
		numAccumulatingSteps: 1,
	}
	r.trainMetrics = append([]metrics.Interface{
		metrics.NewBaseMetric("Batch Loss", "loss", metrics.LossMetricType, metrics.LossValue, nil),
	}, trainMetrics...)
	r.evalMetrics = append([]metrics.Interface{
		metrics.NewMeanMetric("Mean Loss", "#loss", metrics.LossMetricType, metrics.LossValue, nil),
	}, evalMetrics...)
	return r
}

// WithGradientClipping rescales the gradients of the parameters before each optimizer update, so
// that their global L2 norm is at most maxNorm. A value <= 0 disables it.
func (r *Trainer) WithGradientClipping(maxNorm float64) *Trainer {
	r.maxGradientNorm = maxNorm
	return r
}

// WithGradientClippingByValue clips each gradient element to [-clip, clip] before each optimizer
// update. It is applied before the global norm clipping. A value <= 0 disables it.
func (r *Trainer) WithGradientClippingByValue(clip float64) *Trainer {
	r.maxGradientValue = clip
	return r
}

// AccumulateGradients configures the trainer to accumulate the gradients of numSteps train steps
// before applying the optimizer, with the mean of the accumulated gradients.
//
// The gradients accumulate on the parameters' gradient slots, since calling Backward on
// each step's loss adds to them.
func (r *Trainer) AccumulateGradients(numSteps int) error {
	if numSteps < 1 {
		return errors.Errorf("Trainer.AccumulateGradients(%d): number of steps must be >= 1", numSteps)
	}
	if r.accumulatedSteps != 0 {
		return errors.Errorf("Trainer.AccumulateGradients(%d): cannot change it while %d steps are accumulated",
			numSteps, r.accumulatedSteps)
	}
	r.numAccumulatingSteps = numSteps
	return nil
}

// NumAccumulatingSteps returns the number of train steps per optimizer update, 1 by default.
func (r *Trainer) NumAccumulatingSteps() int { return r.numAccumulatingSteps }

// GlobalStep returns the number of optimizer updates executed so far.
func (r *Trainer) GlobalStep() int { return r.globalStep }

// Tape used by the trainer.
func (r *Trainer) Tape() *autograd.Tape { return r.tape }

// Parameters being trained.
func (r *Trainer) Parameters() []autograd.Node { return r.params }

// Optimizer used by the trainer.
func (r *Trainer) Optimizer() optimizers.Interface { return r.optimizer }

// LastGradientNorm returns the global norm of the gradients of the last optimizer update, before clipping.
func (r *Trainer) LastGradientNorm() float64 { return r.lastGradientNorm }

// TrainMetrics returns the train metrics objects (not the actual values, just the objects that implement them).
// The first one is always the batch loss.
func (r *Trainer) TrainMetrics() []metrics.Interface { return r.trainMetrics }

// EvalMetrics returns the eval metrics objects (not the actual values, just the objects that implement them).
// The first one is always the mean loss.
func (r *Trainer) EvalMetrics() []metrics.Interface { return r.evalMetrics }

// ResetTrainMetrics call Metrics.Reset on all train metrics.
func (r *Trainer) ResetTrainMetrics() {
	for _, m := range r.trainMetrics {
		m.Reset()
	}
}

// ResetEvalMetrics call Metrics.Reset on all eval metrics.
func (r *Trainer) ResetEvalMetrics() {
	for _, m := range r.evalMetrics {
		m.Reset()
	}
}

// TrainStep runs one step of training on the given batch: it returns the values of the TrainMetrics
// after the step.
//
// Panics raised while building or back-propagating the graph (e.g. shape mismatches) are
// returned as errors. The tape is truncated even on errors.
func (r *Trainer) TrainStep(inputs, labels []*tensors.Buffer) (metricValues []float64, err error) {
	err = exceptions.TryCatch[error](func() { metricValues = r.trainStep(inputs, labels) })
	if err != nil {
		return nil, errors.WithMessagef(err, "Trainer.TrainStep (global step %d)", r.globalStep)
	}
	return
}

func (r *Trainer) trainStep(inputs, labels []*tensors.Buffer) []float64 {
	r.checkTape()
	defer r.tape.Truncate(r.mark)

	predictions, loss := r.forward(inputs, labels)
	loss.Backward()
	batch := metrics.Batch{Labels: labels, Predictions: predictions.Value(), Loss: loss.Value().Value()}
	if klog.V(1).Enabled() {
		klog.Infof("TrainStep(global step %d): loss=%g, %d nodes using %s", r.globalStep, batch.Loss,
			r.tape.Len(), humanize.Bytes(uint64(r.tape.Memory())))
	}

	r.accumulatedSteps++
	if r.accumulatedSteps >= r.numAccumulatingSteps {
		r.applyGradients()
	}

	values := make([]float64, len(r.trainMetrics))
	for ii, m := range r.trainMetrics {
		values[ii] = m.Update(batch)
	}
	return values
}

// applyGradients takes the mean of the accumulated gradients, clips them, and updates the parameters.
func (r *Trainer) applyGradients() {
	if r.accumulatedSteps > 1 {
		scale := 1.0 / float64(r.accumulatedSteps)
		for _, param := range r.params {
			if grad := param.Grad(); grad != nil {
				mean := grad.Clone()
				mean.ScaleInPlace(scale)
				param.SetGrad(mean)
			}
		}
	}
	if r.maxGradientValue > 0 {
		optimizers.ClipGradientsByValue(r.params, r.maxGradientValue)
	}
	if r.maxGradientNorm > 0 {
		r.lastGradientNorm = optimizers.ClipGradientsByGlobalNorm(r.params, r.maxGradientNorm)
	} else {
		r.lastGradientNorm = optimizers.GlobalNorm(r.params)
	}
	r.optimizer.Step(r.params)
	optimizers.ZeroGradients(r.params)
	r.accumulatedSteps = 0
	r.globalStep++
	klog.V(2).Infof("Trainer: applied gradients (global step %d, gradient norm %g)", r.globalStep, r.lastGradientNorm)
}

// EvalStep runs the model on the given batch without back-propagating, updates the EvalMetrics and
// returns their values.
func (r *Trainer) EvalStep(inputs, labels []*tensors.Buffer) (metricValues []float64, err error) {
	err = exceptions.TryCatch[error](func() { metricValues = r.evalStep(inputs, labels) })
	if err != nil {
		return nil, errors.WithMessagef(err, "Trainer.EvalStep")
	}
	return
}

func (r *Trainer) evalStep(inputs, labels []*tensors.Buffer) []float64 {
	r.checkTape()
	defer r.tape.Truncate(r.mark)

	predictions, loss := r.forward(inputs, labels)
	batch := metrics.Batch{Labels: labels, Predictions: predictions.Value(), Loss: loss.Value().Value()}
	values := make([]float64, len(r.evalMetrics))
	for ii, m := range r.evalMetrics {
		values[ii] = m.Update(batch)
	}
	return values
}

// Eval resets the eval metrics, runs EvalStep over the whole dataset, and returns the final values of
// the eval metrics. The dataset is Reset at the end.
func (r *Trainer) Eval(ds Dataset) (metricValues []float64, err error) {
	r.ResetEvalMetrics()
	defer ds.Reset()
	numBatches := 0
	for {
		inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return nil, errors.WithMessagef(yieldErr, "Trainer.Eval(%q): failed reading dataset", ds.Name())
		}
		metricValues, err = r.EvalStep(inputs, labels)
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): batch #%d", ds.Name(), numBatches)
		}
		numBatches++
	}
	if numBatches == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): dataset yielded no batches", ds.Name())
	}
	return metricValues, nil
}

// forward records the inputs and labels as constants, and runs the model and the loss.
func (r *Trainer) forward(inputs, labels []*tensors.Buffer) (predictions, loss autograd.Node) {
	inputNodes := make([]autograd.Node, len(inputs))
	for ii, input := range inputs {
		inputNodes[ii] = r.tape.Constant(input)
	}
	labelNodes := make([]autograd.Node, len(labels))
	for ii, label := range labels {
		labelNodes[ii] = r.tape.Constant(label)
	}
	predictions = r.modelFn(r.tape, inputNodes)
	predictions.AssertValid()
	loss = r.lossFn(labelNodes, predictions)
	if !loss.Shape().IsScalar() {
		exceptions.Panicf("loss function must return a scalar, got %s", loss)
	}
	return
}

func (r *Trainer) checkTape() {
	if r.tape.Len() < r.mark {
		exceptions.Panicf("%s was truncated below the trainer's parameters (mark %d)", r.tape, r.mark)
	}
}
