// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cosineschedule implements a cosine annealing schedule for the learning rate.
// See New for details and example of usage, and original paper description in [1]
//
// [1] https://paperswithcode.com/method/cosine-annealing.
package cosineschedule

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/gomlx/gograd/pkg/ml/train/optimizers"
	"k8s.io/klog/v2"
)

// Config of the cosine annealing schedule strategy.
// New creates it and once configured, call Config.AttachToLoop to have it update the optimizer's
// learning rate at every training step.
type Config struct {
	optimizer                     optimizers.LearningRateSetter
	learningRate, minLearningRate float64
	periodNumSteps, numCycles     int
	warmUpSteps                   int
}

// DefaultLastStep is the value used for the last step of the training while one is not yet known,
// e.g. during the first epoch of Loop.RunEpochs.
const DefaultLastStep = 1_000_000_000

// New creates a configuration to apply a cosine annealing schedule for the learning rate of the
// given optimizer. See details https://paperswithcode.com/method/cosine-annealing.
//
// Example with only one cycle, and a warmup of 1000 steps:
//
//	opt := optimizers.Adam().LearningRate(1e-3).Done()
//	...
//	loop := train.NewLoop(trainer)
//	cosineschedule.New(opt.(optimizers.LearningRateSetter)).
//		MinLearningRate(1e-5).
//		WarmUpSteps(1000).
//		NumCycles(1).
//		AttachToLoop(loop)
func New(optimizer optimizers.LearningRateSetter) *Config {
	if optimizer == nil {
		exceptions.Panicf("cosineschedule.New requires an optimizer")
	}
	return &Config{optimizer: optimizer}
}

// PeriodSteps sets the number of steps for one period of the cosine schedule. The effective
// learning rate decreases over the given period of training steps and then is restarted at
// each new period.
//
// It's common to use only one period (so no annealing, just a cosine schedule), see NumCycles.
// It takes precedence over NumCycles.
func (opt *Config) PeriodSteps(periodSteps int) *Config {
	opt.periodNumSteps = periodSteps
	return opt
}

// NumCycles sets the period of the cosine schedule as a fraction of the total number of training
// steps of the loop (after the warm-up): e.g. 1 means one cycle spans the whole training.
func (opt *Config) NumCycles(numCycles int) *Config {
	opt.numCycles = numCycles
	return opt
}

// MinLearningRate at the end of the cosine cycle. Defaults to 0.0.
func (opt *Config) MinLearningRate(minLearningRate float64) *Config {
	opt.minLearningRate = minLearningRate
	return opt
}

// WarmUpSteps sets the number of steps to linearly increase the learning rate from the minimum
// learning rate to the base learning rate.
//
// The default is 0, which means no warmup.
func (opt *Config) WarmUpSteps(warmUpSteps int) *Config {
	opt.warmUpSteps = warmUpSteps
	return opt
}

// LearningRate at the start of the cosine cycle.
// If not given, the learning rate of the optimizer when the schedule is attached is used.
func (opt *Config) LearningRate(learningRate float64) *Config {
	opt.learningRate = learningRate
	return opt
}

// LearningRateAt returns the scheduled learning rate for the given (0-based) training step.
// lastStep is one-past the last training step, or -1 if not known: it is only used if the period
// is configured with NumCycles.
func (opt *Config) LearningRateAt(step, lastStep int) float64 {
	lr, lrMin := opt.learningRate, opt.minLearningRate
	if opt.warmUpSteps > 0 && step < opt.warmUpSteps {
		ratio := float64(step) / float64(opt.warmUpSteps)
		return ratio*(lr-lrMin) + lrMin
	}
	cosineStep := float64(step - opt.warmUpSteps)

	var period float64
	switch {
	case opt.periodNumSteps > 0:
		period = float64(opt.periodNumSteps)
	case opt.numCycles > 0:
		if lastStep < 0 {
			lastStep = DefaultLastStep
		}
		period = float64(lastStep-opt.warmUpSteps) / float64(opt.numCycles)
	default:
		return lr
	}
	if period <= 0 {
		return lr
	}

	// A cycle represents the fraction of a half-circle (180 degrees, or pi radians).
	cycle := max(cosineStep/period, 0)
	cycle -= math.Floor(cycle)
	ratio := (math.Cos(cycle*math.Pi) + 1.0) / 2.0 // from 0.0 to 1.0
	return ratio*(lr-lrMin) + lrMin
}

// Name of the hooks registered in the train.Loop.
const Name = "cosineschedule"

// AttachToLoop registers hooks in the loop that set the optimizer's learning rate before every training step.
//
// It panics if neither PeriodSteps nor NumCycles is configured, or if there is no learning rate.
func (opt *Config) AttachToLoop(loop *train.Loop) {
	if opt.periodNumSteps <= 0 && opt.numCycles <= 0 {
		exceptions.Panicf("cosineschedule: either PeriodSteps or NumCycles must be configured with a value > 0")
	}
	if opt.learningRate == 0 {
		opt.learningRate = opt.optimizer.LearningRate()
	}
	if opt.learningRate <= 0 {
		exceptions.Panicf("cosineschedule: learning rate not configured and optimizer's learning rate is %g",
			opt.learningRate)
	}
	// Priority is set low, so other hooks observe the learning rate for the next step.
	loop.OnStart(Name, -100, func(loop *train.Loop, _ train.Dataset) error {
		opt.optimizer.SetLearningRate(opt.LearningRateAt(loop.LoopStep, loop.EndStep))
		return nil
	})
	loop.OnStep(Name, -100, func(loop *train.Loop, _ []float64) error {
		lr := opt.LearningRateAt(loop.LoopStep+1, loop.EndStep)
		opt.optimizer.SetLearningRate(lr)
		klog.V(3).Infof("cosineschedule: learning rate for step %d set to %g", loop.LoopStep+1, lr)
		return nil
	})
}
