// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements a collection of ML optimizers that can be used by train.Trainer,
// or by themselves. They all implement optimizers.Interface.
//
// Optimizers read the gradients accumulated on the parameters by autograd's Backward, and
// update the parameter values with Node.SetValue: the update is not a graph operation.
package optimizers

import (
	"maps"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Step updates the values of params using their accumulated gradients. Parameters with an
	// empty gradient slot, or that don't require gradients, are left untouched.
	//
	// It doesn't clear the gradients: that is the caller's responsibility, see ZeroGradients.
	Step(params []autograd.Node)

	// Clear deletes all state kept by the optimizer (moments, step counter), e.g. to restart training.
	Clear()
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors.
	// This provides an easy quick start point. One can hyperparameter-tune the optimizers
	// for usually slightly better results.
	KnownOptimizers = map[string]func() Interface{
		"sgd":     func() Interface { return StochasticGradientDescent().Done() },
		"adam":    func() Interface { return Adam().Done() },
		"adamax":  func() Interface { return Adam().Adamax().Done() },
		"adamw":   func() Interface { return Adam().WeightDecay(0.004).Done() },
		"rmsprop": func() Interface { return RMSProp().Done() },
	}
)

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers -- in case one wants to better handle invalid values.
//
// Example usage:
//
//	optimizer := optimizers.ByName(*flagOptimizer)
func ByName(optName string) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		names := slices.Sorted(maps.Keys(KnownOptimizers))
		exceptions.Panicf("Unknown optimizer %q, valid values are %v.", optName, names)
	}
	return optBuilder()
}

// ZeroGradients empties the gradient slots of all params.
func ZeroGradients(params []autograd.Node) {
	for _, param := range params {
		param.ZeroGrad()
	}
}

// GlobalNorm returns the L2 norm of the gradients of all params, as if they were concatenated.
// Empty gradient slots count as zeros.
func GlobalNorm(params []autograd.Node) float64 {
	var sum float64
	for _, param := range params {
		if grad := param.Grad(); grad != nil {
			sum += grad.SquaredNorm()
		}
	}
	return math.Sqrt(sum)
}

// ClipGradientsByGlobalNorm rescales the gradients of all params so that their global norm is
// at most maxNorm. It returns the global norm before clipping.
//
// The gradients are replaced with Node.SetGrad.
func ClipGradientsByGlobalNorm(params []autograd.Node, maxNorm float64) float64 {
	if maxNorm <= 0 {
		exceptions.Panicf("ClipGradientsByGlobalNorm: maxNorm must be > 0, got %g", maxNorm)
	}
	norm := GlobalNorm(params)
	if norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / norm
	for _, param := range params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		clipped := grad.Clone()
		clipped.ScaleInPlace(scale)
		param.SetGrad(clipped)
	}
	return norm
}

// ClipGradientsByValue clips every gradient element to [-clip, +clip].
func ClipGradientsByValue(params []autograd.Node, clip float64) {
	if clip <= 0 {
		exceptions.Panicf("ClipGradientsByValue: clip must be > 0, got %g", clip)
	}
	for _, param := range params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		clipped := grad.Clone()
		flat := clipped.Flat()
		for ii, v := range flat {
			flat[ii] = min(max(v, -clip), clip)
		}
		param.SetGrad(clipped)
	}
}

// LearningRateSetter is implemented by optimizers whose learning rate can be changed during
// training, e.g. by cosineschedule.
type LearningRateSetter interface {
	LearningRate() float64
	SetLearningRate(learningRate float64)
}

// trainable returns whether the optimizer should update param.
func trainable(param autograd.Node) bool {
	return param.RequiresGrad() && param.IsLeaf() && param.Grad() != nil
}

// SGDConfig holds the configuration of the stochastic gradient descent optimizer.
// Create it with StochasticGradientDescent, and call Done when finished configuring.
type SGDConfig struct {
	learningRate float64
	momentum     float64
	useDecay     bool
}

// SGDDefaultLearningRate is the default learning rate used by the StochasticGradientDescent optimizer.
const SGDDefaultLearningRate = 0.1

// StochasticGradientDescent creates an optimizer that performs SGD, with the initial learning
// rate set to SGDDefaultLearningRate.
//
// By default, it has a learning rate decay given by: `learning_rate = initial_learning_rate / Sqrt(global_step)`,
// and no momentum.
func StochasticGradientDescent() *SGDConfig {
	return &SGDConfig{
		learningRate: SGDDefaultLearningRate,
		useDecay:     true,
	}
}

// WithDecay enables or disables the learning rate decay. Default is true.
func (c *SGDConfig) WithDecay(enabled bool) *SGDConfig {
	c.useDecay = enabled
	return c
}

// WithLearningRate sets the initial learning rate.
func (c *SGDConfig) WithLearningRate(learningRate float64) *SGDConfig {
	c.learningRate = learningRate
	return c
}

// WithMomentum sets the momentum (the decay of the velocity). Default is 0, no momentum.
func (c *SGDConfig) WithMomentum(momentum float64) *SGDConfig {
	if momentum < 0 || momentum >= 1 {
		exceptions.Panicf("SGD momentum must be in [0, 1), got %g", momentum)
	}
	c.momentum = momentum
	return c
}

// Done returns the configured optimizer.
func (c *SGDConfig) Done() Interface {
	return &sgd{config: *c, learningRate: c.learningRate, velocities: make(map[autograd.NodeId][]float64)}
}

type sgd struct {
	config       SGDConfig
	learningRate float64
	globalStep   int64
	velocities   map[autograd.NodeId][]float64
}

// LearningRate returns the current base learning rate, before decay.
func (o *sgd) LearningRate() float64 { return o.learningRate }

// SetLearningRate changes the base learning rate used by the following steps.
func (o *sgd) SetLearningRate(learningRate float64) { o.learningRate = learningRate }

// Step implements Interface.
func (o *sgd) Step(params []autograd.Node) {
	o.globalStep++
	learningRate := o.learningRate
	if o.config.useDecay {
		learningRate /= math.Sqrt(float64(o.globalStep))
	}
	for _, param := range params {
		if !trainable(param) {
			continue
		}
		grad := param.Grad().Flat()
		value := param.Value().Clone()
		flat := value.Flat()
		if o.config.momentum > 0 {
			velocity, found := o.velocities[param.Id()]
			if !found {
				velocity = make([]float64, len(flat))
				o.velocities[param.Id()] = velocity
			}
			for ii, g := range grad {
				velocity[ii] = o.config.momentum*velocity[ii] + g
				flat[ii] -= learningRate * velocity[ii]
			}
		} else {
			for ii, g := range grad {
				flat[ii] -= learningRate * g
			}
		}
		param.SetValue(value)
	}
}

// Clear implements Interface.
func (o *sgd) Clear() {
	o.globalStep = 0
	clear(o.velocities)
}
