// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"k8s.io/klog/v2"
)

// AdamDefaultLearningRate is used by Adam if no learning rate is set.
const AdamDefaultLearningRate = 0.001

// Adam optimization is a stochastic gradient descent method based on an adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// It returns a configuration object that can be used to set its parameters. Once configured, call AdamConfig.Done,
// and it will return an optimizers.Interface that can be used with the `train.Trainer` or directly in a custom
// optimization loop.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
	}
}

// RMSProp is an optimizer that divides the learning rate for a weight by a running average
// of the recent gradients magnitudes (L2) for that weight.
//
// It uses Adam to implement it -- it's somewhat equivalent to an Adam without the 1st moment
// of the gradients.
func RMSProp() *AdamConfig {
	c := Adam()
	c.rmsProp = true
	return c
}

// AdamConfig holds the configuration for an Adam configuration, create using Adam(), and once configured
// call Done to create an Adam-based optimizers.Interface.
type AdamConfig struct {
	learningRate    float64
	beta1, beta2    float64
	epsilon         float64
	adamax          bool    // Works as Adamax.
	weightDecay     float64 // Works as AdamW.
	rmsProp         bool    // Works as RMSProp.
	backoffSteps    int
	clipStepByValue float64
	clipNaN         bool
}

// LearningRate sets the base learning rate. Default is AdamDefaultLearningRate.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	if value <= 0 {
		exceptions.Panicf("Adam learning rate must be > 0, got %g", value)
	}
	c.learningRate = value
	return c
}

// Betas sets the two moving averages constants (default to 0.9 and 0.999).
// Beta1 is used for the gradients (momentum), beta2 for the squared gradients (variance).
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1 = beta1
	c.beta2 = beta2
	return c
}

// Epsilon used on the denominator as a small constant for stability.
// The default is 1e-7.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// Adamax configure Adam to use an L-infinity (== max, which gives the name) for
// the second moment, instead of L2, as described in the same Adam paper.
func (c *AdamConfig) Adamax() *AdamConfig {
	c.adamax = true
	return c
}

// WeightDecay configure optimizer to work as AdamW, with the given static weight decay.
// This is because L2 regularization doesn't work well with Adam.
func (c *AdamConfig) WeightDecay(weightDecay float64) *AdamConfig {
	c.weightDecay = weightDecay
	return c
}

// WithBackoffSteps prevents any gradient steps to be taken, until numSteps steps have been taken
// to allow for a better estimate of the gradient momentums (numerator) and variance of gradients (denominator)
// before the optimization start.
//
// If set to <= 0, no backoff is configured. The default is 0.
func (c *AdamConfig) WithBackoffSteps(numSteps int) *AdamConfig {
	c.backoffSteps = numSteps
	return c
}

// ClipStepByValue clips each value of the step applied, after being scaled by the learning rate,
// to [-clip, +clip]. The default, 0, means no clipping.
func (c *AdamConfig) ClipStepByValue(clip float64) *AdamConfig {
	c.clipStepByValue = clip
	return c
}

// ClipNaN will drop any updates with NaNs.
// This is a double-edged option: it keeps training running, but probably it will replace NaNs with bad training results.
// It works well to handle spurious results.
//
// The default is false.
func (c *AdamConfig) ClipNaN(clipNaN bool) *AdamConfig {
	c.clipNaN = clipNaN
	return c
}

// Done will finish the configuration and construct an optimizers.Interface that implements Adam as configured.
func (c *AdamConfig) Done() Interface {
	return &adam{config: *c, learningRate: c.learningRate, moments: make(map[autograd.NodeId]*adamMoments)}
}

// adam implements the Adam algorithm as an optimizers.Interface.
type adam struct {
	config       AdamConfig
	learningRate float64
	globalStep   int64
	moments      map[autograd.NodeId]*adamMoments
}

type adamMoments struct {
	moment1, moment2 []float64
}

// LearningRate returns the current learning rate.
func (o *adam) LearningRate() float64 { return o.learningRate }

// SetLearningRate changes the learning rate used by the following steps, e.g. by a schedule.
func (o *adam) SetLearningRate(learningRate float64) { o.learningRate = learningRate }

// Step implements Interface.
func (o *adam) Step(params []autograd.Node) {
	o.globalStep++
	beta1, beta2 := o.config.beta1, o.config.beta2
	debiasTermBeta1 := 1 / (1 - math.Pow(beta1, float64(o.globalStep)))
	debiasTermBeta2 := 1 / (1 - math.Pow(beta2, float64(o.globalStep)))
	applyStep := o.globalStep > int64(o.config.backoffSteps)
	for _, param := range params {
		if !trainable(param) {
			continue
		}
		grad := param.Grad().Flat()
		m := o.getMoments(param)
		value := param.Value().Clone()
		flat := value.Flat()
		var numNaNs int
		for ii, g := range grad {
			if o.config.clipNaN && (math.IsNaN(g) || math.IsInf(g, 0)) {
				numNaNs++
				continue
			}
			// The momentum is disabled (we simply take the gradient) if rmsProp is set.
			debiasedMoment1 := g
			if !o.config.rmsProp {
				m.moment1[ii] = beta1*m.moment1[ii] + (1-beta1)*g
				debiasedMoment1 = m.moment1[ii] * debiasTermBeta1
			}
			var denominator float64
			if o.config.adamax {
				m.moment2[ii] = max(beta2*m.moment2[ii], math.Abs(g))
				denominator = m.moment2[ii] + o.config.epsilon
			} else {
				m.moment2[ii] = beta2*m.moment2[ii] + (1-beta2)*g*g
				denominator = math.Sqrt(m.moment2[ii]*debiasTermBeta2) + o.config.epsilon
			}
			if !applyStep {
				continue
			}
			step := o.learningRate * debiasedMoment1 / denominator
			if o.config.weightDecay > 0 {
				step += o.learningRate * o.config.weightDecay * flat[ii]
			}
			if o.config.clipStepByValue > 0 {
				step = min(max(step, -o.config.clipStepByValue), o.config.clipStepByValue)
			}
			updated := flat[ii] - step
			if o.config.clipNaN && (math.IsNaN(updated) || math.IsInf(updated, 0)) {
				numNaNs++
				continue
			}
			flat[ii] = updated
		}
		if numNaNs > 0 {
			klog.Warningf("Adam: dropped %d non-finite updates for %s", numNaNs, param)
		}
		if applyStep {
			param.SetValue(value)
		}
	}
}

// getMoments returns the moments of param, creating them at zero if they don't exist yet.
func (o *adam) getMoments(param autograd.Node) *adamMoments {
	m, found := o.moments[param.Id()]
	if !found {
		size := param.Shape().Size()
		m = &adamMoments{moment2: make([]float64, size)}
		if !o.config.rmsProp {
			m.moment1 = make([]float64, size)
		}
		o.moments[param.Id()] = m
	}
	return m
}

// Clear implements Interface.
func (o *adam) Clear() {
	o.globalStep = 0
	clear(o.moments)
}
