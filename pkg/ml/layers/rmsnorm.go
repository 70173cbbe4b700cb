// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/ml/initializer"
)

// RMSNormBuilder holds the configuration for RMSNorm.
// Once finished configuring, call RMSNormBuilder.Done()
type RMSNormBuilder struct {
	tape       *autograd.Tape
	featureDim int
	useScale   bool
	epsilon    float64
}

// NewRMSNorm starts the configuration of an RMS normalization layer over the feature (inner)
// axis, as described in https://arxiv.org/abs/1910.07467.
//
// It normalizes the input with a simple:
//
//	RMS(a) = Sqrt(1/n * \sum{a_i^2} + epsilon)
//	RMSNorm(a) = a_i / RMS(a) * g_i
//
// Where g_i is a learnable gain (scale), enabled by default and initialized to 1.
//
// Call RMSNormBuilder.Done when you finished the configuration.
func NewRMSNorm(tape *autograd.Tape, featureDim int) *RMSNormBuilder {
	return &RMSNormBuilder{
		tape:       tape,
		featureDim: featureDim,
		useScale:   true,
		epsilon:    autograd.DefaultRMSNormEpsilon,
	}
}

// WithScale sets whether to use the gain parameter and returns the updated builder.
func (b *RMSNormBuilder) WithScale(useScale bool) *RMSNormBuilder {
	b.useScale = useScale
	return b
}

// WithEpsilon sets the epsilon value and returns the updated builder.
// The default value is 1e-6.
func (b *RMSNormBuilder) WithEpsilon(epsilon float64) *RMSNormBuilder {
	if epsilon <= 0 {
		exceptions.Panicf("RMSNorm epsilon must be > 0, got %g", epsilon)
	}
	b.epsilon = epsilon
	return b
}

// Done creates the layer parameters and returns the layer.
func (b *RMSNormBuilder) Done() *RMSNorm {
	norm := &RMSNorm{Epsilon: b.epsilon}
	if b.useScale {
		norm.Scale = b.tape.Parameter(initializer.One(shapes.Make(1, 1, b.featureDim)))
	}
	return norm
}

// RMSNorm is a normalization layer, create it with NewRMSNorm.
type RMSNorm struct {
	// Scale is the learnable gain shaped [1, 1, featureDim], or the zero Node if not used.
	Scale autograd.Node

	Epsilon float64
}

// Apply normalizes x over its feature axis.
func (norm *RMSNorm) Apply(x autograd.Node) autograd.Node {
	return autograd.RMSNorm(x, norm.Scale, norm.Epsilon)
}

// Parameters implements HasParameters.
func (norm *RMSNorm) Parameters() []autograd.Node {
	if norm.Scale.Tape() == nil {
		return nil
	}
	return []autograd.Node{norm.Scale}
}
