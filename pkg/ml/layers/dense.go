// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/ml/initializer"
	"github.com/gomlx/gograd/pkg/ml/layers/activations"
)

// DenseBuilder holds the configuration for a Dense layer.
// Once finished configuring, call DenseBuilder.Done()
type DenseBuilder struct {
	tape                *autograd.Tape
	inputDim, outputDim int
	useBias             bool
	activation          activations.Type
	weightsInitializer  initializer.Initializer
	biasInitializer     initializer.Initializer
}

// NewDense starts the configuration of a fully connected layer mapping inputDim features to
// outputDim features: Activation(x · weights + bias).
//
// Weights are initialized with initializer.XavierNormal(rng), and biases with zeros. The default
// activation is none.
//
// Call DenseBuilder.Done when you finished the configuration.
func NewDense(tape *autograd.Tape, rng *rand.Rand, inputDim, outputDim int) *DenseBuilder {
	if inputDim <= 0 || outputDim <= 0 {
		exceptions.Panicf("layers.NewDense: dimensions must be > 0, got inputDim=%d, outputDim=%d", inputDim, outputDim)
	}
	return &DenseBuilder{
		tape:               tape,
		inputDim:           inputDim,
		outputDim:          outputDim,
		useBias:            true,
		activation:         activations.TypeNone,
		weightsInitializer: initializer.XavierNormal(rng),
		biasInitializer:    initializer.Zero,
	}
}

// UseBias configures whether to add a bias term. Default is true.
func (b *DenseBuilder) UseBias(useBias bool) *DenseBuilder {
	b.useBias = useBias
	return b
}

// Activation sets the activation applied after the linear transformation. Default is none.
func (b *DenseBuilder) Activation(activation activations.Type) *DenseBuilder {
	b.activation = activation
	return b
}

// WithInitializer sets the initializer of the weights.
func (b *DenseBuilder) WithInitializer(init initializer.Initializer) *DenseBuilder {
	b.weightsInitializer = init
	return b
}

// Done creates the parameters of the layer and returns it.
func (b *DenseBuilder) Done() *Dense {
	d := &Dense{
		Weights:    b.tape.Parameter(b.weightsInitializer(shapes.Make(1, b.inputDim, b.outputDim))),
		Activation: b.activation,
	}
	if b.useBias {
		d.Bias = b.tape.Parameter(b.biasInitializer(shapes.Make(1, 1, b.outputDim)))
	}
	return d
}

// Dense is a fully connected layer. Create it with NewDense.
type Dense struct {
	// Weights shaped [1, inputDim, outputDim].
	Weights autograd.Node

	// Bias shaped [1, 1, outputDim], or the zero Node if the layer has no bias.
	Bias autograd.Node

	Activation activations.Type
}

// Apply the layer to x shaped [batch, sequence, inputDim]. The output is shaped [batch, sequence, outputDim].
func (d *Dense) Apply(x autograd.Node) autograd.Node {
	return activations.Apply(d.Activation, autograd.Linear(x, d.Weights, d.Bias))
}

// Parameters implements HasParameters.
func (d *Dense) Parameters() []autograd.Node {
	if d.Bias.Tape() == nil {
		return []autograd.Node{d.Weights}
	}
	return []autograd.Node{d.Weights, d.Bias}
}
