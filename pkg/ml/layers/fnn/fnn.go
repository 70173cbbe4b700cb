// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fnn implements a generic FNN (Feedforward Neural Network) with various configurations.
// It should suffice for the common cases and can be extended as needed.
//
// E.g: A FNN for a multi-class classification model with NumClasses classes.
//
//	model := fnn.New(tape, rng, numFeatures, NumClasses).
//		NumHiddenLayers(3, 64).
//		Activation(activations.TypeSwish).
//		Normalization("rms").
//		Residual(true).
//		Done()
//	logits := model.Apply(x)
package fnn

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/ml/layers"
	"github.com/gomlx/gograd/pkg/ml/layers/activations"
)

// Config is created with New and can be configured with its methods.
type Config struct {
	tape                            *autograd.Tape
	rng                             *rand.Rand
	inputDim, outputDim             int
	numHiddenLayers, numHiddenNodes int
	activation                      activations.Type
	normalization                   string
	useBias, useResidual            bool
}

// New creates a configuration for a FNN (Feedforward Neural Network) mapping inputDim features
// to outputDim features. This can be further configured through various methods and when
// finished, call Done to create the parameters.
//
// The defaults are no hidden layers, "gelu" activation, no normalization, no residual connections
// and biases enabled.
func New(tape *autograd.Tape, rng *rand.Rand, inputDim, outputDim int) *Config {
	if inputDim <= 0 || outputDim <= 0 {
		exceptions.Panicf("fnn: inputDim (%d) and outputDim (%d) must be > 0", inputDim, outputDim)
	}
	return &Config{
		tape:           tape,
		rng:            rng,
		inputDim:       inputDim,
		outputDim:      outputDim,
		numHiddenNodes: 10,
		activation:     activations.TypeGelu,
		normalization:  "none",
		useBias:        true,
	}
}

// NumHiddenLayers configure the number of hidden layers between the input and the output.
// Each layer will have numHiddenNodes nodes.
func (c *Config) NumHiddenLayers(numLayers, numHiddenNodes int) *Config {
	if numLayers < 0 || (numLayers > 0 && numHiddenNodes < 1) {
		exceptions.Panicf("fnn: numHiddenLayers (%d) must be greater or equal to 0 and numHiddenNodes (%d) must be greater or equal to 1",
			numLayers, numHiddenNodes)
	}
	c.numHiddenLayers = numLayers
	c.numHiddenNodes = numHiddenNodes
	return c
}

// UseBias configures whether to add a bias term to each node.
// Almost always you want this to be true, and that is the default.
func (c *Config) UseBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// Activation sets the activation for the FNN, in between each layer.
// The input and output layers don't get an activation layer.
func (c *Config) Activation(activation activations.Type) *Config {
	c.activation = activation
	return c
}

// Residual configures if residual connections in between layers with the same number of nodes should be used.
// They are very useful for deep models.
func (c *Config) Residual(useResidual bool) *Config {
	c.useResidual = useResidual
	return c
}

// Normalization sets the normalization type to use in between layers, see layers.KnownNormalizers.
// The input and output layers don't get a normalization layer.
func (c *Config) Normalization(normalization string) *Config {
	if _, found := layers.KnownNormalizers[normalization]; normalization != "" && !found {
		exceptions.Panicf("fnn: unknown normalization %q given", normalization)
	}
	c.normalization = normalization
	return c
}

// Done creates the parameters of the FNN as configured.
func (c *Config) Done() *FNN {
	f := &FNN{activation: c.activation, useResidual: c.useResidual}
	inputDim := c.inputDim
	for ii := range c.numHiddenLayers + 1 {
		outputDim := c.numHiddenNodes
		if ii == c.numHiddenLayers {
			outputDim = c.outputDim
		}
		if ii > 0 {
			f.normalizers = append(f.normalizers, layers.MustNormalizerByName(c.tape, c.normalization, inputDim))
		}
		f.dense = append(f.dense, layers.NewDense(c.tape, c.rng, inputDim, outputDim).UseBias(c.useBias).Done())
		inputDim = outputDim
	}
	return f
}

// FNN is a feedforward neural network, created with New.
type FNN struct {
	dense       []*layers.Dense
	normalizers []layers.Normalizer // One per layer after the first.
	activation  activations.Type
	useResidual bool
}

// Apply the network to x shaped [batch, sequence, inputDim].
func (f *FNN) Apply(x autograd.Node) autograd.Node {
	var residual autograd.Node
	for ii, dense := range f.dense {
		if ii > 0 {
			x = activations.Apply(f.activation, x)
			x = f.normalizers[ii-1].Apply(x)
		}
		if f.useResidual {
			if residual.Tape() != nil && residual.Shape() == x.Shape() {
				x = autograd.Add(x, residual)
			}
			residual = x
		}
		x = dense.Apply(x)
	}
	return x
}

// Parameters implements layers.HasParameters.
func (f *FNN) Parameters() []autograd.Node {
	var params []autograd.Node
	for _, dense := range f.dense {
		params = append(params, dense.Parameters()...)
	}
	for _, norm := range f.normalizers {
		params = append(params, norm.Parameters()...)
	}
	return params
}
