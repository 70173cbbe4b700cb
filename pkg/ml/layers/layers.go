// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layers holds common building blocks for models: Dense (linear + activation) and
// RMSNorm layers, whose trainable parameters are leaves on an autograd.Tape.
//
// Layers are created once, with their parameters, and applied to many inputs. Parameters are
// created before the per-step graph, so a training loop can Tape.Truncate back to a mark taken
// after the model creation.
package layers

import "github.com/gomlx/gograd/pkg/core/autograd"

// Layer is implemented by layers that can be applied to an input.
type Layer interface {
	Apply(x autograd.Node) autograd.Node
}

// HasParameters is implemented by anything that holds trainable parameters: layers and models.
type HasParameters interface {
	Parameters() []autograd.Node
}

// CollectParameters concatenates the parameters of all the given holders.
func CollectParameters(holders ...HasParameters) []autograd.Node {
	var params []autograd.Node
	for _, holder := range holders {
		params = append(params, holder.Parameters()...)
	}
	return params
}

// NumParameters returns the total number of trainable scalar values.
func NumParameters(holder HasParameters) int {
	var count int
	for _, param := range holder.Parameters() {
		count += param.Shape().Size()
	}
	return count
}
