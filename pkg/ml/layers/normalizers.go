// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
)

// Normalizer is a layer that normalizes its input, created per feature dimension.
type Normalizer interface {
	Layer
	HasParameters
}

// identity is the "none" normalizer.
type identity struct{}

func (identity) Apply(x autograd.Node) autograd.Node { return x }
func (identity) Parameters() []autograd.Node         { return nil }

// KnownNormalizers is a map of normalizer name to a function that creates them with the default
// values, normalizing over the feature axis.
//
// It includes "none", which is a no-op.
var KnownNormalizers = map[string]func(tape *autograd.Tape, featureDim int) Normalizer{
	"rms": func(tape *autograd.Tape, featureDim int) Normalizer {
		return NewRMSNorm(tape, featureDim).Done()
	},
	"none": func(_ *autograd.Tape, _ int) Normalizer {
		return identity{}
	},
}

// MustNormalizerByName creates the requested normalizer using default parameters. If
// an invalid normalization is given, it panics with an error.
//
// An empty name is the same as "none".
func MustNormalizerByName(tape *autograd.Tape, name string, featureDim int) Normalizer {
	if name == "" {
		name = "none"
	}
	newFn, found := KnownNormalizers[name]
	if !found {
		names := make([]string, 0, len(KnownNormalizers))
		for key := range KnownNormalizers {
			names = append(names, key)
		}
		slices.Sort(names)
		exceptions.Panicf("unknown normalizer %q: valid values are %v", name, names)
	}
	return newFn(tape, featureDim)
}
