// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer holds functions that create the initial values of trainable parameters.
//
// Random initializers take an explicit *rand.Rand, so models are reproducible given a seed.
package initializer

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// Initializer creates the initial value of a parameter with the given shape.
type Initializer func(shape shapes.Shape) *tensors.Buffer

var (
	// Zero initializes parameters with zero.
	Zero Initializer = tensors.Zeros

	// One initializes parameters with one.
	One Initializer = tensors.Ones
)

// NewRNG returns a random number generator seeded with seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Normal returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func Normal(rng *rand.Rand, stddev float64) Initializer {
	return func(shape shapes.Shape) *tensors.Buffer {
		return tensors.New(shape, func(_, _, _ int) float64 { return rng.NormFloat64() * stddev })
	}
}

// Uniform returns an initializer that generates random uniform values from [min, max).
func Uniform(rng *rand.Rand, minValue, maxValue float64) Initializer {
	return func(shape shapes.Shape) *tensors.Buffer {
		return tensors.New(shape, func(_, _, _ int) float64 { return minValue + rng.Float64()*(maxValue-minValue) })
	}
}

// computeFanInFanOut of a parameter expected to be the weights of a layers.Dense, shaped
// [1 or batch, fanIn, fanOut]. Shapes [1, 1, N] are considered biases.
func computeFanInFanOut(shape shapes.Shape) (fanIn, fanOut int) {
	if shape.Outer() == 1 && shape.Middle() == 1 {
		return 0, 0
	}
	return shape.Middle(), shape.Inner()
}

// XavierUniform returns an initializer that generates random values with a uniform distribution with a range
// defined by +/- sqrt(6 / (fanIn+fanOut)).
//
// It initializes biases (shapes [1, 1, N]) to zeros.
func XavierUniform(rng *rand.Rand) Initializer {
	return func(shape shapes.Shape) *tensors.Buffer {
		fanIn, fanOut := computeFanInFanOut(shape)
		if fanIn == 0 {
			return tensors.Zeros(shape)
		}
		limit := math.Sqrt(6.0 / max(1.0, float64(fanIn+fanOut)))
		return Uniform(rng, -limit, limit)(shape)
	}
}

// XavierNormal returns an initializer that generates random values with a normal distribution with mean in 0
// and stddev of sqrt(2 / (fanIn+fanOut)).
//
// It initializes biases (shapes [1, 1, N]) to zeros.
func XavierNormal(rng *rand.Rand) Initializer {
	return func(shape shapes.Shape) *tensors.Buffer {
		fanIn, fanOut := computeFanInFanOut(shape)
		if fanIn == 0 {
			return tensors.Zeros(shape)
		}
		stddev := math.Sqrt(2.0 / max(1.0, float64(fanIn+fanOut)))
		return Normal(rng, stddev)(shape)
	}
}

// He returns the initializer that tries to preserve the variance of 1, calculated for Relu-like activations.
//
// It initializes biases (shapes [1, 1, N]) to zeros.
func He(rng *rand.Rand) Initializer {
	return func(shape shapes.Shape) *tensors.Buffer {
		fanIn, _ := computeFanInFanOut(shape)
		if fanIn == 0 {
			return tensors.Zeros(shape)
		}
		stddev := math.Sqrt(2.0 / max(1.0, float64(fanIn)))
		return Normal(rng, stddev)(shape)
	}
}
