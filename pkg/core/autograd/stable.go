// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import "math"

// sigmoid is 1/(1+exp(-x)), computed without overflowing exp for large |x|.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

const (
	// geluCoefficient is the cubic coefficient of the tanh approximation of GELU.
	geluCoefficient = 0.044715

	// geluCutoff bounds |x| beyond which tanh(u) is ±1 in float64 precision, so GELU is the identity
	// (or zero) and its derivative 1 (or 0). It also keeps x³ from overflowing.
	geluCutoff = 10.0
)

var geluSqrt2OverPi = math.Sqrt(2 / math.Pi)

// gelu returns the tanh approximation 0.5 * x * (1 + tanh(√(2/π) * (x + 0.044715 * x³))).
func gelu(x float64) float64 {
	if x > geluCutoff {
		return x
	} else if x < -geluCutoff {
		return 0
	}
	u := geluSqrt2OverPi * (x + geluCoefficient*x*x*x)
	return 0.5 * x * (1 + math.Tanh(u))
}

// geluDerivative is the closed-form derivative of gelu.
func geluDerivative(x float64) float64 {
	if x > geluCutoff {
		return 1
	} else if x < -geluCutoff {
		return 0
	}
	u := geluSqrt2OverPi * (x + geluCoefficient*x*x*x)
	t := math.Tanh(u)
	du := geluSqrt2OverPi * (1 + 3*geluCoefficient*x*x)
	return 0.5*(1+t) + 0.5*x*(1-t*t)*du
}

// silu returns x * sigmoid(x).
func silu(x float64) float64 {
	return x * sigmoid(x)
}

// siluDerivative returns σ(x) * (1 + x * (1 - σ(x))).
func siluDerivative(x float64) float64 {
	s := sigmoid(x)
	return s * (1 + x*(1-s))
}

// softmaxInto writes the softmax of src into dst, subtracting the max of src first, so exp never
// overflows. dst and src can be the same slice.
func softmaxInto(dst, src []float64) {
	maxValue := math.Inf(-1)
	for _, x := range src {
		maxValue = max(maxValue, x)
	}
	var sum float64
	for ii, x := range src {
		e := math.Exp(x - maxValue)
		dst[ii] = e
		sum += e
	}
	for ii := range dst {
		dst[ii] /= sum
	}
}

// logSumExp returns log(Σ exp(x_i)), computed relative to the max of the row.
func logSumExp(row []float64) float64 {
	maxValue := math.Inf(-1)
	for _, x := range row {
		maxValue = max(maxValue, x)
	}
	if math.IsInf(maxValue, 0) {
		return maxValue
	}
	var sum float64
	for _, x := range row {
		sum += math.Exp(x - maxValue)
	}
	return maxValue + math.Log(sum)
}
