// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// elementwise returns fn applied to every element of x.
func elementwise(x *tensors.Buffer, fn func(float64) float64) *tensors.Buffer {
	output := tensors.Zeros(x.Shape())
	outFlat := output.Flat()
	for ii, value := range x.Flat() {
		outFlat[ii] = fn(value)
	}
	return output
}

// elementwiseBackward returns v * derivative(x), elementwise.
func elementwiseBackward(x, v *tensors.Buffer, derivative func(float64) float64) *tensors.Buffer {
	if x.Shape() != v.Shape() {
		shapeMismatchf("backward: output gradient shaped %s, but input shaped %s", v.Shape(), x.Shape())
	}
	grad := tensors.Zeros(x.Shape())
	gradFlat, vFlat := grad.Flat(), v.Flat()
	for ii, value := range x.Flat() {
		gradFlat[ii] = vFlat[ii] * derivative(value)
	}
	return grad
}

// Gelu returns the Gaussian Error Linear Unit activation of x, using the tanh approximation:
//
//	0.5 * x * (1 + tanh(√(2/π) * (x + 0.044715 * x³)))
func Gelu(x Node) Node {
	tape := validateInputs("Gelu", x)
	xValue := x.Value()
	value := elementwise(xValue, gelu)
	return tape.recordOp(value, []Node{x}, func() gradFn { return &gradFnGelu{x: x, xValue: xValue} })
}

// Silu returns x * sigmoid(x), also known as "swish".
func Silu(x Node) Node {
	tape := validateInputs("Silu", x)
	xValue := x.Value()
	value := elementwise(xValue, silu)
	return tape.recordOp(value, []Node{x}, func() gradFn { return &gradFnSilu{x: x, xValue: xValue} })
}

// Softmax normalizes x over the inner (last) axis, so each row sums to 1.
func Softmax(x Node) Node {
	tape := validateInputs("Softmax", x)
	xValue := x.Value()
	output := tensors.Zeros(xValue.Shape())
	rowSize := xValue.Shape().Inner()
	xFlat, outFlat := xValue.Flat(), output.Flat()
	for start := 0; start < len(xFlat); start += rowSize {
		softmaxInto(outFlat[start:start+rowSize], xFlat[start:start+rowSize])
	}
	return tape.recordOp(output, []Node{x}, func() gradFn { return &gradFnSoftmax{x: x, y: output} })
}

// softmaxBackward: grad_j = y_j * (v_j - Σ_i y_i v_i), per row.
func softmaxBackward(fn *gradFnSoftmax, v *tensors.Buffer) {
	if v.Shape() != fn.y.Shape() {
		shapeMismatchf("Softmax backward: output gradient shaped %s, but output shaped %s", v.Shape(), fn.y.Shape())
	}
	rowSize := fn.y.Shape().Inner()
	grad := tensors.Zeros(fn.y.Shape())
	yFlat, vFlat, gradFlat := fn.y.Flat(), v.Flat(), grad.Flat()
	for start := 0; start < len(yFlat); start += rowSize {
		yRow, vRow := yFlat[start:start+rowSize], vFlat[start:start+rowSize]
		var dot float64
		for ii, y := range yRow {
			dot += y * vRow[ii]
		}
		for ii, y := range yRow {
			gradFlat[start+ii] = y * (vRow[ii] - dot)
		}
	}
	fn.x.AccumulateGrad(grad)
}
