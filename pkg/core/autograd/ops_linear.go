// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// MatMul multiplies x by the weight matrix w, for every batch element:
//
//	output[b, s, n] = Σ_k x[b, s, k] * w[b', k, n]
//
// x is shaped [B, S, K]. w is shaped either [1, K, N], the same matrix for every batch element
// (b' = 0), or [B, K, N], one matrix per batch element (b' = b). The output is shaped [B, S, N].
func MatMul(x, w Node) Node {
	return linearImpl("MatMul", x, w, Node{})
}

// Linear returns MatMul(x, weight) + bias, where bias is shaped [1, 1, N] and broadcast over the
// batch and sequence axes.
//
// bias can be the zero Node, in which case it's the same as MatMul.
func Linear(x, weight, bias Node) Node {
	return linearImpl("Linear", x, weight, bias)
}

func linearImpl(opName string, x, w, bias Node) Node {
	hasBias := bias.tape != nil
	inputs := []Node{x, w}
	if hasBias {
		inputs = append(inputs, bias)
	}
	tape := validateInputs(opName, inputs...)

	xValue, wValue := x.Value(), w.Value()
	xShape, wShape := xValue.Shape(), wValue.Shape()
	batchSize, seqLen, inputDim := xShape.Dimensions[0], xShape.Dimensions[1], xShape.Dimensions[2]
	if wShape.Dimensions[0] != 1 && wShape.Dimensions[0] != batchSize {
		shapeMismatchf("%s: weights shaped %s must have batch dimension 1 or %d (x shaped %s)", opName, wShape, batchSize, xShape)
	}
	if wShape.Dimensions[1] != inputDim {
		shapeMismatchf("%s: x shaped %s and weights shaped %s have incompatible contracting dimensions", opName, xShape, wShape)
	}
	outputDim := wShape.Dimensions[2]
	var biasValue *tensors.Buffer
	if hasBias {
		biasValue = bias.Value()
		if err := biasValue.Shape().CheckDims(1, 1, outputDim); err != nil {
			shapeMismatchf("%s: invalid bias shape: %v", opName, err)
		}
	}

	outputShape := shapes.Make(batchSize, seqLen, outputDim)
	output := tensors.Zeros(outputShape)
	outFlat, xFlat, wFlat := output.Flat(), xValue.Flat(), wValue.Flat()
	sharedWeights := wShape.Dimensions[0] == 1
	for b := range batchSize {
		wb := b
		if sharedWeights {
			wb = 0
		}
		for s := range seqLen {
			outRow := outFlat[outputShape.FlatIndex(b, s, 0) : outputShape.FlatIndex(b, s, 0)+outputDim]
			if hasBias {
				copy(outRow, biasValue.Flat())
			}
			xRow := xFlat[xShape.FlatIndex(b, s, 0) : xShape.FlatIndex(b, s, 0)+inputDim]
			for k, xk := range xRow {
				if xk == 0 {
					continue
				}
				wRow := wFlat[wShape.FlatIndex(wb, k, 0) : wShape.FlatIndex(wb, k, 0)+outputDim]
				for n, wkn := range wRow {
					outRow[n] += xk * wkn
				}
			}
		}
	}
	return tape.recordOp(output, inputs, func() gradFn {
		return &gradFnLinear{x: x, weight: w, bias: bias, hasBias: hasBias, xValue: xValue, wValue: wValue}
	})
}

func linearBackward(fn *gradFnLinear, v *tensors.Buffer) {
	xShape, wShape, vShape := fn.xValue.Shape(), fn.wValue.Shape(), v.Shape()
	batchSize, seqLen, inputDim := xShape.Dimensions[0], xShape.Dimensions[1], xShape.Dimensions[2]
	outputDim := wShape.Dimensions[2]
	if err := vShape.CheckDims(batchSize, seqLen, outputDim); err != nil {
		shapeMismatchf("Linear backward: invalid output gradient: %v", err)
	}
	sharedWeights := wShape.Dimensions[0] == 1
	xFlat, wFlat, vFlat := fn.xValue.Flat(), fn.wValue.Flat(), v.Flat()

	var gradX, gradW *tensors.Buffer
	if fn.x.RequiresGrad() {
		gradX = tensors.Zeros(xShape)
	}
	if fn.weight.RequiresGrad() {
		gradW = tensors.Zeros(wShape)
	}
	for b := range batchSize {
		wb := b
		if sharedWeights {
			wb = 0
		}
		for s := range seqLen {
			vRow := vFlat[vShape.FlatIndex(b, s, 0) : vShape.FlatIndex(b, s, 0)+outputDim]
			xRow := xFlat[xShape.FlatIndex(b, s, 0) : xShape.FlatIndex(b, s, 0)+inputDim]
			for k := range inputDim {
				wRowStart := wShape.FlatIndex(wb, k, 0)
				if gradX != nil {
					// gradX = v · wᵗ
					var sum float64
					for n, vn := range vRow {
						sum += vn * wFlat[wRowStart+n]
					}
					gradX.Flat()[xShape.FlatIndex(b, s, k)] += sum
				}
				if gradW != nil {
					// gradW = xᵗ · v, summed over the sequence (and the batch, if shared).
					xk := xRow[k]
					gradWRow := gradW.Flat()[wRowStart : wRowStart+outputDim]
					for n, vn := range vRow {
						gradWRow[n] += xk * vn
					}
				}
			}
		}
	}
	if gradX != nil {
		fn.x.AccumulateGrad(gradX)
	}
	if gradW != nil {
		fn.weight.AccumulateGrad(gradW)
	}
	if fn.hasBias && fn.bias.RequiresGrad() {
		fn.bias.AccumulateGrad(sumToShape(v, fn.bias.Shape()))
	}
}
