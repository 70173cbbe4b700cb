// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// DefaultRMSNormEpsilon is the epsilon commonly used with RMSNorm.
const DefaultRMSNormEpsilon = 1e-6

// RMSNorm normalizes each row of x (the inner axis) by its root-mean-square, and optionally
// scales it by weight:
//
//	rms = sqrt(mean(x²) + epsilon)
//	output = x / rms * weight
//
// weight must be shaped [1, 1, F] where F is x's inner dimension, or be the zero Node for no
// scaling. epsilon must be positive.
func RMSNorm(x, weight Node, epsilon float64) Node {
	hasWeight := weight.tape != nil
	inputs := []Node{x}
	if hasWeight {
		inputs = append(inputs, weight)
	}
	tape := validateInputs("RMSNorm", inputs...)
	if epsilon <= 0 {
		exceptions.Panicf("RMSNorm: epsilon must be > 0, got %g", epsilon)
	}

	xValue := x.Value()
	xShape := xValue.Shape()
	featureDim := xShape.Inner()
	var weightValue *tensors.Buffer
	var wFlat []float64
	if hasWeight {
		weightValue = weight.Value()
		if err := weightValue.Shape().CheckDims(1, 1, featureDim); err != nil {
			shapeMismatchf("RMSNorm: invalid weight shape for x shaped %s: %v", xShape, err)
		}
		wFlat = weightValue.Flat()
	}

	output := tensors.Zeros(xShape)
	rms := tensors.Zeros(shapes.Make(xShape.Outer(), xShape.Middle(), 1))
	xFlat, outFlat, rmsFlat := xValue.Flat(), output.Flat(), rms.Flat()
	for row := range xShape.Rows() {
		start := row * featureDim
		xRow := xFlat[start : start+featureDim]
		var sumSquares float64
		for _, value := range xRow {
			sumSquares += value * value
		}
		rowRMS := math.Sqrt(sumSquares/float64(featureDim) + epsilon)
		rmsFlat[row] = rowRMS
		for ii, value := range xRow {
			y := value / rowRMS
			if hasWeight {
				y *= wFlat[ii]
			}
			outFlat[start+ii] = y
		}
	}
	return tape.recordOp(output, inputs, func() gradFn {
		return &gradFnRMSNorm{x: x, weight: weight, hasWeight: hasWeight, xValue: xValue, weightValue: weightValue, rms: rms}
	})
}

// rmsNormBackward, per row, with g = v * weight (or v if there is no weight):
//
//	grad_x_j = g_j / rms - x_j / (F * rms³) * Σ_i g_i x_i
//	grad_weight_j = Σ_rows v_j * x_j / rms
func rmsNormBackward(fn *gradFnRMSNorm, v *tensors.Buffer) {
	xShape := fn.xValue.Shape()
	if v.Shape() != xShape {
		shapeMismatchf("RMSNorm backward: output gradient shaped %s, but input shaped %s", v.Shape(), xShape)
	}
	featureDim := xShape.Inner()
	xFlat, vFlat, rmsFlat := fn.xValue.Flat(), v.Flat(), fn.rms.Flat()
	var wFlat []float64
	if fn.hasWeight {
		wFlat = fn.weightValue.Flat()
	}

	var gradX, gradW *tensors.Buffer
	if fn.x.RequiresGrad() {
		gradX = tensors.Zeros(xShape)
	}
	if fn.hasWeight && fn.weight.RequiresGrad() {
		gradW = tensors.Zeros(fn.weightValue.Shape())
	}
	g := make([]float64, featureDim)
	for row := range xShape.Rows() {
		start := row * featureDim
		xRow, vRow := xFlat[start:start+featureDim], vFlat[start:start+featureDim]
		rowRMS := rmsFlat[row]
		if gradW != nil {
			gradWFlat := gradW.Flat()
			for ii, x := range xRow {
				gradWFlat[ii] += vRow[ii] * x / rowRMS
			}
		}
		if gradX == nil {
			continue
		}
		var dot float64
		for ii, x := range xRow {
			g[ii] = vRow[ii]
			if wFlat != nil {
				g[ii] *= wFlat[ii]
			}
			dot += g[ii] * x
		}
		crossTerm := dot / (float64(featureDim) * rowRMS * rowRMS * rowRMS)
		gradXRow := gradX.Flat()[start : start+featureDim]
		for ii, x := range xRow {
			gradXRow[ii] = g[ii]/rowRMS - x*crossTerm
		}
	}
	if gradX != nil {
		fn.x.AccumulateGrad(gradX)
	}
	if gradW != nil {
		fn.weight.AccumulateGrad(gradW)
	}
}
