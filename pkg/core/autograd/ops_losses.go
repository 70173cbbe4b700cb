// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// IgnoreIndex is the target value for positions that CrossEntropyFromLogits should skip, e.g.
// padding.
const IgnoreIndex = -1

// MeanSquaredError returns the scalar mean of (predictions - targets)², over all elements.
// predictions and targets must have the same shape.
//
// Usually targets are constants, but if they require gradients they receive the negated gradient
// of the predictions.
func MeanSquaredError(predictions, targets Node) Node {
	tape := validateInputs("MeanSquaredError", predictions, targets)
	predictionsValue, targetsValue := predictions.Value(), targets.Value()
	if predictionsValue.Shape() != targetsValue.Shape() {
		shapeMismatchf("MeanSquaredError: predictions shaped %s, but targets shaped %s",
			predictionsValue.Shape(), targetsValue.Shape())
	}
	n := predictionsValue.Size()
	var sum float64
	targetsFlat := targetsValue.Flat()
	for ii, p := range predictionsValue.Flat() {
		diff := p - targetsFlat[ii]
		sum += diff * diff
	}
	value := tensors.FromScalar(sum / float64(n))
	return tape.recordOp(value, []Node{predictions, targets}, func() gradFn {
		return &gradFnMeanSquaredError{
			predictions: predictions, targets: targets,
			predictionsValue: predictionsValue, targetsValue: targetsValue,
			n: n,
		}
	})
}

func mseBackward(fn *gradFnMeanSquaredError, v *tensors.Buffer) {
	scale := 2 * v.Value() / float64(fn.n)
	grad := tensors.Zeros(fn.predictionsValue.Shape())
	gradFlat, targetsFlat := grad.Flat(), fn.targetsValue.Flat()
	for ii, p := range fn.predictionsValue.Flat() {
		gradFlat[ii] = scale * (p - targetsFlat[ii])
	}
	fn.predictions.AccumulateGrad(grad)
	if fn.targets.RequiresGrad() {
		grad.ScaleInPlace(-1)
		fn.targets.AccumulateGrad(grad)
	}
}

// CrossEntropyFromLogits returns the scalar mean cross-entropy between the softmax of logits and
// the target classes.
//
// logits are shaped [B, S, C], with C the number of classes. targets holds B*S class indices, in
// row-major order of the [B, S] positions. Positions whose target is IgnoreIndex don't contribute
// to the loss nor to the mean's denominator. If every position is ignored the loss is 0.
//
// The log-softmax is computed subtracting the row maximum, so large logits don't overflow.
func CrossEntropyFromLogits(logits Node, targets []int) Node {
	tape := validateInputs("CrossEntropyFromLogits", logits)
	logitsValue := logits.Value()
	logitsShape := logitsValue.Shape()
	numRows, numClasses := logitsShape.Rows(), logitsShape.Inner()
	if len(targets) != numRows {
		shapeMismatchf("CrossEntropyFromLogits: logits shaped %s have %d positions, but got %d targets",
			logitsShape, numRows, len(targets))
	}
	targets = slices.Clone(targets)

	var sum float64
	var n int
	logitsFlat := logitsValue.Flat()
	for row, target := range targets {
		if target == IgnoreIndex {
			continue
		}
		if target < 0 || target >= numClasses {
			exceptions.Panicf("CrossEntropyFromLogits: target #%d is %d, but there are only %d classes", row, target, numClasses)
		}
		rowLogits := logitsFlat[row*numClasses : (row+1)*numClasses]
		sum += logSumExp(rowLogits) - rowLogits[target]
		n++
	}
	var loss float64
	if n > 0 {
		loss = sum / float64(n)
	}
	return tape.recordOp(tensors.FromScalar(loss), []Node{logits}, func() gradFn {
		return &gradFnCrossEntropy{logits: logits, logitsValue: logitsValue, targets: targets, n: n}
	})
}

// crossEntropyBackward: grad = v * (softmax(logits) - onehot(target)) / n, zero on ignored rows.
func crossEntropyBackward(fn *gradFnCrossEntropy, v *tensors.Buffer) {
	grad := tensors.Zeros(fn.logitsValue.Shape())
	if fn.n == 0 {
		fn.logits.AccumulateGrad(grad)
		return
	}
	numClasses := fn.logitsValue.Shape().Inner()
	scale := v.Value() / float64(fn.n)
	logitsFlat, gradFlat := fn.logitsValue.Flat(), grad.Flat()
	for row, target := range fn.targets {
		if target == IgnoreIndex {
			continue
		}
		start := row * numClasses
		gradRow := gradFlat[start : start+numClasses]
		softmaxInto(gradRow, logitsFlat[start:start+numClasses])
		gradRow[target] -= 1
		for ii := range gradRow {
			gradRow[ii] *= scale
		}
	}
	fn.logits.AccumulateGrad(grad)
}
