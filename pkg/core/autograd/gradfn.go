// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import "github.com/gomlx/gograd/pkg/core/tensors"

// gradFn is the backward edge of a node: the inputs the operation was built from, plus whatever
// forward values its local derivative needs.
//
// The set of implementations is closed (the interface has unexported methods), and the backward
// driver dispatches on them with a single type switch, see backwardStep.
type gradFn interface {
	Type() OpType
	inputs() []Node
}

type gradFnAdd struct{ a, b Node }

func (fn *gradFnAdd) Type() OpType   { return OpTypeAdd }
func (fn *gradFnAdd) inputs() []Node { return []Node{fn.a, fn.b} }

type gradFnSub struct{ a, b Node }

func (fn *gradFnSub) Type() OpType   { return OpTypeSub }
func (fn *gradFnSub) inputs() []Node { return []Node{fn.a, fn.b} }

type gradFnMul struct {
	a, b           Node
	aValue, bValue *tensors.Buffer
}

func (fn *gradFnMul) Type() OpType   { return OpTypeMul }
func (fn *gradFnMul) inputs() []Node { return []Node{fn.a, fn.b} }

type gradFnMulScalar struct {
	x      Node
	factor float64
}

func (fn *gradFnMulScalar) Type() OpType   { return OpTypeMulScalar }
func (fn *gradFnMulScalar) inputs() []Node { return []Node{fn.x} }

// gradFnLinear covers both MatMul (no bias) and Linear.
type gradFnLinear struct {
	x, weight, bias Node
	hasBias         bool
	xValue, wValue  *tensors.Buffer
}

func (fn *gradFnLinear) Type() OpType { return OpTypeLinear }
func (fn *gradFnLinear) inputs() []Node {
	if fn.hasBias {
		return []Node{fn.x, fn.weight, fn.bias}
	}
	return []Node{fn.x, fn.weight}
}

type gradFnGelu struct {
	x      Node
	xValue *tensors.Buffer
}

func (fn *gradFnGelu) Type() OpType   { return OpTypeGelu }
func (fn *gradFnGelu) inputs() []Node { return []Node{fn.x} }

type gradFnSilu struct {
	x      Node
	xValue *tensors.Buffer
}

func (fn *gradFnSilu) Type() OpType   { return OpTypeSilu }
func (fn *gradFnSilu) inputs() []Node { return []Node{fn.x} }

type gradFnSoftmax struct {
	x Node
	y *tensors.Buffer // The softmax output itself.
}

func (fn *gradFnSoftmax) Type() OpType   { return OpTypeSoftmax }
func (fn *gradFnSoftmax) inputs() []Node { return []Node{fn.x} }

type gradFnRMSNorm struct {
	x, weight   Node
	hasWeight   bool
	xValue      *tensors.Buffer
	weightValue *tensors.Buffer
	rms         *tensors.Buffer // Shaped [outer, middle, 1].
}

func (fn *gradFnRMSNorm) Type() OpType { return OpTypeRMSNorm }
func (fn *gradFnRMSNorm) inputs() []Node {
	if fn.hasWeight {
		return []Node{fn.x, fn.weight}
	}
	return []Node{fn.x}
}

type gradFnMean struct {
	x Node
	n int
}

func (fn *gradFnMean) Type() OpType   { return OpTypeMean }
func (fn *gradFnMean) inputs() []Node { return []Node{fn.x} }

type gradFnMeanSquaredError struct {
	predictions, targets           Node
	predictionsValue, targetsValue *tensors.Buffer
	n                              int
}

func (fn *gradFnMeanSquaredError) Type() OpType   { return OpTypeMeanSquaredError }
func (fn *gradFnMeanSquaredError) inputs() []Node { return []Node{fn.predictions, fn.targets} }

type gradFnCrossEntropy struct {
	logits      Node
	logitsValue *tensors.Buffer
	targets     []int
	n           int // Number of positions not ignored.
}

func (fn *gradFnCrossEntropy) Type() OpType   { return OpTypeCrossEntropy }
func (fn *gradFnCrossEntropy) inputs() []Node { return []Node{fn.logits} }
