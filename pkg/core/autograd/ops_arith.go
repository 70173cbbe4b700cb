// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autograd

import (
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// broadcastIndex returns the flat index in shape for the indices of a broadcast result: axes of
// dimension 1 are pinned to 0.
func broadcastIndex(shape shapes.Shape, indices [shapes.Rank]int) int {
	for axis := range shapes.Rank {
		if shape.Dimensions[axis] == 1 {
			indices[axis] = 0
		}
	}
	return shape.FlatIndex(indices[0], indices[1], indices[2])
}

// binaryBroadcast applies fn elementwise to the broadcast of a and b.
func binaryBroadcast(opName string, a, b *tensors.Buffer, fn func(x, y float64) float64) *tensors.Buffer {
	aShape, bShape := a.Shape(), b.Shape()
	if aShape == bShape {
		output := tensors.Zeros(aShape)
		outFlat, aFlat, bFlat := output.Flat(), a.Flat(), b.Flat()
		for ii := range outFlat {
			outFlat[ii] = fn(aFlat[ii], bFlat[ii])
		}
		return output
	}
	outputShape, ok := shapes.Broadcast(aShape, bShape)
	if !ok {
		shapeMismatchf("%s: shapes %s and %s are not broadcast compatible", opName, aShape, bShape)
	}
	output := tensors.Zeros(outputShape)
	outFlat, aFlat, bFlat := output.Flat(), a.Flat(), b.Flat()
	for flatIdx, indices := range outputShape.Iter() {
		outFlat[flatIdx] = fn(aFlat[broadcastIndex(aShape, indices)], bFlat[broadcastIndex(bShape, indices)])
	}
	return output
}

// Add returns a+b elementwise. Axes of dimension 1 in either operand are broadcast.
func Add(a, b Node) Node {
	tape := validateInputs("Add", a, b)
	value := binaryBroadcast("Add", a.Value(), b.Value(), func(x, y float64) float64 { return x + y })
	return tape.recordOp(value, []Node{a, b}, func() gradFn { return &gradFnAdd{a: a, b: b} })
}

// Sub returns a-b elementwise. Axes of dimension 1 in either operand are broadcast.
func Sub(a, b Node) Node {
	tape := validateInputs("Sub", a, b)
	value := binaryBroadcast("Sub", a.Value(), b.Value(), func(x, y float64) float64 { return x - y })
	return tape.recordOp(value, []Node{a, b}, func() gradFn { return &gradFnSub{a: a, b: b} })
}

// Mul returns a*b elementwise. Axes of dimension 1 in either operand are broadcast.
func Mul(a, b Node) Node {
	tape := validateInputs("Mul", a, b)
	aValue, bValue := a.Value(), b.Value()
	value := binaryBroadcast("Mul", aValue, bValue, func(x, y float64) float64 { return x * y })
	return tape.recordOp(value, []Node{a, b}, func() gradFn {
		return &gradFnMul{a: a, b: b, aValue: aValue, bValue: bValue}
	})
}

func mulBackward(fn *gradFnMul, v *tensors.Buffer) {
	vShape := v.Shape()
	aShape, bShape := fn.aValue.Shape(), fn.bValue.Shape()
	vFlat, aFlat, bFlat := v.Flat(), fn.aValue.Flat(), fn.bValue.Flat()
	if fn.a.RequiresGrad() {
		gradA := tensors.Zeros(aShape)
		gradFlat := gradA.Flat()
		for flatIdx, indices := range vShape.Iter() {
			gradFlat[broadcastIndex(aShape, indices)] += vFlat[flatIdx] * bFlat[broadcastIndex(bShape, indices)]
		}
		fn.a.AccumulateGrad(gradA)
	}
	if fn.b.RequiresGrad() {
		gradB := tensors.Zeros(bShape)
		gradFlat := gradB.Flat()
		for flatIdx, indices := range vShape.Iter() {
			gradFlat[broadcastIndex(bShape, indices)] += vFlat[flatIdx] * aFlat[broadcastIndex(aShape, indices)]
		}
		fn.b.AccumulateGrad(gradB)
	}
}

// MulScalar returns x*factor.
func MulScalar(x Node, factor float64) Node {
	tape := validateInputs("MulScalar", x)
	value := x.Value().Clone()
	value.ScaleInPlace(factor)
	return tape.recordOp(value, []Node{x}, func() gradFn { return &gradFnMulScalar{x: x, factor: factor} })
}

// Mean returns the mean of all elements of x, as a scalar node (shape [1 1 1]).
func Mean(x Node) Node {
	tape := validateInputs("Mean", x)
	xValue := x.Value()
	n := xValue.Size()
	value := tensors.FromScalar(xValue.Sum() / float64(n))
	return tape.recordOp(value, []Node{x}, func() gradFn { return &gradFnMean{x: x, n: n} })
}

// Detach returns a new leaf holding a copy of x's value, that doesn't require gradients.
//
// Gradients never flow through it: use it to treat a computed value as a constant input, e.g.
// a target computed by the model itself.
func Detach(x Node) Node {
	tape := validateInputs("Detach", x)
	return tape.record(x.Value().Clone(), false, nil)
}
