// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the dimensions of the 3-axis buffers used by the autograd engine.
//
// Every value in the engine has exactly 3 axes, conventionally:
//
//   - Axis 0, "outer": the batch axis.
//   - Axis 1, "middle": the sequence (or position) axis.
//   - Axis 2, "inner": the feature axis. Softmax, normalizations and cross-entropy work along this axis.
//
// A scalar is represented by the shape [1 1 1].
//
// ## Glossary
//
//   - Axis: is the index of a dimension. Always 0, 1 or 2 here, or -1, -2, -3 counting from the end.
//   - Dimension: the size of the buffer along one of its axes.
//
// ## Asserts
//
// Shape errors are only detected in runtime, so this package provides CheckDims (returns an error)
// and AssertDims (panics) to document and validate the expected dimensions, with -1 meaning
// "any dimension".
package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Rank is fixed for all shapes.
const Rank = 3

// Shape of a 3-axis buffer. It is comparable, so `==` can be used as well as Equal.
//
// Use Make to create a new shape.
type Shape struct {
	Dimensions [Rank]int
}

// Make returns a Shape with the given outer (batch), middle (sequence) and inner (feature) dimensions.
// It panics if any of the dimensions is <= 0.
func Make(outer, middle, inner int) Shape {
	s := Shape{Dimensions: [Rank]int{outer, middle, inner}}
	for _, dim := range s.Dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%d, %d, %d): cannot create a shape with an axis with dimension <= 0",
				outer, middle, inner)
		}
	}
	return s
}

// Scalar returns the shape [1 1 1], used for losses and other single values.
func Scalar() Shape {
	return Make(1, 1, 1)
}

// Ok returns whether this is a valid Shape. A "zero" Shape{} is invalid.
func (s Shape) Ok() bool {
	for _, dim := range s.Dimensions {
		if dim <= 0 {
			return false
		}
	}
	return true
}

// IsScalar returns whether the shape holds exactly one element.
func (s Shape) IsScalar() bool { return s == Scalar() }

// Outer is the dimension of axis 0 (batch).
func (s Shape) Outer() int { return s.Dimensions[0] }

// Middle is the dimension of axis 1 (sequence).
func (s Shape) Middle() int { return s.Dimensions[1] }

// Inner is the dimension of axis 2 (features).
func (s Shape) Inner() int { return s.Dimensions[2] }

// Rows returns the number of inner-axis rows, that is Outer() * Middle().
func (s Shape) Rows() int { return s.Dimensions[0] * s.Dimensions[1] }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// It panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += Rank
	}
	if adjustedAxis < 0 || adjustedAxis >= Rank {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, Rank, s)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements fmt.Stringer.
func (s Shape) String() string {
	return fmt.Sprintf("%v", s.Dimensions)
}

// Size returns the number of elements for this shape. It's the product of all dimensions.
func (s Shape) Size() int {
	return s.Dimensions[0] * s.Dimensions[1] * s.Dimensions[2]
}

// Memory returns the number of bytes used to store the elements of this shape as float64.
func (s Shape) Memory() uintptr {
	return 8 * uintptr(s.Size())
}

// Equal compares two shapes for equality.
func (s Shape) Equal(s2 Shape) bool {
	return s == s2
}

// FlatIndex converts the (i, j, k) index to the position in a row-major flat storage.
// It doesn't check bounds.
func (s Shape) FlatIndex(i, j, k int) int {
	return (i*s.Dimensions[1]+j)*s.Dimensions[2] + k
}

// InBounds returns whether (i, j, k) is a valid index for the shape.
func (s Shape) InBounds(i, j, k int) bool {
	return i >= 0 && i < s.Dimensions[0] &&
		j >= 0 && j < s.Dimensions[1] &&
		k >= 0 && k < s.Dimensions[2]
}

// Broadcast returns the shape resulting from broadcasting s1 and s2 together.
//
// On each axis the dimensions must either be equal, or one of them must be 1 -- in which
// case it is broadcast to the other. It returns false if the shapes are not compatible.
func Broadcast(s1, s2 Shape) (Shape, bool) {
	var result Shape
	for axis := range Rank {
		d1, d2 := s1.Dimensions[axis], s2.Dimensions[axis]
		switch {
		case d1 == d2:
			result.Dimensions[axis] = d1
		case d1 == 1:
			result.Dimensions[axis] = d2
		case d2 == 1:
			result.Dimensions[axis] = d1
		default:
			return Shape{}, false
		}
	}
	return result, true
}
