// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Buffer, the dense 3-axis numeric storage used for values and gradients
// by the autograd engine.
//
// Buffers are considered immutable once created and handed to the engine: the only mutations allowed
// after construction are gradient accumulation (AddInPlace, ScaleInPlace on gradient buffers) and
// optimizer scratch updates (CopyFrom) on buffers not yet handed to a Node.
package tensors

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/shapes"
)

// Buffer is a dense, rectangular, 3-axis array of float64 values stored in row-major order.
type Buffer struct {
	shape shapes.Shape
	flat  []float64
}

// New creates a Buffer of the given shape, filled by calling fill for every (i, j, k) index.
// If fill is nil the buffer is filled with zeros.
func New(shape shapes.Shape, fill func(i, j, k int) float64) *Buffer {
	b := Zeros(shape)
	if fill != nil {
		for flatIdx, indices := range shape.Iter() {
			b.flat[flatIdx] = fill(indices[0], indices[1], indices[2])
		}
	}
	return b
}

// Zeros returns a zero-filled Buffer of the given shape.
func Zeros(shape shapes.Shape) *Buffer {
	if !shape.Ok() {
		exceptions.Panicf("tensors.Zeros(%s): invalid shape", shape)
	}
	return &Buffer{shape: shape, flat: make([]float64, shape.Size())}
}

// Full returns a Buffer of the given shape with every element set to value.
func Full(shape shapes.Shape, value float64) *Buffer {
	b := Zeros(shape)
	for ii := range b.flat {
		b.flat[ii] = value
	}
	return b
}

// Ones returns a Buffer of the given shape filled with 1.
func Ones(shape shapes.Shape) *Buffer {
	return Full(shape, 1)
}

// FromScalar returns a Buffer shaped [1 1 1] holding value.
func FromScalar(value float64) *Buffer {
	return Full(shapes.Scalar(), value)
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Size is the number of elements.
func (b *Buffer) Size() int { return len(b.flat) }

// Memory used by the elements, in bytes.
func (b *Buffer) Memory() uintptr { return b.shape.Memory() }

// Flat returns the underlying row-major storage. It is not a copy: callers must treat it as read-only,
// except for the owner of a gradient slot or an optimizer overwriting a parameter.
func (b *Buffer) Flat() []float64 { return b.flat }

// At returns the element at (i, j, k). It panics if the index is out of bounds.
func (b *Buffer) At(i, j, k int) float64 {
	b.checkIndex(i, j, k)
	return b.flat[b.shape.FlatIndex(i, j, k)]
}

// Set the element at (i, j, k). It panics if the index is out of bounds.
//
// It is meant for construction time, or for optimizers updating parameters outside the computation graph.
func (b *Buffer) Set(i, j, k int, value float64) {
	b.checkIndex(i, j, k)
	b.flat[b.shape.FlatIndex(i, j, k)] = value
}

func (b *Buffer) checkIndex(i, j, k int) {
	if !b.shape.InBounds(i, j, k) {
		exceptions.Panicf("index (%d, %d, %d) out-of-bounds for buffer shaped %s", i, j, k, b.shape)
	}
}

// Value returns the single element of a scalar buffer. It panics if the buffer has more than one element.
func (b *Buffer) Value() float64 {
	if len(b.flat) != 1 {
		exceptions.Panicf("Buffer.Value() requires a scalar buffer, got shape %s", b.shape)
	}
	return b.flat[0]
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{shape: b.shape, flat: append([]float64(nil), b.flat...)}
}

// CopyFrom overwrites the contents of b with the contents of src. Shapes must match.
func (b *Buffer) CopyFrom(src *Buffer) {
	b.assertSameShape("CopyFrom", src)
	copy(b.flat, src.flat)
}

// AddInPlace adds src into b, element-wise. Shapes must match.
func (b *Buffer) AddInPlace(src *Buffer) {
	b.assertSameShape("AddInPlace", src)
	for ii, v := range src.flat {
		b.flat[ii] += v
	}
}

// ScaleInPlace multiplies every element of b by factor.
func (b *Buffer) ScaleInPlace(factor float64) {
	for ii := range b.flat {
		b.flat[ii] *= factor
	}
}

func (b *Buffer) assertSameShape(method string, other *Buffer) {
	if b.shape != other.shape {
		exceptions.Panicf("Buffer.%s: shapes differ, %s and %s", method, b.shape, other.shape)
	}
}

// Sum of all elements.
func (b *Buffer) Sum() float64 {
	var sum float64
	for _, v := range b.flat {
		sum += v
	}
	return sum
}

// SquaredNorm returns the sum of the squares of all elements.
func (b *Buffer) SquaredNorm() float64 {
	var sum float64
	for _, v := range b.flat {
		sum += v * v
	}
	return sum
}

// HasNaNOrInf returns whether any element is NaN or infinite.
func (b *Buffer) HasNaNOrInf() bool {
	for _, v := range b.flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Equal returns whether the buffers have the same shape and exactly the same values.
func (b *Buffer) Equal(other *Buffer) bool {
	return b.InDelta(other, 0)
}

// InDelta checks whether Abs(b - other) <= delta for every element.
// If they are the same pointer, they are considered equal.
// If the shapes are different, it returns false.
func (b *Buffer) InDelta(other *Buffer, delta float64) bool {
	if b == other {
		return true
	}
	if b == nil || other == nil || b.shape != other.shape {
		return false
	}
	for ii, v := range b.flat {
		if math.Abs(v-other.flat[ii]) > delta {
			return false
		}
	}
	return true
}
