// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Number constrains the Go types accepted by FromFlat and CopyFlat.
type Number interface {
	constraints.Float | constraints.Integer
}

// FromFlat creates a Buffer with the given shape from row-major flat values, converting them to float64.
// len(values) must match the shape size.
func FromFlat[T Number](shape shapes.Shape, values []T) *Buffer {
	if len(values) != shape.Size() {
		exceptions.Panicf("tensors.FromFlat: shape %s requires %d values, got %d", shape, shape.Size(), len(values))
	}
	b := Zeros(shape)
	for ii, v := range values {
		b.flat[ii] = float64(v)
	}
	return b
}

// FromRow creates a Buffer shaped [1 1 len(values)], commonly used for single feature vectors, biases
// and normalization weights.
func FromRow[T Number](values ...T) *Buffer {
	return FromFlat(shapes.Make(1, 1, len(values)), values)
}

// CopyFlat returns a copy of the buffer's contents converted to T.
func CopyFlat[T Number](b *Buffer) []T {
	values := make([]T, len(b.flat))
	for ii, v := range b.flat {
		values[ii] = T(v)
	}
	return values
}

// FromFloat16 creates a Buffer from half-precision values, as produced by mixed-precision collaborators.
func FromFloat16(shape shapes.Shape, values []float16.Float16) *Buffer {
	if len(values) != shape.Size() {
		exceptions.Panicf("tensors.FromFloat16: shape %s requires %d values, got %d", shape, shape.Size(), len(values))
	}
	b := Zeros(shape)
	for ii, v := range values {
		b.flat[ii] = float64(v.Float32())
	}
	return b
}

// Float16 returns the contents rounded to half-precision. Values out of the float16 range become +/-Inf.
func (b *Buffer) Float16() []float16.Float16 {
	values := make([]float16.Float16, len(b.flat))
	for ii, v := range b.flat {
		values[ii] = float16.Fromfloat32(float32(v))
	}
	return values
}
