// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestNew(t *testing.T) {
	shape := shapes.Make(2, 3, 4)
	b := New(shape, func(i, j, k int) float64 { return float64(100*i + 10*j + k) })
	require.Equal(t, shape, b.Shape())
	require.Equal(t, 24, b.Size())
	require.Equal(t, 123.0, b.At(1, 2, 3))
	require.Equal(t, 10.0, b.At(0, 1, 0))
	require.Panics(t, func() { _ = b.At(2, 0, 0) })
	require.Panics(t, func() { b.Set(0, 3, 0, 1) })

	b.Set(0, 0, 0, -1)
	require.Equal(t, -1.0, b.Flat()[0])

	zeros := New(shape, nil)
	require.Equal(t, 0.0, zeros.Sum())
	require.Panics(t, func() { _ = Zeros(shapes.Shape{}) })
}

func TestFromFlat(t *testing.T) {
	b := FromFlat(shapes.Make(1, 2, 2), []int32{1, 2, 3, 4})
	require.Equal(t, []float64{1, 2, 3, 4}, b.Flat())
	require.Equal(t, 3.0, b.At(0, 1, 0))
	require.Panics(t, func() { _ = FromFlat(shapes.Make(1, 2, 2), []float32{1, 2, 3}) })

	row := FromRow(0.5, 1.5)
	require.Equal(t, shapes.Make(1, 1, 2), row.Shape())
	require.Equal(t, []float32{0.5, 1.5}, CopyFlat[float32](row))

	require.Equal(t, 7.0, FromScalar(7).Value())
	require.Panics(t, func() { _ = row.Value() })
}

func TestInPlaceOps(t *testing.T) {
	shape := shapes.Make(1, 1, 3)
	acc := Ones(shape)
	acc.AddInPlace(FromRow(1, 2, 3))
	require.Equal(t, []float64{2, 3, 4}, acc.Flat())
	acc.ScaleInPlace(0.5)
	require.Equal(t, []float64{1, 1.5, 2}, acc.Flat())
	require.InDelta(t, 1+2.25+4, acc.SquaredNorm(), 1e-12)
	require.Panics(t, func() { acc.AddInPlace(Ones(shapes.Make(1, 1, 2))) })

	clone := acc.Clone()
	clone.CopyFrom(Full(shape, 3))
	require.Equal(t, []float64{3, 3, 3}, clone.Flat())
	require.Equal(t, []float64{1, 1.5, 2}, acc.Flat(), "Clone must not share storage")
}

func TestInDelta(t *testing.T) {
	a := FromRow(1, 2, 3)
	b := FromRow(1, 2, 3.001)
	assert.True(t, a.InDelta(b, 0.01))
	assert.False(t, a.InDelta(b, 1e-6))
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.InDelta(FromRow(1, 2), 1))
	assert.False(t, a.HasNaNOrInf())
	assert.True(t, FromRow(1, math.Inf(1)).HasNaNOrInf())
}

func TestFloat16(t *testing.T) {
	b := FromRow(0.5, -2, 65504)
	halves := b.Float16()
	require.Equal(t, float32(0.5), halves[0].Float32())
	require.Equal(t, float32(-2), halves[1].Float32())
	require.Equal(t, float32(65504), halves[2].Float32())

	back := FromFloat16(b.Shape(), []float16.Float16{float16.Fromfloat32(1.5), halves[1], halves[2]})
	require.Equal(t, []float64{1.5, -2, 65504}, back.Flat())
}

func TestString(t *testing.T) {
	b := FromFlat(shapes.Make(1, 2, 2), []float64{1, 2, 3, 4})
	str := b.String()
	fmt.Printf("%s\n", str)
	require.Contains(t, str, "[0,1]: [3, 4]")

	large := Ones(shapes.Make(4, 4, 4))
	require.Equal(t, "Buffer[4 4 4]{sum=64, norm²=64}", large.String())
}
