// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

// testSlicesDS yields example ii as input [ii, 2*ii] and label [-ii].
type testSlicesDS struct {
	numExamples, next int
}

func (ds *testSlicesDS) Name() string { return "testSlicesDS" }
func (ds *testSlicesDS) Reset()       { ds.next = 0 }
func (ds *testSlicesDS) Yield() (inputs, labels []*tensors.Buffer, err error) {
	if ds.next >= ds.numExamples {
		return nil, nil, io.EOF
	}
	ii := float64(ds.next)
	ds.next++
	return []*tensors.Buffer{tensors.FromRow(ii, 2*ii)}, []*tensors.Buffer{tensors.FromScalar(-ii)}, nil
}

func TestInMemoryDataset(t *testing.T) {
	ds := &testSlicesDS{numExamples: 17}
	mds, err := InMemory(ds, false)
	require.NoError(t, err)
	require.Equal(t, 2, len(mds.inputsAndLabelsData))
	require.Equal(t, 1, mds.numInputsTensors)
	require.Equal(t, ds.numExamples, mds.NumExamples())
	require.Equal(t, uintptr(ds.numExamples*3*8), mds.Memory())
	require.Equal(t, shapes.Make(17, 1, 2), mds.inputsAndLabelsData[0].Shape())
	require.Equal(t, "tes", mds.ShortName())

	// Read one element at a time: repeat 4 times, the last two are randomized.
	for repeat := range 4 {
		count := 0
		if repeat == 2 {
			mds.RandomWithReplacement()
		} else if repeat == 3 {
			mds.WithRand(rand.New(rand.NewPCG(3, 7))).Shuffle()
		}
		isRandomized := false
		for {
			inputs, labels, err := mds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			require.Equal(t, shapes.Make(1, 1, 2), inputs[0].Shape())
			input := int(inputs[0].At(0, 0, 0))
			label := int(labels[0].Value())
			require.Equal(t, -input, label)
			require.Equal(t, 2*input, int(inputs[0].At(0, 0, 1)))
			if repeat < 2 {
				require.Equal(t, count, input)
			} else {
				isRandomized = isRandomized || count != input
			}
			count++
		}
		if repeat >= 2 {
			require.True(t, isRandomized)
		}
		require.Equal(t, ds.numExamples, count)

		// Test that mds keeps exhausted.
		_, _, err = mds.Yield()
		require.Equal(t, io.EOF, err)
		mds.Reset()
	}

	// Batches of 10, dropping the incomplete one: only one batch.
	mds = mds.Copy().BatchSize(10, true)
	inputs, labels, err := mds.Yield()
	require.NoError(t, err)
	require.Equal(t, shapes.Make(10, 1, 2), inputs[0].Shape())
	require.Equal(t, shapes.Make(10, 1, 1), labels[0].Shape())
	for ii := range 10 {
		require.Equal(t, float64(ii), inputs[0].At(ii, 0, 0))
		require.Equal(t, float64(-ii), labels[0].At(ii, 0, 0))
	}
	_, _, err = mds.Yield()
	require.Equal(t, io.EOF, err)

	// Allowing incomplete batches.
	mds.Reset()
	mds.BatchSize(10, false)
	_, _, err = mds.Yield()
	require.NoError(t, err)
	inputs, _, err = mds.Yield()
	require.NoError(t, err)
	require.Equal(t, shapes.Make(7, 1, 2), inputs[0].Shape())
	require.Equal(t, 16.0, inputs[0].At(6, 0, 0))

	// Infinite loops over the data, TakeN limits the number of batches.
	mds.Reset()
	mds.Infinite(true)
	for range 5 {
		_, _, err = mds.Yield()
		require.NoError(t, err)
	}
	mds.TakeN(1)
	mds.Reset()
	_, _, err = mds.Yield()
	require.NoError(t, err)
	_, _, err = mds.Yield()
	require.Equal(t, io.EOF, err)
}

func TestInMemoryFromData(t *testing.T) {
	mds, err := InMemoryFromData("test",
		[]*tensors.Buffer{tensors.FromFlat(shapes.Make(2, 1, 2), []float64{1, 2, 3, 4})},
		[]*tensors.Buffer{tensors.FromFlat(shapes.Make(2, 1, 1), []float64{3, 7})})
	require.NoError(t, err)
	inputs, labels, err := mds.Yield()
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, inputs[0].Flat())
	require.Equal(t, []float64{3}, labels[0].Flat())

	_, err = InMemoryFromData("mismatch",
		[]*tensors.Buffer{tensors.Zeros(shapes.Make(2, 1, 2))},
		[]*tensors.Buffer{tensors.Zeros(shapes.Make(3, 1, 1))})
	require.Error(t, err)

	_, err = InMemory(&testSlicesDS{}, false)
	require.Error(t, err)
}

func TestTakeAndMap(t *testing.T) {
	ds := Map(Take(&testSlicesDS{numExamples: 10}, 3), func(inputs, labels []*tensors.Buffer) ([]*tensors.Buffer, []*tensors.Buffer) {
		doubled := inputs[0].Clone()
		doubled.ScaleInPlace(2)
		return []*tensors.Buffer{doubled}, labels
	})
	require.Equal(t, "testSlicesDS [Take 3]", ds.Name())
	count := 0
	for {
		inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, float64(2*count), inputs[0].At(0, 0, 0))
		count++
	}
	require.Equal(t, 3, count)
	ds.Reset()
	_, _, err := ds.Yield()
	require.NoError(t, err)
}

func TestNormalization(t *testing.T) {
	ds := &testSlicesDS{numExamples: 5} // Inputs: [0..4] and [0, 2, ..., 8].
	mean, stddev, err := Normalization(ds, 0)
	require.NoError(t, err)
	require.Equal(t, shapes.Make(1, 1, 2), mean.Shape())
	require.InDelta(t, 2.0, mean.At(0, 0, 0), 1e-12)
	require.InDelta(t, 4.0, mean.At(0, 0, 1), 1e-12)
	require.InDelta(t, 1.4142135623730951, stddev.At(0, 0, 0), 1e-9)
	require.InDelta(t, 2*1.4142135623730951, stddev.At(0, 0, 1), 1e-9)
	require.Equal(t, 0, ds.next, "dataset must be reset")

	_, _, err = Normalization(ds, 1)
	require.Error(t, err)

	require.Equal(t, []float64{1, 2, 1}, ReplaceZerosByOnes(tensors.FromRow(0, 2, 0)).Flat())
}
