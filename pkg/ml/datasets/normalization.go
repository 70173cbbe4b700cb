// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math"

	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/pkg/errors"
)

// Normalization calculates the per-feature normalization parameters `mean` and `stddev` for the
// `inputsIndex`-th input from the given dataset. Both are shaped [1, 1, features] and reduce over the
// batch and sequence axes of every yielded batch.
//
// These values can later be used for normalization by simply applying `(x - mean) / stddev`.
// The dataset is read until io.EOF, and it is Reset afterwards.
//
// Notice for any feature that happens to be constant, the `stddev` will be 0. Use ReplaceZerosByOnes
// to avoid the numeric issues.
func Normalization(ds train.Dataset, inputsIndex int) (mean, stddev *tensors.Buffer, err error) {
	var sum, sumSquares []float64
	var count int
	for {
		inputs, _, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return nil, nil, errors.WithMessagef(yieldErr, "Normalization(%q): failed reading dataset", ds.Name())
		}
		if inputsIndex < 0 || inputsIndex >= len(inputs) {
			return nil, nil, errors.Errorf("Normalization(%q): inputsIndex=%d out of range, dataset yielded %d inputs",
				ds.Name(), inputsIndex, len(inputs))
		}
		batch := inputs[inputsIndex]
		numFeatures := batch.Shape().Inner()
		if sum == nil {
			sum = make([]float64, numFeatures)
			sumSquares = make([]float64, numFeatures)
		} else if len(sum) != numFeatures {
			return nil, nil, errors.Errorf("Normalization(%q): input shape %s changed the number of features from %d",
				ds.Name(), batch.Shape(), len(sum))
		}
		for flatIdx, x := range batch.Flat() {
			feature := flatIdx % numFeatures
			sum[feature] += x
			sumSquares[feature] += x * x
		}
		count += batch.Shape().Rows()
	}
	ds.Reset()
	if count == 0 {
		return nil, nil, errors.Errorf("Normalization(%q): dataset is empty", ds.Name())
	}
	featureShape := shapes.Make(1, 1, len(sum))
	mean = tensors.New(featureShape, func(_, _, k int) float64 { return sum[k] / float64(count) })
	stddev = tensors.New(featureShape, func(_, _, k int) float64 {
		m := sum[k] / float64(count)
		variance := sumSquares[k]/float64(count) - m*m
		return math.Sqrt(max(variance, 0))
	})
	return mean, stddev, nil
}

// ReplaceZerosByOnes returns a copy of x where zeros are replaced by ones. Used to normalize by a
// stddev that may contain zeros.
func ReplaceZerosByOnes(x *tensors.Buffer) *tensors.Buffer {
	return tensors.New(x.Shape(), func(i, j, k int) float64 {
		if v := x.At(i, j, k); v != 0 {
			return v
		}
		return 1
	})
}
