// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets is a collection of utility datasets (train.Dataset) that can be combined for
// simple preprocessing: `InMemory`, `Take`, `Map`.
//
// It also includes normalization tools.
package datasets

import (
	"fmt"
	"io"

	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/gomlx/gograd/pkg/ml/train"
)

// takeDataset implements a `train.Dataset` that only yields `take` batches.
type takeDataset struct {
	ds          train.Dataset
	count, take int
}

// Take returns a wrapper to `ds`, a `train.Dataset` that only yields `n` batches.
func Take(ds train.Dataset, n int) train.Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements train.Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements train.Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements train.Dataset.
func (ds *takeDataset) Yield() (inputs, labels []*tensors.Buffer, err error) {
	if ds.count >= ds.take {
		err = io.EOF
		return
	}
	ds.count++
	return ds.ds.Yield()
}

// MapExampleFn is a normal Go function that applies a transformation to the inputs/labels of a dataset.
type MapExampleFn func(inputs, labels []*tensors.Buffer) (mappedInputs, mappedLabels []*tensors.Buffer)

// mapDataset implements a `train.Dataset` that maps a function to a wrapped dataset.
type mapDataset struct {
	ds    train.Dataset
	mapFn MapExampleFn
}

// Check that mapDataset implements train.Dataset.
var _ train.Dataset = (*mapDataset)(nil)

// Map maps a dataset through a transformation with a (normal Go) function.
func Map(ds train.Dataset, mapFn MapExampleFn) train.Dataset {
	return &mapDataset{
		ds:    ds,
		mapFn: mapFn,
	}
}

// Name implements train.Dataset.
func (ds *mapDataset) Name() string { return ds.ds.Name() }

// Yield implements train.Dataset.
func (ds *mapDataset) Yield() (inputs, labels []*tensors.Buffer, err error) {
	inputs, labels, err = ds.ds.Yield()
	if err != nil {
		return
	}
	inputs, labels = ds.mapFn(inputs, labels)
	return
}

// Reset implements train.Dataset.
func (ds *mapDataset) Reset() {
	ds.ds.Reset()
}
