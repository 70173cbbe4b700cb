// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/pkg/errors"
)

// InMemoryDataset represents a Dataset that has been completely read into memory.
//
// Examples are indexed by the outer (batch) axis of the stored buffers: a batch is yielded by
// gathering rows of the outer axis. It supports batching, shuffling (with and without replacement)
// and can be duplicated with Copy (only one copy of the underlying data is used).
type InMemoryDataset struct {
	// name of the dataset.
	name      string
	shortName string

	// inputsAndLabelsData contains the full dataset for each of the inputs and labels, concatenated
	// in the outer axis.
	inputsAndLabelsData []*tensors.Buffer

	// numInputsTensors indicate how many in inputsAndLabelsData are inputs, the remainder are labels.
	numInputsTensors int

	// numExamples indicates the total number of examples cached.
	numExamples int

	// muSampling serializes the sampling information, all the member variables below.
	muSampling sync.Mutex

	// batchSize to yield. If set to 0 yields only one result at a time.
	batchSize int

	// dropIncompleteBatch, when there are not enough remaining examples in the epoch.
	dropIncompleteBatch bool

	// next record to be sampled. If shuffle is given, this is an index in shuffle. If randomWithReplacement,
	// this is a count only.
	//
	// If it is set to -1, it means the dataset has been exhausted already.
	next int

	// randomWithReplacement indicates that one should simply take a random entry every time.
	randomWithReplacement bool

	// shuffle holds the current shuffle if Shuffle was selected.
	shuffle []int

	// infinite sets whether to loop indefinitely.
	infinite bool

	// rng used when random sampling, allows for deterministic random datasets.
	rng *rand.Rand

	// takeN is the maximum number of batches to take, before forcing an end of epoch.
	// If <= 0, take as many as available (or continuously if InMemoryDataset.infinite=true)
	takeN int
}

// InMemory creates a dataset that reads the whole contents of `ds` into memory.
//
// Args:
//   - `ds`: dataset to be cached. It is read in full once, concatenating the results in the cache.
//   - `dsIsBatched`: whether the input `ds` is batched, and its outer axis is a batch size. If false,
//     every yielded buffer must have an outer dimension of 1.
//
// Returns a `InMemoryDataset`, that is initially not shuffled and not batched. You can configure how you want to
// use it with the other configuration methods.
func InMemory(ds train.Dataset, dsIsBatched bool) (mds *InMemoryDataset, err error) {
	var parts [][]*tensors.Buffer // parts[tensorIdx][yieldIdx]
	numInputs := -1
	for {
		inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return nil, errors.WithMessagef(yieldErr, "InMemory(%q): failed reading dataset", ds.Name())
		}
		if numInputs == -1 {
			numInputs = len(inputs)
			parts = make([][]*tensors.Buffer, len(inputs)+len(labels))
		} else if len(inputs) != numInputs || len(inputs)+len(labels) != len(parts) {
			return nil, errors.Errorf("InMemory(%q): dataset yielded %d inputs and %d labels, previously it yielded %d and %d",
				ds.Name(), len(inputs), len(labels), numInputs, len(parts)-numInputs)
		}
		for ii, buf := range append(append([]*tensors.Buffer{}, inputs...), labels...) {
			if !dsIsBatched && buf.Shape().Outer() != 1 {
				return nil, errors.Errorf("InMemory(%q): dataset is not batched, but tensor #%d yielded has shape %s",
					ds.Name(), ii, buf.Shape())
			}
			parts[ii] = append(parts[ii], buf)
		}
	}
	if numInputs == -1 {
		return nil, errors.Errorf("InMemory(%q): dataset is empty", ds.Name())
	}
	data := make([]*tensors.Buffer, len(parts))
	for ii, tensorParts := range parts {
		data[ii], err = concatenateOuter(tensorParts)
		if err != nil {
			return nil, errors.WithMessagef(err, "InMemory(%q): tensor #%d", ds.Name(), ii)
		}
	}
	mds, err = newInMemory(ds.Name(), data, numInputs)
	if err != nil {
		return nil, err
	}
	if named, ok := ds.(train.HasShortName); ok {
		mds.shortName = named.ShortName()
	}
	return mds, nil
}

// InMemoryFromData creates an InMemoryDataset from the given buffers, where the outer axis of each
// buffer indexes the examples. All inputs and labels must have the same outer dimension.
func InMemoryFromData(name string, inputs, labels []*tensors.Buffer) (*InMemoryDataset, error) {
	data := make([]*tensors.Buffer, 0, len(inputs)+len(labels))
	data = append(data, inputs...)
	data = append(data, labels...)
	return newInMemory(name, data, len(inputs))
}

func newInMemory(name string, data []*tensors.Buffer, numInputs int) (*InMemoryDataset, error) {
	if len(data) == 0 {
		return nil, errors.Errorf("InMemoryDataset(%q) requires at least one input or label", name)
	}
	numExamples := data[0].Shape().Outer()
	for ii, buf := range data {
		if buf.Shape().Outer() != numExamples {
			return nil, errors.Errorf("InMemoryDataset(%q): tensor #%d has shape %s, but tensor #0 has %d examples",
				name, ii, buf.Shape(), numExamples)
		}
	}
	mds := &InMemoryDataset{
		inputsAndLabelsData: data,
		numInputsTensors:    numInputs,
		numExamples:         numExamples,
		rng:                 rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	mds.SetName(name)
	return mds, nil
}

// concatenateOuter concatenates the buffers along the outer axis.
func concatenateOuter(parts []*tensors.Buffer) (*tensors.Buffer, error) {
	dims := parts[0].Shape().Dimensions
	outer := 0
	for _, part := range parts {
		partDims := part.Shape().Dimensions
		if partDims[1] != dims[1] || partDims[2] != dims[2] {
			return nil, errors.Errorf("shape %s is incompatible with %s, only the outer axis can vary",
				part.Shape(), parts[0].Shape())
		}
		outer += partDims[0]
	}
	flat := make([]float64, 0, outer*dims[1]*dims[2])
	for _, part := range parts {
		flat = append(flat, part.Flat()...)
	}
	return tensors.FromFlat(shapes.Make(outer, dims[1], dims[2]), flat), nil
}

// Memory returns the memory used by the stored data.
func (mds *InMemoryDataset) Memory() uintptr {
	var mem uintptr
	for _, data := range mds.inputsAndLabelsData {
		mem += data.Memory()
	}
	return mem
}

// NumExamples cached.
func (mds *InMemoryDataset) NumExamples() int {
	return mds.numExamples
}

// Copy returns a copy of the dataset that shares the underlying data. The sampling configuration is
// reset: not shuffled, not batched, not infinite.
func (mds *InMemoryDataset) Copy() *InMemoryDataset {
	return &InMemoryDataset{
		name:                mds.name,
		shortName:           mds.shortName,
		inputsAndLabelsData: mds.inputsAndLabelsData,
		numInputsTensors:    mds.numInputsTensors,
		numExamples:         mds.numExamples,
		rng:                 rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
}

// Name implements `train.Dataset`.
func (mds *InMemoryDataset) Name() string {
	return mds.name
}

// ShortName implements `train.HasShortName`
func (mds *InMemoryDataset) ShortName() string {
	return mds.shortName
}

// SetName sets the name of the dataset and optionally its ShortName, and returns the updated dataset.
func (mds *InMemoryDataset) SetName(name string, shortName ...string) *InMemoryDataset {
	mds.name = name
	if len(shortName) > 0 {
		mds.shortName = shortName[0]
	} else {
		mds.shortName = name[:min(3, len(name))]
	}
	return mds
}

// Reset implements `train.Dataset`
func (mds *InMemoryDataset) Reset() {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()

	mds.next = 0
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
}

// indicesNextYield retrieve the indices for the next Yield call.
func (mds *InMemoryDataset) indicesNextYield() (indices []int) {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	if mds.next == -1 {
		return // dataset already exhausted.
	}
	n := mds.batchSize
	if n <= 0 {
		n = 1
	}
	indices = make([]int, 0, n)
	for mds.next < mds.numExamples && len(indices) < n {
		if len(mds.shuffle) > 0 {
			indices = append(indices, mds.shuffle[mds.next])
		} else if mds.randomWithReplacement {
			indices = append(indices, mds.rng.IntN(mds.numExamples))
		} else {
			indices = append(indices, mds.next)
		}
		mds.next++
	}
	if len(indices) < n && mds.dropIncompleteBatch {
		// Drop the incomplete batch.
		indices = nil
	}
	if mds.next >= mds.numExamples {
		mds.next = -1
	}
	if mds.takeN > 0 && mds.next >= mds.takeN*n {
		mds.next = -1
	}
	return
}

// gather the examples at the given indices of data, concatenated in the outer axis.
func gather(data *tensors.Buffer, indices []int) *tensors.Buffer {
	dims := data.Shape().Dimensions
	exampleSize := dims[1] * dims[2]
	flat := data.Flat()
	gathered := make([]float64, 0, len(indices)*exampleSize)
	for _, idx := range indices {
		gathered = append(gathered, flat[idx*exampleSize:(idx+1)*exampleSize]...)
	}
	return tensors.FromFlat(shapes.Make(len(indices), dims[1], dims[2]), gathered)
}

// Yield implements `train.Dataset`.
//
// Returns next batch's inputs and labels or single example if BatchSize is set to 0.
func (mds *InMemoryDataset) Yield() (inputs, labels []*tensors.Buffer, err error) {
	indices := mds.indicesNextYield()
	if len(indices) == 0 {
		if !mds.infinite {
			// Dataset is already exhausted.
			err = io.EOF
			return
		}
		mds.Reset()
		indices = mds.indicesNextYield()
		if len(indices) == 0 {
			err = errors.Errorf("InMemoryDataset(%q) has not enough examples for one batch of %d", mds.name, mds.batchSize)
			return
		}
	}
	all := make([]*tensors.Buffer, len(mds.inputsAndLabelsData))
	for ii, data := range mds.inputsAndLabelsData {
		all[ii] = gather(data, indices)
	}
	inputs = all[:mds.numInputsTensors]
	labels = all[mds.numInputsTensors:]
	return
}

// RandomWithReplacement configures the InMemoryDataset to return random elements with replacement.
// If this is configured, Shuffle is canceled.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) RandomWithReplacement() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = true
	mds.shuffle = nil
	return mds
}

// Shuffle configures the InMemoryDataset to shuffle the order of the data. It returns random elements
// without replacement. If this is configured, RandomWithReplacement is canceled.
//
// At each call to Reset() it is reshuffled.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Shuffle() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = false
	mds.shuffleLocked()
	return mds
}

// shuffleLocked shuffles dataset yield order. It assumes muSampling is locked.
func (mds *InMemoryDataset) shuffleLocked() {
	if mds.shuffle == nil {
		mds.shuffle = make([]int, mds.numExamples)
	}
	for ii := range mds.shuffle {
		mds.shuffle[ii] = ii
	}
	mds.rng.Shuffle(len(mds.shuffle), func(i, j int) {
		mds.shuffle[i], mds.shuffle[j] = mds.shuffle[j], mds.shuffle[i]
	})
}

// BatchSize configures the InMemoryDataset to return batches of the given size. If dropIncompleteBatch is set
// to true, it will simply drop examples if there are not enough to fill a batch -- this can only happen on the last
// batch of an epoch. Otherwise, it will return a partially filled batch.
//
// If `n` is set to 0, it reverts back to yielding one example at a time.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) BatchSize(n int, dropIncompleteBatch bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.batchSize = n
	mds.dropIncompleteBatch = dropIncompleteBatch
	return mds
}

// WithRand sets the random number generator (RNG) for shuffling or random sampling. This allows for repeatable
// deterministic random sampling, if one wants. The default is to use an RNG initialized with the current
// nanosecond time.
//
// If dataset is configured with Shuffle, this re-shuffles the dataset immediately.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) WithRand(rng *rand.Rand) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.rng = rng
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
	return mds
}

// Infinite sets whether the dataset should loop indefinitely. The default is `infinite = false`, which
// causes the dataset to going through the data only once before returning io.EOF.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.infinite = infinite
	return mds
}

// TakeN configures dataset to only take N batches before returning io.EOF.
// If set to 0 or -1, it takes as many as there is data.
// If configured, it automatically disables InMemoryDataset.Infinite
func (mds *InMemoryDataset) TakeN(n int) *InMemoryDataset {
	if n > 0 {
		mds.Infinite(false)
	}
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.takeN = n
	return mds
}
