// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// Dataset for a train.Trainer provides the data, one batch at a time. Each batch consists of a slice of
// *tensors.Buffer for `inputs` and for `labels`.
//
// See package datasets for in-memory datasets and dataset combinators.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and logging.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one "batch" (or whatever is the unit for a training step) or an error.
	// It should return a slice of `inputs` and a slice of `labels` buffers (even when there is only
	// one of each).
	//
	// The ownership of `inputs` and `labels` is transferred to the caller: the Trainer records them
	// as constants on its tape, so they must not be modified afterwards.
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	//
	// If the error is `io.EOF` the training/evaluation terminates normally, as it indicates end of data
	// for finite datasets -- maybe the end of the epoch.
	//
	// Any other errors should interrupt the training/evaluation and be returned to the user.
	Yield() (inputs, labels []*tensors.Buffer, err error)
}

// HasShortName allows a dataset to specify a short name (used when displaying a short version of metric names).
// It defaults to the first 3 letters of the dataset name.
//
// It's optional.
type HasShortName interface {
	// ShortName returns the short name of the dataset.
	ShortName() string
}
