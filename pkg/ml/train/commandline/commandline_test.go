// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/gomlx/gograd/pkg/ml/datasets"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/gomlx/gograd/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/require"
)

func newLinearTrainer(t *testing.T) (*train.Trainer, *datasets.InMemoryDataset) {
	tape := autograd.NewTape("commandline")
	w := tape.Parameter(tensors.FromScalar(0))
	trainer := train.NewTrainer(tape, []autograd.Node{w},
		func(_ *autograd.Tape, inputs []autograd.Node) autograd.Node { return autograd.Mul(w, inputs[0]) },
		func(labels []autograd.Node, predictions autograd.Node) autograd.Node {
			return autograd.MeanSquaredError(predictions, labels[0])
		},
		optimizers.StochasticGradientDescent().WithDecay(false).WithLearningRate(0.1).Done(), nil, nil)
	ds, err := datasets.InMemoryFromData("doubles",
		[]*tensors.Buffer{tensors.FromFlat(shapes.Make(4, 1, 1), []float64{1, 2, 3, 4})},
		[]*tensors.Buffer{tensors.FromFlat(shapes.Make(4, 1, 1), []float64{2, 4, 6, 8})})
	require.NoError(t, err)
	return trainer, ds.BatchSize(2, true)
}

func TestProgressBar(t *testing.T) {
	trainer, ds := newLinearTrainer(t)
	ds.Infinite(true)
	loop := train.NewLoop(trainer)
	var out bytes.Buffer
	attachProgressBar(loop, &out)
	_, err := loop.RunSteps(ds, 10)
	require.NoError(t, err)
	output := out.String()
	fmt.Printf("%s\n", output)
	require.Contains(t, output, "Training (10 steps)")
	require.Contains(t, output, "Batch Loss")
	require.Contains(t, output, "Learning Rate")
	require.Contains(t, output, "of 10")
}

func TestReportEval(t *testing.T) {
	trainer, ds := newLinearTrainer(t)
	var out bytes.Buffer
	require.NoError(t, reportEval(&out, trainer, ds))
	output := out.String()
	fmt.Printf("%s\n", output)
	require.Contains(t, output, "Results on doubles:")
	require.Contains(t, output, "Mean Loss (#loss)")
	// w=0, so the loss is the mean of the squared labels: (4+16+36+64)/4.
	require.Contains(t, output, "30.000")
}
