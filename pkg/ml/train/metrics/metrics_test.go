// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/shapes"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanMetric(t *testing.T) {
	m := NewMeanMetric("Mean Loss", "~loss", LossMetricType, LossValue, nil)
	predictions := tensors.Zeros(shapes.Make(2, 1, 1))
	require.Equal(t, 1.0, m.Update(Batch{Predictions: predictions, Loss: 1}))
	require.Equal(t, 2.0, m.Update(Batch{Predictions: predictions, Loss: 3}))

	// A batch with twice the rows weights twice as much.
	require.InDelta(t, (2.0+6.0+4*6.0)/8.0, m.Update(Batch{Predictions: tensors.Zeros(shapes.Make(4, 1, 1)), Loss: 6}), 1e-9)
	require.Equal(t, "4.000", m.PrettyPrint(4))

	m.Reset()
	require.Equal(t, 5.0, m.Update(Batch{Loss: 5}))
}

func TestMovingAverageMetric(t *testing.T) {
	m := NewExponentialMovingAverageMetric("Moving Loss", "~loss", LossMetricType, LossValue, nil, 0.5)
	require.Equal(t, 4.0, m.Update(Batch{Loss: 4}))
	require.Equal(t, 3.0, m.Update(Batch{Loss: 2}))
	require.Equal(t, 2.0, m.Update(Batch{Loss: 1}))
	m.Reset()
	require.Equal(t, 10.0, m.Update(Batch{Loss: 10}))

	require.Panics(t, func() { NewExponentialMovingAverageMetric("bad", "bad", LossMetricType, LossValue, nil, 0) })
}

func TestSparseCategoricalAccuracy(t *testing.T) {
	logits := tensors.FromFlat(shapes.Make(1, 4, 3), []float64{
		2, 0, 0, // argmax 0
		0, 1, 0, // argmax 1
		0, 0, 3, // argmax 2
		5, 0, 0, // argmax 0
	})
	labels := tensors.FromFlat(shapes.Make(1, 4, 1), []int{0, 1, 0, autograd.IgnoreIndex})
	batch := Batch{Labels: []*tensors.Buffer{labels}, Predictions: logits}
	require.InDelta(t, 2.0/3.0, SparseCategoricalAccuracy(batch), 1e-9)

	acc := NewSparseCategoricalAccuracy("Accuracy", "acc")
	require.InDelta(t, 2.0/3.0, acc.Update(batch), 1e-9)
	require.Equal(t, "66.67%", acc.PrettyPrint(2.0/3.0))

	allIgnored := tensors.Full(shapes.Make(1, 4, 1), autograd.IgnoreIndex)
	require.Equal(t, 0.0, SparseCategoricalAccuracy(Batch{Labels: []*tensors.Buffer{allIgnored}, Predictions: logits}))

	wrongCount := tensors.FromRow(0, 1)
	require.Panics(t, func() {
		SparseCategoricalAccuracy(Batch{Labels: []*tensors.Buffer{wrongCount}, Predictions: logits})
	})
}

func TestStreamingMedian(t *testing.T) {
	m := NewMedianMetric("Median Loss", "med", LossMetricType, LossValue, nil).
		WithSampleSize(101).
		WithRNG(rand.New(rand.NewPCG(1, 2)))
	require.Panics(t, func() { m.Median() })
	var median float64
	for ii := range 1000 {
		median = m.Update(Batch{Loss: float64(ii)})
	}
	fmt.Printf("\tmedian of 0..999 from 101 samples: %g\n", median)
	assert.Len(t, m.samples, 101)
	assert.InDelta(t, 500.0, median, 150.0)
	require.True(t, slices.IsSorted(m.samples))

	// The median matches a full sort of the samples, also for values arriving in decreasing order.
	m.Reset()
	for ii := range 500 {
		median = m.Update(Batch{Loss: float64(-ii)})
		sorted := slices.Clone(m.samples)
		slices.Sort(sorted)
		require.Equal(t, sorted, m.samples)
		require.Equal(t, sorted[len(sorted)/2], median)
	}

	m.Reset()
	for _, x := range []float64{3, 1, 2} {
		median = m.Update(Batch{Loss: x})
	}
	require.Equal(t, 2.0, median)
}
