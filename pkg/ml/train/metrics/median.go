// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math/rand/v2"
	"slices"

	"github.com/gomlx/exceptions"
)

// StreamingMedianMetric implements a metric that keeps an approximate median of a metric from a streaming
// input.
type StreamingMedianMetric struct {
	baseMetric
	maxNumSamples, samplesSeen int
	samples                    []float64 // Kept sorted.
	rng                        *rand.Rand
}

// NewMedianMetric creates a streaming median metric from any BaseMetricFn function.
//
// It keeps a uniform random sample (reservoir sampling) of the values seen since the last Reset,
// and reports their median.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMedianMetric(name, shortName, metricType string, metricFn BaseMetricFn, prettyPrintFn PrettyPrintFn) *StreamingMedianMetric {
	return &StreamingMedianMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			metricFn:   metricFn,
			pPrintFn:   prettyPrintFn,
		},
		maxNumSamples: 10_001,
	}
}

// WithSampleSize configures the default number of random samples to keep to estimate the median.
func (m *StreamingMedianMetric) WithSampleSize(n int) *StreamingMedianMetric {
	if n <= 0 {
		exceptions.Panicf("StreamingMedianMetric(%q).WithSampleSize(%d): sample size must be > 0", m.name, n)
	}
	m.maxNumSamples = n
	return m
}

// WithRNG sets the random number generator used to sample values. Used for reproducible tests.
func (m *StreamingMedianMetric) WithRNG(rng *rand.Rand) *StreamingMedianMetric {
	m.rng = rng
	return m
}

// Update implements Interface.
func (m *StreamingMedianMetric) Update(batch Batch) float64 {
	m.observe(m.metricFn(batch))
	return m.Median()
}

func (m *StreamingMedianMetric) observe(x float64) {
	if m.samples == nil {
		m.samples = make([]float64, 0, min(m.maxNumSamples, 1024))
		m.samplesSeen = 0
		if m.rng == nil {
			m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	m.samplesSeen++

	// Simple case: we have space to simply store the new sampled x.
	if len(m.samples) < m.maxNumSamples {
		m.insert(x)
		return
	}

	// We must decide whether to keep x, replacing a uniformly chosen sample:
	if m.rng.Float64() >= float64(m.maxNumSamples)/float64(m.samplesSeen) {
		return
	}
	pos := m.rng.IntN(m.maxNumSamples)
	m.samples = slices.Delete(m.samples, pos, pos+1)
	m.insert(x)
}

// insert x keeping samples sorted.
func (m *StreamingMedianMetric) insert(x float64) {
	pos, _ := slices.BinarySearch(m.samples, x)
	m.samples = slices.Insert(m.samples, pos, x)
}

// Median of the values sampled so far. It panics if no value has been seen.
func (m *StreamingMedianMetric) Median() float64 {
	if len(m.samples) == 0 {
		exceptions.Panicf("streaming median metric %q has seen no samples to read", m.Name())
	}
	return m.samples[len(m.samples)/2]
}

// Reset will delete all sampled values.
func (m *StreamingMedianMetric) Reset() {
	m.samples = nil
	m.samplesSeen = 0
}
