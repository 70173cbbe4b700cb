// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds a library of metrics and defines the Interface used by train.Trainer.
//
// Metrics are computed in Go from the values of a train or eval step: they are not graph
// operations, and they never record anything on the tape.
package metrics

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/tensors"
)

// Batch holds the results of one train or eval step, as seen by the metrics.
type Batch struct {
	// Labels yielded by the dataset for the step.
	Labels []*tensors.Buffer

	// Predictions returned by the model function.
	Predictions *tensors.Buffer

	// Loss is the value of the scalar loss of the step.
	Loss float64
}

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving-Average-Accuracy" and "Batch-Accuracy" would both have the same
	// "accuracy" metric type.
	MetricType() string

	// Update consumes the results of one step, and returns the current value of the metric.
	Update(batch Batch) float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new evaluation.
	Reset()
}

const (
	// LossMetricType is the type of loss metrics.
	LossMetricType = "loss"

	// AccuracyMetricType is the type of accuracy metrics.
	AccuracyMetricType = "accuracy"
)

// BaseMetricFn is a stateless metric function: it should return the value for the given batch.
type BaseMetricFn func(batch Batch) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements a stateless metric.Interface.
type baseMetric struct {
	name, shortName, metricType string
	metricFn                    BaseMetricFn
	pPrintFn                    PrettyPrintFn // if nil will display default.
}

func (m *baseMetric) Name() string       { return m.name }
func (m *baseMetric) ShortName() string  { return m.shortName }
func (m *baseMetric) MetricType() string { return m.metricType }

func (m *baseMetric) Update(batch Batch) float64 {
	return m.metricFn(batch)
}

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.3f", value)
	}
	return m.pPrintFn(value)
}

func (m *baseMetric) Reset() {}

// NewBaseMetric creates a stateless metric from any BaseMetricFn function: its value is the one
// of the last batch.
//
// `pPrintFn` can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}
}

// MeanMetric returns the running mean of any metric function, weighted by the number of rows
// (batch * sequence positions) of the predictions of each step.
type MeanMetric struct {
	baseMetric
	sum, weight float64
}

// NewMeanMetric creates a metric that keeps the running mean of metricFn since the last Reset.
//
// `pPrintFn` can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) *MeanMetric {
	return &MeanMetric{baseMetric: baseMetric{
		name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}}
}

// BatchWeight returns the weight of a batch used by MeanMetric: the number of rows of the
// predictions, or 1 if there are no predictions.
func BatchWeight(batch Batch) float64 {
	if batch.Predictions == nil {
		return 1
	}
	return float64(batch.Predictions.Shape().Rows())
}

// Update implements Interface.
func (m *MeanMetric) Update(batch Batch) float64 {
	weight := BatchWeight(batch)
	m.sum += weight * m.metricFn(batch)
	m.weight += weight
	return m.sum / m.weight
}

// Reset implements Interface.
func (m *MeanMetric) Reset() {
	m.sum, m.weight = 0, 0
}

// movingAverageMetric keeps an exponential moving average of a metric function.
type movingAverageMetric struct {
	baseMetric
	newExampleWeight float64
	value            float64
	initialized      bool
}

// NewExponentialMovingAverageMetric creates a metric that keeps an exponential moving average of
// metricFn, where each new batch contributes with newExampleWeight. The first batch sets the value.
//
// `pPrintFn` can be left as nil, and a default will be used.
func NewExponentialMovingAverageMetric(name, shortName, metricType string, metricFn BaseMetricFn,
	pPrintFn PrettyPrintFn, newExampleWeight float64) Interface {
	if newExampleWeight <= 0 || newExampleWeight > 1 {
		exceptions.Panicf("NewExponentialMovingAverageMetric(%q): newExampleWeight must be in (0, 1], got %g",
			name, newExampleWeight)
	}
	return &movingAverageMetric{
		baseMetric: baseMetric{
			name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn},
		newExampleWeight: newExampleWeight,
	}
}

func (m *movingAverageMetric) Update(batch Batch) float64 {
	value := m.metricFn(batch)
	if !m.initialized {
		m.value = value
		m.initialized = true
		return m.value
	}
	m.value = m.value + m.newExampleWeight*(value-m.value)
	return m.value
}

func (m *movingAverageMetric) Reset() {
	m.value = 0
	m.initialized = false
}

// LossValue is a BaseMetricFn that returns the loss of the batch.
func LossValue(batch Batch) float64 { return batch.Loss }

// SparseCategoricalAccuracy is a BaseMetricFn for classifiers: the predictions are logits shaped
// [batch, sequence, classes] and Labels[0] holds one class index per row (batch * sequence).
// Rows labeled autograd.IgnoreIndex are not counted. It returns 0 if every row is ignored.
func SparseCategoricalAccuracy(batch Batch) float64 {
	if len(batch.Labels) == 0 || batch.Predictions == nil {
		exceptions.Panicf("SparseCategoricalAccuracy requires predictions and one labels tensor")
	}
	logits := batch.Predictions
	numClasses := logits.Shape().Inner()
	labels := tensors.CopyFlat[int](batch.Labels[0])
	if len(labels) != logits.Shape().Rows() {
		exceptions.Panicf("SparseCategoricalAccuracy: %d labels given for logits shaped %s, want %d",
			len(labels), logits.Shape(), logits.Shape().Rows())
	}
	flat := logits.Flat()
	var correct, counted int
	for row, label := range labels {
		if label == autograd.IgnoreIndex {
			continue
		}
		counted++
		rowLogits := flat[row*numClasses : (row+1)*numClasses]
		best := 0
		for class, logit := range rowLogits {
			if logit > rowLogits[best] {
				best = class
			}
		}
		if best == label {
			correct++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(correct) / float64(counted)
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", 100.0*value)
}

// NewSparseCategoricalAccuracy returns a new mean sparse categorical accuracy metric with the given names.
func NewSparseCategoricalAccuracy(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, AccuracyMetricType, SparseCategoricalAccuracy, accuracyPPrint)
}

// NewMovingAverageSparseCategoricalAccuracy returns a new exponential moving average sparse categorical
// accuracy metric with the given names.
func NewMovingAverageSparseCategoricalAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, AccuracyMetricType, SparseCategoricalAccuracy,
		accuracyPPrint, newExampleWeight)
}
