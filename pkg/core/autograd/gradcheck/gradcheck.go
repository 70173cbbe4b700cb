// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gradcheck compares the gradients computed by autograd's backward rules with central
// finite differences of the forward computation.
//
// Each Case builds its forward pass from scratch on a fresh Tape, so the same function serves
// for both the analytic and the numeric evaluations.
package gradcheck

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/gomlx/gograd/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ForwardFn builds the computation being checked from its inputs, and returns its output.
type ForwardFn func(inputs []autograd.Node) autograd.Node

// Case is one computation to check.
type Case struct {
	// Name of the case, used for reporting.
	Name string

	// Op is the backward rule mostly exercised by the case.
	Op autograd.OpType

	// Inputs to the forward function. All of them are checked.
	Inputs []*tensors.Buffer

	// Forward builds the computation. If the output is not a scalar, it is reduced with a fixed
	// weighted sum, so every output element gets a different upstream gradient.
	Forward ForwardFn
}

// Options for Check.
type Options struct {
	// Epsilon is the perturbation used in the central differences.
	Epsilon float64

	// RelativeTolerance and AbsoluteTolerance: an analytic gradient g and a numeric gradient n agree if
	// |g - n| <= AbsoluteTolerance + RelativeTolerance * max(|g|, |n|).
	RelativeTolerance, AbsoluteTolerance float64
}

// DefaultOptions returns Options that work well for float64 and smooth functions.
func DefaultOptions() Options {
	return Options{
		Epsilon:           1e-6,
		RelativeTolerance: 1e-3,
		AbsoluteTolerance: 1e-6,
	}
}

// Mismatch describes one gradient element where the analytic and numeric gradients disagree.
type Mismatch struct {
	Input             int
	Indices           [3]int
	Analytic, Numeric float64
}

// String implements fmt.Stringer.
func (m Mismatch) String() string {
	return fmt.Sprintf("input #%d at %v: analytic=%.8g, numeric=%.8g", m.Input, m.Indices, m.Analytic, m.Numeric)
}

// Report of checking one Case.
type Report struct {
	Name string
	Op   autograd.OpType

	// NumChecked is the number of gradient elements compared.
	NumChecked int

	// MaxAbsError and MaxRelError are the largest differences observed between analytic and numeric gradients.
	MaxAbsError, MaxRelError float64

	// Mismatches lists the elements that are out of tolerance.
	Mismatches []Mismatch

	// Err is set if the case panicked while being evaluated.
	Err error
}

// Passed returns whether every element agreed and the case didn't fail.
func (r Report) Passed() bool {
	return r.Err == nil && len(r.Mismatches) == 0
}

// String implements fmt.Stringer.
func (r Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s (%s): failed: %v", r.Name, r.Op, r.Err)
	}
	status := "ok"
	if !r.Passed() {
		status = fmt.Sprintf("%d mismatches, first %s", len(r.Mismatches), r.Mismatches[0])
	}
	return fmt.Sprintf("%s (%s): %d elements, max abs error %.3g, max rel error %.3g: %s",
		r.Name, r.Op, r.NumChecked, r.MaxAbsError, r.MaxRelError, status)
}

// Check compares the analytic gradients of c with central finite differences.
//
// A panic while building or back-propagating the case is reported in Report.Err.
func Check(c Case, opts Options) (report Report) {
	report.Name, report.Op = c.Name, c.Op
	report.Err = exceptions.TryCatch[error](func() {
		checkImpl(c, opts, &report)
	})
	if report.Err != nil {
		report.Err = errors.WithMessagef(report.Err, "gradcheck %q", c.Name)
	}
	return
}

func checkImpl(c Case, opts Options, report *Report) {
	if len(c.Inputs) == 0 {
		exceptions.Panicf("case %q has no inputs", c.Name)
	}
	analytic := analyticGradients(c)
	for inputIdx, input := range c.Inputs {
		perturbed := make([]*tensors.Buffer, len(c.Inputs))
		copy(perturbed, c.Inputs)
		perturbedInput := input.Clone()
		perturbed[inputIdx] = perturbedInput
		flat := perturbedInput.Flat()
		for flatIdx, indices := range input.Shape().Iter() {
			original := flat[flatIdx]
			flat[flatIdx] = original + opts.Epsilon
			plus := evaluate(c, perturbed)
			flat[flatIdx] = original - opts.Epsilon
			minus := evaluate(c, perturbed)
			flat[flatIdx] = original
			numeric := (plus - minus) / (2 * opts.Epsilon)

			got := analytic[inputIdx].Flat()[flatIdx]
			absErr := math.Abs(got - numeric)
			scale := max(math.Abs(got), math.Abs(numeric))
			report.NumChecked++
			report.MaxAbsError = max(report.MaxAbsError, absErr)
			if scale > 0 {
				report.MaxRelError = max(report.MaxRelError, absErr/scale)
			}
			if absErr > opts.AbsoluteTolerance+opts.RelativeTolerance*scale {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Input: inputIdx, Indices: indices, Analytic: got, Numeric: numeric,
				})
			}
		}
	}
	klog.V(1).Infof("gradcheck: %s", report)
}

// reduce returns the scalar used as loss: output itself if scalar, otherwise a weighted mean.
func reduce(output autograd.Node) autograd.Node {
	if output.Shape().IsScalar() {
		return output
	}
	weights := tensors.New(output.Shape(), func(i, j, k int) float64 {
		return 1 + 0.1*float64(i) - 0.2*float64(j) + 0.3*float64(k)
	})
	return autograd.Mean(autograd.Mul(output, output.Tape().Constant(weights)))
}

// analyticGradients runs the case on a fresh tape and returns the gradients of all inputs.
func analyticGradients(c Case) []*tensors.Buffer {
	tape := autograd.NewTape(c.Name)
	inputs := make([]autograd.Node, len(c.Inputs))
	for ii, input := range c.Inputs {
		inputs[ii] = tape.Parameter(input.Clone())
	}
	reduce(c.Forward(inputs)).Backward()
	grads := make([]*tensors.Buffer, len(inputs))
	for ii, input := range inputs {
		grads[ii] = input.GradOrZeros()
	}
	return grads
}

// evaluate runs the forward pass only, with no gradient tracking.
func evaluate(c Case, values []*tensors.Buffer) float64 {
	tape := autograd.NewTape(c.Name)
	inputs := make([]autograd.Node, len(values))
	for ii, value := range values {
		inputs[ii] = tape.Constant(value)
	}
	return reduce(c.Forward(inputs)).Value().Value()
}

// CheckAll checks every case, and returns the reports in the same order.
func CheckAll(cases []Case, opts Options) []Report {
	reports := make([]Report, 0, len(cases))
	for _, c := range cases {
		reports = append(reports, Check(c, opts))
	}
	return reports
}
