// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"math"
	"time"

	"github.com/gomlx/exceptions"
)

// stepFilter decides, after each step, whether a filtered callback should be called.
// It may update its own state when it returns true.
type stepFilter func(loop *Loop) bool

// addFilteredCallback registers fn as an OnStep hook called only at the steps accepted by due.
// If onStart is given, it's registered to reset the filter state at the start of every run.
// If callOnEnd is set, fn is also called (unfiltered) by OnEnd.
func addFilteredCallback(loop *Loop, fullName string, priority Priority, due stepFilter, onStart OnStartFn,
	callOnEnd bool, fn OnStepFn) {
	if onStart != nil {
		loop.OnStart(fullName, priority, onStart)
	}
	loop.OnStep(fullName, priority, func(loop *Loop, metrics []float64) error {
		if !due(loop) {
			return nil
		}
		return fn(loop, metrics)
	})
	if callOnEnd {
		loop.OnEnd(fullName, priority, OnEndFn(fn))
	}
}

// NTimesDuringLoop registers a OnStep hook on the loop that is called at most n times, split evenly
// across all steps.
//
// With Loop.RunEpochs the number of steps is only known after the first epoch: until then it calls
// fn at exponentially spaced steps (128, 256, 512, ...), so it may call fn more than n times.
//
// It always calls fn at the very last step.
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(n=%d): n must be > 0", n)
	}
	var numCalls int
	due := func(loop *Loop) bool {
		stepsDone := loop.LoopStep - loop.StartStep + 1
		switch {
		case loop.EndStep < 0:
			if stepsDone < 128<<numCalls {
				return false
			}
		case loop.LoopStep < loop.EndStep-1:
			stepsPerCall := float64(loop.EndStep-loop.StartStep) / float64(n)
			if stepsPerCall > 1 && float64(numCalls) > float64(stepsDone)/stepsPerCall {
				return false
			}
		}
		numCalls++
		return true
	}
	reset := func(_ *Loop, _ Dataset) error {
		numCalls = 0
		return nil
	}
	addFilteredCallback(loop, fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name), priority, due, reset, false, fn)
}

// EveryNSteps registers a OnStep hook on the loop that is called every n steps. The count is kept
// across runs of the loop.
//
// Notice that it does not call fn at the last step (except by coincidence).
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNSteps(n=%d): n must be > 0", n)
	}
	var count int
	due := func(_ *Loop) bool {
		count++
		return count%n == 0
	}
	addFilteredCallback(loop, fmt.Sprintf("EveryNSteps(%d): %s", n, name), priority, due, nil, false, fn)
}

// PeriodicCallback registers an OnStep hook on the loop that is called every period of time.
//
// The clock starts at the first step, and restarts after fn returns: the time spent in fn (in case
// it is expensive) doesn't count, so fn is not called at exact intervals.
//
// If callOnEnd is set, it will also call fn at the end of the loop.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnStepFn) {
	var last time.Time
	due := func(_ *Loop) bool {
		if last.IsZero() {
			last = time.Now()
			return false
		}
		return time.Since(last) >= period
	}
	timed := func(loop *Loop, metrics []float64) error {
		err := fn(loop, metrics)
		last = time.Now()
		return err
	}
	addFilteredCallback(loop, fmt.Sprintf("PeriodicCallback(%s): %s", period, name), priority, due, nil, callOnEnd, timed)
}

// ExponentialCallback registers an OnStep hook on the loop that is called with exponentially
// increasing number of steps in between: the first gap is startStep steps, and every following gap
// grows by exponentialFactor.
//
// If callOnEnd is set, it will also call fn at the end of the loop.
//
// Example: This will call at steps 100, 100+100*1.2 = 220, 220+100*1.2^2 = 364, ...
//
//	ExponentialCallback(loop, 100, 1.2, false, "my_callback", 0, myCallback)
func ExponentialCallback(loop *Loop, startStep int, exponentialFactor float64, callOnEnd bool,
	name string, priority Priority, fn OnStepFn) {
	if startStep <= 0 || exponentialFactor <= 1 {
		exceptions.Panicf("ExponentialCallback(startStep=%d, exponentialFactor=%g): startStep must be > 0 "+
			"and exponentialFactor must be > 1", startStep, exponentialFactor)
	}
	var nextStep, gap int
	advance := func() {
		nextStep += gap
		gap = int(math.Round(float64(gap) * exponentialFactor))
	}
	due := func(loop *Loop) bool {
		if nextStep == 0 {
			// First call: skip the gaps that are already behind the starting step.
			gap = startStep
			for nextStep <= loop.StartStep {
				advance()
			}
		}
		if loop.LoopStep < nextStep {
			return false
		}
		advance()
		return true
	}
	addFilteredCallback(loop, fmt.Sprintf("ExponentialCallback(%d, %g): %s", startStep, exponentialFactor, name),
		priority, due, nil, callOnEnd, fn)
}
