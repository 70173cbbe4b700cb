// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/gomlx/gograd/pkg/ml/train/optimizers"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	out              io.Writer
	numSteps         int
	lastStepReported int
	bar              *progressbar.ProgressBar
	totalAmount      int

	// lipgloss based rich display for the command-line.
	termenv       *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool
	numStatsLines int
}

func (pBar *progressBar) onStart(loop *train.Loop, _ train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.isFirstOutput = true
	var stepsMsg string
	if loop.EndStep < 0 {
		pBar.numSteps = 1000 // Guess for now.
	} else {
		pBar.numSteps = loop.EndStep - loop.StartStep
		stepsMsg = fmt.Sprintf(" (%d steps)", pBar.numSteps)
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription(fmt.Sprintf("Training%s: ", stepsMsg)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWriter(pBar.out),
	)
	return nil
}

func (pBar *progressBar) onStep(loop *train.Loop, metrics []float64) error {
	// Check whether it is finished.
	if pBar.bar.IsFinished() {
		return nil
	}

	// Check whether there is something to update.
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}

	// We clear the previous lines that will be overwritten.
	if !pBar.isFirstOutput {
		pBar.termenv.ClearLines(pBar.numStatsLines)
	}
	pBar.isFirstOutput = false

	// Add amount run since last time.
	_ = pBar.bar.Add(amount)
	pBar.totalAmount += amount
	pBar.lastStepReported = loop.LoopStep + 1

	// Report the metrics on the following lines.
	pBar.statsTable.Data(lgtable.NewStringData())
	if loop.EndStep < 0 {
		pBar.statsTable.Row("Step", fmt.Sprintf("%d (epoch %d)", loop.LoopStep, loop.Epoch))
	} else {
		pBar.statsTable.Row("Step", fmt.Sprintf("%d of %d", loop.LoopStep, loop.EndStep))
	}
	trainer := loop.Trainer
	for metricIdx, metricObj := range trainer.TrainMetrics() {
		pBar.statsTable.Row(metricObj.Name(), metricObj.PrettyPrint(metrics[metricIdx]))
	}
	if setter, ok := trainer.Optimizer().(optimizers.LearningRateSetter); ok {
		pBar.statsTable.Row("Learning Rate", fmt.Sprintf("%.3g", setter.LearningRate()))
	}
	pBar.statsTable.Row("Gradient Norm", fmt.Sprintf("%.3g", trainer.LastGradientNorm()))
	stats := pBar.statsStyle.Render(pBar.statsTable.String())
	_, _ = fmt.Fprintf(pBar.out, "\n%s\n", stats)
	pBar.numStatsLines = lipgloss.Height(stats) + 1
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	_, _ = fmt.Fprintln(pBar.out)
	return nil
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "gograd.ml.train.commandline.progressBar"

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run it will display a progress bar with progression and metrics.
//
// The associated data will be attached to the train.Loop, so nothing is returned.
func AttachProgressBar(loop *train.Loop) {
	attachProgressBar(loop, os.Stdout)
}

func attachProgressBar(loop *train.Loop, out io.Writer) {
	pBar := &progressBar{
		out:        out,
		termenv:    termenv.NewOutput(out),
		statsStyle: lipgloss.NewStyle().PaddingLeft(8),
		statsTable: NewTable(),
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Run at least 1000 during loop or at least every 3 seconds.
	train.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onStep)
	train.PeriodicCallback(loop, 3*time.Second, false, ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}
