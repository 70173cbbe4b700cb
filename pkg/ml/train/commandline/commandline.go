// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/gograd/pkg/ml/train"
	"github.com/pkg/errors"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// NewTable returns a lipgloss table with rounded borders, where the first column is right-aligned.
// If headers are given, they are rendered in bold.
func NewTable(headers ...string) *lgtable.Table {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	if len(headers) > 0 {
		table.Headers(headers...)
	}
	return table
}

// ReportEval reports on the command line the results of evaluating the datasets using trainer.Eval.
func ReportEval(trainer *train.Trainer, datasets ...train.Dataset) error {
	return reportEval(os.Stdout, trainer, datasets...)
}

func reportEval(w io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		metricsValues, err := trainer.Eval(ds)
		if err != nil {
			return errors.WithMessagef(err, "ReportEval(%q)", ds.Name())
		}
		table := NewTable("Metric", ds.Name())
		for metricIdx, metric := range trainer.EvalMetrics() {
			table.Row(fmt.Sprintf("%s (%s)", metric.Name(), metric.ShortName()), metric.PrettyPrint(metricsValues[metricIdx]))
		}
		if _, err = fmt.Fprintf(w, "Results on %s:\n%s\n", ds.Name(), table.String()); err != nil {
			return errors.Wrapf(err, "ReportEval(%q): failed to write results", ds.Name())
		}
	}
	return nil
}
