// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gradcheck compares the gradients of every backward rule in autograd against central finite
// differences, and prints a report table. It exits with a non-zero status if any rule disagrees.
//
// Usage:
//
//	gradcheck [-filter=<regexp>] [-epsilon=1e-6] [-rtol=1e-3] [-atol=1e-6]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gograd/pkg/core/autograd/gradcheck"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagFilter  = flag.String("filter", "", "Regular expression: only cases whose name match are checked.")
	flagEpsilon = flag.Float64("epsilon", gradcheck.DefaultOptions().Epsilon, "Perturbation used in the central differences.")
	flagRelTol  = flag.Float64("rtol", gradcheck.DefaultOptions().RelativeTolerance, "Relative tolerance.")
	flagAbsTol  = flag.Float64("atol", gradcheck.DefaultOptions().AbsoluteTolerance, "Absolute tolerance.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	opts := gradcheck.Options{
		Epsilon:           *flagEpsilon,
		RelativeTolerance: *flagRelTol,
		AbsoluteTolerance: *flagAbsTol,
	}
	numFailed, err := run(os.Stdout, *flagFilter, opts)
	if err != nil {
		klog.Errorf("gradcheck: %+v", err)
		os.Exit(2)
	}
	if numFailed > 0 {
		os.Exit(1)
	}
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// newReportTable returns a table where the rows marked in failed are rendered in red.
func newReportTable(failed map[int]bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case failed[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
}

// run checks the catalog cases matching filter, writes the report to w and returns the number of
// failed cases.
func run(w io.Writer, filter string, opts gradcheck.Options) (numFailed int, err error) {
	var re *regexp.Regexp
	if filter != "" {
		re, err = regexp.Compile(filter)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid -filter=%q", filter)
		}
	}
	var cases []gradcheck.Case
	for _, c := range gradcheck.Catalog() {
		if re == nil || re.MatchString(c.Name) {
			cases = append(cases, c)
		}
	}
	if len(cases) == 0 {
		return 0, errors.Errorf("no gradcheck case matches -filter=%q", filter)
	}

	reports := gradcheck.CheckAll(cases, opts)
	failed := make(map[int]bool)
	table := newReportTable(failed).Headers("Case", "Op", "Elements", "Max Abs Error", "Max Rel Error", "Status")
	var numChecked int
	for ii, report := range reports {
		status := "ok"
		if !report.Passed() {
			failed[ii] = true
			numFailed++
			status = fmt.Sprintf("%d mismatches", len(report.Mismatches))
			if report.Err != nil {
				status = "error"
			}
			klog.Errorf("%s", report)
		}
		numChecked += report.NumChecked
		table.Row(report.Name, report.Op.String(), humanize.Comma(int64(report.NumChecked)),
			fmt.Sprintf("%.2e", report.MaxAbsError), fmt.Sprintf("%.2e", report.MaxRelError), status)
	}
	_, err = fmt.Fprintf(w, "%s\n%d cases, %s gradient elements checked, %d failed.\n",
		table.Render(), len(reports), humanize.Comma(int64(numChecked)), numFailed)
	if err != nil {
		return numFailed, errors.Wrap(err, "failed to write report")
	}
	return numFailed, nil
}
