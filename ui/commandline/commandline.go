// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI fitting tools for the command line.
package commandline

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/dspfit/pkg/fit"
	"golang.org/x/exp/constraints"
)

// ReportSummary writes a table with the final state of the loop: the state, frames and blocks processed,
// and the initial value, final value and last gradient of every parameter.
func ReportSummary(w io.Writer, loop *fit.Loop) error {
	table := newStatsTable()
	table.Row("State", loop.State.String())
	table.Row("Frames processed", humanizeInt(loop.FramesProcessed))
	table.Row("Blocks rendered", fmt.Sprintf("%s of %s", humanizeInt(len(loop.RenderDurations)), humanizeInt(loop.Config.Iterations)))
	table.Row("Last loss", fmt.Sprintf("%.6g", loop.Loss))
	table.Row("Median render duration", FormatDuration(loop.MedianRenderDuration()))
	table.Row("Median render rate", FormatRate(loop.Config.BlockSize, loop.MedianRenderDuration()))
	for _, p := range loop.Registry.All() {
		table.Row(p.Address, fmt.Sprintf("%.6g -> %.6g (last gradient %.3g)", p.Initial, p.Value, p.Gradient))
	}
	_, err := fmt.Fprintln(w, table.String())
	return err
}

// humanizeInt formats an integer with thousands separators.
func humanizeInt[I constraints.Integer](n I) string {
	return humanize.Comma(int64(n))
}
