// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report writes the progress of a fit.Loop: a CSV stream with one row per frame, and a
// human-readable text trace.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/dspfit/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// CSVPriority is the priority of the CSV hooks: they run after the default (0) hooks.
const CSVPriority fit.Priority = 100

// CSV writes one row per processed frame: the iteration, the loss and, for each parameter, its
// gradient and value.
//
// The header is "iteration,loss" followed by "gradient_<label>,<label>" for each parameter, where
// the label is the last element of the parameter address.
type CSV struct {
	w      *csv.Writer
	closer io.Closer
	row    []string
}

// NewCSV creates a CSV report writing to w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

// CreateCSV creates (or truncates) the file at filePath, and returns a CSV report writing to it.
// A "~" prefix in the path is expanded to the user's home directory.
func CreateCSV(filePath string) (*CSV, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create CSV report file %q", filePath)
	}
	c := NewCSV(f)
	c.closer = f
	return c, nil
}

// Header returns the CSV header for the given registry.
func Header(r *fit.Registry) []string {
	header := make([]string, 0, 2+2*r.Len())
	header = append(header, "iteration", "loss")
	for _, label := range r.Labels() {
		header = append(header, "gradient_"+label, label)
	}
	return header
}

// Attach the CSV report to the loop: the header is written at the start, one row per frame, and
// the writer is flushed at the end.
func (c *CSV) Attach(loop *fit.Loop) {
	loop.OnStart("csv report", CSVPriority, func(loop *fit.Loop) error {
		return c.write(Header(loop.Registry))
	})
	loop.OnFrame("csv report", CSVPriority, func(loop *fit.Loop, frame *fit.Frame) error {
		c.row = append(c.row[:0],
			strconv.Itoa(frame.Iteration),
			formatFloat(frame.Loss))
		for _, p := range loop.Registry.All() {
			c.row = append(c.row, formatFloat(p.Gradient), formatFloat(p.Value))
		}
		return c.write(c.row)
	})
	loop.OnEnd("csv report", CSVPriority, func(loop *fit.Loop) error {
		c.w.Flush()
		return c.w.Error()
	})
}

func (c *CSV) write(record []string) error {
	if err := c.w.Write(record); err != nil {
		return errors.Wrap(err, "failed to write CSV report")
	}
	return nil
}

// Close flushes the CSV and, if created with CreateCSV, closes the file.
// It is safe to call it after the loop ended.
func (c *CSV) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if closeErr := c.closer.Close(); err == nil {
			err = closeErr
		}
		c.closer = nil
	}
	return errors.Wrap(err, "failed to close CSV report")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
