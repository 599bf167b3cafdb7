// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"io"

	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/pkg/errors"
)

// Column widths of the trace.
const (
	labelWidth  = 12
	numberWidth = 16
	paramWidth  = 12
)

// PrintSetup writes the learning rate, the sensitivity (epsilon) and the initial value of every learnable parameter.
func PrintSetup(w io.Writer, loop *fit.Loop) error {
	_, err := fmt.Fprintf(w, "Learning rate: %g\nSensitivity: %g\n\n", loop.Config.LearningRate, loop.Config.Epsilon)
	if err != nil {
		return errors.Wrap(err, "failed to write trace")
	}
	for _, p := range loop.Registry.All() {
		if _, err = fmt.Fprintf(w, "Learnable parameter: %s, value: %g\n", p.Address, p.Value); err != nil {
			return errors.Wrap(err, "failed to write trace")
		}
	}
	_, err = fmt.Fprintln(w)
	return errors.Wrap(err, "failed to write trace")
}

// AttachTrace attaches a text trace of the loop to w: the setup at the start (see PrintSetup) and, for
// each frame, the iteration, the ground-truth and learnable samples and the loss.
//
// When the loss is above the sensitivity, an extra line per parameter is written with the partial
// derivative (ds/dp), the gradient and the updated value.
func AttachTrace(loop *fit.Loop, w io.Writer) {
	loop.OnStart("trace", 0, func(loop *fit.Loop) error {
		return PrintSetup(w, loop)
	})
	loop.OnFrame("trace", 0, func(loop *fit.Loop, frame *fit.Frame) error {
		_, err := fmt.Fprintf(w, "%5d%*s%*.10f%*s%*.10f%*s%*.10f\n",
			frame.Iteration,
			labelWidth, "Sig GT: ", numberWidth, frame.GroundTruth,
			labelWidth, "Sig Learn: ", numberWidth, frame.Learnable,
			labelWidth, "Loss: ", numberWidth, frame.Loss)
		if err != nil {
			return errors.Wrap(err, "failed to write trace")
		}
		if !frame.Updated {
			return nil
		}
		for k, p := range loop.Registry.All() {
			_, err = fmt.Fprintf(w, "%5s%*s:%*s%*.10f%*s%*.10f%*s%*.10f\n",
				".", paramWidth, p.Label(),
				labelWidth, "ds/dp: ", numberWidth, frame.Derivatives[k],
				labelWidth, "Grad: ", numberWidth, p.Gradient,
				labelWidth, "Value: ", numberWidth, p.Value)
			if err != nil {
				return errors.Wrap(err, "failed to write trace")
			}
		}
		return nil
	})
}
