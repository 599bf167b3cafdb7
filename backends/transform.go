// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownParameter is returned (wrapped) when setting or getting a parameter address a Transform doesn't have.
var ErrUnknownParameter = errors.New("unknown parameter")

// ParameterInfo describes a parameter exposed by a Transform.
type ParameterInfo struct {
	// Address uniquely identifies the parameter, as a hierarchical path. E.g.: "/target/gain".
	Address string

	// Init is the initial value of the parameter.
	Init float64

	// Min and Max are informative bounds. They are not enforced.
	Min, Max float64
}

// ShortName returns the last element of the Address path.
func (p ParameterInfo) ShortName() string {
	return ShortName(p.Address)
}

// ShortName returns the last element of a parameter address path: the suffix after the last "/".
func ShortName(address string) string {
	return address[strings.LastIndex(address, "/")+1:]
}

// Transform is an executable signal-processing unit mapping input samples to output samples,
// possibly parameterized.
//
// Samples are organized by channel: inputs[channel][frame] and outputs[channel][frame].
//
// A Transform is not safe for concurrent use.
type Transform interface {
	// Name of the transform, for error messages and pretty-printing.
	Name() string

	// NumInputs returns the number of input channels.
	NumInputs() int

	// NumOutputs returns the number of output channels.
	NumOutputs() int

	// Parameters returns the parameters of the transform, in a fixed order.
	Parameters() []ParameterInfo

	// SetParameter sets the current value of the parameter with the given address.
	// It returns an error wrapping ErrUnknownParameter if the address is unknown.
	SetParameter(address string, value float64) error

	// GetParameter returns the current value of the parameter with the given address.
	// It returns an error wrapping ErrUnknownParameter if the address is unknown.
	GetParameter(address string) (float64, error)

	// Init prepares the transform to run at the given sample rate, and resets any internal state.
	Init(sampleRate int)

	// Compute processes count frames, reading from inputs and writing to outputs.
	// There must be NumInputs input channels and NumOutputs output channels, each with at least count frames.
	Compute(count int, inputs, outputs [][]float64)

	// Clone returns an independent instance of the transform, with the same parameter values but
	// no shared state.
	Clone() Transform
}
