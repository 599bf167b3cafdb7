// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dsp composes backends.Transform values into larger graphs, and renders them block by block.
//
// The two combinators are Sequence, feeding the outputs of one transform into the inputs of the next,
// and Parallel, stacking the inputs and outputs of two transforms side by side. ComposeFitGraph uses
// them to build the graph driven by fit.Loop.
package dsp

import (
	"fmt"
	"slices"

	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// mergeParameters returns the union of the parameters of the transforms, by address, in the
// order they are first seen.
func mergeParameters(transforms ...backends.Transform) []backends.ParameterInfo {
	var params []backends.ParameterInfo
	seen := make(map[string]bool)
	for _, t := range transforms {
		for _, info := range t.Parameters() {
			if seen[info.Address] {
				continue
			}
			seen[info.Address] = true
			params = append(params, info)
		}
	}
	return params
}

// setParameter sets the parameter on every transform that has it. It returns an error wrapping
// backends.ErrUnknownParameter if none of them has it.
func setParameter(name, address string, value float64, transforms ...backends.Transform) error {
	found := false
	for _, t := range transforms {
		err := t.SetParameter(address, value)
		if err == nil {
			found = true
			continue
		}
		if !errors.Is(err, backends.ErrUnknownParameter) {
			return err
		}
	}
	if !found {
		return errors.Wrapf(backends.ErrUnknownParameter, "transform %q has no parameter %q", name, address)
	}
	return nil
}

// getParameter returns the value from the first transform that has the parameter.
func getParameter(name, address string, transforms ...backends.Transform) (float64, error) {
	for _, t := range transforms {
		value, err := t.GetParameter(address)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, backends.ErrUnknownParameter) {
			return 0, err
		}
	}
	return 0, errors.Wrapf(backends.ErrUnknownParameter, "transform %q has no parameter %q", name, address)
}

// SequenceTransform feeds the outputs of First into the inputs of Second. Create it with Sequence.
type SequenceTransform struct {
	First, Second backends.Transform

	// intermediate buffers, [channel][frame].
	intermediate [][]float64
}

// Compile-time check that SequenceTransform implements backends.Transform.
var _ backends.Transform = (*SequenceTransform)(nil)

// Sequence returns the sequential composition of first and second: the outputs of first are connected
// to the inputs of second.
//
// It panics if the number of outputs of first doesn't match the number of inputs of second.
func Sequence(first, second backends.Transform) *SequenceTransform {
	if first.NumOutputs() != second.NumInputs() {
		exceptions.Panicf("dsp.Sequence(%s, %s): %q has %d outputs, but %q takes %d inputs",
			first.Name(), second.Name(), first.Name(), first.NumOutputs(), second.Name(), second.NumInputs())
	}
	return &SequenceTransform{First: first, Second: second}
}

// Name implements backends.Transform.
func (s *SequenceTransform) Name() string {
	return fmt.Sprintf("(%s : %s)", s.First.Name(), s.Second.Name())
}

// NumInputs implements backends.Transform.
func (s *SequenceTransform) NumInputs() int { return s.First.NumInputs() }

// NumOutputs implements backends.Transform.
func (s *SequenceTransform) NumOutputs() int { return s.Second.NumOutputs() }

// Parameters implements backends.Transform.
func (s *SequenceTransform) Parameters() []backends.ParameterInfo {
	return mergeParameters(s.First, s.Second)
}

// SetParameter implements backends.Transform. It sets the parameter on both sides that have it.
func (s *SequenceTransform) SetParameter(address string, value float64) error {
	return setParameter(s.Name(), address, value, s.First, s.Second)
}

// GetParameter implements backends.Transform.
func (s *SequenceTransform) GetParameter(address string) (float64, error) {
	return getParameter(s.Name(), address, s.First, s.Second)
}

// Init implements backends.Transform.
func (s *SequenceTransform) Init(sampleRate int) {
	s.First.Init(sampleRate)
	s.Second.Init(sampleRate)
}

// Compute implements backends.Transform.
func (s *SequenceTransform) Compute(count int, inputs, outputs [][]float64) {
	numChannels := s.First.NumOutputs()
	if len(s.intermediate) != numChannels || (numChannels > 0 && len(s.intermediate[0]) < count) {
		s.intermediate = make([][]float64, numChannels)
		for ii := range s.intermediate {
			s.intermediate[ii] = make([]float64, count)
		}
	}
	s.First.Compute(count, inputs, s.intermediate)
	s.Second.Compute(count, s.intermediate, outputs)
}

// Clone implements backends.Transform.
func (s *SequenceTransform) Clone() backends.Transform {
	return Sequence(s.First.Clone(), s.Second.Clone())
}

// ParallelTransform runs Top and Bottom side by side: its inputs (and outputs) are the inputs (and
// outputs) of Top followed by those of Bottom. Create it with Parallel.
type ParallelTransform struct {
	Top, Bottom backends.Transform
}

// Compile-time check that ParallelTransform implements backends.Transform.
var _ backends.Transform = (*ParallelTransform)(nil)

// Parallel returns the parallel composition of top and bottom.
func Parallel(top, bottom backends.Transform) *ParallelTransform {
	return &ParallelTransform{Top: top, Bottom: bottom}
}

// Name implements backends.Transform.
func (p *ParallelTransform) Name() string {
	return fmt.Sprintf("(%s , %s)", p.Top.Name(), p.Bottom.Name())
}

// NumInputs implements backends.Transform.
func (p *ParallelTransform) NumInputs() int { return p.Top.NumInputs() + p.Bottom.NumInputs() }

// NumOutputs implements backends.Transform.
func (p *ParallelTransform) NumOutputs() int { return p.Top.NumOutputs() + p.Bottom.NumOutputs() }

// Parameters implements backends.Transform.
func (p *ParallelTransform) Parameters() []backends.ParameterInfo {
	return mergeParameters(p.Top, p.Bottom)
}

// SetParameter implements backends.Transform. It sets the parameter on both sides that have it.
func (p *ParallelTransform) SetParameter(address string, value float64) error {
	return setParameter(p.Name(), address, value, p.Top, p.Bottom)
}

// GetParameter implements backends.Transform.
func (p *ParallelTransform) GetParameter(address string) (float64, error) {
	return getParameter(p.Name(), address, p.Top, p.Bottom)
}

// Init implements backends.Transform.
func (p *ParallelTransform) Init(sampleRate int) {
	p.Top.Init(sampleRate)
	p.Bottom.Init(sampleRate)
}

// Compute implements backends.Transform.
func (p *ParallelTransform) Compute(count int, inputs, outputs [][]float64) {
	numInputs, numOutputs := p.Top.NumInputs(), p.Top.NumOutputs()
	if len(inputs) < p.NumInputs() || len(outputs) < p.NumOutputs() {
		exceptions.Panicf("transform %q: Compute given %d inputs and %d outputs, requires %d and %d",
			p.Name(), len(inputs), len(outputs), p.NumInputs(), p.NumOutputs())
	}
	p.Top.Compute(count, inputs[:numInputs], outputs[:numOutputs])
	p.Bottom.Compute(count, inputs[numInputs:], outputs[numOutputs:])
}

// Clone implements backends.Transform.
func (p *ParallelTransform) Clone() backends.Transform {
	return Parallel(p.Top.Clone(), p.Bottom.Clone())
}

// Addresses returns the addresses of the given parameters.
func Addresses(params []backends.ParameterInfo) []string {
	addresses := make([]string, len(params))
	for ii, info := range params {
		addresses[ii] = info.Address
	}
	return addresses
}

// sameAddresses returns whether a and b have the same parameter addresses, in the same order.
func sameAddresses(a, b []backends.ParameterInfo) bool {
	return slices.Equal(Addresses(a), Addresses(b))
}
