// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simpledsp implements a small reference backend for dspfit.
//
// Transforms are described in YAML as a chain of stages, processing a single (mono) channel. Learnable
// parameters are declared in "params" and referenced by name from the stage arguments:
//
//	name: target
//	params:
//	  - name: gain
//	    init: 0.2
//	    min: 0
//	    max: 2
//	stages:
//	  - op: gain
//	    gain: gain    # Refers to the parameter "gain", whose address is "/target/gain".
//	  - op: onepole
//	    pole: 0.5     # Literal value.
//
// The first stage may be a source ("sine", "const" or "noise"), in which case the transform takes
// no input; otherwise it takes one input channel. Processors are "gain", "offset", "onepole" and "tanh".
//
// The differentiated transform (Backend.CompileDifferentiated) carries a tangent vector along the chain
// (forward-mode differentiation with dual numbers) and outputs one channel per parameter.
package simpledsp

import (
	"github.com/gomlx/dspfit/backends"
	"github.com/pkg/errors"
)

// BackendName to be used in DSPFIT_BACKEND to specify this backend.
const BackendName = "simpledsp"

// Registers New() as the default constructor for "simpledsp" backend.
func init() {
	backends.Register(BackendName, New)
}

// Backend implements backends.Backend for simple YAML-described stage chains.
type Backend struct{}

// Compile-time check that Backend implements backends.Backend.
var _ backends.Backend = (*Backend)(nil)

// New constructs a new simpledsp Backend. It takes no configuration.
func New(config string) (backends.Backend, error) {
	if config != "" {
		return nil, errors.Errorf("backend %q takes no configuration, got %q", BackendName, config)
	}
	return &Backend{}, nil
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description returns a longer description of the backend.
func (b *Backend) Description() string {
	return "Reference backend: YAML-described mono stage chains with forward-mode derivatives"
}

// Compile implements backends.Backend.
func (b *Backend) Compile(filePath string) (backends.Transform, error) {
	desc, err := readDescription(filePath)
	if err != nil {
		return nil, err
	}
	return newProgram(desc, false)
}

// CompileDifferentiated implements backends.Backend.
func (b *Backend) CompileDifferentiated(filePath string) (backends.Transform, error) {
	desc, err := readDescription(filePath)
	if err != nil {
		return nil, err
	}
	return newProgram(desc, true)
}

// CompileString compiles a description given as YAML text. Mostly useful for tests.
func CompileString(yamlText string, differentiate bool) (backends.Transform, error) {
	desc, err := parseDescription([]byte(yamlText), "")
	if err != nil {
		return nil, err
	}
	return newProgram(desc, differentiate)
}
