// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package session wires a fitting session: it compiles the input, ground-truth and differentiable
// descriptions with a backend, composes the fitting graph, registers the learnable parameters and
// creates the fit.Loop that drives them.
package session

import (
	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/dspfit/pkg/dsp"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/dspfit/pkg/support/fsutil"
	"github.com/gomlx/dspfit/pkg/support/params"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Paths of the descriptions used by a session.
type Paths struct {
	// Input is the description of the input (excitation) signal, fed to every branch of the graph.
	Input string

	// GroundTruth is the description of the process whose output is the target.
	GroundTruth string

	// Differentiable is the description of the adjustable process, whose parameters are learned.
	// It is compiled twice: as is, and differentiated.
	Differentiable string
}

// Session holds everything needed to run a fit.
type Session struct {
	Backend backends.Backend
	Paths   Paths
	Config  fit.Config

	// Input, GroundTruth, Adjustable and Differentiated are the compiled transforms.
	Input, GroundTruth, Adjustable, Differentiated backends.Transform

	Graph    *dsp.FitGraph
	Registry *fit.Registry
	Loop     *fit.Loop
}

// New compiles the descriptions in paths with backend, and creates a session configured by the
// hyperparameters in p (see fit.DefaultParams). If p is nil, the defaults are used.
//
// The learnable parameters are registered in the order the adjustable transform lists them,
// with their initial values.
func New(backend backends.Backend, paths Paths, p *params.Params) (s *Session, err error) {
	if p == nil {
		p = fit.DefaultParams()
	}
	s = &Session{Backend: backend}
	s.Config, err = fit.ConfigFromParams(p)
	if err != nil {
		return nil, err
	}
	for _, path := range []*string{&paths.Input, &paths.GroundTruth, &paths.Differentiable} {
		if *path, err = fsutil.ResolveFile(*path); err != nil {
			return nil, err
		}
	}
	s.Paths = paths

	if s.Input, err = backend.Compile(paths.Input); err != nil {
		return nil, errors.WithMessagef(err, "compiling input %q", paths.Input)
	}
	if s.GroundTruth, err = backend.Compile(paths.GroundTruth); err != nil {
		return nil, errors.WithMessagef(err, "compiling ground truth %q", paths.GroundTruth)
	}
	if s.Adjustable, err = backend.Compile(paths.Differentiable); err != nil {
		return nil, errors.WithMessagef(err, "compiling adjustable %q", paths.Differentiable)
	}
	if s.Differentiated, err = backend.CompileDifferentiated(paths.Differentiable); err != nil {
		return nil, errors.WithMessagef(err, "compiling differentiated %q", paths.Differentiable)
	}
	klog.V(1).Infof("session: backend %q compiled input=%s, ground truth=%s, adjustable=%s, differentiated=%s",
		backend.Name(), s.Input.Name(), s.GroundTruth.Name(), s.Adjustable.Name(), s.Differentiated.Name())

	if s.Graph, err = dsp.ComposeFitGraph(s.Input, s.GroundTruth, s.Adjustable, s.Differentiated); err != nil {
		return nil, err
	}
	if err = s.Graph.SetRendering(s.Config.SampleRate, s.Config.BlockSize); err != nil {
		return nil, err
	}

	s.Registry = fit.NewRegistry()
	for _, info := range s.Graph.Parameters() {
		value, err := s.Adjustable.GetParameter(info.Address)
		if err != nil {
			return nil, err
		}
		if err = s.Registry.Add(info.Address, value); err != nil {
			return nil, errors.WithMessage(err, "registering learnable parameters")
		}
		klog.V(1).Infof("session: learnable parameter %s=%g", info.Address, value)
	}

	if s.Loop, err = fit.NewLoop(s.Graph, s.Registry, s.Config); err != nil {
		return nil, err
	}
	return s, nil
}

// Run the fitting loop, and returns its final state.
func (s *Session) Run() (fit.State, error) {
	return s.Loop.Run()
}

// Values returns the current value of the learnable parameters, indexed by address.
func (s *Session) Values() map[string]float64 {
	values := make(map[string]float64, s.Registry.Len())
	for _, p := range s.Registry.All() {
		values[p.Address] = p.Value
	}
	return values
}
