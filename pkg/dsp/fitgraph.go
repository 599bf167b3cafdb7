// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dsp

import (
	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrChannelLayout is the same error as fit.ErrChannelLayout.
var ErrChannelLayout = fit.ErrChannelLayout

// FitGraph is the composed graph of a fitting session: its outputs are the ground-truth output,
// the learnable output and one partial derivative per parameter of the adjustable transform.
//
// It implements fit.Graph. Parameter updates are pushed only to the adjustable and differentiated
// transforms, never to the ground truth.
type FitGraph struct {
	transform                               backends.Transform
	groundTruth, adjustable, differentiated backends.Transform
	params                                  []backends.ParameterInfo
	renderer                                *Renderer
}

// Compile-time check that FitGraph implements fit.Graph.
var _ fit.Graph = (*FitGraph)(nil)

// ComposeFitGraph composes the graph:
//
//	Parallel(Sequence(input, groundTruth), Parallel(Sequence(input, adjustable), Sequence(input, differentiated)))
//
// where each branch gets its own clone of the input transform.
//
// The differentiated transform must have the same parameters as the adjustable one, in the same order,
// and the composed graph must have 2 + N outputs, where N is the number of parameters. Otherwise,
// it returns an error wrapping ErrChannelLayout.
//
// The graph is initialized to render DefaultBlockSize frames per block at DefaultSampleRate, see SetRendering.
func ComposeFitGraph(input, groundTruth, adjustable, differentiated backends.Transform) (graph *FitGraph, err error) {
	params := adjustable.Parameters()
	if !sameAddresses(params, differentiated.Parameters()) {
		return nil, errors.Wrapf(ErrChannelLayout, "differentiated transform %q parameters %q don't match adjustable transform %q parameters %q",
			differentiated.Name(), Addresses(differentiated.Parameters()), adjustable.Name(), Addresses(params))
	}
	err = exceptions.TryCatch[error](func() {
		graph = &FitGraph{
			groundTruth:    groundTruth,
			adjustable:     adjustable,
			differentiated: differentiated,
			params:         params,
		}
		graph.transform = Parallel(
			Sequence(input.Clone(), groundTruth),
			Parallel(
				Sequence(input.Clone(), adjustable),
				Sequence(input.Clone(), differentiated)))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "dsp.ComposeFitGraph()")
	}
	want := 2 + len(params)
	if graph.transform.NumOutputs() != want {
		return nil, errors.Wrapf(ErrChannelLayout,
			"composed graph has %d outputs (ground truth %d, adjustable %d, differentiated %d), expected 2+%d=%d",
			graph.transform.NumOutputs(), groundTruth.NumOutputs(), adjustable.NumOutputs(), differentiated.NumOutputs(),
			len(params), want)
	}
	klog.V(1).Infof("dsp: composed graph %s with %d channels", graph.transform.Name(), want)
	if err = graph.SetRendering(DefaultSampleRate, DefaultBlockSize); err != nil {
		return nil, err
	}
	return graph, nil
}

// SetRendering (re-)initializes the graph to render blockSize frames per block at the given sample rate.
// It resets the state of all transforms.
func (g *FitGraph) SetRendering(sampleRate, blockSize int) error {
	return exceptions.TryCatch[error](func() {
		g.renderer = NewRenderer(g.transform, sampleRate, blockSize)
	})
}

// Parameters returns the learnable parameters, in the order of the derivative channels.
func (g *FitGraph) Parameters() []backends.ParameterInfo { return g.params }

// BlockSize returns the number of frames rendered per block.
func (g *FitGraph) BlockSize() int { return g.renderer.BlockSize() }

// SampleRate the graph is rendered at.
func (g *FitGraph) SampleRate() int { return g.renderer.SampleRate() }

// NumChannels implements fit.Graph.
func (g *FitGraph) NumChannels() int { return g.transform.NumOutputs() }

// Render implements fit.Graph.
func (g *FitGraph) Render() [][]float64 { return g.renderer.Render() }

// SetParameter implements fit.Graph: it sets the parameter on the adjustable and the differentiated transforms.
func (g *FitGraph) SetParameter(address string, value float64) error {
	if err := g.adjustable.SetParameter(address, value); err != nil {
		return err
	}
	return g.differentiated.SetParameter(address, value)
}
