// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dsp

import (
	"testing"

	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/dspfit/backends/simpledsp"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	constInputYAML = "name: input\nstages:\n  - op: const\n    value: 1\n"
	truthYAML      = "name: truth\nstages:\n  - op: gain\n    gain: 0.7\n"
	targetYAML     = `
name: target
params:
  - name: gain
    init: 0.2
  - name: offset
    init: 0.5
stages:
  - op: gain
    gain: gain
  - op: offset
    offset: offset
`
)

func compile(t *testing.T, text string, differentiate bool) backends.Transform {
	t.Helper()
	tr, err := simpledsp.CompileString(text, differentiate)
	require.NoError(t, err)
	return tr
}

func TestSequenceAndParallel(t *testing.T) {
	input := compile(t, constInputYAML, false)
	truth := compile(t, truthYAML, false)
	target := compile(t, targetYAML, false)

	seq := Sequence(input, truth)
	assert.Equal(t, 0, seq.NumInputs())
	assert.Equal(t, 1, seq.NumOutputs())
	assert.Equal(t, "(input : truth)", seq.Name())

	par := Parallel(seq, Sequence(input.Clone(), target))
	assert.Equal(t, 0, par.NumInputs())
	assert.Equal(t, 2, par.NumOutputs())
	assert.Equal(t, []string{"/target/gain", "/target/offset"}, Addresses(par.Parameters()))

	r := NewRenderer(par, DefaultSampleRate, 3)
	assert.Equal(t, 2, r.NumChannels())
	block := r.Render()
	require.Len(t, block, 2)
	assert.InDeltaSlice(t, []float64{0.7, 0.7, 0.7}, block[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0.7, 0.7, 0.7}, block[1], 1e-12)

	require.NoError(t, par.SetParameter("/target/gain", 1))
	v, err := par.GetParameter("/target/gain")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	block = r.Render()
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 1.5}, block[1], 1e-12)

	require.ErrorIs(t, par.SetParameter("/target/unknown", 1), backends.ErrUnknownParameter)
	_, err = par.GetParameter("/target/unknown")
	require.ErrorIs(t, err, backends.ErrUnknownParameter)

	// Clones don't share parameter values.
	clone := par.Clone()
	require.NoError(t, clone.SetParameter("/target/gain", 2))
	v, _ = par.GetParameter("/target/gain")
	assert.Equal(t, 1.0, v)

	// Mismatched sequence.
	require.Panics(t, func() { Sequence(truth, input) })
	require.Panics(t, func() { NewRenderer(par, 0, 1) })
}

func TestComposeFitGraph(t *testing.T) {
	graph, err := ComposeFitGraph(
		compile(t, constInputYAML, false),
		compile(t, truthYAML, false),
		compile(t, targetYAML, false),
		compile(t, targetYAML, true))
	require.NoError(t, err)
	assert.Equal(t, 4, graph.NumChannels())
	assert.Equal(t, DefaultBlockSize, graph.BlockSize())
	assert.Equal(t, DefaultSampleRate, graph.SampleRate())
	assert.Equal(t, []string{"/target/gain", "/target/offset"}, Addresses(graph.Parameters()))

	require.NoError(t, graph.SetRendering(DefaultSampleRate, 2))
	block := graph.Render()
	require.Len(t, block, 4)
	assert.InDeltaSlice(t, []float64{0.7, 0.7}, block[0], 1e-12) // Ground truth.
	assert.InDeltaSlice(t, []float64{0.7, 0.7}, block[1], 1e-12) // 0.2*1 + 0.5
	assert.InDeltaSlice(t, []float64{1, 1}, block[2], 1e-12)     // d/dgain = input
	assert.InDeltaSlice(t, []float64{1, 1}, block[3], 1e-12)     // d/doffset = 1

	// Pushed values reach the adjustable and differentiated transforms only.
	require.NoError(t, graph.SetParameter("/target/gain", 0.4))
	block = graph.Render()
	assert.InDeltaSlice(t, []float64{0.9, 0.9}, block[1], 1e-12)
	require.ErrorIs(t, graph.SetParameter("/truth/gain", 0.4), backends.ErrUnknownParameter)

	// Composed graph can be driven by the loop.
	r := fit.NewRegistry()
	for _, info := range graph.Parameters() {
		require.NoError(t, r.Add(info.Address, info.Init))
	}
	_, err = fit.NewLoop(graph, r, fit.DefaultConfig())
	require.NoError(t, err)
}

func TestComposeFitGraphErrors(t *testing.T) {
	input := compile(t, constInputYAML, false)
	truth := compile(t, truthYAML, false)
	target := compile(t, targetYAML, false)

	// Differentiated transform with different parameters.
	_, err := ComposeFitGraph(input, truth, target, compile(t, truthYAML, true))
	require.ErrorIs(t, err, ErrChannelLayout)
	require.ErrorIs(t, err, fit.ErrChannelLayout)

	// Non-differentiated transform used as the differentiated one: 1 channel instead of 2.
	_, err = ComposeFitGraph(input, truth, target, compile(t, targetYAML, false))
	require.ErrorIs(t, err, ErrChannelLayout)

	// Input doesn't connect to the ground truth.
	_, err = ComposeFitGraph(truth, input, target, compile(t, targetYAML, true))
	require.Error(t, err)
}
