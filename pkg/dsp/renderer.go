// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dsp

import (
	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/exceptions"
)

const (
	// DefaultSampleRate used by the Renderer.
	DefaultSampleRate = 48000

	// DefaultBlockSize used by the Renderer: one frame per block.
	DefaultBlockSize = 1
)

// Renderer drives a transform block by block, like an audio driver would: each call to Render
// computes BlockSize frames, feeding silence (zeros) to the inputs of the transform, if any.
type Renderer struct {
	transform  backends.Transform
	sampleRate int
	blockSize  int

	inputs, outputs [][]float64
}

// NewRenderer initializes transform at the given sample rate, and returns a Renderer for it.
//
// It panics if sampleRate or blockSize are not positive.
func NewRenderer(transform backends.Transform, sampleRate, blockSize int) *Renderer {
	if sampleRate <= 0 || blockSize <= 0 {
		exceptions.Panicf("dsp.NewRenderer(%q): invalid sampleRate=%d or blockSize=%d, they must be > 0",
			transform.Name(), sampleRate, blockSize)
	}
	r := &Renderer{
		transform:  transform,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		inputs:     makeBuffers(transform.NumInputs(), blockSize),
		outputs:    makeBuffers(transform.NumOutputs(), blockSize),
	}
	transform.Init(sampleRate)
	return r
}

func makeBuffers(numChannels, numFrames int) [][]float64 {
	buffers := make([][]float64, numChannels)
	for ii := range buffers {
		buffers[ii] = make([]float64, numFrames)
	}
	return buffers
}

// SampleRate used to initialize the transform.
func (r *Renderer) SampleRate() int { return r.sampleRate }

// BlockSize is the number of frames rendered per call.
func (r *Renderer) BlockSize() int { return r.blockSize }

// NumChannels returns the number of output channels.
func (r *Renderer) NumChannels() int { return len(r.outputs) }

// Render computes the next block, and returns it as block[channel][frame].
//
// The returned buffers are reused: they are only valid until the next call.
func (r *Renderer) Render() [][]float64 {
	r.transform.Compute(r.blockSize, r.inputs, r.outputs)
	return r.outputs
}
