// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gainGraph renders a ground truth of target*x and a learnable output of gain*x, with x = 1,
// and the derivative of the learnable output with respect to the gain (x).
//
// It records the learnable values of each rendered block and the parameter pushes.
type gainGraph struct {
	target, gain float64
	blockSize    int
	blocks       [][]float64
	pushes       []float64
}

func (g *gainGraph) NumChannels() int { return 3 }

func (g *gainGraph) Render() [][]float64 {
	block := [][]float64{make([]float64, g.blockSize), make([]float64, g.blockSize), make([]float64, g.blockSize)}
	for ii := range g.blockSize {
		block[0][ii] = g.target
		block[1][ii] = g.gain
		block[2][ii] = 1
	}
	g.blocks = append(g.blocks, block[1])
	return block
}

func (g *gainGraph) SetParameter(address string, value float64) error {
	if address != "/target/gain" {
		return errors.Errorf("unknown parameter %q", address)
	}
	g.gain = value
	g.pushes = append(g.pushes, value)
	return nil
}

// scriptedGraph returns the given blocks in order, repeating the last one.
type scriptedGraph struct {
	numChannels int
	blocks      [][][]float64
	renders     int
	pushes      map[string]float64
}

func (g *scriptedGraph) NumChannels() int { return g.numChannels }

func (g *scriptedGraph) Render() [][]float64 {
	idx := min(g.renders, len(g.blocks)-1)
	g.renders++
	return g.blocks[idx]
}

func (g *scriptedGraph) SetParameter(address string, value float64) error {
	if g.pushes == nil {
		g.pushes = make(map[string]float64)
	}
	g.pushes[address] = value
	return nil
}

func newGainLoop(t *testing.T, graph *gainGraph, config Config) *Loop {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Add("/target/gain", graph.gain))
	config.BlockSize = graph.blockSize
	loop, err := NewLoop(graph, r, config)
	require.NoError(t, err)
	return loop
}

func TestLoopScenarioL2(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("/target/p", 0.3))
	graph := &scriptedGraph{numChannels: 3, blocks: [][][]float64{{{0.5}, {1.0}, {1.0}}}}
	config := DefaultConfig()
	config.Iterations = 1
	loop, err := NewLoop(graph, r, config)
	require.NoError(t, err)

	var frames []Frame
	loop.OnFrame("record", 0, func(loop *Loop, frame *Frame) error {
		frames = append(frames, *frame)
		return nil
	})
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, state)
	require.Len(t, frames, 1)
	assert.Equal(t, 0.5, frames[0].Delta)
	assert.Equal(t, 0.25, frames[0].Loss)
	assert.True(t, frames[0].Updated)
	assert.Equal(t, 1, frames[0].Iteration)
	assert.Equal(t, 1.0, r.At(0).Gradient)
	assert.InDelta(t, 0.2, r.At(0).Value, 1e-12)
	assert.InDelta(t, 0.2, graph.pushes["/target/p"], 1e-12)
}

func TestLoopScenarioL1(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("/target/p", 0.3))
	graph := &scriptedGraph{numChannels: 3, blocks: [][][]float64{{{0.5}, {1.0}, {1.0}}}}
	config := DefaultConfig()
	config.LossFunction = LossL1
	config.Iterations = 1
	loop, err := NewLoop(graph, r, config)
	require.NoError(t, err)
	_, err = loop.Run()
	require.NoError(t, err)
	assert.Equal(t, 0.5, loop.Loss)
	assert.Equal(t, 1.0, r.At(0).Gradient)
	assert.InDelta(t, 0.2, r.At(0).Value, 1e-12)
}

func TestLoopZeroLearningRate(t *testing.T) {
	graph := &gainGraph{target: 0.7, gain: 0.2, blockSize: 4}
	config := DefaultConfig()
	config.LearningRate = 0
	config.Iterations = 50
	loop := newGainLoop(t, graph, config)
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, state)
	assert.Equal(t, 0.2, loop.Registry.At(0).Value)
	assert.Equal(t, 200, loop.FramesProcessed)
	assert.Equal(t, 50, loop.Iteration)
	for _, value := range graph.pushes {
		assert.Equal(t, 0.2, value)
	}
}

func TestLoopConvergesAfterPatience(t *testing.T) {
	// Ground truth and learnable outputs are equal from the start.
	graph := &gainGraph{target: 0.5, gain: 0.5, blockSize: 8}
	config := DefaultConfig()
	config.Iterations = 100
	loop := newGainLoop(t, graph, config)
	var numFrames, numEnd int
	loop.OnFrame("count", 0, func(loop *Loop, frame *Frame) error {
		numFrames++
		assert.False(t, frame.Updated)
		return nil
	})
	loop.OnEnd("end", 0, func(loop *Loop) error {
		numEnd++
		assert.Equal(t, StateConverged, loop.State)
		return nil
	})
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, StateConverged, state)
	assert.Equal(t, DefaultPatience+1, loop.FramesProcessed)
	assert.Equal(t, DefaultPatience+1, numFrames)
	assert.Equal(t, 1, numEnd)
	// 21 frames with blocks of 8: it stops in the middle of the third block.
	assert.Len(t, graph.blocks, 3)
	assert.Equal(t, 3, loop.Iteration)
	assert.Empty(t, graph.pushes)
	assert.Len(t, loop.RenderDurations, 3)
	assert.GreaterOrEqual(t, loop.MedianRenderDuration(), time.Duration(0))
	assert.Equal(t, time.Millisecond, (&Loop{}).MedianRenderDuration())
}

func TestLoopFits(t *testing.T) {
	graph := &gainGraph{target: 0.7, gain: 0.2, blockSize: 1}
	config := DefaultConfig()
	loop := newGainLoop(t, graph, config)
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, StateConverged, state)
	assert.InDelta(t, 0.7, loop.Registry.At(0).Value, 1e-3)
	assert.InDelta(t, 0.7, graph.gain, 1e-3)
	assert.Less(t, loop.FramesProcessed, config.MaxFrames())
}

func TestLoopBlockStaleness(t *testing.T) {
	graph := &gainGraph{target: 0.7, gain: 0.2, blockSize: 4}
	config := DefaultConfig()
	config.Iterations = 3
	loop := newGainLoop(t, graph, config)
	_, err := loop.Run()
	require.NoError(t, err)

	// Parameters are updated (and pushed) on every frame...
	require.Len(t, graph.pushes, 12)
	assert.NotEqual(t, graph.pushes[0], graph.pushes[1])
	// ... but the rendered output only changes from block to block.
	require.Len(t, graph.blocks, 3)
	for _, block := range graph.blocks {
		for _, value := range block {
			assert.Equal(t, block[0], value)
		}
	}
	assert.Equal(t, 0.2, graph.blocks[0][0])
	assert.Equal(t, graph.pushes[3], graph.blocks[1][0])
	assert.Equal(t, graph.pushes[7], graph.blocks[2][0])
}

func TestLoopStaleGradients(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("/target/p", 0.3))
	graph := &scriptedGraph{numChannels: 3, blocks: [][][]float64{
		// Frame 0: above threshold, gradient = 2*1*0.5 = 1.
		// Frame 1: exactly on target: loss 0, gradient left untouched (with derivative 9 it would change).
		{{0.5, 0.5}, {1.0, 0.5}, {1.0, 9}},
	}}
	config := DefaultConfig()
	config.Iterations = 1
	config.BlockSize = 2
	loop, err := NewLoop(graph, r, config)
	require.NoError(t, err)
	var gradients []float64
	var stable []int
	loop.OnFrame("record", 0, func(loop *Loop, frame *Frame) error {
		gradients = append(gradients, loop.Registry.At(0).Gradient)
		stable = append(stable, loop.StableFrames)
		return nil
	})
	_, err = loop.Run()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, gradients)
	assert.Equal(t, []int{0, 1}, stable)
	assert.InDelta(t, 0.2, r.At(0).Value, 1e-12)
}

func TestLoopErrors(t *testing.T) {
	// Channel layout mismatch.
	r := NewRegistry()
	require.NoError(t, r.Add("/target/a", 0))
	require.NoError(t, r.Add("/target/b", 0))
	_, err := NewLoop(&scriptedGraph{numChannels: 3}, r, DefaultConfig())
	require.ErrorIs(t, err, ErrChannelLayout)

	// Invalid configuration.
	config := DefaultConfig()
	config.BlockSize = 0
	_, err = NewLoop(&scriptedGraph{numChannels: 4}, r, config)
	require.Error(t, err)

	// NaN loss.
	r = NewRegistry()
	graph := &scriptedGraph{numChannels: 2, blocks: [][][]float64{{{0}, {math.NaN()}}}}
	loop, err := NewLoop(graph, r, DefaultConfig())
	require.NoError(t, err)
	_, err = loop.Run()
	require.Error(t, err)

	// Rendered block with the wrong number of frames.
	graph = &scriptedGraph{numChannels: 2, blocks: [][][]float64{{{0, 1}, {0, 1}}}}
	loop, err = NewLoop(graph, r, DefaultConfig())
	require.NoError(t, err)
	_, err = loop.Run()
	require.Error(t, err)

	// Hooks errors carry the hook name, and the loop can't be run twice.
	graph = &scriptedGraph{numChannels: 2, blocks: [][][]float64{{{0}, {1}}}}
	loop, err = NewLoop(graph, r, DefaultConfig())
	require.NoError(t, err)
	loop.OnFrame("failing_hook", 0, func(loop *Loop, frame *Frame) error {
		return errors.New("boom")
	})
	_, err = loop.Run()
	require.ErrorContains(t, err, "failing_hook")
	_, err = loop.Run()
	require.Error(t, err)
}

func TestLoopHooksPriority(t *testing.T) {
	graph := &gainGraph{target: 0.5, gain: 0.5, blockSize: 1}
	config := DefaultConfig()
	config.Iterations = 1
	loop := newGainLoop(t, graph, config)
	var order []string
	loop.OnStart("second", 1, func(loop *Loop) error { order = append(order, "start:second"); return nil })
	loop.OnStart("first", -1, func(loop *Loop) error { order = append(order, "start:first"); return nil })
	loop.OnFrame("frame", 0, func(loop *Loop, frame *Frame) error { order = append(order, "frame"); return nil })
	loop.OnEnd("end", 0, func(loop *Loop) error { order = append(order, "end"); return nil })
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, state)
	assert.Equal(t, []string{"start:first", "start:second", "frame", "end"}, order)
}

func TestLoopPanicsBecomeErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("/target/p", 0))
	graph := &scriptedGraph{numChannels: 3, blocks: [][][]float64{{{0}, {1}, {1}}}}
	loop, err := NewLoop(graph, r, DefaultConfig())
	require.NoError(t, err)
	loop.OnFrame("panicking", 0, func(loop *Loop, frame *Frame) error {
		loop.Registry.At(5) // Out of range: panics.
		return nil
	})
	_, err = loop.Run()
	require.Error(t, err)
}

func TestLoopCallbacks(t *testing.T) {
	graph := &gainGraph{target: 0.7, gain: 0.2, blockSize: 10}
	config := DefaultConfig()
	config.LearningRate = 0
	config.Iterations = 10
	loop := newGainLoop(t, graph, config)
	var everyN []int
	EveryNFrames(loop, 7, "every7", 0, func(loop *Loop, frame *Frame) error {
		everyN = append(everyN, frame.Step)
		return nil
	})
	var nTimes []int
	NTimesDuringLoop(loop, 10, "ntimes", 0, func(loop *Loop, frame *Frame) error {
		nTimes = append(nTimes, frame.Step)
		return nil
	})
	_, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, []int{6, 13, 20, 27, 34, 41, 48, 55, 62, 69, 76, 83, 90, 97}, everyN)
	assert.LessOrEqual(t, len(nTimes), 11)
	assert.Equal(t, 99, nTimes[len(nTimes)-1])
}
