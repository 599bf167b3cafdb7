/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package fit

import (
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph is the composed process driven by the Loop.
//
// Each call to Render returns one block as block[channel][frame], with 2 + N channels: the ground-truth
// output, the learnable output and one partial derivative per registered parameter.
type Graph interface {
	// NumChannels returns the number of channels of every rendered block.
	NumChannels() int

	// Render the next block. Values set with SetParameter are used from the next call on.
	Render() [][]float64

	// SetParameter pushes a new parameter value to the learnable parts of the graph.
	SetParameter(address string, value float64) error
}

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop) error

// OnFrameFn is the type of OnFrame hooks. The frame is only valid during the call.
type OnFrameFn func(loop *Loop, frame *Frame) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop) error

// Frame holds the values of one processed frame, as seen by OnFrame hooks.
type Frame struct {
	// Iteration is the number of the block being processed, starting at 1.
	Iteration int

	// Index of the frame within the block.
	Index int

	// Step counts the frames processed since the start of the run, starting at 0.
	Step int

	// GroundTruth and Learnable are the outputs of the ground-truth and adjustable transforms.
	GroundTruth, Learnable float64

	// Delta is Learnable - GroundTruth.
	Delta float64

	// Loss of the frame.
	Loss float64

	// Derivatives of the learnable output with respect to each parameter, in registry order.
	// The slice is reused across frames.
	Derivatives []float64

	// Updated is true if the loss was above the threshold, and the parameters were updated.
	Updated bool
}

// Loop runs the online gradient descent, processing every frame of every rendered block,
// and calling the appropriate hooks.
//
// By itself it doesn't do much besides the parameter updates, but one can attach functionality to it,
// like reporting, progress bars and plotting tools.
//
// The public attributes are meant for reading only, don't change them -- behavior
// can be undefined.
type Loop struct {
	// Graph rendering the blocks.
	Graph Graph

	// Registry of the parameters being fitted.
	Registry *Registry

	// Config of the loop.
	Config Config

	// State of the loop: StateRunning until Run returns.
	State State

	// Iteration is the number of the block being processed, starting at 1.
	Iteration int

	// StableFrames is the number of consecutive frames with loss under Config.Epsilon.
	StableFrames int

	// Loss of the last processed frame.
	Loss float64

	// FramesProcessed since the start of the run.
	FramesProcessed int

	// RenderDurations collected for each rendered block.
	RenderDurations []time.Duration

	// Registered hooks.
	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onFrame *priorityHooks[*hookWithName[OnFrameFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]

	started bool
	frame   Frame
}

// NewLoop creates a new fitting loop.
//
// It fails with ErrChannelLayout if the graph doesn't have exactly 2 + registry.Len() channels.
func NewLoop(graph Graph, registry *Registry, config Config) (*Loop, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if graph.NumChannels() != 2+registry.Len() {
		return nil, errors.Wrapf(ErrChannelLayout, "graph has %d channels, but %d parameters are registered (%d channels expected)",
			graph.NumChannels(), registry.Len(), 2+registry.Len())
	}
	loop := &Loop{
		Graph:    graph,
		Registry: registry,
		Config:   config,
		State:    StateRunning,
		onStart:  newPriorityHooks[*hookWithName[OnStartFn]](),
		onFrame:  newPriorityHooks[*hookWithName[OnFrameFn]](),
		onEnd:    newPriorityHooks[*hookWithName[OnEndFn]](),
	}
	loop.frame.Derivatives = make([]float64, registry.Len())
	return loop, nil
}

// Run processes frames until convergence (StateConverged) or until Config.Iterations blocks
// have been processed (StateExhausted), and returns the final state.
//
// Panics raised by the graph or by hooks are converted to errors. A Loop can only be run once.
func (loop *Loop) Run() (state State, err error) {
	if loop.started {
		return loop.State, errors.Errorf("fit.Loop.Run() can only be called once (state=%s)", loop.State)
	}
	loop.started = true
	var runErr error
	err = exceptions.TryCatch[error](func() {
		runErr = loop.run()
	})
	if err == nil {
		err = runErr
	}
	return loop.State, err
}

func (loop *Loop) run() error {
	if err := loop.start(); err != nil {
		return err
	}
	numChannels := 2 + loop.Registry.Len()
	loop.RenderDurations = make([]time.Duration, 0, loop.Config.Iterations)
	for loop.Iteration = 1; loop.Iteration <= loop.Config.Iterations; loop.Iteration++ {
		renderStart := time.Now()
		block := loop.Graph.Render()
		loop.RenderDurations = append(loop.RenderDurations, time.Since(renderStart))
		if len(block) != numChannels {
			return errors.Wrapf(ErrChannelLayout, "iteration %d: rendered block has %d channels, expected %d",
				loop.Iteration, len(block), numChannels)
		}
		for channel := range block {
			if len(block[channel]) != loop.Config.BlockSize {
				return errors.Errorf("iteration %d: rendered channel %d has %d frames, expected block size %d",
					loop.Iteration, channel, len(block[channel]), loop.Config.BlockSize)
			}
		}
		klog.V(2).Infof("fit: rendered block %d in %s", loop.Iteration, loop.RenderDurations[len(loop.RenderDurations)-1])

		for idx := range loop.Config.BlockSize {
			converged, err := loop.step(block, idx)
			if err != nil {
				return errors.WithMessagef(err, "fit.Loop.Run(): failed at iteration %d, frame %d", loop.Iteration, idx)
			}
			if converged {
				loop.State = StateConverged
				klog.V(1).Infof("fit: converged at iteration %d, frame %d, after %d frames",
					loop.Iteration, idx, loop.FramesProcessed)
				return loop.end()
			}
		}
	}
	loop.Iteration = loop.Config.Iterations
	loop.State = StateExhausted
	klog.V(1).Infof("fit: exhausted %d iterations (%d frames) without converging", loop.Config.Iterations, loop.FramesProcessed)
	return loop.end()
}

// step processes frame idx of the block, and returns whether the loop converged.
func (loop *Loop) step(block [][]float64, idx int) (converged bool, err error) {
	cfg := &loop.Config
	frame := &loop.frame
	frame.Iteration = loop.Iteration
	frame.Index = idx
	frame.Step = loop.FramesProcessed
	frame.GroundTruth = block[0][idx]
	frame.Learnable = block[1][idx]
	frame.Delta = frame.Learnable - frame.GroundTruth
	frame.Loss = cfg.LossFunction.Loss(frame.Delta)
	frame.Updated = false
	for k := range frame.Derivatives {
		frame.Derivatives[k] = block[2+k][idx]
	}
	if math.IsNaN(frame.Loss) {
		return false, errors.Errorf("loss is NaN (ground truth=%g, learnable=%g), fitting interrupted",
			frame.GroundTruth, frame.Learnable)
	}
	if math.IsInf(frame.Loss, 0) {
		return false, errors.Errorf("loss is infinity (ground truth=%g, learnable=%g), fitting interrupted",
			frame.GroundTruth, frame.Learnable)
	}

	if frame.Loss > cfg.Epsilon {
		loop.StableFrames = 0
		loop.Registry.ExtractGradients(cfg.LossFunction, frame.Delta, frame.Derivatives)
		if err = StochasticGradientDescent(loop.Registry, cfg.LearningRate, loop.Graph.SetParameter); err != nil {
			return false, err
		}
		frame.Updated = true
	} else {
		loop.StableFrames++
	}
	loop.Loss = frame.Loss
	loop.FramesProcessed++

	// Call "OnFrame" hooks.
	for hook := range loop.onFrame.All() {
		if err = hook.fn(loop, frame); err != nil {
			return false, errors.WithMessagef(err, "fit.Loop.OnFrame(hook %q)", hook.name)
		}
	}
	return loop.StableFrames > cfg.Patience, nil
}

// start of loop, calls the OnStart hooks.
func (loop *Loop) start() error {
	for hook := range loop.onStart.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "fit.Loop.OnStart(hook %q)", hook.name)
		}
	}
	return nil
}

// end of loop, calls the OnEnd hooks.
func (loop *Loop) end() error {
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop); err != nil {
			return errors.WithMessagef(err, "fit.Loop.OnEnd(hook %q)", hook.name)
		}
	}
	return nil
}

// MedianRenderDuration returns the median duration of rendering a block. It returns 1 millisecond
// if no block was rendered (to avoid potential division by 0).
func (loop *Loop) MedianRenderDuration() time.Duration {
	if len(loop.RenderDurations) == 0 {
		// Return something different from 0 to avoid division by 0.
		return time.Millisecond
	}
	times := slices.Clone(loop.RenderDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{
		name: name,
		fn:   fn,
	})
}

// OnFrame adds a hook with given priority and name (for error reporting) to each processed frame.
// The function `fn` is called after the loss is evaluated and the parameters (possibly) updated.
func (loop *Loop) OnFrame(name string, priority Priority, fn OnFrameFn) {
	loop.onFrame.Add(priority, &hookWithName[OnFrameFn]{
		name: name,
		fn:   fn,
	})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop,
// after it converged or exhausted its iterations.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{
		name: name,
		fn:   fn,
	})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
