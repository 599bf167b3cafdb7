// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fit implements the online gradient descent that fits the parameters of an adjustable
// signal-processing transform so that its output matches a ground-truth transform.
//
// The loop consumes a Graph: a composed process that renders blocks of frames where, for each frame,
// channel 0 is the ground-truth output, channel 1 the learnable output, and channels [2, 2+N) hold
// the partial derivatives of the learnable output with respect to the N parameters in the Registry,
// in Registry order. See package pkg/dsp for how such a graph is composed.
//
// For every frame the Loop evaluates the loss; if it is above Config.Epsilon it extracts the gradients
// from the derivative channels, takes a gradient descent step on every parameter and pushes the new
// values back into the graph. Updated values only take effect in the next rendered block. The loop
// stops with StateConverged once more than Config.Patience consecutive frames are under the threshold,
// or with StateExhausted once Config.Iterations blocks have been processed.
//
// Reporting and other tools are attached to the Loop as hooks, see Loop.OnStart, Loop.OnFrame and
// Loop.OnEnd, and packages pkg/fit/report and ui/commandline.
package fit
