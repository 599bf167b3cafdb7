// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simpledsp

import (
	"math"
	"math/rand/v2"
)

// dual is a sample value along with its tangent: the partial derivatives of the value with
// respect to each parameter of the program.
type dual struct {
	v float64
	d []float64
}

func newDual(numParams int) dual {
	return dual{d: make([]float64, numParams)}
}

func (x *dual) copyFrom(y *dual) {
	x.v = y.v
	copy(x.d, y.d)
}

func (x *dual) reset() {
	x.v = 0
	clear(x.d)
}

// frameInfo is the information about the frame being processed, shared by all stages.
type frameInfo struct {
	index      int64
	sampleRate float64
}

// stage is one step of the chain. Implementations must not alias y with x or args.
type stage interface {
	// process one frame: reads x (ignored by sources) and args, writes y.
	process(frame frameInfo, x, y *dual, args []dual)

	// reset internal state.
	reset()

	// clone returns a stage with the same configuration and fresh state.
	clone() stage
}

// argSpec describes one argument of an op.
type argSpec struct {
	name        string
	def         float64
	required    bool
	literalOnly bool
}

// opSpec describes an op: its arguments (in the order passed to stage.process) and how to build it.
type opSpec struct {
	source bool
	args   []argSpec
	build  func(numParams int, literals []float64) stage
}

var ops = map[string]opSpec{
	"sine": {
		source: true,
		args: []argSpec{
			{name: "frequency", required: true},
			{name: "amplitude", def: 1},
			{name: "phase"},
		},
		build: func(int, []float64) stage { return sineStage{} },
	},
	"const": {
		source: true,
		args:   []argSpec{{name: "value", required: true}},
		build:  func(int, []float64) stage { return constStage{} },
	},
	"noise": {
		source: true,
		args: []argSpec{
			{name: "amplitude", def: 1},
			{name: "seed", literalOnly: true},
		},
		build: func(_ int, literals []float64) stage {
			s := &noiseStage{seed: uint64(literals[1])}
			s.reset()
			return s
		},
	},
	"gain": {
		args:  []argSpec{{name: "gain", required: true}},
		build: func(int, []float64) stage { return gainStage{} },
	},
	"offset": {
		args:  []argSpec{{name: "offset", required: true}},
		build: func(int, []float64) stage { return offsetStage{} },
	},
	"onepole": {
		args: []argSpec{{name: "pole", required: true}},
		build: func(numParams int, _ []float64) stage {
			return &onePoleStage{prev: newDual(numParams)}
		},
	},
	"tanh": {
		args:  []argSpec{{name: "drive", def: 1}},
		build: func(int, []float64) stage { return tanhStage{} },
	},
}

// sineStage: y = amplitude * sin(2π * frequency * t + phase), with t = frame / sampleRate.
type sineStage struct{}

func (sineStage) process(frame frameInfo, _, y *dual, args []dual) {
	freq, amp, phase := &args[0], &args[1], &args[2]
	t := float64(frame.index) / frame.sampleRate
	s, c := math.Sincos(2*math.Pi*freq.v*t + phase.v)
	y.v = amp.v * s
	for k := range y.d {
		y.d[k] = s*amp.d[k] + amp.v*c*(2*math.Pi*t*freq.d[k]+phase.d[k])
	}
}
func (sineStage) reset()         {}
func (s sineStage) clone() stage { return s }

// constStage: y = value.
type constStage struct{}

func (constStage) process(_ frameInfo, _, y *dual, args []dual) {
	y.copyFrom(&args[0])
}
func (constStage) reset()         {}
func (s constStage) clone() stage { return s }

// noiseStage: y = amplitude * u, with u uniform in [-1, 1), generated from a seeded PCG source.
type noiseStage struct {
	seed uint64
	rng  *rand.Rand
}

func (s *noiseStage) process(_ frameInfo, _, y *dual, args []dual) {
	amp := &args[0]
	u := 2*s.rng.Float64() - 1
	y.v = amp.v * u
	for k := range y.d {
		y.d[k] = u * amp.d[k]
	}
}
func (s *noiseStage) reset() { s.rng = rand.New(rand.NewPCG(s.seed, s.seed)) }
func (s *noiseStage) clone() stage {
	c := &noiseStage{seed: s.seed}
	c.reset()
	return c
}

// gainStage: y = gain * x.
type gainStage struct{}

func (gainStage) process(_ frameInfo, x, y *dual, args []dual) {
	g := &args[0]
	y.v = g.v * x.v
	for k := range y.d {
		y.d[k] = g.v*x.d[k] + x.v*g.d[k]
	}
}
func (gainStage) reset()         {}
func (s gainStage) clone() stage { return s }

// offsetStage: y = x + offset.
type offsetStage struct{}

func (offsetStage) process(_ frameInfo, x, y *dual, args []dual) {
	b := &args[0]
	y.v = x.v + b.v
	for k := range y.d {
		y.d[k] = x.d[k] + b.d[k]
	}
}
func (offsetStage) reset()         {}
func (s offsetStage) clone() stage { return s }

// onePoleStage is a one-pole lowpass: y[n] = (1-pole) * x[n] + pole * y[n-1].
type onePoleStage struct {
	prev dual
}

func (s *onePoleStage) process(_ frameInfo, x, y *dual, args []dual) {
	a := &args[0]
	p := &s.prev
	y.v = (1-a.v)*x.v + a.v*p.v
	for k := range y.d {
		y.d[k] = (1-a.v)*x.d[k] - x.v*a.d[k] + a.v*p.d[k] + p.v*a.d[k]
	}
	p.copyFrom(y)
}
func (s *onePoleStage) reset() { s.prev.reset() }
func (s *onePoleStage) clone() stage {
	return &onePoleStage{prev: newDual(len(s.prev.d))}
}

// tanhStage is a soft clipper: y = tanh(drive * x).
type tanhStage struct{}

func (tanhStage) process(_ frameInfo, x, y *dual, args []dual) {
	drive := &args[0]
	y.v = math.Tanh(drive.v * x.v)
	slope := 1 - y.v*y.v
	for k := range y.d {
		y.d[k] = slope * (drive.v*x.d[k] + x.v*drive.d[k])
	}
}
func (tanhStage) reset()         {}
func (s tanhStage) clone() stage { return s }
