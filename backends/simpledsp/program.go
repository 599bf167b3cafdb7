// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simpledsp

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DefaultSampleRate used until Init is called.
const DefaultSampleRate = 48000

// argRef is a stage argument: a reference to the parameter index param, or a literal if param < 0.
type argRef struct {
	param   int
	literal float64
}

// program implements backends.Transform for a chain of stages.
type program struct {
	name          string
	differentiate bool
	params        []backends.ParameterInfo
	paramIndex    map[string]int
	values        []float64
	numInputs     int

	stages   []stage
	args     [][]argRef
	argDuals [][]dual

	// input holds the current input sample, with zero tangent; outputs holds the output of each stage.
	input   dual
	outputs []dual

	sampleRate int
	frame      int64
}

// Compile-time check that program implements backends.Transform.
var _ backends.Transform = (*program)(nil)

func newProgram(desc *description, differentiate bool) (*program, error) {
	p := &program{
		name:          desc.Name,
		differentiate: differentiate,
		paramIndex:    make(map[string]int, len(desc.Params)),
		sampleRate:    DefaultSampleRate,
		numInputs:     1,
	}
	if differentiate {
		p.name = desc.Name + "'"
	}
	for ii, pDesc := range desc.Params {
		info := backends.ParameterInfo{
			Address: "/" + desc.Name + "/" + pDesc.Name,
			Init:    pDesc.Init,
			Min:     pDesc.Min,
			Max:     pDesc.Max,
		}
		p.params = append(p.params, info)
		p.values = append(p.values, pDesc.Init)
		p.paramIndex[pDesc.Name] = ii
	}
	numParams := len(p.params)

	for stageIdx, sDesc := range desc.Stages {
		spec, found := ops[sDesc.Op]
		if !found {
			return nil, errors.Errorf("stages[%d]: unknown op %q, valid ops are %q",
				stageIdx, sDesc.Op, slices.Sorted(maps.Keys(ops)))
		}
		if spec.source {
			if stageIdx != 0 {
				return nil, errors.Errorf("stages[%d]: source op %q can only be used as the first stage", stageIdx, sDesc.Op)
			}
			p.numInputs = 0
		}
		refs, literals, err := resolveStageArgs(spec, &sDesc, p.paramIndex)
		if err != nil {
			return nil, errors.WithMessagef(err, "stages[%d] (op %q)", stageIdx, sDesc.Op)
		}
		p.stages = append(p.stages, spec.build(numParams, literals))
		p.args = append(p.args, refs)
	}

	p.allocate()
	return p, nil
}

func resolveStageArgs(spec opSpec, sDesc *stageDesc, paramIndex map[string]int) (refs []argRef, literals []float64, err error) {
	for name := range sDesc.Args {
		if !slices.ContainsFunc(spec.args, func(a argSpec) bool { return a.name == name }) {
			return nil, nil, errors.Errorf("unknown argument %q", name)
		}
	}
	refs = make([]argRef, len(spec.args))
	literals = make([]float64, len(spec.args))
	for ii, aSpec := range spec.args {
		node, found := sDesc.Args[aSpec.name]
		if !found {
			if aSpec.required {
				return nil, nil, errors.Errorf("missing required argument %q", aSpec.name)
			}
			refs[ii] = argRef{param: -1, literal: aSpec.def}
			literals[ii] = aSpec.def
			continue
		}
		refs[ii], err = resolveArg(&node, paramIndex)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "argument %q", aSpec.name)
		}
		if aSpec.literalOnly && refs[ii].param >= 0 {
			return nil, nil, errors.Errorf("argument %q must be a literal number", aSpec.name)
		}
		literals[ii] = refs[ii].literal
	}
	return refs, literals, nil
}

// allocate the per-frame buffers.
func (p *program) allocate() {
	numParams := len(p.params)
	p.input = newDual(numParams)
	p.outputs = make([]dual, len(p.stages))
	for ii := range p.outputs {
		p.outputs[ii] = newDual(numParams)
	}
	p.argDuals = make([][]dual, len(p.args))
	for stageIdx, refs := range p.args {
		p.argDuals[stageIdx] = make([]dual, len(refs))
		for argIdx, ref := range refs {
			arg := newDual(numParams)
			if ref.param >= 0 {
				arg.d[ref.param] = 1
			} else {
				arg.v = ref.literal
			}
			p.argDuals[stageIdx][argIdx] = arg
		}
	}
}

// refreshArgs copies the current parameter values to the arguments that reference them.
func (p *program) refreshArgs() {
	for stageIdx, refs := range p.args {
		for argIdx, ref := range refs {
			if ref.param >= 0 {
				p.argDuals[stageIdx][argIdx].v = p.values[ref.param]
			}
		}
	}
}

// Name implements backends.Transform.
func (p *program) Name() string { return p.name }

// NumInputs implements backends.Transform.
func (p *program) NumInputs() int { return p.numInputs }

// NumOutputs implements backends.Transform. The differentiated program has one output per parameter.
func (p *program) NumOutputs() int {
	if p.differentiate {
		return len(p.params)
	}
	return 1
}

// Parameters implements backends.Transform.
func (p *program) Parameters() []backends.ParameterInfo {
	return slices.Clone(p.params)
}

func (p *program) lookup(address string) (int, error) {
	for ii, info := range p.params {
		if info.Address == address {
			return ii, nil
		}
	}
	return -1, errors.Wrapf(backends.ErrUnknownParameter, "transform %q has no parameter %q", p.name, address)
}

// SetParameter implements backends.Transform.
func (p *program) SetParameter(address string, value float64) error {
	idx, err := p.lookup(address)
	if err != nil {
		return err
	}
	p.values[idx] = value
	return nil
}

// GetParameter implements backends.Transform.
func (p *program) GetParameter(address string) (float64, error) {
	idx, err := p.lookup(address)
	if err != nil {
		return 0, err
	}
	return p.values[idx], nil
}

// Init implements backends.Transform.
func (p *program) Init(sampleRate int) {
	if sampleRate <= 0 {
		exceptions.Panicf("transform %q: invalid sample rate %d", p.name, sampleRate)
	}
	p.sampleRate = sampleRate
	p.frame = 0
	for _, s := range p.stages {
		s.reset()
	}
	for ii := range p.outputs {
		p.outputs[ii].reset()
	}
}

// Compute implements backends.Transform.
func (p *program) Compute(count int, inputs, outputs [][]float64) {
	if len(inputs) < p.numInputs || len(outputs) < p.NumOutputs() {
		exceptions.Panicf("transform %q: Compute given %d inputs and %d outputs, requires %d and %d",
			p.name, len(inputs), len(outputs), p.numInputs, p.NumOutputs())
	}
	p.refreshArgs()
	frame := frameInfo{sampleRate: float64(p.sampleRate)}
	for ii := 0; ii < count; ii++ {
		frame.index = p.frame
		x := &p.input
		if p.numInputs > 0 {
			x.v = inputs[0][ii]
		}
		for stageIdx, s := range p.stages {
			y := &p.outputs[stageIdx]
			s.process(frame, x, y, p.argDuals[stageIdx])
			x = y
		}
		if p.differentiate {
			for k := range p.params {
				outputs[k][ii] = x.d[k]
			}
		} else {
			outputs[0][ii] = x.v
		}
		p.frame++
	}
}

// Clone implements backends.Transform.
func (p *program) Clone() backends.Transform {
	c := &program{
		name:          p.name,
		differentiate: p.differentiate,
		params:        p.params,
		paramIndex:    p.paramIndex,
		values:        slices.Clone(p.values),
		numInputs:     p.numInputs,
		args:          p.args,
		sampleRate:    p.sampleRate,
	}
	c.stages = make([]stage, len(p.stages))
	for ii, s := range p.stages {
		c.stages[ii] = s.clone()
	}
	c.allocate()
	return c
}

// String implements fmt.Stringer.
func (p *program) String() string {
	return fmt.Sprintf("%s(%d stages, %d params, %d->%d)", p.name, len(p.stages), len(p.params), p.numInputs, p.NumOutputs())
}
