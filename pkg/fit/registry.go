// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

import (
	"iter"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateParameter is returned when registering an address twice.
	ErrDuplicateParameter = errors.New("duplicate parameter address")

	// ErrChannelLayout is returned when the number of channels of a graph doesn't match 2 + the number
	// of registered parameters.
	ErrChannelLayout = errors.New("graph channel layout doesn't match the registered parameters")
)

// Parameter is a learnable parameter.
type Parameter struct {
	// Address uniquely identifies the parameter in the graph. E.g.: "/target/gain".
	Address string

	// Initial value, at registration.
	Initial float64

	// Value is the current value.
	Value float64

	// Gradient is the last gradient computed. It is left untouched (stale) on frames where
	// the loss is under the threshold.
	Gradient float64
}

// Label is the last element of the address path.
func (p *Parameter) Label() string {
	return p.Address[strings.LastIndex(p.Address, "/")+1:]
}

// Registry is the ordered collection of learnable parameters.
//
// The order is the order of registration, and it never changes: the k-th parameter corresponds
// to the derivative channel 2+k of the graph.
type Registry struct {
	params []*Parameter
	index  map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers a new parameter at the end of the registry.
func (r *Registry) Add(address string, value float64) error {
	if address == "" {
		return errors.New("parameter address cannot be empty")
	}
	if _, found := r.index[address]; found {
		return errors.Wrapf(ErrDuplicateParameter, "parameter %q", address)
	}
	r.index[address] = len(r.params)
	r.params = append(r.params, &Parameter{Address: address, Initial: value, Value: value})
	return nil
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	return len(r.params)
}

// At returns the k-th parameter. It panics if k is out of range.
func (r *Registry) At(k int) *Parameter {
	if k < 0 || k >= len(r.params) {
		exceptions.Panicf("parameter index %d out of range, registry has %d parameters", k, len(r.params))
	}
	return r.params[k]
}

// Get returns the parameter with the given address.
func (r *Registry) Get(address string) (p *Parameter, found bool) {
	k, found := r.index[address]
	if !found {
		return nil, false
	}
	return r.params[k], true
}

// All iterates over the parameters in registry order, yielding their index and the parameter.
func (r *Registry) All() iter.Seq2[int, *Parameter] {
	return func(yield func(int, *Parameter) bool) {
		for k, p := range r.params {
			if !yield(k, p) {
				return
			}
		}
	}
}

// Labels returns the labels of the parameters, in registry order.
func (r *Registry) Labels() []string {
	labels := make([]string, len(r.params))
	for k, p := range r.params {
		labels[k] = p.Label()
	}
	return labels
}

// ExtractGradients sets the gradient of every parameter from its partial derivative (derivatives[k]
// for the k-th parameter) and the frame's delta = observed - target.
func (r *Registry) ExtractGradients(lf LossFunction, delta float64, derivatives []float64) {
	if len(derivatives) != len(r.params) {
		exceptions.Panicf("%d derivatives given for %d parameters", len(derivatives), len(r.params))
	}
	for k, p := range r.params {
		p.Gradient = lf.Gradient(derivatives[k], delta)
	}
}
