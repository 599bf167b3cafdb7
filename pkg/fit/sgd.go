// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

import (
	"github.com/pkg/errors"
)

// SetParameterFn pushes a new parameter value into the graph.
type SetParameterFn func(address string, value float64) error

// StochasticGradientDescent applies one gradient descent step to every parameter of the registry,
// value -= learningRate * gradient, and pushes each new value with setParameter.
//
// There is no rollback: if setParameter fails, the parameters already updated keep their new values.
func StochasticGradientDescent(r *Registry, learningRate float64, setParameter SetParameterFn) error {
	for _, p := range r.params {
		p.Value -= learningRate * p.Gradient
		if setParameter == nil {
			continue
		}
		if err := setParameter(p.Address, p.Value); err != nil {
			return errors.WithMessagef(err, "failed to push new value %g of parameter %q", p.Value, p.Address)
		}
	}
	return nil
}
