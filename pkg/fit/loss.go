// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

import (
	"math"

	"github.com/gomlx/exceptions"
)

// LossFunction selects how the distance between the learnable and the ground-truth output is measured.
type LossFunction int

//go:generate go tool enumer -type=LossFunction -trimprefix=Loss -transform=lower -values -text -output=gen_lossfunction_enumer.go loss.go

const (
	// LossL1 is the absolute difference |observed - target|.
	LossL1 LossFunction = iota

	// LossL2 is the squared difference (observed - target)^2.
	LossL2
)

// DefaultLossFunction used if none (or an unknown one) is given.
const DefaultLossFunction = LossL2

// Loss returns the loss given delta = observed - target. It is always >= 0 for finite delta.
func (lf LossFunction) Loss(delta float64) float64 {
	switch lf {
	case LossL1:
		return math.Abs(delta)
	case LossL2:
		return delta * delta
	}
	exceptions.Panicf("unknown loss function %s", lf)
	return 0
}

// Gradient returns the gradient of the loss with respect to a parameter p, given the partial
// derivative of the observed output with respect to p and delta = observed - target.
//
// It's the chain rule dLoss/dp = dLoss/dDelta * dDelta/dp, with dDelta/dp = derivative.
// For LossL1 the gradient is 0 if delta is exactly 0.
func (lf LossFunction) Gradient(derivative, delta float64) float64 {
	switch lf {
	case LossL1:
		if delta == 0 {
			return 0
		}
		return derivative * delta / math.Abs(delta)
	case LossL2:
		return 2 * derivative * delta
	}
	exceptions.Panicf("unknown loss function %s", lf)
	return 0
}
