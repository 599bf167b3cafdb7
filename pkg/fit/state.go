// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

// State of a Loop.
type State int

//go:generate go tool enumer -type=State -trimprefix=State -transform=snake -values -text -output=gen_state_enumer.go state.go

const (
	// StateRunning is the initial state, while frames are being processed.
	StateRunning State = iota

	// StateConverged is reached when more than Config.Patience consecutive frames had a loss under Config.Epsilon.
	StateConverged

	// StateExhausted is reached when all Config.Iterations blocks were processed without converging.
	StateExhausted
)
