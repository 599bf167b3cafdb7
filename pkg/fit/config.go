// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fit

import (
	"math"

	"github.com/gomlx/dspfit/pkg/support/params"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ParamLearningRate is the hyperparameter name for the gradient descent step size (alpha).
	ParamLearningRate = "learning_rate"

	// ParamLossFunction is the hyperparameter name for the loss function, "l1" or "l2".
	// Unknown values fall back to DefaultLossFunction.
	ParamLossFunction = "loss_function"

	// ParamEpsilon is the hyperparameter name for the loss threshold under which a frame is considered
	// converged and no update is made.
	ParamEpsilon = "epsilon"

	// ParamIterations is the hyperparameter name for the number of blocks to render at most.
	ParamIterations = "iterations"

	// ParamBlockSize is the hyperparameter name for the number of frames rendered per block.
	ParamBlockSize = "block_size"

	// ParamSampleRate is the hyperparameter name for the sample rate the transforms are initialized with.
	ParamSampleRate = "sample_rate"
)

const (
	// DefaultLearningRate is the default step size.
	DefaultLearningRate = 0.1

	// DefaultEpsilon is the default loss threshold ("sensitivity").
	DefaultEpsilon = 1e-7

	// DefaultPatience is the number of consecutive frames under the threshold that must be exceeded
	// to declare convergence.
	DefaultPatience = 20

	// DefaultIterations is the default number of blocks to render.
	DefaultIterations = 1000

	// DefaultBlockSize is the default number of frames per block.
	DefaultBlockSize = 1

	// DefaultSampleRate is the default sample rate.
	DefaultSampleRate = 48000
)

// Config of the fitting Loop. It is immutable during a run.
type Config struct {
	LossFunction LossFunction
	LearningRate float64
	Epsilon      float64
	Patience     int
	Iterations   int
	BlockSize    int
	SampleRate   int
}

// DefaultConfig returns the configuration with all default values.
func DefaultConfig() Config {
	return Config{
		LossFunction: DefaultLossFunction,
		LearningRate: DefaultLearningRate,
		Epsilon:      DefaultEpsilon,
		Patience:     DefaultPatience,
		Iterations:   DefaultIterations,
		BlockSize:    DefaultBlockSize,
		SampleRate:   DefaultSampleRate,
	}
}

// DefaultParams returns a hyperparameters store with the default values of every hyperparameter.
// The types of the defaults define the types accepted when parsing settings.
func DefaultParams() *params.Params {
	p := params.New()
	p.SetParams(map[string]any{
		ParamLearningRate: DefaultLearningRate,
		ParamLossFunction: DefaultLossFunction.String(),
		ParamEpsilon:      DefaultEpsilon,
		ParamIterations:   DefaultIterations,
		ParamBlockSize:    DefaultBlockSize,
		ParamSampleRate:   DefaultSampleRate,
	})
	return p
}

// ConfigFromParams builds a validated Config from the hyperparameters, using defaults for the missing ones.
func ConfigFromParams(p *params.Params) (config Config, err error) {
	config = DefaultConfig()
	err = exceptions.TryCatch[error](func() {
		config.LearningRate = params.GetParamOr(p, ParamLearningRate, config.LearningRate)
		config.LossFunction = LossFunctionOrDefault(params.GetParamOr(p, ParamLossFunction, config.LossFunction.String()))
		config.Epsilon = params.GetParamOr(p, ParamEpsilon, config.Epsilon)
		config.Iterations = params.GetParamOr(p, ParamIterations, config.Iterations)
		config.BlockSize = params.GetParamOr(p, ParamBlockSize, config.BlockSize)
		config.SampleRate = params.GetParamOr(p, ParamSampleRate, config.SampleRate)
	})
	if err != nil {
		return
	}
	err = config.Validate()
	return
}

// LossFunctionOrDefault returns the loss function with exactly the given name ("l1" or "l2").
// Any other name, including differently cased ones, silently selects DefaultLossFunction (a warning is logged).
func LossFunctionOrDefault(name string) LossFunction {
	for _, lf := range LossFunctionValues() {
		if lf.String() == name {
			return lf
		}
	}
	klog.Warningf("unknown loss function %q (valid values are %q), using %q", name, LossFunctionStrings(), DefaultLossFunction)
	return DefaultLossFunction
}

// Validate returns an error if any of the values is out of range.
func (c Config) Validate() error {
	if !c.LossFunction.IsALossFunction() {
		return errors.Errorf("invalid loss function %s", c.LossFunction)
	}
	if math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return errors.Errorf("learning rate must be finite, got %g", c.LearningRate)
	}
	if math.IsNaN(c.Epsilon) || math.IsInf(c.Epsilon, 0) || c.Epsilon < 0 {
		return errors.Errorf("epsilon must be finite and >= 0, got %g", c.Epsilon)
	}
	if c.Patience < 0 {
		return errors.Errorf("patience must be >= 0, got %d", c.Patience)
	}
	if c.Iterations < 0 {
		return errors.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.BlockSize <= 0 {
		return errors.Errorf("block size must be > 0, got %d", c.BlockSize)
	}
	if c.SampleRate <= 0 {
		return errors.Errorf("sample rate must be > 0, got %d", c.SampleRate)
	}
	return nil
}

// MaxFrames is the number of frames processed if the loop doesn't converge.
func (c Config) MaxFrames() int {
	return c.Iterations * c.BlockSize
}
