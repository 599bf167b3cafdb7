// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a signal-processing compiler needs to implement to be used by dspfit.
//
// A Backend turns a transform description (a file) into an executable Transform, and it can also derive
// the "differentiated" companion of a transform: a Transform whose outputs are the partial derivatives of the
// original output with respect to each of its parameters, one output channel per parameter, in the order
// returned by Transform.Parameters.
//
// Backends register themselves with Register during package initialization, and are selected by name with
// NewWithConfig, or by default with New. The reference backend is in package backends/simpledsp, and it is
// included by importing:
//
//	import _ "github.com/gomlx/dspfit/backends/default"
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Backend is the API that needs to be implemented by a dspfit backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "simpledsp".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Compile the transform description in the given file into an executable Transform.
	Compile(filePath string) (Transform, error)

	// CompileDifferentiated compiles the transform description in the given file into a Transform
	// that outputs one channel per parameter of the transform (as listed by Transform.Parameters of
	// the Transform returned by Compile): the partial derivative of the transform output with respect
	// to the corresponding parameter.
	CompileDifferentiated(filePath string) (Transform, error)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if name == "" || strings.Contains(name, ":") {
		exceptions.Panicf("invalid backend name %q: it must be non-empty and must not contain \":\"", name)
	}
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// DSPFIT_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "simpledsp") and
// "<backend_configuration>" is backend specific.
const DSPFIT_BACKEND = "DSPFIT_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment DSPFIT_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(DSPFIT_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew returns a new default Backend or panics if it fails.
//
// See New for details.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig takes a configurations string formated as "<backend_name>:<backend_configuration>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "simpledsp") and
// "<backend_configuration>" is backend specific. If config is empty, the first registered
// backend is used. If config has no ":" it is taken as the backend name.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(
			`no registered backends for dspfit -- maybe import the default ones with import _ "github.com/gomlx/dspfit/backends/default"?`)
	}
	backendName := firstRegistered
	var backendConfig string
	if config != "" {
		backendName = config
		if idx := strings.Index(config, ":"); idx != -1 {
			backendName = config[:idx]
			backendConfig = config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q", backendName)
	}
	return backend, nil
}
