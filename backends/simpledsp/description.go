// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simpledsp

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// description is the YAML format of a transform.
type description struct {
	Name   string      `yaml:"name"`
	Params []paramDesc `yaml:"params"`
	Stages []stageDesc `yaml:"stages"`
}

type paramDesc struct {
	Name string  `yaml:"name"`
	Init float64 `yaml:"init"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// stageDesc holds the operation name, and all other keys as arguments.
type stageDesc struct {
	Op   string               `yaml:"op"`
	Args map[string]yaml.Node `yaml:",inline"`
}

func readDescription(filePath string) (*description, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read transform description %q", filePath)
	}
	baseName := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	desc, err := parseDescription(contents, baseName)
	if err != nil {
		return nil, errors.WithMessagef(err, "in transform description %q", filePath)
	}
	return desc, nil
}

// parseDescription parses and validates the YAML contents. defaultName is used if the description has no name.
func parseDescription(contents []byte, defaultName string) (*description, error) {
	desc := &description{}
	if err := yaml.Unmarshal(contents, desc); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}
	if desc.Name == "" {
		desc.Name = defaultName
	}
	if desc.Name == "" {
		return nil, errors.New("transform has no name")
	}
	if strings.Contains(desc.Name, "/") {
		return nil, errors.Errorf("transform name %q must not contain \"/\"", desc.Name)
	}
	seen := make(map[string]bool, len(desc.Params))
	for ii, p := range desc.Params {
		if p.Name == "" {
			return nil, errors.Errorf("params[%d] has no name", ii)
		}
		if strings.Contains(p.Name, "/") {
			return nil, errors.Errorf("params[%d]: name %q must not contain \"/\"", ii, p.Name)
		}
		if seen[p.Name] {
			return nil, errors.Errorf("params[%d]: parameter %q declared more than once", ii, p.Name)
		}
		seen[p.Name] = true
	}
	if len(desc.Stages) == 0 {
		return nil, errors.New("transform has no stages")
	}
	return desc, nil
}

// resolveArg converts the YAML node of an argument to an argRef: either a literal number or a
// reference to a declared parameter.
func resolveArg(node *yaml.Node, paramIndex map[string]int) (argRef, error) {
	if node.Kind != yaml.ScalarNode {
		return argRef{}, errors.Errorf("expected a number or a parameter name, got a YAML node of kind %d", node.Kind)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		var value float64
		if err := node.Decode(&value); err != nil {
			return argRef{}, errors.Wrapf(err, "invalid number %q", node.Value)
		}
		return argRef{param: -1, literal: value}, nil
	case "!!str":
		idx, found := paramIndex[node.Value]
		if !found {
			return argRef{}, errors.Errorf("unknown parameter %q", node.Value)
		}
		return argRef{param: idx}, nil
	}
	return argRef{}, errors.Errorf("expected a number or a parameter name, got %q (%s)", node.Value, node.ShortTag())
}
