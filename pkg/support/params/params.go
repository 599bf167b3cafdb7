// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params holds a flat store of hyperparameters, keyed by name.
//
// Default values define the type of each parameter: settings parsed from the command line
// (see package ui/commandline) are converted to the type of the default value already stored.
package params

import (
	"encoding"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
)

// Params is a store of named hyperparameters. The zero value is not usable, use New.
//
// It is not safe for concurrent use.
type Params struct {
	values map[string]any
}

// New creates an empty Params store.
func New() *Params {
	return &Params{values: make(map[string]any)}
}

// SetParam sets the value of the given key, replacing any previous value.
func (p *Params) SetParam(key string, value any) {
	p.values[key] = value
}

// SetParams sets all the given key/value pairs.
func (p *Params) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		p.values[key] = value
	}
}

// GetParam returns the value for the given key, and whether it was found.
func (p *Params) GetParam(key string) (value any, found bool) {
	value, found = p.values[key]
	return
}

// EnumerateParams calls fn for every parameter, in lexicographic order of the keys.
func (p *Params) EnumerateParams(fn func(key string, value any)) {
	keys := make([]string, 0, len(p.values))
	for key := range p.values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fn(key, p.values[key])
	}
}

// Len returns the number of parameters stored.
func (p *Params) Len() int {
	return len(p.values)
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// MustGetParam is like GetParam, but panics if the parameter is not found, or if it cannot be converted to T.
//
// It tries to cast the value to the given type. If it fails, it tries to convert the
// value to the given type (so an `int` will be converted to a `float64` transparently).
// String values are also accepted for types implementing encoding.TextUnmarshaler.
func MustGetParam[T any](p *Params, key string) T {
	var t T
	valueAny, found := p.GetParam(key)
	if !found {
		exceptions.Panicf("parameter %q (of type %T) not found", key, t)
	}
	if value, ok := valueAny.(T); ok {
		return value
	}

	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	valueT := reflect.New(typeOfT)
	if valueT.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := valueT.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			exceptions.Panicf("parameter %q: can't UnmarshalText %q to %s: %v", key, v.String(), typeOfT, err)
		}
		return valueT.Elem().Interface().(T)
	}
	if !v.IsValid() || !v.CanConvert(typeOfT) {
		exceptions.Panicf("MustGetParam/GetParamOr[%T](%q): value (%T) %#v cannot be converted to %T",
			t, key, valueAny, valueAny, t)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr either returns the value for the given key, or if the key is not found or is
// set to nil, it returns the given default value.
//
// Conversion follows MustGetParam, and it panics if the stored value cannot be converted to T.
func GetParamOr[T any](p *Params, key string, defaultValue T) T {
	valueAny, found := p.GetParam(key)
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](p, key)
}
