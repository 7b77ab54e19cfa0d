// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2024 The Podmod Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the podmod TOML configuration file and resolves the
// per-module tables it contains.
//
//	data_dir = "/usr/share/podmod"
//
//	[v4l2loopback]
//	version = "0.12.7"
//	kernel_args = ["devices=2"]
//	container_args = ["--network=host"]
//
//	[v4l2loopback.build]
//	GIT_REF = "v0.12.7"
package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/podmod/podmod/validate"
	"github.com/spf13/afero"
)

// DefaultPath is where podmod looks for its configuration file.
const DefaultPath = "/etc/podmod.conf"

// Top-level and per-module keys.
const (
	KeyDataDir       = "data_dir"
	KeyVersion       = "version"
	KeyBuild         = "build"
	KeyKernelArgs    = "kernel_args"
	KeyContainerArgs = "container_args"
)

// ErrConfig is matched by every configuration error.
var ErrConfig = errors.New("configuration error")

// Error is a missing or malformed configuration value.
type Error struct {
	// Module is empty for top-level keys.
	Module string
	Key    string
	Reason string
}

func (e *Error) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("configuration error, key %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration error in %s module, key %q: %s", e.Module, e.Key, e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrConfig }

// Config is a parsed configuration document.
type Config struct {
	// DataDir is the top-level data_dir, empty when the file does not set it.
	DataDir string
	tree    map[string]interface{}
}

// Load reads and parses the configuration file at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error while reading configuration file at %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error while parsing configuration file at %s: %w", path, err)
	}
	return c, nil
}

// Parse parses a TOML configuration document.
func Parse(data []byte) (*Config, error) {
	tree := map[string]interface{}{}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	c := &Config{tree: tree}
	if v, ok := tree[KeyDataDir]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, &Error{Key: KeyDataDir, Reason: "must have a string value"}
		}
		c.DataDir = s
	}
	return c, nil
}

// Globals returns the top-level values that are not module tables.
func (c *Config) Globals() map[string]interface{} {
	res := map[string]interface{}{}
	for k, v := range c.tree {
		if _, ok := v.(map[string]interface{}); !ok {
			res[k] = v
		}
	}
	return res
}

// HasModule tells whether the document has a table for module.
func (c *Config) HasModule(module string) bool {
	_, ok := c.tree[module].(map[string]interface{})
	return ok
}

// Module resolves the configuration of module.
//
// The module table, its version and its build table are required.
// kernel_args and container_args default to empty.
func (c *Config) Module(module string) (Module, error) {
	raw, ok := c.tree[module]
	if !ok {
		return Module{}, &Error{Module: module, Key: module, Reason: "missing configuration for module"}
	}
	table, ok := raw.(map[string]interface{})
	if !ok {
		return Module{}, &Error{Module: module, Key: module, Reason: "module configuration must be a table"}
	}

	m := Module{Name: module}

	rawVersion, ok := table[KeyVersion]
	if !ok {
		return Module{}, &Error{Module: module, Key: KeyVersion, Reason: "no version specified"}
	}
	if m.Version, ok = rawVersion.(string); !ok {
		return Module{}, &Error{Module: module, Key: KeyVersion, Reason: "version identifier must have a string value"}
	}

	rawBuild, ok := table[KeyBuild]
	if !ok {
		return Module{}, &Error{Module: module, Key: KeyBuild, Reason: "missing build configuration"}
	}
	build, ok := rawBuild.(map[string]interface{})
	if !ok {
		return Module{}, &Error{Module: module, Key: KeyBuild, Reason: "build configuration must be a table"}
	}
	m.BuildArgs = make(map[string]string, len(build))
	for _, k := range sortedKeys(build) {
		s, ok := build[k].(string)
		if !ok {
			return Module{}, &Error{Module: module, Key: KeyBuild + "." + k, Reason: "build parameter must have a string value"}
		}
		m.BuildArgs[k] = s
	}

	var err error
	if m.KernelArgs, err = stringSlice(module, table, KeyKernelArgs); err != nil {
		return Module{}, err
	}
	if m.ContainerArgs, err = stringSlice(module, table, KeyContainerArgs); err != nil {
		return Module{}, err
	}

	if err := m.validate(); err != nil {
		return Module{}, err
	}
	return m, nil
}

func stringSlice(module string, table map[string]interface{}, key string) ([]string, error) {
	raw, ok := table[key]
	if !ok {
		return []string{}, nil
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, &Error{Module: module, Key: key, Reason: "must be an array"}
	}
	res := make([]string, 0, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, &Error{Module: module, Key: fmt.Sprintf("%s[%d]", key, i), Reason: "must have a string value"}
		}
		res = append(res, s)
	}
	return res, nil
}

func (m Module) validate() error {
	err := validate.V.Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Module: m.Name, Key: m.Name, Reason: err.Error()}
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &Error{Module: m.Name, Key: fe.Field(), Reason: fe.Translate(validate.T)})
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
