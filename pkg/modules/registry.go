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

// Package modules knows which kernel modules podmod supports, by looking at
// the layout of the data directory:
//
//	<data_dir>/common/          build context of the builder and runtime images
//	<data_dir>/modules/<name>/  build context of each supported module
package modules

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	modulesDir = "modules"
	commonDir  = "common"
)

// Registry resolves supported modules and build contexts under a data directory.
type Registry struct {
	fs      afero.Fs
	dataDir string
}

// NewRegistry ...
func NewRegistry(fs afero.Fs, dataDir string) *Registry {
	return &Registry{
		fs:      fs,
		dataDir: filepath.Clean(dataDir),
	}
}

// DataDir returns the data directory the registry looks at.
func (r *Registry) DataDir() string {
	return r.dataDir
}

// Exists tells whether the data directory itself is present.
func (r *Registry) Exists() bool {
	ok, err := afero.DirExists(r.fs, r.dataDir)
	return err == nil && ok
}

// List returns the names of all supported modules, each exactly once.
//
// Entries that are not directories are ignored.
func (r *Registry) List() ([]string, error) {
	dir := filepath.Join(r.dataDir, modulesDir)
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("error while reading data directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Supported tells whether module has a build context under the data directory.
func (r *Registry) Supported(module string) bool {
	if !isPlainName(module) {
		return false
	}
	ok, err := afero.DirExists(r.fs, r.ModuleContext(module))
	return err == nil && ok
}

// ModuleContext returns the build context directory of module.
func (r *Registry) ModuleContext(module string) string {
	return filepath.Join(r.dataDir, modulesDir, module)
}

// CommonContext returns the build context directory of the shared images.
func (r *Registry) CommonContext() string {
	return filepath.Join(r.dataDir, commonDir)
}

// isPlainName reports whether name is a single path element that cannot
// escape the modules directory.
func isPlainName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	clean := path.Clean(name)
	return clean == name && clean != "." && clean != ".."
}
