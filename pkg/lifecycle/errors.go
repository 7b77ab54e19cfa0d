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

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/podmod/podmod/pkg/image"
)

var (
	ErrUnsupportedModule = errors.New("unsupported module")
	ErrSecureBootEnabled = errors.New("secure boot is enabled")
)

// State conflicts, returned wrapped in a *StateError.
var (
	ErrAlreadyBuilt  = errors.New("module is already built")
	ErrNotBuilt      = errors.New("module is not built")
	ErrAlreadyLoaded = errors.New("module is already loaded")
	ErrNotLoaded     = errors.New("module is not loaded")
)

// StateError reports a module that is not in the state an operation expects.
type StateError struct {
	Module string
	// Image is set for build state conflicts.
	Image image.ID
	Err   error
}

func (e *StateError) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("%v: %s (image %s)", e.Err, e.Module, e.Image)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Module)
}

func (e *StateError) Unwrap() error { return e.Err }

func unsupported(module string) error {
	return fmt.Errorf("%w: %q has no build context in the data directory", ErrUnsupportedModule, module)
}

func secureBoot(module string) error {
	return fmt.Errorf("%w: refusing to load unsigned module %s", ErrSecureBootEnabled, module)
}
