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

// Package image derives the names of the container images podmod manages.
//
// Builder and runtime images are shared by every module built for the same
// kernel release. Module images are keyed by module name, module version and
// kernel release. Identical inputs always give identical names, which is what
// makes the "already built" check work.
package image

import "fmt"

// Prefix is the repository prefix of every podmod image.
const Prefix = "podmod"

// Reserved module names, since they name the shared images.
const (
	BuilderName = "builder"
	RuntimeName = "runtime"
)

// Containerfiles used for the shared images, relative to the common build context.
const (
	BuilderContainerfile = "Builder.containerfile"
	RuntimeContainerfile = "Runtime.containerfile"
)

// ID is a full image reference, "repository:tag".
type ID string

func (id ID) String() string {
	return string(id)
}

// Builder returns the shared builder image for a kernel release.
func Builder(kernelVersion string) ID {
	return ID(fmt.Sprintf("%s-%s:%s", Prefix, BuilderName, kernelVersion))
}

// Runtime returns the shared runtime image for a kernel release.
func Runtime(kernelVersion string) ID {
	return ID(fmt.Sprintf("%s-%s:%s", Prefix, RuntimeName, kernelVersion))
}

// Module returns the image of a module version built for a kernel release.
//
// Module versions cannot contain "-" (see validate), so the first dash of the
// tag always ends the version and distinct triples give distinct names.
func Module(module, moduleVersion, kernelVersion string) ID {
	return ID(fmt.Sprintf("%s-%s:%s-%s", Prefix, module, moduleVersion, kernelVersion))
}
