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

package config

import (
	"slices"

	logger "github.com/sirupsen/logrus"
)

// Module is the resolved configuration of one kernel module.
//
// Values are treated as immutable once resolved; use the With* methods to
// derive a modified copy.
type Module struct {
	Name    string `validate:"modulename" name:"name"`
	Version string `validate:"moduleversion" name:"version"`
	// BuildArgs are passed verbatim as --build-arg KEY=VALUE.
	BuildArgs map[string]string `validate:"dive,keys,buildargkey,endkeys" name:"build"`
	// KernelArgs are passed verbatim, in order, to the load entry point.
	KernelArgs []string `name:"kernel_args"`
	// ContainerArgs are extra engine arguments for run invocations.
	ContainerArgs []string `name:"container_args"`
}

// Clone returns a deep copy of m.
func (m Module) Clone() Module {
	c := m
	if m.BuildArgs != nil {
		c.BuildArgs = make(map[string]string, len(m.BuildArgs))
		for k, v := range m.BuildArgs {
			c.BuildArgs[k] = v
		}
	}
	c.KernelArgs = slices.Clone(m.KernelArgs)
	c.ContainerArgs = slices.Clone(m.ContainerArgs)
	return c
}

// WithContainerArgs returns a copy of m with args appended to its container arguments.
func (m Module) WithContainerArgs(args ...string) Module {
	c := m.Clone()
	c.ContainerArgs = append(c.ContainerArgs, args...)
	return c
}

// Fields returns the logging fields describing m.
func (m Module) Fields() logger.Fields {
	return logger.Fields{
		"module":         m.Name,
		"module_version": m.Version,
	}
}
