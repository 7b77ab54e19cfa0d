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

package cmd

import (
	"github.com/spf13/cobra"
)

// NewLoadCmd creates the `podmod load` command.
func NewLoadCmd(r *RootCmd) *cobra.Command {
	opts := &moduleOptions{}
	loadCmd := &cobra.Command{
		Use:     "load",
		Short:   "Load the kernel module",
		Long:    "Load a built kernel module, passing it the configured kernel arguments. Refused when Secure Boot is enabled.",
		Args:    cobra.NoArgs,
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			mod, err := r.module(opts)
			if err != nil {
				return err
			}
			return r.manager.Load(c.Context(), mod, opts.idempotent)
		},
	}
	r.addModuleFlag(loadCmd, opts)
	addIdempotentFlag(loadCmd, opts, "quietly exit if module is already loaded")
	return loadCmd
}

// NewUnloadCmd creates the `podmod unload` command.
func NewUnloadCmd(r *RootCmd) *cobra.Command {
	opts := &moduleOptions{}
	unloadCmd := &cobra.Command{
		Use:     "unload",
		Short:   "Unload the kernel module",
		Args:    cobra.NoArgs,
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			mod, err := r.module(opts)
			if err != nil {
				return err
			}
			return r.manager.Unload(c.Context(), mod, opts.idempotent)
		},
	}
	r.addModuleFlag(unloadCmd, opts)
	addIdempotentFlag(unloadCmd, opts, "quietly exit if module is not loaded")
	return unloadCmd
}
