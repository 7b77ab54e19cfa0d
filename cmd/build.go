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
	"github.com/podmod/podmod/pkg/lifecycle"
	"github.com/spf13/cobra"
)

type buildCmdOptions struct {
	moduleOptions
	noPrune bool
}

// NewBuildCmd creates the `podmod build` command.
func NewBuildCmd(r *RootCmd) *cobra.Command {
	opts := &buildCmdOptions{}
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the kernel module",
		Long: `Build the image of a kernel module for the running kernel.

The shared builder and runtime images are built first when missing.`,
		Args:    cobra.NoArgs,
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			// Unsupported modules fail before their configuration is looked at.
			if err := r.manager.CheckSupported(opts.module); err != nil {
				return err
			}
			mod, err := r.module(&opts.moduleOptions)
			if err != nil {
				return err
			}
			return r.manager.Build(c.Context(), mod, lifecycle.BuildOptions{
				Idempotent: opts.idempotent,
				NoPrune:    opts.noPrune,
			})
		},
	}
	r.addModuleFlag(buildCmd, &opts.moduleOptions)
	addIdempotentFlag(buildCmd, &opts.moduleOptions, "quietly exit if module is already built")
	buildCmd.Flags().BoolVar(&opts.noPrune, "no-prune", false, "don't prune old images after building")
	return buildCmd
}
