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

// NewRunCmd creates the `podmod run` command.
func NewRunCmd(r *RootCmd) *cobra.Command {
	opts := &moduleOptions{}
	runCmd := &cobra.Command{
		Use:   "run -m MODULE -- COMMAND [ARG...]",
		Short: "Run a command inside a new container",
		Long: `Run a command inside a new, privileged container of the module image.

The configured container_args of the module are passed to the container engine.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			mod, err := r.module(opts)
			if err != nil {
				return err
			}
			return r.manager.Run(c.Context(), mod, args)
		},
	}
	r.addModuleFlag(runCmd, opts)
	// Everything after the first positional argument belongs to the command.
	runCmd.Flags().SetInterspersed(false)
	return runCmd
}

// NewShellCmd creates the `podmod shell` command.
func NewShellCmd(r *RootCmd) *cobra.Command {
	opts := &moduleOptions{}
	shellCmd := &cobra.Command{
		Use:     "shell -m MODULE [SHELL]",
		Short:   "Start a shell session inside a new container",
		Long:    "Start an interactive shell (default " + lifecycle.DefaultShell + ") inside a new, privileged container of the module image.",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			mod, err := r.module(opts)
			if err != nil {
				return err
			}
			shell := lifecycle.DefaultShell
			if len(args) == 1 {
				shell = args[0]
			}
			return r.manager.Shell(c.Context(), mod, shell)
		},
	}
	r.addModuleFlag(shellCmd, opts)
	return shellCmd
}
