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
	"github.com/podmod/podmod/pkg/config"
	"github.com/podmod/podmod/pkg/modules"
	"github.com/spf13/cobra"
)

// moduleOptions are the flags of the commands working on a single module.
type moduleOptions struct {
	module     string
	idempotent bool
}

func (r *RootCmd) addModuleFlag(c *cobra.Command, o *moduleOptions) {
	c.Flags().StringVarP(&o.module, "module", "m", "", "the module to work on")
	_ = c.MarkFlagRequired("module")
	_ = c.RegisterFlagCompletionFunc("module", r.completeModules)
}

func addIdempotentFlag(c *cobra.Command, o *moduleOptions, usage string) {
	c.Flags().BoolVarP(&o.idempotent, "idempotent", "i", false, usage)
}

// module resolves the configuration of the selected module.
func (r *RootCmd) module(o *moduleOptions) (config.Module, error) {
	return r.cfg.Module(o.module)
}

// completeModules suggests the supported modules. It cannot fail: without a
// readable configuration it suggests nothing.
func (r *RootCmd) completeModules(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	r.opts.Init(r.v)
	if _, err := r.opts.Load(r.v, r.fs); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names, err := modules.NewRegistry(r.fs, r.opts.DataDir).List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
