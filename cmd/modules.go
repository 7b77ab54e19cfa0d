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
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/podmod/podmod/validate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var outputFormats = []string{"plain", "table", "yaml", "json"}

type modulesCmdOptions struct {
	Output string `validate:"oneof=plain table yaml json" name:"output"`
}

// moduleEntry is a supported module, with its configured version when there is one.
type moduleEntry struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// NewModulesCmd creates the `podmod modules` command.
func NewModulesCmd(r *RootCmd) *cobra.Command {
	opts := &modulesCmdOptions{Output: outputFormats[0]}
	modulesCmd := &cobra.Command{
		Use:     "modules",
		Short:   "List supported kernel modules",
		Args:    cobra.NoArgs,
		PreRunE: r.prepare,
		RunE: func(c *cobra.Command, args []string) error {
			if errs := validate.Struct(opts); errs != nil {
				for _, err := range errs {
					r.log.WithError(err).Error("error validating modules options")
				}
				return errValidation
			}
			names, err := r.manager.Modules()
			if err != nil {
				return err
			}
			entries := make([]moduleEntry, 0, len(names))
			for _, name := range names {
				entry := moduleEntry{Name: name}
				if r.cfg.HasModule(name) {
					if mod, err := r.cfg.Module(name); err == nil {
						entry.Version = mod.Version
					}
				}
				entries = append(entries, entry)
			}
			return printModules(c.OutOrStdout(), opts.Output, entries)
		},
	}
	modulesCmd.Flags().StringVarP(&opts.Output, "output", "o", opts.Output, fmt.Sprintf("output format %v", outputFormats))
	_ = modulesCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(outputFormats, cobra.ShellCompDirectiveNoFileComp))
	return modulesCmd
}

func printModules(w io.Writer, format string, entries []moduleEntry) error {
	switch format {
	case "table":
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Module", "Version"})
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
		for _, e := range entries {
			table.Append([]string{e.Name, e.Version})
		}
		table.Render()
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	default:
		if _, err := fmt.Fprintln(w, "The following kernel modules are supported:"); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.Name); err != nil {
				return err
			}
		}
		return nil
	}
}
