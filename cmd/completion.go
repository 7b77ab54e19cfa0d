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
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

var validShells = []string{"bash", "zsh", "fish"}

const (
	longUsageTemplate = `Generates completion scripts for the following shells: {{.ValidShells}}.

There are two ways to configure your bash shell to load completions for each session.

1. Source the completion script in your ~/.bashrc file

    echo 'source <(podmod completion bash)' >> ~/.bashrc

2. Add the completion script to /etc/bash_completion.d/ directory

    podmod completion bash > /etc/bash_completion.d/podmod
`
)

func validateArgs() cobra.PositionalArgs {
	return func(c *cobra.Command, args []string) error {
		if len(args) == 0 {
			return nil
		}
		return cobra.ExactValidArgs(1)(c, args)
	}
}

// NewCompletionCmd ...
func NewCompletionCmd() *cobra.Command {
	var long bytes.Buffer
	tmpl := template.Must(template.New("long").Parse(longUsageTemplate))
	tmpl.Execute(&long, map[string]interface{}{
		"ValidShells": strings.Join(validShells, ", "),
	})
	cmdArgs := append(validShells, "help")
	completionCmd := &cobra.Command{
		Use:               fmt.Sprintf("completion (%s)", strings.Join(cmdArgs, "|")),
		Short:             "Generates completion scripts.",
		Long:              long.String(),
		Args:              validateArgs(),
		ValidArgs:         cmdArgs,
		DisableAutoGenTag: true,
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) == 0 {
				return c.Help()
			}

			out := c.OutOrStdout()
			switch args[0] {
			case "bash":
				return c.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return c.Root().GenZshCompletion(out)
			case "fish":
				return c.Root().GenFishCompletion(out, true)
			default:
				return c.Help()
			}
		},
	}

	return completionCmd
}
