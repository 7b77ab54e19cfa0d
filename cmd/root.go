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
	"errors"
	"fmt"
	"io"

	"github.com/podmod/podmod/pkg/config"
	"github.com/podmod/podmod/pkg/engine"
	"github.com/podmod/podmod/pkg/executil"
	"github.com/podmod/podmod/pkg/lifecycle"
	"github.com/podmod/podmod/pkg/modules"
	"github.com/podmod/podmod/pkg/probe"
	"github.com/podmod/podmod/pkg/version"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errValidation = errors.New("exiting for validation errors")

// RootCmd wraps the main cobra.Command.
type RootCmd struct {
	c    *cobra.Command
	v    *viper.Viper
	opts *ConfigOptions
	log  *logger.Logger

	fs        afero.Fs
	exec      executil.Executor
	checkHost func() error

	// Set by prepare.
	cfg     *config.Config
	manager *lifecycle.Manager
}

// Option customizes the environment podmod runs against.
type Option func(*RootCmd)

// WithFs sets the filesystem holding the configuration file and the data directory.
func WithFs(fs afero.Fs) Option {
	return func(r *RootCmd) {
		r.fs = fs
	}
}

// WithExecutor sets how external commands (engine, uname, lsmod, mokutil) are run.
func WithExecutor(e executil.Executor) Option {
	return func(r *RootCmd) {
		r.exec = e
	}
}

// WithHostCheck replaces the Linux and superuser checks.
func WithHostCheck(check func() error) Option {
	return func(r *RootCmd) {
		r.checkHost = check
	}
}

// NewRootCmd instantiates the root command.
func NewRootCmd(opts ...Option) *RootCmd {
	r := &RootCmd{
		v:         viper.New(),
		opts:      NewConfigOptions(),
		log:       logger.New(),
		fs:        afero.NewOsFs(),
		exec:      executil.NewOSExecutor(),
		checkHost: checkHost,
	}
	for _, opt := range opts {
		opt(r)
	}

	rootCmd := &cobra.Command{
		Use:   "podmod",
		Short: "Containerized build system for kernel modules",
		Long: `Build, load and unload out-of-tree kernel modules without compiling them on the host.

Each supported module is built inside a container image matching the running kernel,
and loaded or unloaded by running that image with elevated privileges.`,
		Version:           version.String(),
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		PersistentPreRunE: r.initOptions,
		Run: func(c *cobra.Command, args []string) {
			// Fallback to help
			c.Help()
		},
	}
	rootCmd.SetVersionTemplate("podmod {{.Version}}\n")
	r.c = rootCmd

	flags := rootCmd.PersistentFlags()
	r.opts.AddFlags(flags)
	if err := r.opts.Bind(r.v, flags); err != nil {
		logger.WithError(err).Fatal("error binding podmod flags")
	}

	rootCmd.AddCommand(NewBuildCmd(r))
	rootCmd.AddCommand(NewLoadCmd(r))
	rootCmd.AddCommand(NewModulesCmd(r))
	rootCmd.AddCommand(NewRunCmd(r))
	rootCmd.AddCommand(NewShellCmd(r))
	rootCmd.AddCommand(NewUnloadCmd(r))
	rootCmd.AddCommand(NewCompletionCmd())

	return r
}

// Command returns the underlying cobra.Command.
func (r *RootCmd) Command() *cobra.Command {
	return r.c
}

// SetArgs proxies the arguments to the underlying cobra.Command.
func (r *RootCmd) SetArgs(args []string) {
	r.c.SetArgs(args)
}

// SetOutput sets the destination for usage, error and log messages.
func (r *RootCmd) SetOutput(out, errOut io.Writer) {
	r.c.SetOut(out)
	r.c.SetErr(errOut)
}

// Execute proxies the execution to the underlying cobra.Command.
func (r *RootCmd) Execute() error {
	return r.c.Execute()
}

// initOptions resolves flags and environment variables and sets up logging.
func (r *RootCmd) initOptions(c *cobra.Command, _ []string) error {
	r.log.SetOutput(c.ErrOrStderr())
	r.log.SetFormatter(&logger.TextFormatter{
		ForceColors:            true,
		DisableLevelTruncation: true,
		DisableTimestamp:       true,
	})
	r.opts.Init(r.v)
	return r.validateOptions()
}

func (r *RootCmd) validateOptions() error {
	if errs := r.opts.Validate(); errs != nil {
		for _, err := range errs {
			r.log.WithError(err).Error("error validating config options")
		}
		return errValidation
	}
	lvl, err := logger.ParseLevel(r.opts.LogLevel)
	if err != nil {
		return err
	}
	r.log.SetLevel(lvl)
	return nil
}

// prepare gates the host, loads the configuration file and wires the
// lifecycle manager. Every command touching modules runs it first.
func (r *RootCmd) prepare(c *cobra.Command, _ []string) error {
	if err := r.checkHost(); err != nil {
		return err
	}
	cfg, err := r.opts.Load(r.v, r.fs)
	if err != nil {
		return err
	}
	if err := r.validateOptions(); err != nil {
		return err
	}
	r.opts.Log(r.log)

	registry := modules.NewRegistry(r.fs, r.opts.DataDir)
	if !registry.Exists() {
		return fmt.Errorf("data directory %s does not exist", registry.DataDir())
	}
	eng, err := engine.New(engine.Type(r.opts.Engine), r.exec,
		engine.WithLogger(r.log),
		engine.WithStreams(c.InOrStdin(), c.OutOrStdout(), c.ErrOrStderr()),
	)
	if err != nil {
		return err
	}

	r.cfg = cfg
	r.manager = lifecycle.New(probe.New(r.exec), eng, registry,
		lifecycle.WithLogger(r.log),
		lifecycle.WithToolVersion(version.Tool()),
	)
	// From here on failures come from the workflow, not from the invocation.
	c.SilenceUsage = true
	return nil
}
