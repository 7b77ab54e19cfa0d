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
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/mitchellh/go-homedir"
	"github.com/podmod/podmod/pkg/config"
	"github.com/podmod/podmod/pkg/engine"
	"github.com/podmod/podmod/validate"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys of the global options, shared by flags, env (PODMOD_*) and the configuration file.
const (
	keyConfig   = "config"
	keyLogLevel = "loglevel"
	keyEngine   = "engine"
	keyDataDir  = config.KeyDataDir
)

// ConfigOptions represent the persistent configuration flags of podmod.
type ConfigOptions struct {
	ConfigFile string `default:"/etc/podmod.conf" validate:"required" name:"config file"`
	LogLevel   string `default:"info" validate:"logrus" name:"log level"`
	Engine     string `default:"podman" validate:"oneof=podman docker" name:"engine"`
	DataDir    string `name:"data directory"`
}

// NewConfigOptions creates an instance of ConfigOptions.
func NewConfigOptions() *ConfigOptions {
	o := &ConfigOptions{}
	if err := defaults.Set(o); err != nil {
		logger.WithError(err).WithField("options", "ConfigOptions").Fatal("error setting podmod options defaults")
	}
	return o
}

// Validate validates the ConfigOptions fields.
func (co *ConfigOptions) Validate() []error {
	return validate.Struct(co)
}

// AddFlags registers the common flags.
func (co *ConfigOptions) AddFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&co.ConfigFile, keyConfig, "c", co.ConfigFile, "config file path")
	flags.StringVarP(&co.LogLevel, keyLogLevel, "l", co.LogLevel, "log level (panic, fatal, error, warn, info, debug, trace)")
	flags.StringVar(&co.Engine, keyEngine, co.Engine, fmt.Sprintf("container engine %v", engine.Types))
	flags.StringVar(&co.DataDir, "data-dir", co.DataDir, "data directory holding the module build contexts (default: data_dir from the config file)")
}

// Bind makes v resolve the options from flags, then PODMOD_* environment variables.
func (co *ConfigOptions) Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix("podmod")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, flag := range map[string]string{
		keyConfig:   keyConfig,
		keyLogLevel: keyLogLevel,
		keyEngine:   keyEngine,
		keyDataDir:  "data-dir",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// Init reads the resolved values back from v.
func (co *ConfigOptions) Init(v *viper.Viper) {
	co.ConfigFile = v.GetString(keyConfig)
	co.LogLevel = v.GetString(keyLogLevel)
	co.Engine = v.GetString(keyEngine)
	co.DataDir = v.GetString(keyDataDir)
}

// Load reads the configuration file and merges its top-level values below
// flags and environment variables.
func (co *ConfigOptions) Load(v *viper.Viper, fs afero.Fs) (*config.Config, error) {
	path, err := homedir.Expand(co.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("error expanding config file path %s: %w", co.ConfigFile, err)
	}
	cfg, err := config.Load(fs, path)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(cfg.Globals()); err != nil {
		return nil, fmt.Errorf("error merging configuration file %s: %w", path, err)
	}
	co.Init(v)
	if co.DataDir == "" {
		return nil, &config.Error{Key: config.KeyDataDir, Reason: "no data directory specified"}
	}
	return cfg, nil
}

// Log emits a log line containing the receiving ConfigOptions for debugging purposes.
func (co *ConfigOptions) Log(l logger.FieldLogger) {
	l.WithFields(logger.Fields{
		"config":   co.ConfigFile,
		"engine":   co.Engine,
		"data_dir": co.DataDir,
	}).Debug("running with options")
}
