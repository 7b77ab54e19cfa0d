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

// Package lifecycle builds, loads, runs and unloads kernel modules through
// their container images.
//
// Every operation decides what to do from live host state: whether the module
// is loaded, which images exist, the running kernel and the Secure Boot
// posture. Nothing is cached between steps and nothing is retried; the first
// error aborts the operation. Images built before a failing step are kept.
package lifecycle

import (
	"context"
	"sort"

	"github.com/podmod/podmod/pkg/config"
	"github.com/podmod/podmod/pkg/engine"
	"github.com/podmod/podmod/pkg/image"
	"github.com/podmod/podmod/pkg/kernelrelease"
	logger "github.com/sirupsen/logrus"
)

// Build parameters set by podmod on every image.
const (
	ArgArch          = "ARCH"
	ArgKernelVersion = "KERNEL_VERSION"
	ArgModuleVersion = "MODULE_VERSION"
	ArgToolVersion   = "PODMOD_VERSION"
)

// Module image entry points.
const (
	LoadCommand   = "load"
	UnloadCommand = "unload"
)

// InteractiveFlag is appended to the container arguments of a shell.
const InteractiveFlag = "-it"

// DefaultShell is the shell started when none is given.
const DefaultShell = "/bin/bash"

// Probe answers questions about the running host.
type Probe interface {
	KernelRelease(ctx context.Context) (kernelrelease.KernelRelease, error)
	Architecture(ctx context.Context) (string, error)
	IsModuleLoaded(ctx context.Context, name string) (bool, error)
	IsSecureBootEnabled(ctx context.Context) (bool, error)
}

// Engine builds and runs container images.
type Engine interface {
	ImageExists(ctx context.Context, id image.ID) (bool, error)
	Build(ctx context.Context, opts engine.BuildOptions) error
	Run(ctx context.Context, opts engine.RunOptions) error
	Prune(ctx context.Context) error
}

// Registry knows the supported modules and where their build contexts are.
type Registry interface {
	List() ([]string, error)
	Supported(module string) bool
	ModuleContext(module string) string
	CommonContext() string
}

// BuildOptions tune Build.
type BuildOptions struct {
	// Idempotent turns an already built module into a no-op.
	Idempotent bool
	// NoPrune keeps dangling images after the build.
	NoPrune bool
}

// Manager runs the module lifecycle operations.
type Manager struct {
	probe       Probe
	engine      Engine
	registry    Registry
	logger      logger.FieldLogger
	toolVersion string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger ...
func WithLogger(l logger.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithToolVersion sets the value of the PODMOD_VERSION build parameter.
func WithToolVersion(v string) Option {
	return func(m *Manager) {
		m.toolVersion = v
	}
}

// New creates a Manager.
func New(p Probe, e Engine, r Registry, opts ...Option) *Manager {
	m := &Manager{
		probe:    p,
		engine:   e,
		registry: r,
		logger:   logger.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Modules returns the names of the supported modules.
func (m *Manager) Modules() ([]string, error) {
	return m.registry.List()
}

// CheckSupported fails with ErrUnsupportedModule when module has no build context.
func (m *Manager) CheckSupported(module string) error {
	if !m.registry.Supported(module) {
		return unsupported(module)
	}
	return nil
}

func (m *Manager) kernelVersion(ctx context.Context, log logger.FieldLogger) (string, error) {
	kr, err := m.probe.KernelRelease(ctx)
	if err != nil {
		return "", err
	}
	log.WithFields(logger.Fields{
		"kernel_release": kr.String(),
		"kernel_version": kr.Fullversion,
		"kernel_extra":   kr.FullExtraversion,
		"kernel_parsed":  kr.IsParsed(),
	}).Debug("running kernel")
	return kr.String(), nil
}

// Build builds the module image for the running kernel, building the shared
// builder and runtime images first when they are missing.
func (m *Manager) Build(ctx context.Context, mod config.Module, opts BuildOptions) error {
	log := m.logger.WithFields(mod.Fields())
	if err := m.CheckSupported(mod.Name); err != nil {
		return err
	}

	kv, err := m.kernelVersion(ctx, log)
	if err != nil {
		return err
	}
	arch, err := m.probe.Architecture(ctx)
	if err != nil {
		return err
	}
	log = log.WithFields(logger.Fields{"kernel": kv, "arch": arch})

	id := image.Module(mod.Name, mod.Version, kv)
	exists, err := m.engine.ImageExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		if opts.Idempotent {
			log.WithField("image", id).Info("module already built, nothing to do")
			return nil
		}
		return &StateError{Module: mod.Name, Image: id, Err: ErrAlreadyBuilt}
	}

	// Each image is the base layer of the next one.
	common := m.registry.CommonContext()
	if err := m.buildIfMissing(ctx, log, engine.BuildOptions{
		Tag:           image.Builder(kv),
		Containerfile: image.BuilderContainerfile,
		ContextDir:    common,
		BuildArgs: []engine.BuildArg{
			{Key: ArgArch, Value: arch},
			{Key: ArgKernelVersion, Value: kv},
		},
	}); err != nil {
		return err
	}
	if err := m.buildIfMissing(ctx, log, engine.BuildOptions{
		Tag:           image.Runtime(kv),
		Containerfile: image.RuntimeContainerfile,
		ContextDir:    common,
		BuildArgs: []engine.BuildArg{
			{Key: ArgKernelVersion, Value: kv},
			{Key: ArgToolVersion, Value: m.toolVersion},
		},
	}); err != nil {
		return err
	}

	log.WithField("image", id).Info("building module image")
	args := []engine.BuildArg{
		{Key: ArgArch, Value: arch},
		{Key: ArgKernelVersion, Value: kv},
		{Key: ArgModuleVersion, Value: mod.Version},
		{Key: ArgToolVersion, Value: m.toolVersion},
	}
	if err := m.engine.Build(ctx, engine.BuildOptions{
		Tag:        id,
		ContextDir: m.registry.ModuleContext(mod.Name),
		BuildArgs:  append(args, moduleBuildArgs(mod)...),
	}); err != nil {
		return err
	}

	if opts.NoPrune {
		log.Debug("skipping pruning of intermediary images")
		return nil
	}
	log.Info("pruning intermediary images")
	return m.engine.Prune(ctx)
}

func (m *Manager) buildIfMissing(ctx context.Context, log logger.FieldLogger, opts engine.BuildOptions) error {
	exists, err := m.engine.ImageExists(ctx, opts.Tag)
	if err != nil {
		return err
	}
	log = log.WithField("image", opts.Tag)
	if exists {
		log.Debug("image already present")
		return nil
	}
	log.Info("building shared image")
	return m.engine.Build(ctx, opts)
}

// moduleBuildArgs returns the configured build parameters sorted by key.
func moduleBuildArgs(mod config.Module) []engine.BuildArg {
	keys := make([]string, 0, len(mod.BuildArgs))
	for k := range mod.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]engine.BuildArg, 0, len(keys))
	for _, k := range keys {
		args = append(args, engine.BuildArg{Key: k, Value: mod.BuildArgs[k]})
	}
	return args
}

// builtImage returns the module image for the running kernel, failing when it
// has not been built. Nothing is ever built implicitly.
func (m *Manager) builtImage(ctx context.Context, log logger.FieldLogger, mod config.Module) (image.ID, error) {
	kv, err := m.kernelVersion(ctx, log)
	if err != nil {
		return "", err
	}
	id := image.Module(mod.Name, mod.Version, kv)
	exists, err := m.engine.ImageExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &StateError{Module: mod.Name, Image: id, Err: ErrNotBuilt}
	}
	return id, nil
}

// Load inserts the module by running the load entry point of its image with
// the configured kernel arguments.
//
// The already-loaded check comes before the Secure Boot gate, so idempotent
// callers succeed on a host where loading would be refused.
func (m *Manager) Load(ctx context.Context, mod config.Module, idempotent bool) error {
	log := m.logger.WithFields(mod.Fields())
	loaded, err := m.probe.IsModuleLoaded(ctx, mod.Name)
	if err != nil {
		return err
	}
	if loaded {
		if idempotent {
			log.Info("module already loaded, nothing to do")
			return nil
		}
		return &StateError{Module: mod.Name, Err: ErrAlreadyLoaded}
	}

	sb, err := m.probe.IsSecureBootEnabled(ctx)
	if err != nil {
		return err
	}
	if sb {
		return secureBoot(mod.Name)
	}

	id, err := m.builtImage(ctx, log, mod)
	if err != nil {
		return err
	}
	log.WithField("image", id).Info("loading module")
	return m.engine.Run(ctx, engine.RunOptions{
		Image:   id,
		Command: append([]string{LoadCommand}, mod.KernelArgs...),
	})
}

// Unload removes the module by running the unload entry point of its image.
func (m *Manager) Unload(ctx context.Context, mod config.Module, idempotent bool) error {
	log := m.logger.WithFields(mod.Fields())
	loaded, err := m.probe.IsModuleLoaded(ctx, mod.Name)
	if err != nil {
		return err
	}
	if !loaded {
		if idempotent {
			log.Info("module not loaded, nothing to do")
			return nil
		}
		return &StateError{Module: mod.Name, Err: ErrNotLoaded}
	}

	kv, err := m.kernelVersion(ctx, log)
	if err != nil {
		return err
	}
	id := image.Module(mod.Name, mod.Version, kv)
	log.WithField("image", id).Info("unloading module")
	return m.engine.Run(ctx, engine.RunOptions{
		Image:   id,
		Command: []string{UnloadCommand},
	})
}

// Run executes command inside the module image with the module's container arguments.
func (m *Manager) Run(ctx context.Context, mod config.Module, command []string) error {
	log := m.logger.WithFields(mod.Fields())
	id, err := m.builtImage(ctx, log, mod)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"image": id, "command": command}).Debug("running module image")
	return m.engine.Run(ctx, engine.RunOptions{
		Image:     id,
		ExtraArgs: mod.ContainerArgs,
		Command:   command,
	})
}

// Shell starts an interactive shell inside the module image.
//
// mod itself is left untouched; the interactive flag goes on a copy.
func (m *Manager) Shell(ctx context.Context, mod config.Module, shell string) error {
	if shell == "" {
		shell = DefaultShell
	}
	return m.Run(ctx, mod.WithContainerArgs(InteractiveFlag), []string{shell})
}
