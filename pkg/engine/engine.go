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

// Package engine drives a container engine through its command line.
//
// The engine is an opaque collaborator: podmod builds its argument lists and
// only looks at the exit status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/podmod/podmod/pkg/executil"
	"github.com/podmod/podmod/pkg/image"
	logger "github.com/sirupsen/logrus"
)

// Type is a supported container engine.
type Type string

const (
	TypePodman Type = "podman"
	TypeDocker Type = "docker"
)

func (t Type) String() string {
	return string(t)
}

// Types lists the supported engines, default first.
var Types = []Type{TypePodman, TypeDocker}

// ErrEngine is matched by every failed engine invocation.
var ErrEngine = errors.New("container engine failed")

// StepError tells which engine step failed and how.
type StepError struct {
	Step     string
	ExitCode int
	// Err is set when the engine could not be run at all.
	Err error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error while %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("error while %s: engine exited with status %d", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrEngine }

// BuildArg is a single --build-arg parameter.
type BuildArg struct {
	Key   string
	Value string
}

func (a BuildArg) String() string {
	return a.Key + "=" + a.Value
}

// BuildOptions describes an image build.
type BuildOptions struct {
	Tag image.ID
	// Containerfile is relative to ContextDir; empty means the engine default.
	Containerfile string
	ContextDir    string
	// BuildArgs keep their order on the command line.
	BuildArgs []BuildArg
}

// RunOptions describes a privileged, throw-away container run.
type RunOptions struct {
	Image     image.ID
	ExtraArgs []string
	Command   []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBinary overrides the engine executable (default: the engine type, looked up in PATH).
func WithBinary(binary string) Option {
	return func(e *Engine) {
		e.binary = binary
	}
}

// WithStreams sets where engine input and output go (default: the process' own streams).
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(e *Engine) {
		e.stdin = stdin
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithLogger ...
func WithLogger(l logger.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine runs podman or docker.
type Engine struct {
	typ    Type
	binary string
	exec   executil.Executor
	logger logger.FieldLogger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates an Engine of the given type.
func New(typ Type, exec executil.Executor, opts ...Option) (*Engine, error) {
	switch typ {
	case TypePodman, TypeDocker:
	default:
		return nil, fmt.Errorf("unknown container engine: %q", typ)
	}
	e := &Engine{
		typ:    typ,
		binary: typ.String(),
		exec:   exec,
		logger: logger.StandardLogger(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Type returns the engine type.
func (e *Engine) Type() Type {
	return e.typ
}

func (e *Engine) execute(ctx context.Context, inv executil.Invocation) (executil.Result, error) {
	inv.Name = e.binary
	e.logger.WithField("engine", e.typ).Debug(inv.String())
	return e.exec.Execute(ctx, inv)
}

func (e *Engine) run(ctx context.Context, step string, inv executil.Invocation) error {
	res, err := e.execute(ctx, inv)
	if err != nil {
		return &StepError{Step: step, ExitCode: res.ExitCode, Err: err}
	}
	if !res.Success() {
		return &StepError{Step: step, ExitCode: res.ExitCode}
	}
	return nil
}

// ImageExistsArgs returns the arguments checking for a local image.
//
// Docker has no "image exists", so its image inspect exit status is used.
func (e *Engine) ImageExistsArgs(id image.ID) []string {
	if e.typ == TypeDocker {
		return []string{"image", "inspect", id.String()}
	}
	return []string{"image", "exists", id.String()}
}

// ImageExists tells whether the image is present in local storage.
func (e *Engine) ImageExists(ctx context.Context, id image.ID) (bool, error) {
	res, err := e.execute(ctx, executil.Invocation{
		Args:   e.ImageExistsArgs(id),
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil {
		return false, &StepError{Step: "checking for pre-existing image " + id.String(), ExitCode: res.ExitCode, Err: err}
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &StepError{Step: "checking for pre-existing image " + id.String(), ExitCode: res.ExitCode}
	}
}

// BuildArgs returns the arguments building an image.
//
// Generated command: <engine> build -t <tag> [--build-arg K=V ...] [--file <containerfile>] <context>
func (e *Engine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build", "-t", opts.Tag.String()}
	for _, a := range opts.BuildArgs {
		args = append(args, "--build-arg", a.String())
	}
	if opts.Containerfile != "" {
		file := opts.Containerfile
		if !filepath.IsAbs(file) {
			file = filepath.Join(opts.ContextDir, file)
		}
		args = append(args, "--file", file)
	}
	return append(args, opts.ContextDir)
}

// Build builds an image, streaming the engine output.
func (e *Engine) Build(ctx context.Context, opts BuildOptions) error {
	return e.run(ctx, "building image "+opts.Tag.String(), executil.Invocation{
		Args:   e.BuildArgs(opts),
		Stdout: e.stdout,
		Stderr: e.stderr,
	})
}

// RunArgs returns the arguments running a privileged, auto-removed container.
//
// Generated command: <engine> run --rm --privileged [extra-args] <image> [command...]
func (e *Engine) RunArgs(opts RunOptions) []string {
	args := []string{"run", "--rm", "--privileged"}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.Image.String())
	return append(args, opts.Command...)
}

// Run runs a container attached to the configured streams and waits for it.
func (e *Engine) Run(ctx context.Context, opts RunOptions) error {
	return e.run(ctx, "running image "+opts.Image.String(), executil.Invocation{
		Args:   e.RunArgs(opts),
		Stdin:  e.stdin,
		Stdout: e.stdout,
		Stderr: e.stderr,
	})
}

// Prune removes dangling images and stopped containers.
func (e *Engine) Prune(ctx context.Context) error {
	return e.run(ctx, "pruning intermediary images", executil.Invocation{
		Args:   []string{"system", "prune", "-f"},
		Stdout: e.stdout,
		Stderr: e.stderr,
	})
}
