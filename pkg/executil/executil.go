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

// Package executil runs external commands synchronously and reports their exit status.
package executil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Invocation describes a single external command.
type Invocation struct {
	Name   string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the invocation as a command line, for logs.
func (i Invocation) String() string {
	return strings.TrimSpace(i.Name + " " + strings.Join(i.Args, " "))
}

// Result is what a finished command reports back.
type Result struct {
	ExitCode int
}

// Success tells whether the command exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Executor runs an invocation and waits for it to exit.
//
// A non-nil error means the command could not be run at all.
// A command that ran and failed is reported through Result.ExitCode.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// CommandFunc creates the exec.Cmd for an invocation.
type CommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// OSExecutor runs invocations as child processes of the current one.
type OSExecutor struct {
	command CommandFunc
}

// NewOSExecutor ...
func NewOSExecutor() *OSExecutor {
	return &OSExecutor{command: exec.CommandContext}
}

// Execute implements Executor.
func (e *OSExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cmd := e.command(ctx, inv.Name, inv.Args...)
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	err := cmd.Run()
	if err == nil {
		return Result{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, fmt.Errorf("error running %s: %w", inv.Name, err)
}

// Output runs the invocation capturing its standard output.
func Output(ctx context.Context, e Executor, name string, args ...string) (string, Result, error) {
	var stdout strings.Builder
	res, err := e.Execute(ctx, Invocation{
		Name:   name,
		Args:   args,
		Stdout: &stdout,
	})
	return stdout.String(), res, err
}
