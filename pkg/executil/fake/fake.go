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

// Package fake provides a scripted executil.Executor for tests.
package fake

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/podmod/podmod/pkg/executil"
)

// Response is the scripted outcome of a command.
type Response struct {
	ExitCode int
	Stdout   string
	// Err simulates a command that cannot be started.
	Err error
}

type rule struct {
	prefix   string
	response Response
}

// Executor records every invocation and answers from its script.
//
// Rules match on the command line prefix ("podman image exists"); the most
// recently added matching rule wins. Unmatched commands succeed silently.
type Executor struct {
	mu          sync.Mutex
	rules       []rule
	Invocations []executil.Invocation
}

// New ...
func New() *Executor {
	return &Executor{}
}

// On scripts the response for every command line starting with prefix.
func (e *Executor) On(prefix string, res Response) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule{prefix: prefix, response: res})
	return e
}

// Execute implements executil.Executor.
func (e *Executor) Execute(_ context.Context, inv executil.Invocation) (executil.Result, error) {
	e.mu.Lock()
	e.Invocations = append(e.Invocations, inv)
	res := Response{}
	line := inv.String()
	for i := len(e.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, e.rules[i].prefix) {
			res = e.rules[i].response
			break
		}
	}
	e.mu.Unlock()

	if res.Err != nil {
		return executil.Result{ExitCode: -1}, res.Err
	}
	if inv.Stdout != nil && res.Stdout != "" {
		_, _ = io.WriteString(inv.Stdout, res.Stdout)
	}
	return executil.Result{ExitCode: res.ExitCode}, nil
}

// Lines returns the recorded command lines.
func (e *Executor) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := make([]string, 0, len(e.Invocations))
	for _, inv := range e.Invocations {
		lines = append(lines, inv.String())
	}
	return lines
}

// Count returns how many recorded command lines start with prefix.
func (e *Executor) Count(prefix string) int {
	n := 0
	for _, l := range e.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
