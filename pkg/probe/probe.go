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

// Package probe queries live host state: kernel release, CPU architecture,
// loaded kernel modules and Secure Boot posture.
//
// Nothing is cached. Loading or unloading a module changes the answer within
// the same process, so every call runs the underlying status command again.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/podmod/podmod/pkg/executil"
	"github.com/podmod/podmod/pkg/kernelrelease"
)

// ErrProbe is matched by every error returned from this package.
var ErrProbe = errors.New("host probe failed")

// Error reports which query could not be answered.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error while fetching %s: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrProbe }

// HostProbe answers queries by running uname, lsmod and mokutil.
type HostProbe struct {
	exec executil.Executor
}

// New creates a HostProbe running its commands through e.
func New(e executil.Executor) *HostProbe {
	return &HostProbe{exec: e}
}

func (p *HostProbe) output(ctx context.Context, query, name string, args ...string) (string, error) {
	out, res, err := executil.Output(ctx, p.exec, name, args...)
	if err != nil {
		return "", &Error{Query: query, Err: err}
	}
	if !res.Success() {
		return "", &Error{Query: query, Err: fmt.Errorf("%s exited with status %d", name, res.ExitCode)}
	}
	return out, nil
}

// KernelRelease returns the running kernel release.
func (p *HostProbe) KernelRelease(ctx context.Context) (kernelrelease.KernelRelease, error) {
	out, err := p.output(ctx, "kernel version", "uname", "-r")
	if err != nil {
		return kernelrelease.KernelRelease{}, err
	}
	release := strings.TrimSpace(out)
	if release == "" {
		return kernelrelease.KernelRelease{}, &Error{Query: "kernel version", Err: errors.New("uname returned an empty release")}
	}
	return kernelrelease.FromString(release), nil
}

// KernelVersion returns the running kernel release string, as `uname -r` prints it.
func (p *HostProbe) KernelVersion(ctx context.Context) (string, error) {
	kr, err := p.KernelRelease(ctx)
	if err != nil {
		return "", err
	}
	return kr.String(), nil
}

// Architecture returns the machine hardware name, as `uname -m` prints it.
func (p *HostProbe) Architecture(ctx context.Context) (string, error) {
	out, err := p.output(ctx, "CPU architecture", "uname", "-m")
	if err != nil {
		return "", err
	}
	arch := strings.TrimSpace(out)
	if arch == "" {
		return "", &Error{Query: "CPU architecture", Err: errors.New("uname returned an empty machine name")}
	}
	return arch, nil
}

// IsModuleLoaded tells whether the kernel currently lists the named module.
//
// The kernel reports module names with underscores, so dashes in name are
// normalized before comparing.
func (p *HostProbe) IsModuleLoaded(ctx context.Context, name string) (bool, error) {
	out, err := p.output(ctx, "loaded kernel modules", "lsmod")
	if err != nil {
		return false, err
	}
	want := normalizeModuleName(name)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] == "Module" {
			continue
		}
		if normalizeModuleName(fields[0]) == want {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, &Error{Query: "loaded kernel modules", Err: err}
	}
	return false, nil
}

// IsSecureBootEnabled asks mokutil for the Secure Boot state.
//
// mokutil exits non-zero on systems without EFI variables; that means Secure
// Boot cannot be enforced, not that the query failed.
func (p *HostProbe) IsSecureBootEnabled(ctx context.Context) (bool, error) {
	out, res, err := executil.Output(ctx, p.exec, "mokutil", "--sb-state")
	if err != nil {
		return false, &Error{Query: "Secure Boot state", Err: err}
	}
	if !res.Success() {
		return false, nil
	}
	return secureBootEnabled(out), nil
}

func secureBootEnabled(out string) bool {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if strings.HasPrefix(line, "secureboot") && strings.HasSuffix(line, "enabled") {
			return true
		}
	}
	return false
}

func normalizeModuleName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
}
