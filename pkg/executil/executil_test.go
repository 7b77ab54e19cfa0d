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

package executil

import (
	"context"
	"runtime"
	"testing"

	"gotest.tools/assert"
)

func TestOSExecutor(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires a Linux userland")
	}
	e := NewOSExecutor()
	ctx := context.Background()

	res, err := e.Execute(ctx, Invocation{Name: "sh", Args: []string{"-c", "exit 0"}})
	assert.NilError(t, err)
	assert.Assert(t, res.Success())

	res, err = e.Execute(ctx, Invocation{Name: "sh", Args: []string{"-c", "exit 3"}})
	assert.NilError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Assert(t, !res.Success())

	_, err = e.Execute(ctx, Invocation{Name: "/nonexistent/podmod-test-binary"})
	assert.ErrorContains(t, err, "error running /nonexistent/podmod-test-binary")
}

func TestOutput(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires a Linux userland")
	}
	out, res, err := Output(context.Background(), NewOSExecutor(), "sh", "-c", "echo 6.1.0-13-amd64")
	assert.NilError(t, err)
	assert.Assert(t, res.Success())
	assert.Equal(t, "6.1.0-13-amd64\n", out)
}

func TestInvocationString(t *testing.T) {
	tests := map[string]struct {
		inv  Invocation
		want string
	}{
		"no args": {
			inv:  Invocation{Name: "lsmod"},
			want: "lsmod",
		},
		"with args": {
			inv:  Invocation{Name: "podman", Args: []string{"image", "exists", "podmod-builder:6.1.0"}},
			want: "podman image exists podmod-builder:6.1.0",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inv.String())
		})
	}
}
