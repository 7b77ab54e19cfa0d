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

package version

import (
	"testing"

	"gotest.tools/assert"
)

func setBuildInfo(t *testing.T, tag, commits, commit, when string) {
	t.Helper()
	oldTag, oldCommits, oldCommit, oldTime := gitTag, commitsFromGitTag, gitCommit, buildTime
	t.Cleanup(func() {
		gitTag, commitsFromGitTag, gitCommit, buildTime = oldTag, oldCommits, oldCommit, oldTime
	})
	gitTag, commitsFromGitTag, gitCommit, buildTime = tag, commits, commit, when
}

func TestString(t *testing.T) {
	tests := map[string]struct {
		tag, commits, commit string
		wantTool             string
		wantString           string
	}{
		"untagged":      {wantTool: "0.0.0-dev", wantString: "0.0.0-dev"},
		"release":       {tag: "v1.2.0", commits: "0", commit: "abc123", wantTool: "1.2.0", wantString: "1.2.0+abc123"},
		"after release": {tag: "v1.2.0", commits: "4", commit: "abc123", wantTool: "1.2.0", wantString: "1.2.0-4+abc123"},
		"short tag":     {tag: "1.3", wantTool: "1.3.0", wantString: "1.3.0"},
		"garbage tag":   {tag: "nightly", commit: "abc123", wantTool: "0.0.0-dev", wantString: "0.0.0-dev+abc123"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			setBuildInfo(t, tt.tag, tt.commits, tt.commit, "")
			assert.Equal(t, tt.wantTool, Tool())
			assert.Equal(t, tt.wantString, String())
		})
	}
}

func TestTime(t *testing.T) {
	setBuildInfo(t, "", "", "", "")
	assert.Assert(t, Time() == nil)

	setBuildInfo(t, "", "", "", "not-a-number")
	assert.Assert(t, Time() == nil)

	setBuildInfo(t, "", "", "", "1700000000")
	assert.Equal(t, int64(1700000000), Time().Unix())
}
