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
	"strconv"
	"time"

	"github.com/blang/semver"
)

// Populated by makefile
var (
	gitCommit         string
	commitsFromGitTag string
	gitTag            string
	buildTime         string
)

// Development builds carry no tag.
var devVersion = semver.Version{Pre: []semver.PRVersion{{VersionStr: "dev"}}}

// GitCommit returns the git commit of the current podmod version.
func GitCommit() string {
	return gitCommit
}

// GitTag returns the git tag of the current podmod version.
func GitTag() string {
	return gitTag
}

// CommitsSinceGitTag returns the number of git commits since the tag of the current podmod version.
func CommitsSinceGitTag() string {
	return commitsFromGitTag
}

// Time returns the build time of the current podmod version.
func Time() *time.Time {
	if len(buildTime) == 0 {
		return nil
	}
	i, err := strconv.ParseInt(buildTime, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(i, 0)
	return &t
}

// Semver parses the git tag, accepting a leading "v" and missing components.
func Semver() semver.Version {
	v, err := semver.ParseTolerant(gitTag)
	if err != nil {
		return devVersion
	}
	return v
}

// Tool returns the version passed to image builds as PODMOD_VERSION.
//
// Runtime and module images record it, so only the tag is used: rebuilding
// from a later commit of the same release gives the same value.
func Tool() string {
	return Semver().String()
}

// String returns current podmod version info as a string.
func String() string {
	s := Tool()
	if n, err := strconv.Atoi(commitsFromGitTag); err == nil && n > 0 {
		s += "-" + commitsFromGitTag
	}
	if gitCommit != "" {
		s += "+" + gitCommit
	}
	return s
}
