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

package kernelrelease

import (
	"regexp"
	"strconv"
)

var (
	kernelVersionPattern = regexp.MustCompile(`(?P<fullversion>^(?P<version>0|[1-9]\d*)\.(?P<patchlevel>0|[1-9]\d*)(\.(?P<sublevel>0|[1-9]\d*))?)(?P<fullextraversion>[-+.](?P<extraversion>[0-9a-zA-Z_+.-]*))?$`)
)

// KernelRelease contains all the version parts of a `uname -r` string.
//
// The release string itself is what podmod keys images on; the parts are
// informational.
type KernelRelease struct {
	Raw              string `json:"raw"`
	Fullversion      string `json:"full_version"`
	Version          int    `json:"version"`
	PatchLevel       int    `json:"patch_level"`
	Sublevel         int    `json:"sublevel"`
	Extraversion     string `json:"extra_version"`
	FullExtraversion string `json:"full_extra_version"`
}

// FromString extracts a KernelRelease object from string.
func FromString(kernelReleaseStr string) KernelRelease {
	kr := KernelRelease{Raw: kernelReleaseStr}
	match := kernelVersionPattern.FindStringSubmatch(kernelReleaseStr)
	for i, name := range kernelVersionPattern.SubexpNames() {
		if i > 0 && i < len(match) {
			switch name {
			case "fullversion":
				kr.Fullversion = match[i]
			case "version":
				kr.Version, _ = strconv.Atoi(match[i])
			case "patchlevel":
				kr.PatchLevel, _ = strconv.Atoi(match[i])
			case "sublevel":
				kr.Sublevel, _ = strconv.Atoi(match[i])
			case "extraversion":
				kr.Extraversion = match[i]
			case "fullextraversion":
				kr.FullExtraversion = match[i]
			}
		}
	}
	return kr
}

// IsParsed tells whether the release string had a recognizable version prefix.
func (kr KernelRelease) IsParsed() bool {
	return kr.Fullversion != ""
}

// String returns the original release string.
func (kr KernelRelease) String() string {
	return kr.Raw
}
