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

package validate

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/podmod/podmod/pkg/image"
)

var (
	// a repository path component, see the distribution reference grammar
	moduleNameRegex = regexp.MustCompile(`^[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*$`)
	// a tag without "-", so that the tag can be split back into version and kernel
	moduleVersionRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.]{0,63}$`)
	buildArgKeyRegex   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func isModuleName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == image.BuilderName || name == image.RuntimeName {
		return false
	}
	return moduleNameRegex.MatchString(name)
}

func isModuleVersion(fl validator.FieldLevel) bool {
	return moduleVersionRegex.MatchString(fl.Field().String())
}

func isBuildArgKey(fl validator.FieldLevel) bool {
	return buildArgKeyRegex.MatchString(fl.Field().String())
}
