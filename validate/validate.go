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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// V is the validator single instance.
//
// It is a singleton so to cache the structs info.
var V *validator.Validate

// T is the universal translator for validatiors.
var T ut.Translator

func init() {
	V = validator.New()

	// Register a function to get the field name from "name" tags.
	V.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("name"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	V.RegisterValidation("logrus", isLogrusLevel)
	V.RegisterValidation("modulename", isModuleName)
	V.RegisterValidation("moduleversion", isModuleVersion)
	V.RegisterValidation("buildargkey", isBuildArgKey)

	eng := en.New()
	uni := ut.New(eng, eng)
	T, _ = uni.GetTranslator("en")
	en_translations.RegisterDefaultTranslations(V, T)

	registerTranslation("logrus", "{0} must be a valid logrus level")
	registerTranslation("modulename", "{0} must be lowercase letters, digits and separators, and not a reserved image name")
	registerTranslation("moduleversion", "{0} must only contain letters, digits, '.' and '_'")
	registerTranslation("buildargkey", "{0} keys must be valid build argument names")
}

func registerTranslation(tag, text string) {
	V.RegisterTranslation(
		tag,
		T,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Field())

			return t
		},
	)
}

// Struct validates s and translates every failure to a readable error.
func Struct(s interface{}) []error {
	err := V.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []error{err}
	}
	errArr := make([]error, 0, len(errs))
	for _, e := range errs {
		// Translate each error one at a time
		errArr = append(errArr, fmt.Errorf("%s", e.Translate(T)))
	}
	return errArr
}
