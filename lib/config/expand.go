// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"

	"github.com/joho/godotenv"
)

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expander resolves variables from the predefined set, then the
// dotenv file, then the process environment.
type expander struct {
	vars   map[string]string
	dotenv map[string]string
}

func (e *expander) expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := e.vars[name]; ok && value != "" {
			return value
		}
		if value, ok := e.dotenv[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// expandVariables expands every string and string list in c. The
// predefined variables are resolved first, in dependency order.
func (c *Config) expandVariables() error {
	e := &expander{vars: map[string]string{"HOME": os.Getenv("HOME")}}

	c.EnvFile = e.expand(c.EnvFile)
	if c.EnvFile != "" {
		dotenv, err := godotenv.Read(c.EnvFile)
		if err != nil {
			return fmt.Errorf("reading env_file %s: %w", c.EnvFile, err)
		}
		e.dotenv = dotenv
	}

	c.Root = e.expand(c.Root)
	e.vars["ROOT"] = c.Root
	c.BuildDir = e.expand(c.BuildDir)
	e.vars["BUILD_DIR"] = c.BuildDir
	c.Arch = e.expand(c.Arch)
	e.vars["ARCH"] = c.Arch
	c.Target = e.expand(c.Target)
	e.vars["TARGET"] = c.Target
	c.BuildMode = e.expand(c.BuildMode)
	e.vars["BUILD_MODE"] = c.BuildMode

	expandValue(reflect.ValueOf(c).Elem(), e)
	return nil
}

func expandValue(value reflect.Value, e *expander) {
	switch value.Kind() {
	case reflect.String:
		value.SetString(e.expand(value.String()))
	case reflect.Slice:
		if value.Type().Elem().Kind() == reflect.String {
			for i := 0; i < value.Len(); i++ {
				value.Index(i).SetString(e.expand(value.Index(i).String()))
			}
		}
	case reflect.Struct:
		for i := 0; i < value.NumField(); i++ {
			if value.Type().Field(i).IsExported() {
				expandValue(value.Field(i), e)
			}
		}
	}
}
