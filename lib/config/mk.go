// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// secretKeys are left out of generated make variables.
var secretKeys = []string{"publish.access_key", "publish.secret_key"}

// MakeVariables flattens every configuration key into a make-style
// assignment KEY_PATH="value", sorted by variable name. Lists are
// joined with spaces.
func (c *Config) MakeVariables() ([]string, error) {
	tree, err := toTree(c)
	if err != nil {
		return nil, err
	}
	var lines []string
	if err := flatten(nil, tree, &lines); err != nil {
		return nil, err
	}
	slices.Sort(lines)
	return lines, nil
}

// MakeVariableName converts a dotted key to a make variable name.
func MakeVariableName(key string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
}

func flatten(path []string, node map[string]any, lines *[]string) error {
	for key, value := range node {
		keyPath := append(slices.Clone(path), key)
		dotted := strings.Join(keyPath, ".")
		if slices.Contains(secretKeys, dotted) {
			continue
		}
		if table, ok := value.(map[string]any); ok {
			if err := flatten(keyPath, table, lines); err != nil {
				return err
			}
			continue
		}
		text, err := makeValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", dotted, err)
		}
		*lines = append(*lines, fmt.Sprintf("%s=\"%s\"", MakeVariableName(dotted), text))
	}
	return nil
}

func makeValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64), nil
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			text, err := makeValue(item)
			if err != nil {
				return "", err
			}
			items = append(items, text)
		}
		return strings.Join(items, " "), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("unsupported value type %T", value)
}
