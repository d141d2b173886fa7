// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override is one command-line assignment.
type Override struct {
	// Path is the dotted key split into its parts, with hyphens
	// normalized to underscores.
	Path []string

	// Raw holds the unparsed value text; Items the unparsed list
	// elements when List is set.
	Raw   string
	Items []string
	List  bool
}

// Key returns the dotted form of the path.
func (o Override) Key() string {
	return strings.Join(o.Path, ".")
}

// ParseOverrides parses assignments of the form a.b=value. A value of
// "[" starts a list whose elements are the following arguments up to a
// lone "]".
func ParseOverrides(args []string) ([]Override, error) {
	var overrides []Override
	var open *Override
	for _, arg := range args {
		if open != nil {
			if arg == "]" {
				overrides = append(overrides, *open)
				open = nil
			} else {
				open.Items = append(open.Items, arg)
			}
			continue
		}

		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("override %q: expected key=value", arg)
		}
		path := strings.Split(strings.ReplaceAll(key, "-", "_"), ".")
		for _, part := range path {
			if part == "" {
				return nil, fmt.Errorf("override %q: empty key segment", arg)
			}
		}
		if value == "[" {
			open = &Override{Path: path, List: true, Items: []string{}}
			continue
		}
		overrides = append(overrides, Override{Path: path, Raw: value})
	}
	if open != nil {
		return nil, fmt.Errorf("override %s: list is missing its closing \"]\"", open.Key())
	}
	return overrides, nil
}

// parseScalar types an override value: integer, float, boolean, else
// string.
func parseScalar(text string) any {
	if integer, err := strconv.ParseInt(text, 10, 64); err == nil {
		return integer
	}
	if float, err := strconv.ParseFloat(text, 64); err == nil {
		return float
	}
	switch text {
	case "true":
		return true
	case "false":
		return false
	}
	return text
}

// applyOverrides sets each override on the configuration tree and
// decodes the result back into c, so unknown keys and type mismatches
// are caught by the same strict decoder as the file.
func (c *Config) applyOverrides(overrides []Override) error {
	tree, err := toTree(c)
	if err != nil {
		return err
	}
	for _, override := range overrides {
		if err := setPath(tree, override); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding overrides: %w", err)
	}
	if err := decodeStrict(data, c); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}
	return nil
}

// toTree renders c as nested maps keyed by the YAML field names.
func toTree(c *Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding config tree: %w", err)
	}
	return tree, nil
}

func setPath(tree map[string]any, override Override) error {
	node := tree
	last := len(override.Path) - 1
	for _, part := range override.Path[:last] {
		child, exists := node[part]
		if !exists {
			created := map[string]any{}
			node[part] = created
			node = created
			continue
		}
		table, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("override %s: %s is not a section", override.Key(), part)
		}
		node = table
	}

	key := override.Path[last]
	existing := node[key]
	if override.List {
		items := make([]any, len(override.Items))
		for i, item := range override.Items {
			// Every list in the configuration holds strings; keep the
			// text exactly as given.
			if _, stringList := existing.([]any); stringList {
				items[i] = item
			} else {
				items[i] = parseScalar(item)
			}
		}
		node[key] = items
		return nil
	}
	if _, isString := existing.(string); isString {
		node[key] = override.Raw
		return nil
	}
	node[key] = parseScalar(override.Raw)
	return nil
}
