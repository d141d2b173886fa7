// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package crateset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Crate is one entry of a discover listing.
type Crate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type cargoManifest struct {
	Package struct {
		Description string `toml:"description"`
	} `toml:"package"`
}

// Describe lists the immediate subdirectories of dir in name order with
// the package description from each one's manifest. A subdirectory
// without a readable, well-formed manifest is an error.
func Describe(dir, manifestName string) ([]Crate, error) {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var crates []Crate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), manifestName)
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s's manifest: %w", entry.Name(), err)
		}
		var manifest cargoManifest
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parsing %s's manifest: %w", entry.Name(), err)
		}
		crates = append(crates, Crate{Name: entry.Name(), Description: manifest.Package.Description})
	}
	return crates, nil
}
