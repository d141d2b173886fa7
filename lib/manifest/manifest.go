// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest records what a build produced: one entry per
// module with its size and content digest, plus the boot loader and
// image it was packaged into.
//
// The manifest is written as deterministic CBOR next to the build
// outputs and can be printed or verified against a module directory
// later. Modules are sorted by name so two builds of the same module
// set differ only in build ID and creation time.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theseus-os/cellbuild/lib/binhash"
	"github.com/theseus-os/cellbuild/lib/codec"
)

// FileName is the manifest's name inside the build directory.
const FileName = "manifest.cbor"

// Version is the current manifest format version.
const Version = 1

// Module is one finished module.
type Module struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Manifest describes one build.
type Manifest struct {
	Version    int       `json:"version"`
	BuildID    string    `json:"build_id"`
	Created    time.Time `json:"created"`
	Tool       string    `json:"tool,omitempty"`
	Bootloader string    `json:"bootloader"`
	ISO        string    `json:"iso"`
	ISODigest  string    `json:"iso_digest,omitempty"`
	Modules    []Module  `json:"modules"`
}

// Options controls [Build].
type Options struct {
	Bootloader string
	ISO        string

	// Tool identifies the cellbuild release that produced the build.
	Tool string

	// Now and NewID default to time.Now and a random UUID.
	Now   func() time.Time
	NewID func() string
}

// Build hashes every regular file in moduleDir and, when it exists,
// the ISO image.
func Build(moduleDir string, options Options) (*Manifest, error) {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	newID := options.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	modules, err := hashModules(moduleDir)
	if err != nil {
		return nil, err
	}
	manifest := &Manifest{
		Version:    Version,
		BuildID:    newID(),
		Created:    now().UTC(),
		Tool:       options.Tool,
		Bootloader: options.Bootloader,
		ISO:        options.ISO,
		Modules:    modules,
	}

	if options.ISO != "" {
		digest, _, err := binhash.HashFile(options.ISO)
		switch {
		case err == nil:
			manifest.ISODigest = binhash.FormatDigest(digest)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	return manifest, nil
}

func hashModules(moduleDir string) ([]Module, error) {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", moduleDir, err)
	}
	modules := []Module{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		digest, size, err := binhash.HashFile(filepath.Join(moduleDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules = append(modules, Module{Name: entry.Name(), Size: size, Digest: binhash.FormatDigest(digest)})
	}
	slices.SortFunc(modules, func(a, b Module) int { return strings.Compare(a.Name, b.Name) })
	return modules, nil
}

// Write encodes m to path through a temporary file and a rename.
func Write(path string, m *Manifest) error {
	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", temporary, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Read decodes the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%s: unsupported manifest version %d", path, m.Version)
	}
	return &m, nil
}

// Mismatch is a difference between a manifest and a module directory.
type Mismatch struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (m Mismatch) String() string {
	return m.Name + ": " + m.Reason
}

// Verify compares the recorded modules with the current contents of
// moduleDir and returns every difference in name order.
func (m *Manifest) Verify(moduleDir string) ([]Mismatch, error) {
	current, err := hashModules(moduleDir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Module, len(current))
	for _, module := range current {
		byName[module.Name] = module
	}

	var mismatches []Mismatch
	for _, recorded := range m.Modules {
		actual, ok := byName[recorded.Name]
		delete(byName, recorded.Name)
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{recorded.Name, "missing"})
		case actual.Digest != recorded.Digest:
			mismatches = append(mismatches, Mismatch{recorded.Name, "content changed"})
		}
	}
	for name := range byName {
		mismatches = append(mismatches, Mismatch{name, "unexpected"})
	}
	slices.SortFunc(mismatches, func(a, b Mismatch) int { return strings.Compare(a.Name, b.Name) })
	return mismatches, nil
}

// TotalSize is the sum of the module sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, module := range m.Modules {
		total += module.Size
	}
	return total
}
