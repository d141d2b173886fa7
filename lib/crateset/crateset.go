// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package crateset

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultManifestName is the manifest file that marks a crate directory.
const DefaultManifestName = "Cargo.toml"

// Kind tags a crate set.
type Kind string

const (
	Kernel      Kind = "kernel"
	Application Kind = "application"
)

// Set is a set of crate names of one kind. The zero value is an empty
// set that must be initialized with New before Add.
type Set struct {
	Kind  Kind
	names map[string]struct{}
}

// New returns a set of the given kind containing names.
func New(kind Kind, names ...string) Set {
	set := Set{Kind: kind, names: make(map[string]struct{}, len(names))}
	set.Add(names...)
	return set
}

// Add inserts names into the set. Empty names are ignored.
func (s *Set) Add(names ...string) {
	if s.names == nil {
		s.names = make(map[string]struct{}, len(names))
	}
	for _, name := range names {
		if name != "" {
			s.names[name] = struct{}{}
		}
	}
}

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names in the set.
func (s Set) Len() int {
	return len(s.names)
}

// Names returns the members in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CrateName returns the crate name encoded in an object file name or
// list entry: the substring before the first hyphen.
func CrateName(entry string) string {
	name, _, _ := strings.Cut(entry, "-")
	return name
}

// Resolve builds a set from source, which is either a list file or a
// crate source tree. Errors for a missing source wrap fs.ErrNotExist.
func Resolve(kind Kind, source, manifestName string) (Set, error) {
	resolved, err := filepath.EvalSymlinks(source)
	if err != nil {
		return Set{}, fmt.Errorf("resolving %s crates at %s: %w", kind, source, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Set{}, fmt.Errorf("resolving %s crates at %s: %w", kind, source, err)
	}

	if info.Mode().IsRegular() {
		return FromFile(kind, resolved)
	}
	return FromDir(kind, resolved, manifestName)
}

// FromFile reads a list file. Blank lines and lines starting with '#'
// are skipped.
func FromFile(kind Kind, path string) (Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("opening crate list %s: %w", path, err)
	}
	defer file.Close()

	set := New(kind)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.Add(CrateName(line))
	}
	if err := scanner.Err(); err != nil {
		return Set{}, fmt.Errorf("reading crate list %s: %w", path, err)
	}
	return set, nil
}

// FromDir walks root recursively. Unreadable subdirectories are
// skipped; an unreadable root is an error.
func FromDir(kind Kind, root, manifestName string) (Set, error) {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}

	set := New(kind)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if entry.Type().IsRegular() && entry.Name() == manifestName {
			set.Add(filepath.Base(filepath.Dir(path)))
		}
		return nil
	})
	if err != nil {
		return Set{}, fmt.Errorf("walking crate tree %s: %w", root, err)
	}
	return set, nil
}
