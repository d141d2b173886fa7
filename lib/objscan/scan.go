// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package objscan

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/theseus-os/cellbuild/lib/crateset"
)

const (
	// ObjectSuffix is the file name suffix of a compiled object.
	ObjectSuffix = ".o"

	depsPrefix  = "lib"
	rmetaSuffix = ".rmeta"
	rlibSuffix  = ".rlib"
)

// SysrootCrates are the foundational crates whose metadata and archive
// files form the sysroot of the custom target.
var SysrootCrates = []string{"core", "compiler_builtins", "rustc_std_workspace_core", "alloc"}

// Artifact is one compiled object selected for a crate.
type Artifact struct {
	Crate   string
	Stem    string
	Path    string
	ModTime time.Time

	// Deps holds the companion .rmeta and .rlib paths. Empty for
	// application crates.
	Deps [2]string
}

// Override forces the selection for a crate, bypassing the timestamp
// comparison.
type Override struct {
	Crate string
	Stem  string
	Path  string
}

// Result is the classified selection.
type Result struct {
	Apps   map[string]Artifact
	Kernel map[string]Artifact
	Other  map[string]Artifact
}

// ParseObjectName splits an object file name into its crate name and
// stem. ok is false for names without the object suffix.
func ParseObjectName(fileName string) (crate, stem string, ok bool) {
	stem, ok = strings.CutSuffix(fileName, ObjectSuffix)
	if !ok || stem == "" {
		return "", "", false
	}
	return crateset.CrateName(stem), stem, true
}

// DepsPaths returns the companion metadata and archive paths for an
// object with the given stem in dir.
func DepsPaths(dir, stem string) [2]string {
	return [2]string{
		filepath.Join(dir, depsPrefix+stem+rmetaSuffix),
		filepath.Join(dir, depsPrefix+stem+rlibSuffix),
	}
}

// Scan reads every candidate directory in order and returns the
// classified selection. An unreadable directory is an error.
func Scan(dirs []string, kernel, apps crateset.Set, overrides []Override) (*Result, error) {
	result := &Result{
		Apps:   make(map[string]Artifact),
		Kernel: make(map[string]Artifact),
		Other:  make(map[string]Artifact),
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading candidate directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			crate, stem, ok := ParseObjectName(entry.Name())
			if !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, entry.Name()), err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			artifact := Artifact{
				Crate:   crate,
				Stem:    stem,
				Path:    filepath.Join(dir, entry.Name()),
				ModTime: info.ModTime(),
			}
			result.insert(artifact, kernel, apps, false)
		}
	}

	for _, override := range overrides {
		info, err := os.Stat(override.Path)
		if err != nil {
			return nil, fmt.Errorf("stat merged object %s: %w", override.Path, err)
		}
		artifact := Artifact{
			Crate:   override.Crate,
			Stem:    override.Stem,
			Path:    override.Path,
			ModTime: info.ModTime(),
		}
		result.insert(artifact, kernel, apps, true)
	}

	return result, nil
}

// insert places artifact into the map its crate classifies into. An
// existing entry is replaced only by a strictly newer artifact, unless
// force is set.
func (r *Result) insert(artifact Artifact, kernel, apps crateset.Set, force bool) {
	var (
		target map[string]Artifact
		key    string
	)
	switch {
	case apps.Contains(artifact.Crate):
		target, key = r.Apps, artifact.Crate
	case kernel.Contains(artifact.Crate):
		target, key = r.Kernel, artifact.Crate
		artifact.Deps = DepsPaths(filepath.Dir(artifact.Path), artifact.Stem)
	default:
		target, key = r.Other, artifact.Stem
		artifact.Deps = DepsPaths(filepath.Dir(artifact.Path), artifact.Stem)
	}

	if existing, ok := target[key]; ok && !force && !artifact.ModTime.After(existing.ModTime) {
		return
	}
	target[key] = artifact
}

// ObjectPaths returns the object paths of a selection map ordered by key.
func ObjectPaths(artifacts map[string]Artifact) []string {
	paths := make([]string, 0, len(artifacts))
	for _, key := range sortedKeys(artifacts) {
		paths = append(paths, artifacts[key].Path)
	}
	return paths
}

// CompanionPaths returns the companion paths of a selection map ordered
// by key.
func CompanionPaths(artifacts map[string]Artifact) []string {
	paths := make([]string, 0, len(artifacts)*2)
	for _, key := range sortedKeys(artifacts) {
		for _, path := range artifacts[key].Deps {
			if path != "" {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// SysrootPaths returns the companion paths of the sysroot crates found
// among the dependency crates.
func (r *Result) SysrootPaths() []string {
	var paths []string
	for _, key := range sortedKeys(r.Other) {
		artifact := r.Other[key]
		if slices.Contains(SysrootCrates, artifact.Crate) {
			paths = append(paths, artifact.Deps[:]...)
		}
	}
	return paths
}

// Log writes the sorted crate lists at debug level.
func (r *Result) Log(logger *slog.Logger) {
	logger.Debug("application object files", "crates", sortedKeys(r.Apps))
	logger.Debug("kernel object files", "crates", sortedKeys(r.Kernel))
	logger.Debug("other object files", "crates", sortedKeys(r.Other))
}

func sortedKeys(artifacts map[string]Artifact) []string {
	keys := make([]string, 0, len(artifacts))
	for key := range artifacts {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
