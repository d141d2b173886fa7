// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package rlib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/theseus-os/cellbuild/lib/crateset"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// Stage is the pipeline stage name used for tool invocations.
const Stage = "relink-rlibs"

// ExpectedMembers is the member count of a well-formed single-object
// rlib: one metadata member and one object.
const ExpectedMembers = 2

// MergedObject is an object produced by merging a multi-object rlib.
type MergedObject struct {
	Crate   string
	Stem    string
	Path    string
	Members int
}

// Unpacker merges multi-object rlibs. Its fields are read-only after
// construction.
type Unpacker struct {
	Runner toolexec.Runner
	Logger *slog.Logger

	// Linker is invoked as "<Linker> -r --output <out> <objects...>".
	Linker string

	// ScratchDir receives one subdirectory per merged archive, named
	// after the archive file.
	ScratchDir string

	// RemoveScratch deletes each archive's scratch subdirectory after a
	// successful merge.
	RemoveScratch bool
}

// IsRlibName reports whether a file name looks like a crate archive.
func IsRlibName(name string) bool {
	return strings.HasPrefix(name, "lib") && strings.HasSuffix(name, ".rlib") && len(name) > len("lib.rlib")
}

// Process merges every multi-object rlib in depsDir into
// <depsDir>/<stem>.o. Archives with at most ExpectedMembers members are
// left alone. The returned objects are in directory listing order.
func (u *Unpacker) Process(ctx context.Context, depsDir string) ([]MergedObject, error) {
	entries, err := os.ReadDir(depsDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", depsDir, err)
	}

	var merged []MergedObject
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsRlibName(entry.Name()) {
			continue
		}
		archivePath := filepath.Join(depsDir, entry.Name())
		count, err := CountMembers(archivePath)
		if err != nil {
			return nil, err
		}
		if count <= ExpectedMembers {
			continue
		}

		object, err := u.merge(ctx, depsDir, entry.Name(), count)
		if err != nil {
			return nil, err
		}
		merged = append(merged, object)
	}
	return merged, nil
}

func (u *Unpacker) merge(ctx context.Context, depsDir, archiveName string, count int) (MergedObject, error) {
	logger := u.logger()
	logger.Info("relinking rlib", "archive", archiveName, "members", count)

	scratch := filepath.Join(u.ScratchDir, archiveName)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return MergedObject{}, fmt.Errorf("creating scratch directory: %w", err)
	}

	objects, err := ExtractObjects(filepath.Join(depsDir, archiveName), scratch)
	if err != nil {
		return MergedObject{}, err
	}
	if len(objects) == 0 {
		return MergedObject{}, fmt.Errorf("%s has %d members but no object files", archiveName, count)
	}

	stem := strings.TrimSuffix(strings.TrimPrefix(archiveName, "lib"), ".rlib")
	output := filepath.Join(depsDir, stem+".o")
	args := append([]string{"-r", "--output", output}, objects...)
	if err := u.Runner.Run(ctx, toolexec.Invocation{Stage: Stage, Tool: u.Linker, Args: args}); err != nil {
		return MergedObject{}, err
	}

	if u.RemoveScratch {
		if err := os.RemoveAll(scratch); err != nil {
			return MergedObject{}, fmt.Errorf("removing %s: %w", scratch, err)
		}
	}

	return MergedObject{
		Crate:   crateset.CrateName(stem),
		Stem:    stem,
		Path:    output,
		Members: count,
	}, nil
}

func (u *Unpacker) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// ExtractObjects writes every member of the archive whose name ends in
// ".o" into dir and returns the written paths in archive order. Member
// names are reduced to their base name; a repeated name gets a numeric
// prefix so no member overwrites another.
func ExtractObjects(archivePath, dir string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer file.Close()

	reader, err := NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}

	seen := make(map[string]bool)
	var paths []string
	for index := 0; ; index++ {
		header, err := reader.Next()
		if err == io.EOF {
			return paths, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", archivePath, err)
		}
		name := filepath.Base(header.Name)
		if !strings.HasSuffix(name, ".o") {
			continue
		}
		if seen[name] {
			name = fmt.Sprintf("%d-%s", index, name)
		}
		seen[name] = true

		path := filepath.Join(dir, name)
		if err := writeMember(path, reader); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
}

func writeMember(path string, data io.Reader) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(output, data); err != nil {
		output.Close()
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
