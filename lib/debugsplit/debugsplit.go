// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package debugsplit separates debug information from the module
// objects and the nanocore binary.
//
// Every binary is first copied (never moved) into the debug-symbols
// directory under its own name. The copy is reduced to its debug
// sections with --only-keep-debug and the original loses its debug
// sections with --strip-debug. The copy always finishes before either
// strip runs for the same file; files are otherwise independent and
// processed in parallel.
package debugsplit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theseus-os/cellbuild/lib/relink"
	"github.com/theseus-os/cellbuild/lib/toolexec"
	"github.com/theseus-os/cellbuild/lib/workpool"
)

// Stage is the pipeline stage name used for tool invocations.
const Stage = "strip-objects"

// Tools holds the read-only tool configuration copied into every worker.
type Tools struct {
	Stripper string
}

// Binary is a file to split that does not live in the module
// directory, such as the nanocore binary. Name is the file name used
// inside the debug-symbols directory.
type Binary struct {
	Path string
	Name string
}

// Splitter runs the split over a module directory.
type Splitter struct {
	Runner   toolexec.Runner
	Logger   *slog.Logger
	Tools    Tools
	DebugDir string

	// Jobs bounds the number of concurrent files. Non-positive means
	// one per CPU.
	Jobs int
}

// Process splits every *.o file in moduleDir plus the extra binaries.
func (s *Splitter) Process(ctx context.Context, moduleDir string, extra []Binary) error {
	objects, err := relink.ListObjects(moduleDir)
	if err != nil {
		return err
	}
	binaries := make([]Binary, 0, len(objects)+len(extra))
	for _, path := range objects {
		binaries = append(binaries, Binary{Path: path, Name: filepath.Base(path)})
	}
	binaries = append(binaries, extra...)

	if s.Logger != nil {
		s.Logger.Info("splitting debug information", "count", len(binaries), "debug_dir", s.DebugDir)
	}

	tools := s.Tools
	debugDir := s.DebugDir
	return workpool.Run(ctx, s.Jobs, binaries, func(ctx context.Context, binary Binary) error {
		return split(ctx, s.Runner, tools, debugDir, binary)
	})
}

func split(ctx context.Context, runner toolexec.Runner, tools Tools, debugDir string, binary Binary) error {
	name := binary.Name
	if name == "" {
		name = filepath.Base(binary.Path)
	}
	debugCopy := filepath.Join(debugDir, name)
	if err := copyFile(binary.Path, debugCopy); err != nil {
		return err
	}

	err := runner.Run(ctx, toolexec.Invocation{
		Stage: Stage,
		Tool:  tools.Stripper,
		Args:  []string{"--only-keep-debug", debugCopy},
	})
	if err != nil {
		return err
	}
	return runner.Run(ctx, toolexec.Invocation{
		Stage: Stage,
		Tool:  tools.Stripper,
		Args:  []string{"--strip-debug", binary.Path},
	})
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", destination, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s to %s: %w", source, destination, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destination, err)
	}
	return nil
}
