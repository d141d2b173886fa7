// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package relink normalizes the section layout of every module object.
//
// Per-item code generation emits one input section per function and
// data item. The kernel's module loader expects the canonical layout,
// so each object is passed through a relocatable link with a fixed
// linker script that coalesces those sections, written to a temporary
// path and renamed over the original. The exception-handling tables
// (GCC_except_table*) that the loader cannot process are then stripped.
//
// Objects are independent, so [Relinker.Process] handles them in
// parallel. The rename assumes the temporary path and the module share
// a filesystem.
package relink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/theseus-os/cellbuild/lib/toolexec"
	"github.com/theseus-os/cellbuild/lib/workpool"
)

// Stage is the pipeline stage name used for tool invocations.
const Stage = "relink-objects"

// ExceptTableSymbols is the wildcard pattern of the stripped
// exception-handling symbols.
const ExceptTableSymbols = "GCC_except_table*"

// relinkedSuffix names the temporary output next to each object.
const relinkedSuffix = "-relinked"

// Tools holds the read-only tool configuration copied into every worker.
type Tools struct {
	Linker       string
	Stripper     string
	LinkerScript string
}

// Relinker runs the normalization over a module directory.
type Relinker struct {
	Runner toolexec.Runner
	Logger *slog.Logger
	Tools  Tools

	// Jobs bounds the number of concurrent objects. Non-positive means
	// one per CPU.
	Jobs int
}

// Process normalizes every *.o file in moduleDir. The first failure
// cancels the remaining work and is returned.
func (r *Relinker) Process(ctx context.Context, moduleDir string) error {
	objects, err := ListObjects(moduleDir)
	if err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("relinking objects", "count", len(objects))
	}

	tools := r.Tools
	return workpool.Run(ctx, r.Jobs, objects, func(ctx context.Context, path string) error {
		return relinkObject(ctx, r.Runner, tools, path)
	})
}

func relinkObject(ctx context.Context, runner toolexec.Runner, tools Tools, path string) error {
	temporary := path + relinkedSuffix
	err := runner.Run(ctx, toolexec.Invocation{
		Stage: Stage,
		Tool:  tools.Linker,
		Args:  []string{"-r", "-T", tools.LinkerScript, "-o", temporary, path},
	})
	if err != nil {
		return err
	}
	if err := os.Rename(temporary, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return runner.Run(ctx, toolexec.Invocation{
		Stage: Stage,
		Tool:  tools.Stripper,
		Args:  []string{"--wildcard", "--strip-symbol=" + ExceptTableSymbols, path},
	})
}

// ListObjects returns the paths of the regular *.o files in dir in
// name order.
func ListObjects(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var objects []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".o") {
			objects = append(objects, filepath.Join(dir, entry.Name()))
		}
	}
	return objects, nil
}
