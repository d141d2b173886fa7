// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package bootimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// Stage is the pipeline stage name used for tool invocations.
const Stage = "add-bootloader"

// Boot loader names.
const (
	Grub   = "grub"
	Limine = "limine"
)

// ErrUnknownBootloader is returned when the configured boot loader is
// neither grub nor limine.
var ErrUnknownBootloader = errors.New("unknown bootloader")

// ValidateBootloader reports whether name selects a supported boot
// loader.
func ValidateBootloader(name string) error {
	switch name {
	case Grub, Limine:
		return nil
	}
	return fmt.Errorf("%w %q; must be %q or %q", ErrUnknownBootloader, name, Grub, Limine)
}

// Config is the image assembly configuration.
type Config struct {
	Bootloader string

	// ISO is the output image path.
	ISO string

	// IsoFilesDir is the root of the image tree.
	IsoFilesDir string

	// NanocorePath is copied to NanocoreDestination (normally
	// <IsoFilesDir>/boot/kernel.bin) before the loader is set up.
	NanocorePath        string
	NanocoreDestination string

	GrubMkrescue string

	Limine LimineConfig
}

// LimineConfig configures the limine path.
type LimineConfig struct {
	// Config is BuiltinConfig or a path to a limine.cfg.
	Config string

	// Tarball is an https:// URL or a local path of the prebuilt
	// binaries tarball.
	Tarball string

	// TarballPath is where a downloaded tarball is stored. An existing
	// file there is reused without downloading.
	TarballPath string

	// ExtractDir receives the extracted tarball; ExpectedSubdir is the
	// directory inside it whose presence marks the cache as populated.
	ExtractDir     string
	ExpectedSubdir string

	// Downloader is "wget" or "curl".
	Downloader string

	// Extractor is "tar" (external) or "builtin".
	Extractor string

	Xorriso string
	Make    string
	Tar     string

	// SizePrefix selects the module archive frame; see [SizePrefix].
	SizePrefix SizePrefix
}

// Assembler builds the boot image.
type Assembler struct {
	Runner toolexec.Runner
	Logger *slog.Logger
	Config Config
}

// Process assembles the image from the modules in moduleDir.
func (a *Assembler) Process(ctx context.Context, moduleDir string) error {
	if err := ValidateBootloader(a.Config.Bootloader); err != nil {
		return err
	}
	logger := a.logger()
	logger.Info("adding the bootloader", "bootloader", a.Config.Bootloader)

	if err := os.MkdirAll(filepath.Dir(a.Config.NanocoreDestination), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(a.Config.NanocoreDestination), err)
	}
	if err := copyFile(a.Config.NanocorePath, a.Config.NanocoreDestination); err != nil {
		return err
	}

	modules, err := ListModules(moduleDir)
	if err != nil {
		return err
	}

	if a.Config.Bootloader == Grub {
		return a.assembleGrub(ctx, modules)
	}
	return a.assembleLimine(ctx, moduleDir, modules)
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (a *Assembler) run(ctx context.Context, tool string, args ...string) error {
	return a.Runner.Run(ctx, toolexec.Invocation{Stage: Stage, Tool: tool, Args: args})
}

// ListModules returns the names of the regular files in moduleDir in
// listing (name) order.
func ListModules(moduleDir string) ([]string, error) {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", moduleDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(destination)
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
