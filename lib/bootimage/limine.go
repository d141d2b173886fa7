// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package bootimage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/theseus-os/cellbuild/lib/tarball"
)

// BuiltinConfig selects the compiled-in limine.cfg.
const BuiltinConfig = "built-in"

//go:embed limine.cfg
var builtinLimineConfig string

// limineImports are copied from the prebuilt cache into the image root.
var limineImports = []string{"limine-cd.bin", "limine-cd-efi.bin", "limine.sys"}

// Downloader names.
const (
	Wget = "wget"
	Curl = "curl"
)

// Extractor names.
const (
	ExtractorTar     = "tar"
	ExtractorBuiltin = "builtin"
)

// ErrUnknownDownloader is returned for a downloader that is neither
// wget nor curl.
var ErrUnknownDownloader = errors.New("unsupported downloader")

// DownloaderOutputFlag returns the flag that names the output file for
// the given downloader.
func DownloaderOutputFlag(downloader string) (string, error) {
	switch downloader {
	case Wget:
		return "-O", nil
	case Curl:
		return "-o", nil
	}
	return "", fmt.Errorf("%w: %q; must be %q or %q", ErrUnknownDownloader, downloader, Wget, Curl)
}

// ValidateExtractor reports whether name selects a supported extractor.
func ValidateExtractor(name string) error {
	switch name {
	case ExtractorTar, ExtractorBuiltin:
		return nil
	}
	return fmt.Errorf("unsupported extractor %q; must be %q or %q", name, ExtractorTar, ExtractorBuiltin)
}

func (a *Assembler) assembleLimine(ctx context.Context, moduleDir string, modules []string) error {
	limine := a.Config.Limine
	logger := a.logger()

	logger.Info("compressing boot modules", "modules", len(modules))
	archive, err := BuildModuleArchive(moduleDir, modules)
	if err != nil {
		return err
	}
	frame, err := CompressArchive(archive, limine.SizePrefix)
	if err != nil {
		return err
	}
	archivePath := filepath.Join(a.Config.IsoFilesDir, ModuleArchiveName)
	if err := os.WriteFile(archivePath, frame, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", archivePath, err)
	}

	if err := a.ensureLimineCache(ctx); err != nil {
		return err
	}

	logger.Info("importing limine prebuilt binaries", "from", limine.ExpectedSubdir)
	for _, name := range limineImports {
		source := filepath.Join(limine.ExpectedSubdir, name)
		if err := copyFile(source, filepath.Join(a.Config.IsoFilesDir, name)); err != nil {
			return err
		}
	}

	logger.Info("adding limine config", "config", limine.Config)
	configContents := builtinLimineConfig
	if limine.Config != BuiltinConfig {
		data, err := os.ReadFile(limine.Config)
		if err != nil {
			return fmt.Errorf("reading limine config: %w", err)
		}
		configContents = string(data)
	}
	limineCfg := filepath.Join(a.Config.IsoFilesDir, "limine.cfg")
	if err := os.WriteFile(limineCfg, []byte(configContents), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", limineCfg, err)
	}

	if err := os.Remove(a.Config.ISO); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing previous image %s: %w", a.Config.ISO, err)
	}

	logger.Info("assembling the image", "tool", limine.Xorriso, "iso", a.Config.ISO)
	err = a.run(ctx, limine.Xorriso,
		"-as", "mkisofs",
		"-b", "limine-cd.bin",
		"-no-emul-boot",
		"-boot-load-size", "4",
		"-boot-info-table",
		"--efi-boot", "limine-cd-efi.bin",
		"-efi-boot-part",
		"--efi-boot-image",
		"--protective-msdos-label",
		a.Config.IsoFilesDir,
		"-o", a.Config.ISO,
	)
	if err != nil {
		return err
	}

	logger.Info("building limine-deploy")
	if err := a.run(ctx, toolOrDefault(limine.Make, "make"), "-C", limine.ExpectedSubdir); err != nil {
		return err
	}

	logger.Info("running limine-deploy on the image")
	return a.run(ctx, filepath.Join(limine.ExpectedSubdir, "limine-deploy"), a.Config.ISO)
}

// ensureLimineCache populates the prebuilt cache unless its expected
// subdirectory already exists.
func (a *Assembler) ensureLimineCache(ctx context.Context) error {
	limine := a.Config.Limine
	if _, err := os.Stat(limine.ExpectedSubdir); err == nil {
		return nil
	}
	logger := a.logger()
	logger.Info("fetching limine prebuilt binaries")

	tarballPath := limine.TarballPath
	if _, err := os.Stat(tarballPath); err == nil {
		logger.Info("reusing downloaded tarball", "path", tarballPath)
	} else if strings.HasPrefix(limine.Tarball, "https://") {
		flag, err := DownloaderOutputFlag(limine.Downloader)
		if err != nil {
			return err
		}
		if err := a.run(ctx, limine.Downloader, flag, tarballPath, limine.Tarball); err != nil {
			return err
		}
	} else {
		tarballPath = limine.Tarball
	}

	logger.Info("extracting limine prebuilt binaries", "tarball", tarballPath, "extractor", limine.Extractor)
	if err := os.MkdirAll(limine.ExtractDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", limine.ExtractDir, err)
	}
	switch limine.Extractor {
	case ExtractorBuiltin:
		return tarball.ExtractFile(tarballPath, limine.ExtractDir)
	case "", ExtractorTar:
		return a.run(ctx, toolOrDefault(limine.Tar, "tar"), "-axf", tarballPath, "-C", limine.ExtractDir)
	}
	return ValidateExtractor(limine.Extractor)
}

func toolOrDefault(tool, fallback string) string {
	if tool == "" {
		return fallback
	}
	return tool
}
