// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/theseus-os/cellbuild/lib/bootimage"
	"github.com/theseus-os/cellbuild/lib/config"
	"github.com/theseus-os/cellbuild/lib/crateset"
	"github.com/theseus-os/cellbuild/lib/debugsplit"
	"github.com/theseus-os/cellbuild/lib/manifest"
	"github.com/theseus-os/cellbuild/lib/objscan"
	"github.com/theseus-os/cellbuild/lib/publish"
	"github.com/theseus-os/cellbuild/lib/relink"
	"github.com/theseus-os/cellbuild/lib/rlib"
	"github.com/theseus-os/cellbuild/lib/toolexec"
	"github.com/theseus-os/cellbuild/lib/version"
)

func makeDirectories(_ context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	logger.Info("creating build directories")
	for _, dir := range []string{
		cfg.BuildDir,
		cfg.Directories.Nanocore,
		cfg.Directories.IsoFiles,
		cfg.Directories.Modules,
		cfg.Directories.Deps,
		cfg.Directories.Target,
		cfg.Directories.ExtractedRlibs,
		cfg.Directories.DebugSymbols,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func buildCells(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	if cfg.BuildMode != "debug" && cfg.BuildMode != "release" {
		return fmt.Errorf("build_mode must be \"debug\" or \"release\", got %q", cfg.BuildMode)
	}
	logger.Info("building all crates using cargo")

	args := []string{
		"+" + cfg.BuildCells.Toolchain,
		"build",
		"--manifest-path=" + cfg.BuildCells.ManifestPath,
		"--" + cfg.BuildMode,
		"--target-dir", cfg.Directories.Target,
		"--target", cfg.Target,
	}
	args = append(args, cfg.BuildCells.CargoFlags...)
	return env.Runner.Run(ctx, toolexec.Invocation{
		Stage: StageBuildCells,
		Tool:  cfg.BuildCells.Cargo,
		Args:  args,
		Env:   []string{"RUSTFLAGS=" + strings.Join(cfg.BuildCells.RustFlags, " ")},
	})
}

func linkNanocore(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	link := cfg.LinkNanocore
	logger.Info("compiling assembly trampolines", "dir", link.AsmSourcesDir)

	entries, err := os.ReadDir(link.AsmSourcesDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", link.AsmSourcesDir, err)
	}
	var objects []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".asm")
		if !ok || entry.IsDir() {
			continue
		}
		output := filepath.Join(cfg.Directories.Nanocore, fmt.Sprintf("asm_%s_%s.o", name, cfg.Arch))
		if err := env.Runner.Run(ctx, toolexec.Invocation{
			Stage: StageLinkNanocore,
			Tool:  link.Assembler,
			Args: []string{
				"-f", "elf64",
				"-i", link.AsmSourcesDir,
				filepath.Join(link.AsmSourcesDir, entry.Name()),
				"-o", output,
			},
		}); err != nil {
			return err
		}
		objects = append(objects, output)
	}

	logger.Info("linking nanocore", "output", cfg.NanocorePath)
	args := []string{"-n", "-T", link.LinkerScriptPath, "-o", cfg.NanocorePath}
	args = append(args, objects...)
	args = append(args, link.StaticLibPath)
	return env.Runner.Run(ctx, toolexec.Invocation{Stage: StageLinkNanocore, Tool: link.Linker, Args: args})
}

// CandidateDirs returns the directories scanned for crate objects: the
// deps directory of each extra target directory, then the build's own.
func CandidateDirs(cfg *config.Config) []string {
	dirs := make([]string, 0, len(cfg.CopyCrateObjects.ExtraTargetDirs)+1)
	for _, dir := range cfg.CopyCrateObjects.ExtraTargetDirs {
		dirs = append(dirs, filepath.Join(dir, cfg.Target, cfg.BuildMode, "deps"))
	}
	return append(dirs, cfg.Directories.TargetDeps)
}

func relinkRlibs(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	unpacker := &rlib.Unpacker{
		Runner:        env.Runner,
		Logger:        logger,
		Linker:        cfg.RelinkRlibs.Linker,
		ScratchDir:    cfg.Directories.ExtractedRlibs,
		RemoveScratch: cfg.RelinkRlibs.RemoveScratch,
	}
	logger.Info("finding rlibs to relink")

	// Merged objects are written next to their rlib, which for extra
	// target directories is outside the build tree.
	env.merged = nil
	for _, dir := range CandidateDirs(cfg) {
		merged, err := unpacker.Process(ctx, dir)
		if err != nil {
			return err
		}
		env.merged = append(env.merged, merged...)
	}
	logger.Info("rlibs merged", "count", len(env.merged))
	return nil
}

func copyCrateObjects(_ context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	copyConfig := cfg.CopyCrateObjects
	logger.Info("discovering crates")

	kernel, err := crateset.Resolve(crateset.Kernel, copyConfig.KernelCrates, copyConfig.ManifestName)
	if err != nil {
		return err
	}
	apps, err := crateset.Resolve(crateset.Application, copyConfig.ApplicationCrates, copyConfig.ManifestName)
	if err != nil {
		return err
	}
	apps.Add(copyConfig.ExtraApps...)

	overrides := make([]objscan.Override, 0, len(env.merged))
	for _, object := range env.merged {
		overrides = append(overrides, objscan.Override{Crate: object.Crate, Stem: object.Stem, Path: object.Path})
	}

	result, err := objscan.Scan(CandidateDirs(cfg), kernel, apps, overrides)
	if err != nil {
		return err
	}
	if copyConfig.Verbose {
		result.Log(logger)
	}

	for _, dir := range []string{cfg.Directories.Modules, cfg.Directories.Deps, cfg.Directories.Sysroot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	logger.Info("copying crate objects",
		"applications", len(result.Apps),
		"kernel", len(result.Kernel),
		"other", len(result.Other))

	copies := []struct {
		dir     string
		sources []string
		prefix  string
	}{
		{cfg.Directories.Modules, objscan.ObjectPaths(result.Apps), cfg.Prefixes.Applications},
		{cfg.Directories.Modules, objscan.ObjectPaths(result.Kernel), cfg.Prefixes.Kernel},
		{cfg.Directories.Modules, objscan.ObjectPaths(result.Other), cfg.Prefixes.Kernel},
		{cfg.Directories.Deps, objscan.CompanionPaths(result.Kernel), ""},
		{cfg.Directories.Deps, objscan.CompanionPaths(result.Other), ""},
		{cfg.Directories.Sysroot, result.SysrootPaths(), ""},
	}
	for _, batch := range copies {
		count, err := objscan.CopyFiles(batch.dir, batch.sources, batch.prefix)
		if err != nil {
			return err
		}
		logger.Debug("copied files", "dir", batch.dir, "prefix", batch.prefix, "count", count)
	}
	return nil
}

func relinkObjects(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	relinker := &relink.Relinker{
		Runner: env.Runner,
		Logger: logger,
		Tools: relink.Tools{
			Linker:       cfg.RelinkObjects.Linker,
			Stripper:     cfg.RelinkObjects.Stripper,
			LinkerScript: cfg.RelinkObjects.PartialRelinkingScript,
		},
		Jobs: cfg.Jobs,
	}
	return relinker.Process(ctx, cfg.Directories.Modules)
}

func stripObjects(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	splitter := &debugsplit.Splitter{
		Runner:   env.Runner,
		Logger:   logger,
		Tools:    debugsplit.Tools{Stripper: cfg.StripObjects.Stripper},
		DebugDir: cfg.Directories.DebugSymbols,
		Jobs:     cfg.Jobs,
	}
	var extra []debugsplit.Binary
	if cfg.StripObjects.StripNanocore {
		extra = append(extra, debugsplit.Binary{Path: cfg.NanocorePath, Name: filepath.Base(cfg.NanocorePath)})
	}
	return splitter.Process(ctx, cfg.Directories.Modules, extra)
}

// AssemblerConfig maps the add_bootloader section onto the image
// assembler's configuration.
func AssemblerConfig(cfg *config.Config) bootimage.Config {
	boot := cfg.AddBootloader
	return bootimage.Config{
		Bootloader:          boot.Bootloader,
		ISO:                 cfg.OutputISO,
		IsoFilesDir:         cfg.Directories.IsoFiles,
		NanocorePath:        cfg.NanocorePath,
		NanocoreDestination: boot.NanocoreDestination,
		GrubMkrescue:        boot.GrubMkrescue,
		Limine: bootimage.LimineConfig{
			Config:         boot.LimineConfig,
			Tarball:        boot.LimineTarball,
			TarballPath:    boot.TarballPath,
			ExtractDir:     boot.ExtractDir,
			ExpectedSubdir: boot.ExpectedSubdir,
			Downloader:     boot.Downloader,
			Extractor:      boot.Extractor,
			Xorriso:        boot.Xorriso,
			Make:           boot.Make,
			Tar:            boot.Tar,
			SizePrefix:     bootimage.SizePrefix(boot.SizePrefix),
		},
	}
}

func addBootloader(ctx context.Context, env *Env, logger *slog.Logger) error {
	assembler := &bootimage.Assembler{
		Runner: env.Runner,
		Logger: logger,
		Config: AssemblerConfig(env.Config),
	}
	return assembler.Process(ctx, env.Config.Directories.Modules)
}

// ManifestPath returns where the build manifest is written.
func ManifestPath(cfg *config.Config) string {
	return filepath.Join(cfg.BuildDir, manifest.FileName)
}

func writeManifest(_ context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	built, err := manifest.Build(cfg.Directories.Modules, manifest.Options{
		Bootloader: cfg.AddBootloader.Bootloader,
		ISO:        cfg.OutputISO,
		Tool:       version.Info(),
		Now:        env.Now,
		NewID:      env.NewID,
	})
	if err != nil {
		return err
	}
	path := ManifestPath(cfg)
	if err := manifest.Write(path, built); err != nil {
		return err
	}
	logger.Info("manifest written",
		"path", path,
		"build_id", built.BuildID,
		"modules", len(built.Modules),
		"bytes", built.TotalSize())
	return nil
}

func publishOutputs(ctx context.Context, env *Env, logger *slog.Logger) error {
	cfg := env.Config
	if !cfg.Publish.Enabled {
		logger.Debug("publishing disabled")
		return nil
	}

	manifestPath := ManifestPath(cfg)
	built, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}

	publishConfig := publish.Config{
		Endpoint:  cfg.Publish.Endpoint,
		Region:    cfg.Publish.Region,
		Bucket:    cfg.Publish.Bucket,
		Prefix:    cfg.Publish.Prefix,
		AccessKey: cfg.Publish.AccessKey,
		SecretKey: cfg.Publish.SecretKey,
		UseSSL:    cfg.Publish.UseSSL,
	}
	client := env.PublishClient
	if client == nil {
		minioClient, err := publish.NewClient(publishConfig)
		if err != nil {
			return err
		}
		client = minioClient
	}

	publisher := &publish.Publisher{Client: client, Config: publishConfig, Logger: logger}
	files := []string{cfg.OutputISO, manifestPath}
	keys, err := publisher.Publish(ctx, built.BuildID, files)
	if err != nil {
		return err
	}
	logger.Info("build published", "build_id", built.BuildID, "objects", len(keys))
	return nil
}

// QemuInvocation returns the run-qemu command line.
func QemuInvocation(cfg *config.Config) toolexec.Invocation {
	return toolexec.Invocation{
		Stage: "run-qemu",
		Tool:  cfg.RunQemu.Qemu,
		Args:  slices.Clone(cfg.RunQemu.ExtraArgs),
	}
}
