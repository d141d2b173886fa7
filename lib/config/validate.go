// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/theseus-os/cellbuild/lib/bootimage"
)

// Validate checks enumerations and required values and returns every
// problem joined into one error.
func (c *Config) Validate() error {
	var errs []error

	required := []struct{ key, value string }{
		{"root", c.Root},
		{"build_dir", c.BuildDir},
		{"target", c.Target},
		{"output_iso", c.OutputISO},
		{"nanocore_path", c.NanocorePath},
		{"directories.modules", c.Directories.Modules},
		{"directories.isofiles", c.Directories.IsoFiles},
		{"directories.deps", c.Directories.Deps},
		{"directories.target_deps", c.Directories.TargetDeps},
		{"directories.debug_symbols", c.Directories.DebugSymbols},
		{"directories.extracted_rlibs", c.Directories.ExtractedRlibs},
		{"relink_objects.linker", c.RelinkObjects.Linker},
		{"relink_objects.stripper", c.RelinkObjects.Stripper},
		{"strip_objects.stripper", c.StripObjects.Stripper},
		{"relink_rlibs.linker", c.RelinkRlibs.Linker},
		{"add_bootloader.nanocore_destination", c.AddBootloader.NanocoreDestination},
	}
	for _, field := range required {
		if field.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field.key))
		}
	}

	if !slices.Contains([]string{"debug", "release"}, c.BuildMode) {
		errs = append(errs, fmt.Errorf("build_mode must be \"debug\" or \"release\", got %q", c.BuildMode))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must not be negative, got %d", c.Jobs))
	}

	boot := c.AddBootloader
	if err := bootimage.ValidateBootloader(boot.Bootloader); err != nil {
		errs = append(errs, fmt.Errorf("add_bootloader.bootloader: %w", err))
	}
	if boot.Bootloader == bootimage.Limine {
		if _, err := bootimage.DownloaderOutputFlag(boot.Downloader); err != nil {
			errs = append(errs, fmt.Errorf("add_bootloader.downloader: %w", err))
		}
		if err := bootimage.ValidateExtractor(boot.Extractor); err != nil {
			errs = append(errs, fmt.Errorf("add_bootloader.extractor: %w", err))
		}
		if err := bootimage.SizePrefix(boot.SizePrefix).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("add_bootloader.size_prefix: %w", err))
		}
		if boot.ExpectedSubdir == "" {
			errs = append(errs, fmt.Errorf("add_bootloader.expected_subdir is required for limine"))
		}
	}

	if c.Publish.Enabled {
		if c.Publish.Endpoint == "" {
			errs = append(errs, fmt.Errorf("publish.endpoint is required when publishing"))
		}
		if c.Publish.Bucket == "" {
			errs = append(errs, fmt.Errorf("publish.bucket is required when publishing"))
		}
	}

	return errors.Join(errs...)
}
