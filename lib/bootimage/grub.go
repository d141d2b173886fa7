// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package bootimage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GrubConfig renders grub.cfg for the given module names.
func GrubConfig(modules []string) string {
	var builder strings.Builder
	builder.WriteString("### This file has been autogenerated, do not manually modify it!\n")
	builder.WriteString("set timeout=0\n")
	builder.WriteString("set default=0\n\n")
	builder.WriteString("menuentry \"Theseus OS\" {\n")
	builder.WriteString("\tmultiboot2 /boot/kernel.bin \n")
	for _, name := range modules {
		fmt.Fprintf(&builder, "\tmodule2 /modules/%-50s\t\t%-50s\n", name, name)
	}
	builder.WriteString("\n\tboot\n}\n")
	return builder.String()
}

func (a *Assembler) assembleGrub(ctx context.Context, modules []string) error {
	grubDir := filepath.Join(a.Config.IsoFilesDir, "boot", "grub")
	if err := os.MkdirAll(grubDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", grubDir, err)
	}

	grubCfg := filepath.Join(grubDir, "grub.cfg")
	a.logger().Info("generating grub.cfg", "path", grubCfg, "modules", len(modules))
	if err := os.WriteFile(grubCfg, []byte(GrubConfig(modules)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", grubCfg, err)
	}

	a.logger().Info("creating the ISO", "tool", a.Config.GrubMkrescue, "iso", a.Config.ISO)
	return a.run(ctx, a.Config.GrubMkrescue, "-o", a.Config.ISO, a.Config.IsoFilesDir)
}
