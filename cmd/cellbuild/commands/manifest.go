// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/codec"
	"github.com/theseus-os/cellbuild/lib/manifest"
	"github.com/theseus-os/cellbuild/lib/pipeline"
)

func (a *app) manifestCommand() *cli.Command {
	var options struct {
		configOptions
		cli.JSONOutput
		file     string
		diagnose bool
		verify   bool
	}
	return &cli.Command{
		Name:    "manifest",
		Summary: "Show or verify the manifest of the last build",
		Description: `Print the manifest written by the write-manifest stage: the build ID,
boot loader, image digest, and the size and digest of every module.

With --verify, hash the current modules directory and list every module
that is missing, changed, or not in the manifest. Exits 1 if any differ.`,
		Usage: "cellbuild manifest [flags] [key=value...]",
		Examples: []cli.Example{
			{Description: "Check the modules against the last build", Command: "cellbuild manifest --verify"},
			{Description: "Show the raw CBOR in diagnostic notation", Command: "cellbuild manifest --diagnose"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("manifest", pflag.ContinueOnError)
			options.addFlags(flagSet)
			options.AddJSONFlag(flagSet)
			flagSet.StringVar(&options.file, "file", "", "manifest path (default <build_dir>/"+manifest.FileName+")")
			flagSet.BoolVar(&options.diagnose, "diagnose", false, "print the CBOR diagnostic notation")
			flagSet.BoolVar(&options.verify, "verify", false, "compare the manifest with the modules directory")
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := options.load(args)
			if err != nil {
				return err
			}
			path := options.file
			if path == "" {
				path = pipeline.ManifestPath(cfg)
			}

			if options.diagnose {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading manifest: %w", err)
				}
				diagnostic, err := codec.Diagnose(data)
				if err != nil {
					return fmt.Errorf("decoding %s: %w", path, err)
				}
				_, err = fmt.Fprintln(a.stdout, diagnostic)
				return err
			}

			built, err := manifest.Read(path)
			if err != nil {
				return err
			}

			if options.verify {
				mismatches, err := built.Verify(cfg.Directories.Modules)
				if err != nil {
					return err
				}
				if done, err := options.EmitJSON(a.stdout, mismatches); done {
					if err == nil && len(mismatches) > 0 {
						err = &cli.ExitError{Code: 1}
					}
					return err
				}
				for _, mismatch := range mismatches {
					fmt.Fprintln(a.stdout, mismatch.String())
				}
				if len(mismatches) > 0 {
					return &cli.ExitError{Code: 1}
				}
				fmt.Fprintf(a.stdout, "%d modules match build %s\n", len(built.Modules), built.BuildID)
				return nil
			}

			if done, err := options.EmitJSON(a.stdout, built); done {
				return err
			}
			fmt.Fprintf(a.stdout, "build      %s\n", built.BuildID)
			fmt.Fprintf(a.stdout, "created    %s\n", built.Created.Format(time.RFC3339))
			if built.Tool != "" {
				fmt.Fprintf(a.stdout, "tool       %s\n", built.Tool)
			}
			fmt.Fprintf(a.stdout, "bootloader %s\n", built.Bootloader)
			fmt.Fprintf(a.stdout, "image      %s %s\n", built.ISO, built.ISODigest)
			fmt.Fprintf(a.stdout, "modules    %d (%d bytes)\n\n", len(built.Modules), built.TotalSize())

			tw := tabwriter.NewWriter(a.stdout, 2, 0, 2, ' ', 0)
			for _, module := range built.Modules {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", module.Name, module.Size, module.Digest)
			}
			return tw.Flush()
		},
	}
}
