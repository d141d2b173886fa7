// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/version"
)

func (a *app) versionCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVarP(&verbose, "verbose", "v", false, "include the Go version, platform and binary digest")
			return flagSet
		},
		Run: func(args []string) error {
			if !verbose {
				_, err := fmt.Fprintln(a.stdout, version.Info())
				return err
			}
			fmt.Fprintln(a.stdout, version.Full())
			digest, path, err := version.SelfDigest()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "  Binary: %s\n  Digest: %s\n", path, digest)
			return err
		},
	}
}
