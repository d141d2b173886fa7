// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
)

func (a *app) genMkConfigCommand() *cli.Command {
	var options struct {
		configOptions
		output string
	}
	return &cli.Command{
		Name:    "gen-mk-config",
		Summary: "Write the configuration as make variables",
		Description: `Flatten every configuration key into a KEY="value" line for inclusion
from a Makefile. Keys are upper-cased with "." and "-" replaced by "_";
lists are joined with spaces. Credentials are never written.`,
		Usage: "cellbuild gen-mk-config [flags] [key=value...]",
		Examples: []cli.Example{
			{Description: "Print the variables", Command: "cellbuild gen-mk-config --output -"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("gen-mk-config", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.StringVarP(&options.output, "output", "o", "", `output file, "-" for stdout (default gen_mk_config.output)`)
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := options.load(args)
			if err != nil {
				return err
			}
			lines, err := cfg.MakeVariables()
			if err != nil {
				return err
			}
			content := strings.Join(lines, "\n") + "\n"

			output := options.output
			if output == "" {
				output = cfg.GenMkConfig.Output
			}
			if output == "-" {
				_, err := fmt.Fprint(a.stdout, content)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(output), err)
			}
			if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			return nil
		},
	}
}
