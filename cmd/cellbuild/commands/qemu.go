// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/pipeline"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

func (a *app) runQemuCommand() *cli.Command {
	var options configOptions
	return &cli.Command{
		Name:    "run-qemu",
		Summary: "Boot the built image in QEMU",
		Description: `Run the configured emulator with run_qemu.extra_args. The emulator
inherits the terminal, so "-serial mon:stdio" gives an interactive
console.`,
		Usage: "cellbuild run-qemu [flags] [key=value...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run-qemu", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := options.load(args)
			if err != nil {
				return err
			}
			logger := a.newLogger(false)
			runner := &toolexec.ExecRunner{Logger: logger, Stdin: os.Stdin}

			ctx, cancel := signalContext()
			defer cancel()
			return runner.Run(ctx, pipeline.QemuInvocation(cfg))
		},
	}
}
