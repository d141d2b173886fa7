// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the cellbuild command tree.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/config"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// app carries the process-wide dependencies of every command.
type app struct {
	stdout    io.Writer
	newLogger func(quiet bool) *slog.Logger
	newRunner func(logger *slog.Logger) toolexec.Runner
}

// Root returns the cellbuild command tree.
func Root() *cli.Command {
	return newRoot(&app{
		stdout:    os.Stdout,
		newLogger: cli.NewCommandLogger,
		newRunner: func(logger *slog.Logger) toolexec.Runner {
			return &toolexec.ExecRunner{Logger: logger}
		},
	})
}

func newRoot(a *app) *cli.Command {
	return &cli.Command{
		Name:    "cellbuild",
		Summary: "Build and package Theseus kernel cells",
		Description: `cellbuild turns compiled Theseus crates into a bootable image.

It runs a fixed sequence of stages: build the crates, link the nanocore,
merge multi-object rlibs, select one object per crate, normalize and
strip every module, and package the modules with grub or limine.`,
		Subcommands: []*cli.Command{
			a.buildCommand(),
			a.stagesCommand(),
			a.discoverCommand(),
			a.genMkConfigCommand(),
			a.runQemuCommand(),
			a.manifestCommand(),
			a.versionCommand(),
		},
	}
}

// configOptions is the --config flag shared by commands that load the
// build configuration.
type configOptions struct {
	path string
}

func (o *configOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.path, "config", "c", "",
		"configuration file (default $"+config.EnvironmentVariable+" or "+config.DefaultPath+")")
}

// load reads and validates the configuration with the command-line
// overrides applied.
func (o *configOptions) load(overrides []string) (*config.Config, error) {
	cfg, err := config.Load(o.path, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM, which stops any
// running tool and the remaining stages.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
