// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/pipeline"
)

type buildOptions struct {
	configOptions
	quiet  bool
	jobs   int
	stages []string
}

func (a *app) buildCommand() *cli.Command {
	var options buildOptions
	return &cli.Command{
		Name:    "build",
		Summary: "Run the build stages",
		Description: `Run every build stage in order, or only the stages named with --stages.

Configuration overrides follow the flags as key=value pairs. A list is
written as key=[ a b c ] with the brackets as separate arguments.`,
		Usage: "cellbuild build [flags] [key=value...]",
		Examples: []cli.Example{
			{Description: "Full build with the default configuration", Command: "cellbuild build"},
			{Description: "Repackage existing modules with limine", Command: "cellbuild build --stages add-bootloader,write-manifest add_bootloader.bootloader=limine"},
			{Description: "Debug build with extra cargo flags", Command: "cellbuild build build_mode=debug build_cells.cargo_flags=[ --features mirror_log ]"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.BoolVarP(&options.quiet, "quiet", "q", false, "only log warnings and errors")
			flagSet.IntVarP(&options.jobs, "jobs", "j", 0, "parallel workers for relink-objects and strip-objects (default from config)")
			flagSet.StringSliceVar(&options.stages, "stages", nil, "comma-separated stages to run (default all)")
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			return a.runBuild(&options, args)
		},
	}
}

func (a *app) runBuild(options *buildOptions, overrides []string) error {
	if err := checkStageNames(options.stages); err != nil {
		return err
	}
	stages, err := pipeline.Select(options.stages)
	if err != nil {
		return err
	}

	cfg, err := options.load(overrides)
	if err != nil {
		return err
	}
	if options.jobs > 0 {
		cfg.Jobs = options.jobs
	}

	logger := a.newLogger(options.quiet)
	env := &pipeline.Env{
		Config: cfg,
		Runner: a.newRunner(logger),
		Logger: logger,
	}

	ctx, cancel := signalContext()
	defer cancel()
	return pipeline.Run(ctx, env, stages)
}

// checkStageNames rejects unknown stage names with a suggestion.
func checkStageNames(names []string) error {
	known := pipeline.Names()
	for _, name := range names {
		if slices.Contains(known, name) {
			continue
		}
		if suggestion := cli.Closest(name, known); suggestion != "" {
			return fmt.Errorf("unknown stage %q (did you mean %q?)\n\nRun 'cellbuild stages' for the list.", name, suggestion)
		}
		return fmt.Errorf("unknown stage %q\n\nRun 'cellbuild stages' for the list.", name)
	}
	return nil
}
