// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/pipeline"
)

type stageEntry struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Barrier string `json:"barrier,omitempty"`
}

func (a *app) stagesCommand() *cli.Command {
	var options struct {
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "stages",
		Summary: "List the build stages in execution order",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stages", pflag.ContinueOnError)
			options.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			var entries []stageEntry
			for _, stage := range pipeline.Stages() {
				entries = append(entries, stageEntry{Name: stage.Name, Summary: stage.Summary, Barrier: stage.Barrier})
			}
			if done, err := options.EmitJSON(a.stdout, entries); done {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			for _, entry := range entries {
				barrier := ""
				if entry.Barrier != "" {
					barrier = "then " + entry.Barrier
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name, entry.Summary, barrier)
			}
			return tw.Flush()
		},
	}
}
