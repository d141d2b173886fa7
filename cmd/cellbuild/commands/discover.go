// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/cli"
	"github.com/theseus-os/cellbuild/lib/crateset"
)

// crateNameWidth is the column width of crate names in the listing.
const crateNameWidth = 30

// defaultListingWidth is used when stdout is not a terminal.
const defaultListingWidth = 100

type discoveredDir struct {
	Dir    string           `json:"dir"`
	Crates []crateset.Crate `json:"crates"`
}

func (a *app) discoverCommand() *cli.Command {
	var options struct {
		configOptions
		cli.JSONOutput
		width int
	}
	return &cli.Command{
		Name:    "discover",
		Summary: "List the crates of the source tree with their descriptions",
		Description: `List every crate below the directories named by the "discover" key,
with the description from its Cargo manifest.`,
		Usage: "cellbuild discover [flags] [key=value...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("discover", pflag.ContinueOnError)
			options.addFlags(flagSet)
			options.AddJSONFlag(flagSet)
			flagSet.IntVar(&options.width, "width", 0, "truncate lines to this width (default terminal width)")
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := options.load(args)
			if err != nil {
				return err
			}

			var listing []discoveredDir
			for _, dir := range cfg.Discover {
				crates, err := crateset.Describe(filepath.Join(cfg.Root, dir), cfg.CopyCrateObjects.ManifestName)
				if err != nil {
					return err
				}
				listing = append(listing, discoveredDir{Dir: dir, Crates: crates})
			}
			if done, err := options.EmitJSON(a.stdout, listing); done {
				return err
			}

			width := options.width
			if width <= 0 {
				width = terminalWidth(a.stdout)
			}
			return printDiscovered(a.stdout, listing, width)
		},
	}
}

func terminalWidth(w io.Writer) int {
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultListingWidth
}

// printDiscovered writes one section per directory and one line per
// crate: a bullet, the padded crate name and its description, cut to
// width.
func printDiscovered(w io.Writer, listing []discoveredDir, width int) error {
	renderer := lipgloss.NewRenderer(w)
	headerStyle := renderer.NewStyle().Bold(true).Underline(true)
	nameStyle := renderer.NewStyle().Width(crateNameWidth).Foreground(lipgloss.Color("6"))
	descriptionStyle := renderer.NewStyle().Faint(true)

	for index, section := range listing {
		if index > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, headerStyle.Render(section.Dir))
		for _, crate := range section.Crates {
			description := strings.TrimSpace(crate.Description)
			line := "• " + nameStyle.Render(crate.Name) + " " + descriptionStyle.Render(description)
			fmt.Fprintln(w, strings.TrimRight(ansi.Truncate(line, width, "…"), " "))
		}
	}
	return nil
}
