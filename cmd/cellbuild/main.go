// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// cellbuild builds Theseus kernel cells into a bootable image. See
// "cellbuild --help" for the commands.
package main

import (
	"os"

	"github.com/theseus-os/cellbuild/cmd/cellbuild/commands"
	"github.com/theseus-os/cellbuild/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
