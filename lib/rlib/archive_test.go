// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package rlib

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type testMember struct {
	name string
	data string
}

// buildGNUArchive writes a GNU-style archive with a symbol table and a
// long-name table, the layout the Rust compiler produces for rlibs.
func buildGNUArchive(members []testMember) []byte {
	var archive bytes.Buffer
	archive.WriteString(globalMagic)

	writeMember := func(name string, data []byte) {
		fmt.Fprintf(&archive, "%-16s%-12s%-6s%-6s%-8s%-10d%s", name, "0", "0", "0", "644", len(data), headerMagic)
		archive.Write(data)
		if len(data)%2 == 1 {
			archive.WriteByte('\n')
		}
	}

	writeMember("/", []byte{0, 0, 0, 0})

	var longNames bytes.Buffer
	offsets := make(map[string]int)
	for _, member := range members {
		if len(member.name) > 15 {
			offsets[member.name] = longNames.Len()
			longNames.WriteString(member.name + "/\n")
		}
	}
	if longNames.Len() > 0 {
		writeMember("//", longNames.Bytes())
	}

	for _, member := range members {
		if offset, ok := offsets[member.name]; ok {
			writeMember(fmt.Sprintf("/%d", offset), []byte(member.data))
		} else {
			writeMember(member.name+"/", []byte(member.data))
		}
	}
	return archive.Bytes()
}

// buildBSDArchive writes a BSD-style archive with inline names.
func buildBSDArchive(members []testMember) []byte {
	var archive bytes.Buffer
	archive.WriteString(globalMagic)
	all := append([]testMember{{name: "__.SYMDEF SORTED", data: "\x00\x00\x00\x00"}}, members...)
	for _, member := range all {
		name := []byte(member.name)
		for len(name)%4 != 0 {
			name = append(name, 0)
		}
		size := len(name) + len(member.data)
		fmt.Fprintf(&archive, "%-16s%-12s%-6s%-6s%-8s%-10d%s",
			fmt.Sprintf("#1/%d", len(name)), "0", "0", "0", "644", size, headerMagic)
		archive.Write(name)
		archive.WriteString(member.data)
		if size%2 == 1 {
			archive.WriteByte('\n')
		}
	}
	return archive.Bytes()
}

func writeArchive(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
