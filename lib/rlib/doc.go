// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package rlib reads compiler library archives and merges the ones that
// carry more than one native object.
//
// An rlib is a Unix ar archive. A normal crate produces exactly two
// members: the crate metadata and one object file. When a build script
// or multiple codegen units add further objects, the archive violates
// the one-object-per-module rule of the kernel loader. [Unpacker]
// extracts the objects of such archives and has the external linker
// merge them with a relocatable link into <stem>.o next to the archive.
//
// [Reader] understands the GNU variant (symbol table "/", long-name
// table "//", "/<offset>" references) and the BSD variant ("#1/<len>"
// inline names, "__.SYMDEF" symbol tables). Symbol and name tables are
// format bookkeeping and are never reported as members. Thin archives
// are rejected.
package rlib
