// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package crateset derives the named sets of kernel and application
// crates that decide how compiled objects are classified.
//
// A set comes from one of two sources:
//
//   - a list file, one crate per line. Anything from the first hyphen
//     on is discarded, so a list of object file stems such as
//     "serial_port-3f1c2d" yields "serial_port".
//   - a crate source tree. Every directory that directly contains a
//     manifest file (Cargo.toml by default) contributes its own
//     directory name.
//
// [Describe] additionally reads the package description from each
// crate manifest for the discover listing.
package crateset
