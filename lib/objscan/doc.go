// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package objscan discovers the compiled object files of every crate
// across the candidate build-output directories and selects exactly
// one per crate.
//
// The compiler leaves stale outputs behind and a build may have several
// target directories, so the same crate can appear more than once.
// [Scan] keeps the artifact with the greatest modification time; on a
// tie the first one seen wins, which makes the candidate directory
// order a tie-breaker only. Each surviving object is classified:
//
//   - Apps: crates in the application set, keyed by crate name.
//   - Kernel: crates in the kernel set, keyed by crate name.
//   - Other: everything else (transitive and standard-library
//     dependencies), keyed by file stem. Distinct hashes of one crate
//     name are distinct crate versions and are all kept.
//
// Kernel and Other artifacts also carry the paths of their companion
// metadata files (lib<stem>.rmeta, lib<stem>.rlib) in the same
// directory. Those may not exist; [CopyFiles] skips missing sources.
//
// Objects merged from multi-object rlibs are passed to Scan as
// overrides and replace the selection for their crate regardless of
// timestamps.
package objscan
