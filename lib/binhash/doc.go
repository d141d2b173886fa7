// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes content digests of build outputs.
//
// Digests are BLAKE3 in keyed mode with a fixed domain key, so a module
// digest can never be confused with a plain BLAKE3 hash of the same
// bytes computed elsewhere. The API surface is three functions:
//
//   - [HashFile] streams a file through the hasher with constant
//     memory.
//   - [FormatDigest] renders a digest as lower-case hex, the form
//     stored in the build manifest and printed by the CLI.
//   - [ParseDigest] parses that form back, validating length and
//     encoding.
package binhash
