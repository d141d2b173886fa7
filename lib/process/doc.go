// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint helpers for cellbuild.
// Fatal is the single place where an unrecoverable error leaves the
// process: stages and libraries return errors, and main hands the
// final one to Fatal.
//
// Errors implementing [ReportedExit], such as cli.ExitError, exit with
// their own code and print nothing, since the command already reported
// its outcome. Every other error, including a tool's non-zero exit,
// prints and exits 1.
package process
