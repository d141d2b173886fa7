// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolexec runs the external tools a build drives: the linker,
// assembler, symbol stripper, downloader, archive extractor, ISO author,
// and boot-loader installer.
//
// Every invocation is synchronous and blocking. A spawn failure or a
// non-zero exit status is returned as an [*Error] naming the stage and
// the tool; the tool's output is streamed to the configured writers
// and never inspected beyond the exit status. There are no retries and
// no timeouts beyond cancellation of the caller's context.
//
// Stages depend on the [Runner] interface rather than on os/exec so
// they can be exercised without the real toolchain. [Recorder] is the
// in-memory implementation used by tests: it records every invocation
// and can simulate a tool's side effects (for example, a linker
// writing its output file).
package toolexec
