// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already written its
// own output, as "manifest --verify" does when it lists mismatches.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// OutcomeReported marks the error as already reported, so
// process.Fatal exits with Code and prints nothing.
func (e *ExitError) OutcomeReported() bool {
	return true
}
