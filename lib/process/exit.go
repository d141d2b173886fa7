// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ReportedExit is implemented by errors whose command has already
// written its outcome and only needs a specific exit status. An exit
// code alone is not enough: *exec.ExitError carries one too, and a
// failing tool must still be reported.
type ReportedExit interface {
	ExitCode() int
	OutcomeReported() bool
}

// Fatal reports err and exits. A pipeline failure prints as
// "error: [stage] message".
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w the way Fatal does and returns the exit code
// Fatal would use.
func Report(w io.Writer, err error) int {
	var reported ReportedExit
	if errors.As(err, &reported) && reported.OutcomeReported() {
		return reported.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
