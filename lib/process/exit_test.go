// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"testing"

	"github.com/theseus-os/cellbuild/lib/pipeline"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

type reportedError struct{ code int }

func (e *reportedError) Error() string         { return fmt.Sprintf("exit %d", e.code) }
func (e *reportedError) ExitCode() int         { return e.code }
func (e *reportedError) OutcomeReported() bool { return true }

func TestReportPlainError(t *testing.T) {
	var buffer bytes.Buffer
	code := Report(&buffer, errors.New("[strip-objects] strip failed"))
	if code != 1 {
		t.Errorf("Report() = %d, want 1", code)
	}
	if got, want := buffer.String(), "error: [strip-objects] strip failed\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestReportReportedExit(t *testing.T) {
	var buffer bytes.Buffer
	code := Report(&buffer, fmt.Errorf("verify: %w", &reportedError{code: 3}))
	if code != 3 {
		t.Errorf("Report() = %d, want 3", code)
	}
	if buffer.Len() != 0 {
		t.Errorf("output = %q, want nothing", buffer.String())
	}
}

func TestReportToolFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := &toolexec.ExecRunner{Stdout: io.Discard, Stderr: io.Discard}
	err := runner.Run(context.Background(), toolexec.Invocation{
		Stage: "relink-objects",
		Tool:  "sh",
		Args:  []string{"-c", "exit 7"},
	})
	if err == nil {
		t.Fatal("Run() should fail for a non-zero exit")
	}
	err = &pipeline.StageError{Stage: "relink-objects", Err: err}

	var buffer bytes.Buffer
	code := Report(&buffer, err)
	if code != 1 {
		t.Errorf("Report() = %d, want 1", code)
	}
	if got, want := buffer.String(), "error: "+err.Error()+"\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !bytes.Contains(buffer.Bytes(), []byte("[relink-objects] sh invocation failed")) {
		t.Errorf("output = %q, want the stage-tagged tool failure", buffer.String())
	}
}
