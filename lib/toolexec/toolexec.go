// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Invocation describes one external tool run.
type Invocation struct {
	// Stage is the pipeline stage issuing the invocation. Used only for
	// error reporting and logging.
	Stage string

	// Tool is the program name or path. Names without a slash are
	// resolved through PATH.
	Tool string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string

	// Dir is the working directory. Empty means the current one.
	Dir string
}

// String renders the invocation as a command line for log output.
func (invocation Invocation) String() string {
	if len(invocation.Args) == 0 {
		return invocation.Tool
	}
	return invocation.Tool + " " + strings.Join(invocation.Args, " ")
}

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, invocation Invocation) error
}

// Error reports a failed tool invocation: either the process could
// not be started or it exited with a non-zero status.
type Error struct {
	Stage  string
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	command := Invocation{Tool: e.Tool, Args: e.Args}.String()
	if e.Stderr != "" {
		return fmt.Sprintf("%s invocation failed (%s): %v: %s", e.Tool, command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s invocation failed (%s): %v", e.Tool, command, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// stderrTailLimit bounds how much of a failing tool's stderr is kept
// for the error message. The full stream still reaches the terminal.
const stderrTailLimit = 4096

// ExecRunner runs tools as child processes.
type ExecRunner struct {
	// Logger receives one debug record per invocation. May be nil.
	Logger *slog.Logger

	// Stdout and Stderr receive the tool's output streams. Nil means
	// the corresponding stream of this process.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin is connected to the tool's standard input. Nil means no
	// input. Interactive tools such as an emulator need os.Stdin.
	Stdin io.Reader
}

// Run starts the tool and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, invocation Invocation) error {
	if r.Logger != nil {
		r.Logger.Debug("running tool",
			"stage", invocation.Stage,
			"command", invocation.String(),
		)
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	tail := &tailBuffer{limit: stderrTailLimit}
	command := exec.CommandContext(ctx, invocation.Tool, invocation.Args...)
	command.Stdin = r.Stdin
	command.Stdout = stdout
	command.Stderr = io.MultiWriter(stderr, tail)
	command.Dir = invocation.Dir
	if len(invocation.Env) > 0 {
		command.Env = append(os.Environ(), invocation.Env...)
	}

	if err := command.Run(); err != nil {
		return &Error{
			Stage:  invocation.Stage,
			Tool:   invocation.Tool,
			Args:   invocation.Args,
			Stderr: strings.TrimSpace(tail.String()),
			Err:    err,
		}
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data.Write(p)
	if overflow := b.data.Len() - b.limit; overflow > 0 {
		b.data.Next(overflow)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data.String()
}
