// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package debugsplit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// fakeStrip models a binary as "code|debug". --only-keep-debug keeps
// the part after the bar, --strip-debug the part before it.
func fakeStrip(invocation toolexec.Invocation) error {
	path := invocation.Args[len(invocation.Args)-1]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	code, debug, _ := strings.Cut(string(data), "|")
	switch invocation.Args[0] {
	case "--only-keep-debug":
		return os.WriteFile(path, []byte(debug), 0o644)
	case "--strip-debug":
		return os.WriteFile(path, []byte(code), 0o644)
	}
	return errors.New("unexpected strip mode")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestProcessSplitsModulesAndExtras(t *testing.T) {
	moduleDir := t.TempDir()
	debugDir := t.TempDir()
	nanocoreDir := t.TempDir()

	writeFile(t, filepath.Join(moduleDir, "k#memory-1.o"), "memcode|memdebug")
	writeFile(t, filepath.Join(moduleDir, "a#shell-2.o"), "shellcode|shelldebug")
	nanocore := filepath.Join(nanocoreDir, "nano_core-x86_64.bin")
	writeFile(t, nanocore, "boot|bootdebug")

	splitter := &Splitter{
		Runner:   &toolexec.Recorder{Handler: fakeStrip},
		Tools:    Tools{Stripper: "strip"},
		DebugDir: debugDir,
		Jobs:     3,
	}
	err := splitter.Process(context.Background(), moduleDir, []Binary{{Path: nanocore, Name: "nano_core.bin"}})
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	checks := map[string]string{
		filepath.Join(moduleDir, "k#memory-1.o"): "memcode",
		filepath.Join(moduleDir, "a#shell-2.o"):  "shellcode",
		nanocore:                                 "boot",
		filepath.Join(debugDir, "k#memory-1.o"):  "memdebug",
		filepath.Join(debugDir, "a#shell-2.o"):   "shelldebug",
		filepath.Join(debugDir, "nano_core.bin"): "bootdebug",
	}
	for path, want := range checks {
		if got := readFile(t, path); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestCopyPrecedesStrips(t *testing.T) {
	moduleDir := t.TempDir()
	debugDir := t.TempDir()
	writeFile(t, filepath.Join(moduleDir, "k#task-1.o"), "code|debug")

	copyMissing := false
	recorder := &toolexec.Recorder{Handler: func(invocation toolexec.Invocation) error {
		if _, err := os.Stat(filepath.Join(debugDir, "k#task-1.o")); err != nil {
			copyMissing = true
		}
		return nil
	}}
	splitter := &Splitter{Runner: recorder, Tools: Tools{Stripper: "strip"}, DebugDir: debugDir, Jobs: 1}
	if err := splitter.Process(context.Background(), moduleDir, nil); err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	calls := recorder.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d invocations, want 2", len(calls))
	}
	if calls[0].Args[0] != "--only-keep-debug" || calls[1].Args[0] != "--strip-debug" {
		t.Errorf("invocation order = %v, %v", calls[0].Args, calls[1].Args)
	}
	if copyMissing {
		t.Error("debug copy did not exist while the stripper ran")
	}
	if got := readFile(t, filepath.Join(moduleDir, "k#task-1.o")); got != "code|debug" {
		t.Errorf("original changed by no-op stripper: %q", got)
	}
}

func TestProcessStripFailure(t *testing.T) {
	moduleDir := t.TempDir()
	writeFile(t, filepath.Join(moduleDir, "k#task-1.o"), "code|debug")

	splitter := &Splitter{
		Runner:   &toolexec.Recorder{Handler: toolexec.Fail("strip", nil)},
		Tools:    Tools{Stripper: "strip"},
		DebugDir: t.TempDir(),
		Jobs:     1,
	}
	err := splitter.Process(context.Background(), moduleDir, nil)
	var toolErr *toolexec.Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("Process() error = %v, want *toolexec.Error", err)
	}
	if toolErr.Stage != Stage {
		t.Errorf("Stage = %q, want %q", toolErr.Stage, Stage)
	}
}

func TestProcessMissingDebugDir(t *testing.T) {
	moduleDir := t.TempDir()
	writeFile(t, filepath.Join(moduleDir, "k#task-1.o"), "code|debug")

	recorder := &toolexec.Recorder{}
	splitter := &Splitter{
		Runner:   recorder,
		Tools:    Tools{Stripper: "strip"},
		DebugDir: filepath.Join(t.TempDir(), "missing"),
		Jobs:     1,
	}
	if err := splitter.Process(context.Background(), moduleDir, nil); err == nil {
		t.Fatal("Process() should fail when the debug directory does not exist")
	}
	if got := len(recorder.Calls()); got != 0 {
		t.Errorf("stripper ran %d times without a debug copy", got)
	}
}
