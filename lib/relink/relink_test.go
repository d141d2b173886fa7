// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package relink

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// The fake toolchain models an object as newline-separated symbol
// names. The linker coalesces (sorts and deduplicates) them, the
// stripper drops the exception tables. Both are idempotent, like the
// real tools on an already-normalized object.
func fakeToolchain(jitter bool) func(toolexec.Invocation) error {
	return func(invocation toolexec.Invocation) error {
		if jitter {
			time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
		}
		switch invocation.Tool {
		case "ld":
			output, _ := toolexec.OutputPath(invocation.Args, "-o")
			input := invocation.Args[len(invocation.Args)-1]
			data, err := os.ReadFile(input)
			if err != nil {
				return err
			}
			symbols := strings.Fields(string(data))
			slices.Sort(symbols)
			symbols = slices.Compact(symbols)
			return os.WriteFile(output, []byte(strings.Join(symbols, "\n")), 0o644)
		case "strip":
			path := invocation.Args[len(invocation.Args)-1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var kept []string
			for _, symbol := range strings.Fields(string(data)) {
				if !strings.HasPrefix(symbol, "GCC_except_table") {
					kept = append(kept, symbol)
				}
			}
			return os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o644)
		}
		return fmt.Errorf("unexpected tool %s", invocation.Tool)
	}
}

func populate(t *testing.T, dir string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		content := fmt.Sprintf(".text.f%d\n.text.a\nGCC_except_table%d\n.data.x%d\n.text.a\n", i, i, i)
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("k#crate%02d-hash.o", i)), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an object"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func contents(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	result := map[string]string{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatal(err)
		}
		result[entry.Name()] = string(data)
	}
	return result
}

func newRelinker(runner toolexec.Runner, jobs int) *Relinker {
	return &Relinker{
		Runner: runner,
		Tools:  Tools{Linker: "ld", Stripper: "strip", LinkerScript: "partial_linking_combine_sections.ld"},
		Jobs:   jobs,
	}
}

func TestProcessInvocations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a#shell-1.o")
	if err := os.WriteFile(path, []byte(".text.main"), 0o644); err != nil {
		t.Fatal(err)
	}

	recorder := &toolexec.Recorder{Handler: fakeToolchain(false)}
	if err := newRelinker(recorder, 1).Process(context.Background(), dir); err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	calls := recorder.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d invocations, want 2", len(calls))
	}
	wantLink := []string{"-r", "-T", "partial_linking_combine_sections.ld", "-o", path + "-relinked", path}
	if diff := cmp.Diff(wantLink, calls[0].Args); diff != "" {
		t.Errorf("linker args mismatch (-want +got):\n%s", diff)
	}
	wantStrip := []string{"--wildcard", "--strip-symbol=GCC_except_table*", path}
	if diff := cmp.Diff(wantStrip, calls[1].Args); diff != "" {
		t.Errorf("stripper args mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path + "-relinked"); !os.IsNotExist(err) {
		t.Error("temporary output should have been renamed away")
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, 5)
	relinker := newRelinker(&toolexec.Recorder{Handler: fakeToolchain(false)}, 2)

	if err := relinker.Process(context.Background(), dir); err != nil {
		t.Fatalf("first Process() failed: %v", err)
	}
	once := contents(t, dir)
	if err := relinker.Process(context.Background(), dir); err != nil {
		t.Fatalf("second Process() failed: %v", err)
	}
	if diff := cmp.Diff(once, contents(t, dir)); diff != "" {
		t.Errorf("second pass changed the modules (-once +twice):\n%s", diff)
	}
	for name, content := range once {
		if strings.Contains(content, "GCC_except_table") {
			t.Errorf("%s still has exception tables", name)
		}
	}
}

func TestProcessIndependentOfCompletionOrder(t *testing.T) {
	sequential := t.TempDir()
	parallel := t.TempDir()
	populate(t, sequential, 24)
	populate(t, parallel, 24)

	if err := newRelinker(&toolexec.Recorder{Handler: fakeToolchain(false)}, 1).Process(context.Background(), sequential); err != nil {
		t.Fatalf("sequential Process() failed: %v", err)
	}
	if err := newRelinker(&toolexec.Recorder{Handler: fakeToolchain(true)}, 8).Process(context.Background(), parallel); err != nil {
		t.Fatalf("parallel Process() failed: %v", err)
	}
	if diff := cmp.Diff(contents(t, sequential), contents(t, parallel)); diff != "" {
		t.Errorf("parallel result differs (-sequential +parallel):\n%s", diff)
	}
}

func TestProcessFailureAborts(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, 4)
	recorder := &toolexec.Recorder{Handler: toolexec.Fail("strip", fakeToolchain(false))}

	err := newRelinker(recorder, 1).Process(context.Background(), dir)
	var toolErr *toolexec.Error
	if !errors.As(err, &toolErr) || toolErr.Tool != "strip" {
		t.Fatalf("Process() error = %v, want stripper failure", err)
	}
	if got := len(recorder.CallsTo("strip")); got != 1 {
		t.Errorf("stripper ran %d times after the first failure, want 1", got)
	}
}

func TestProcessMissingDirectory(t *testing.T) {
	err := newRelinker(&toolexec.Recorder{}, 1).Process(context.Background(), filepath.Join(t.TempDir(), "gone"))
	if err == nil {
		t.Error("Process() should fail for a missing module directory")
	}
}
