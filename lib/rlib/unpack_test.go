// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package rlib

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theseus-os/cellbuild/lib/crateset"
	"github.com/theseus-os/cellbuild/lib/objscan"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// fakeLinker simulates "ld -r --output <out> <inputs...>" by
// concatenating its inputs into the output file.
func fakeLinker(invocation toolexec.Invocation) error {
	output, ok := toolexec.OutputPath(invocation.Args, "--output")
	if !ok {
		return errors.New("no --output argument")
	}
	var merged bytes.Buffer
	for _, input := range invocation.Args[3:] {
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		merged.Write(data)
	}
	return os.WriteFile(output, merged.Bytes(), 0o644)
}

type dirSnapshot map[string]string

func snapshot(t *testing.T, dir string) dirSnapshot {
	t.Helper()
	result := dirSnapshot{}
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		relative, _ := filepath.Rel(dir, path)
		result[relative] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestProcessTwoMembersIsNoop(t *testing.T) {
	deps := t.TempDir()
	scratch := t.TempDir()
	writeArchive(t, deps, "libmemory-2222.rlib", buildGNUArchive([]testMember{
		{name: "lib.rmeta", data: "meta"},
		{name: "memory-2222.memory.abc-cgu.0.rcgu.o", data: "obj"},
	}))
	writeArchive(t, deps, "memory-2222.o", []byte("original"))
	before := snapshot(t, deps)

	recorder := &toolexec.Recorder{Handler: fakeLinker}
	unpacker := &Unpacker{Runner: recorder, Linker: "ld", ScratchDir: scratch, RemoveScratch: true}
	merged, err := unpacker.Process(context.Background(), deps)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	if len(merged) != 0 {
		t.Errorf("merged = %v, want none", merged)
	}
	if calls := recorder.Calls(); len(calls) != 0 {
		t.Errorf("linker invoked %d times, want 0", len(calls))
	}
	if diff := cmp.Diff(before, snapshot(t, deps)); diff != "" {
		t.Errorf("deps directory changed (-before +after):\n%s", diff)
	}
}

func TestProcessThreeMembersRelinksOnce(t *testing.T) {
	deps := t.TempDir()
	scratch := t.TempDir()
	writeArchive(t, deps, "libacpi-9f8e.rlib", buildGNUArchive([]testMember{
		{name: "lib.rmeta", data: "meta"},
		{name: "acpi-9f8e.acpi.abc-cgu.0.rcgu.o", data: "first|"},
		{name: "build_script_output.o", data: "second"},
	}))

	recorder := &toolexec.Recorder{Handler: fakeLinker}
	unpacker := &Unpacker{Runner: recorder, Linker: "ld.lld", ScratchDir: scratch}
	merged, err := unpacker.Process(context.Background(), deps)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	calls := recorder.CallsTo("ld.lld")
	if len(calls) != 1 {
		t.Fatalf("linker invoked %d times, want 1", len(calls))
	}
	extracted := filepath.Join(scratch, "libacpi-9f8e.rlib")
	wantArgs := []string{
		"-r", "--output", filepath.Join(deps, "acpi-9f8e.o"),
		filepath.Join(extracted, "acpi-9f8e.acpi.abc-cgu.0.rcgu.o"),
		filepath.Join(extracted, "build_script_output.o"),
	}
	if diff := cmp.Diff(wantArgs, calls[0].Args); diff != "" {
		t.Errorf("linker args mismatch (-want +got):\n%s", diff)
	}
	if calls[0].Stage != Stage {
		t.Errorf("Stage = %q, want %q", calls[0].Stage, Stage)
	}

	want := []MergedObject{{Crate: "acpi", Stem: "acpi-9f8e", Path: filepath.Join(deps, "acpi-9f8e.o"), Members: 3}}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged mismatch (-want +got):\n%s", diff)
	}

	objects := 0
	for name := range snapshot(t, deps) {
		if filepath.Ext(name) == ".o" {
			objects++
		}
	}
	if objects != 1 {
		t.Errorf("deps directory holds %d objects, want exactly 1", objects)
	}
	data, err := os.ReadFile(filepath.Join(deps, "acpi-9f8e.o"))
	if err != nil || string(data) != "first|second" {
		t.Errorf("merged object = %q, %v", data, err)
	}
	if _, err := os.Stat(extracted); err != nil {
		t.Errorf("scratch directory should be kept when RemoveScratch is false: %v", err)
	}
}

func TestProcessRemovesScratch(t *testing.T) {
	deps := t.TempDir()
	scratch := t.TempDir()
	writeArchive(t, deps, "libfoo-1.rlib", buildBSDArchive([]testMember{
		{name: "lib.rmeta", data: "m"},
		{name: "foo-1.foo.a-cgu.0.rcgu.o", data: "a"},
		{name: "foo-1.foo.a-cgu.1.rcgu.o", data: "b"},
	}))

	unpacker := &Unpacker{
		Runner:        &toolexec.Recorder{Handler: fakeLinker},
		Linker:        "ld",
		ScratchDir:    scratch,
		RemoveScratch: true,
	}
	if _, err := unpacker.Process(context.Background(), deps); err != nil {
		t.Fatalf("Process() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "libfoo-1.rlib")); !os.IsNotExist(err) {
		t.Errorf("scratch directory still present: %v", err)
	}
}

func TestProcessLinkerFailure(t *testing.T) {
	deps := t.TempDir()
	writeArchive(t, deps, "libfoo-1.rlib", buildGNUArchive([]testMember{
		{name: "lib.rmeta", data: "m"},
		{name: "a.o", data: "a"},
		{name: "b.o", data: "b"},
	}))
	unpacker := &Unpacker{
		Runner:     &toolexec.Recorder{Handler: toolexec.Fail("ld", nil)},
		Linker:     "ld",
		ScratchDir: t.TempDir(),
	}
	_, err := unpacker.Process(context.Background(), deps)
	var toolErr *toolexec.Error
	if !errors.As(err, &toolErr) {
		t.Errorf("Process() error = %v, want *toolexec.Error", err)
	}
}

func TestProcessCorruptArchive(t *testing.T) {
	deps := t.TempDir()
	writeArchive(t, deps, "libbad-1.rlib", []byte("definitely not ar"))
	unpacker := &Unpacker{Runner: &toolexec.Recorder{}, Linker: "ld", ScratchDir: t.TempDir()}
	if _, err := unpacker.Process(context.Background(), deps); !errors.Is(err, ErrFormat) {
		t.Errorf("Process() error = %v, want ErrFormat", err)
	}
}

// The merged object must win the scanner's selection even when another
// candidate directory holds a newer object for the same crate.
func TestMergedObjectSupersedesScannerSelection(t *testing.T) {
	root := t.TempDir()
	deps := filepath.Join(root, "target")
	extra := filepath.Join(root, "extra-target")
	for _, dir := range []string{deps, extra} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeArchive(t, deps, "libacpi-aaaa.rlib", buildGNUArchive([]testMember{
		{name: "lib.rmeta", data: "m"},
		{name: "a.o", data: "a"},
		{name: "b.o", data: "b"},
	}))
	newer := writeArchive(t, extra, "acpi-bbbb.o", []byte("stale but newer"))
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(newer, future, future); err != nil {
		t.Fatal(err)
	}

	unpacker := &Unpacker{Runner: &toolexec.Recorder{Handler: fakeLinker}, Linker: "ld", ScratchDir: t.TempDir()}
	merged, err := unpacker.Process(context.Background(), deps)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	var overrides []objscan.Override
	for _, object := range merged {
		overrides = append(overrides, objscan.Override{Crate: object.Crate, Stem: object.Stem, Path: object.Path})
	}
	result, err := objscan.Scan([]string{deps, extra},
		crateset.New(crateset.Kernel, "acpi"), crateset.New(crateset.Application), overrides)
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if got := result.Kernel["acpi"].Path; got != filepath.Join(deps, "acpi-aaaa.o") {
		t.Errorf("selected %s, want the merged object", got)
	}
}

func TestIsRlibName(t *testing.T) {
	tests := map[string]bool{
		"libacpi-1.rlib": true,
		"lib.rlib":       false,
		"acpi-1.rlib":    false,
		"libacpi-1.a":    false,
	}
	for name, want := range tests {
		if got := IsRlibName(name); got != want {
			t.Errorf("IsRlibName(%q) = %v, want %v", name, got, want)
		}
	}
}
