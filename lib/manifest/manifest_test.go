// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theseus-os/cellbuild/lib/binhash"
)

func writeModules(t *testing.T, modules map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range modules {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func fixedOptions(iso string) Options {
	return Options{
		Bootloader: "limine",
		ISO:        iso,
		Now:        func() time.Time { return time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC) },
		NewID:      func() string { return "0d9e3b1c-1111-4222-8333-944455556666" },
	}
}

func TestBuildAndRoundTrip(t *testing.T) {
	dir := writeModules(t, map[string]string{"k#b-1.o": "BB", "a#a-2.o": "A"})
	iso := filepath.Join(t.TempDir(), "theseus.iso")
	if err := os.WriteFile(iso, []byte("iso"), 0o644); err != nil {
		t.Fatal(err)
	}

	built, err := Build(dir, fixedOptions(iso))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	want := []Module{
		{Name: "a#a-2.o", Size: 1, Digest: binhash.FormatDigest(binhash.HashBytes([]byte("A")))},
		{Name: "k#b-1.o", Size: 2, Digest: binhash.FormatDigest(binhash.HashBytes([]byte("BB")))},
	}
	if diff := cmp.Diff(want, built.Modules); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
	if built.ISODigest != binhash.FormatDigest(binhash.HashBytes([]byte("iso"))) {
		t.Errorf("ISODigest = %q", built.ISODigest)
	}
	if built.TotalSize() != 3 {
		t.Errorf("TotalSize() = %d, want 3", built.TotalSize())
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := Write(path, built); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if diff := cmp.Diff(built, read); diff != "" {
		t.Errorf("round trip mismatch (-built +read):\n%s", diff)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	dir := writeModules(t, map[string]string{"a.o": "AA", "b.o": "BB"})
	output := t.TempDir()
	var encoded [2][]byte
	for i := range encoded {
		built, err := Build(dir, fixedOptions(""))
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(output, FileName)
		if err := Write(path, built); err != nil {
			t.Fatal(err)
		}
		if encoded[i], err = os.ReadFile(path); err != nil {
			t.Fatal(err)
		}
	}
	if string(encoded[0]) != string(encoded[1]) {
		t.Error("two manifests of the same module set differ")
	}
}

func TestBuildMissingISO(t *testing.T) {
	dir := writeModules(t, map[string]string{"a.o": "AA"})
	built, err := Build(dir, fixedOptions(filepath.Join(t.TempDir(), "not-yet.iso")))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if built.ISODigest != "" {
		t.Errorf("ISODigest = %q, want empty for a missing image", built.ISODigest)
	}
}

func TestVerify(t *testing.T) {
	dir := writeModules(t, map[string]string{"a.o": "AA", "b.o": "BB", "c.o": "CC"})
	built, err := Build(dir, fixedOptions(""))
	if err != nil {
		t.Fatal(err)
	}

	if mismatches, err := built.Verify(dir); err != nil || len(mismatches) != 0 {
		t.Fatalf("Verify() on an unchanged directory = %v, %v", mismatches, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.o"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "b.o")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "d.o"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	mismatches, err := built.Verify(dir)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	want := []Mismatch{
		{"a.o", "content changed"},
		{"b.o", "missing"},
		{"d.o", "unexpected"},
	}
	if diff := cmp.Diff(want, mismatches); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := Write(path, &Manifest{Version: 99, Modules: []Module{}}); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() should reject an unknown manifest version")
	}
}
