// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package tarball extracts boot-loader source tarballs in-process.
//
// The compression is chosen from the file name: .tar, .tar.gz / .tgz,
// .tar.xz / .txz, and .tar.zst / .tzst. Entries whose path (or
// symlink target) would land outside the destination are rejected,
// and every entry is created through an [os.Root] so a path that
// resolves outside through earlier symlinks fails as well.
// Regular files, directories and symlinks are materialized; other
// entry types (devices, FIFOs) are skipped.
package tarball

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies the outer compression layer of a tarball.
type Compression int

const (
	None Compression = iota
	Gzip
	XZ
	Zstd
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ErrUnsupported is returned for file names with no known tarball
// extension.
var ErrUnsupported = errors.New("unsupported tarball format")

// DetectCompression maps a tarball file name to its compression.
func DetectCompression(name string) (Compression, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar"):
		return None, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return XZ, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return Zstd, nil
	}
	return None, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// ExtractFile extracts the tarball at path into dir, creating dir if
// needed.
func ExtractFile(path, dir string) error {
	compression, err := DetectCompression(path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if err := Extract(file, compression, dir); err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	return nil
}

// Extract reads a tar stream with the given compression from r and
// writes its entries below dir.
func Extract(r io.Reader, compression Compression, dir string) error {
	stream, closeStream, err := decompress(r, compression)
	if err != nil {
		return err
	}
	defer closeStream()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}
	defer root.Close()

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		if err := extractEntry(reader, header, root); err != nil {
			return err
		}
	}
}

func decompress(r io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case None:
		return r, func() {}, nil
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case XZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xzReader, func() {}, nil
	case Zstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return decoder, decoder.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: compression %v", ErrUnsupported, compression)
}

func extractEntry(reader *tar.Reader, header *tar.Header, root *os.Root) error {
	name := filepath.Clean(filepath.FromSlash(header.Name))
	if name == "." {
		return nil
	}
	if !filepath.IsLocal(name) {
		return fmt.Errorf("entry %q escapes the destination", header.Name)
	}
	target := filepath.Join(root.Name(), name)
	mode := os.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		if err := root.MkdirAll(name, mode|0o700); err != nil {
			return fmt.Errorf("creating %s: %w", target, err)
		}
	case tar.TypeReg:
		if err := makeParent(root, name); err != nil {
			return err
		}
		out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return fmt.Errorf("creating %s: %w", target, err)
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", target, err)
		}
	case tar.TypeSymlink:
		linkTarget := filepath.FromSlash(header.Linkname)
		if filepath.IsAbs(linkTarget) || !filepath.IsLocal(filepath.Join(filepath.Dir(name), linkTarget)) {
			return fmt.Errorf("symlink %q -> %q escapes the destination", header.Name, header.Linkname)
		}
		if err := makeParent(root, name); err != nil {
			return err
		}
		if err := root.Symlink(linkTarget, name); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating symlink %s: %w", target, err)
		}
	}
	return nil
}

func makeParent(root *os.Root, name string) error {
	parent := filepath.Dir(name)
	if parent == "." {
		return nil
	}
	if err := root.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Join(root.Name(), parent), err)
	}
	return nil
}
