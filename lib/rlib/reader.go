// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package rlib

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	globalMagic = "!<arch>\n"
	thinMagic   = "!<thin>\n"
	headerSize  = 60
	headerMagic = "`\n"
	bsdPrefix   = "#1/"

	// maxNameBytes bounds the long-name table and BSD inline names,
	// which are read into memory whole.
	maxNameBytes = 1 << 20
)

// ErrFormat is returned for input that is not a well-formed archive.
var ErrFormat = errors.New("malformed ar archive")

// Header describes one archive member.
type Header struct {
	Name string
	Size int64
}

// Reader provides sequential access to the members of an ar archive.
// Next advances to the next member; Read reads the current member's
// data.
type Reader struct {
	source    *bufio.Reader
	longNames []byte
	remaining int64
	padding   int64
}

// NewReader checks the global header and returns a Reader positioned
// before the first member.
func NewReader(r io.Reader) (*Reader, error) {
	source := bufio.NewReader(r)
	magic := make([]byte, len(globalMagic))
	if _, err := io.ReadFull(source, magic); err != nil {
		return nil, fmt.Errorf("%w: reading global header: %v", ErrFormat, err)
	}
	switch string(magic) {
	case globalMagic:
	case thinMagic:
		return nil, fmt.Errorf("%w: thin archives are not supported", ErrFormat)
	default:
		return nil, fmt.Errorf("%w: bad global header %q", ErrFormat, magic)
	}
	return &Reader{source: source}, nil
}

// Next advances to the next member and returns its header. It returns
// io.EOF after the last member.
func (r *Reader) Next() (*Header, error) {
	for {
		if err := r.skipCurrent(); err != nil {
			return nil, err
		}

		raw := make([]byte, headerSize)
		n, err := io.ReadFull(r.source, raw)
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: truncated member header after %d bytes", ErrFormat, n)
		}
		if string(raw[58:60]) != headerMagic {
			return nil, fmt.Errorf("%w: bad member header terminator %q", ErrFormat, raw[58:60])
		}

		size, err := strconv.ParseInt(strings.TrimSpace(string(raw[48:58])), 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad member size %q", ErrFormat, raw[48:58])
		}
		r.remaining = size
		r.padding = size % 2

		name := strings.TrimRight(string(raw[0:16]), " ")
		switch {
		case isSymbolTable(name):
			continue

		case name == "//":
			if size > maxNameBytes {
				return nil, fmt.Errorf("%w: long name table of %d bytes", ErrFormat, size)
			}
			r.longNames = make([]byte, size)
			if _, err := io.ReadFull(r.source, r.longNames); err != nil {
				return nil, fmt.Errorf("%w: reading long name table: %v", ErrFormat, err)
			}
			r.remaining = 0
			continue

		case strings.HasPrefix(name, bsdPrefix):
			length, err := strconv.ParseInt(name[len(bsdPrefix):], 10, 64)
			if err != nil || length < 0 || length > size || length > maxNameBytes {
				return nil, fmt.Errorf("%w: bad BSD name length %q", ErrFormat, name)
			}
			inline := make([]byte, length)
			if _, err := io.ReadFull(r.source, inline); err != nil {
				return nil, fmt.Errorf("%w: reading BSD member name: %v", ErrFormat, err)
			}
			r.remaining -= length
			name = string(bytes.TrimRight(inline, "\x00"))
			if isSymbolTable(name) {
				continue
			}

		case strings.HasPrefix(name, "/") && len(name) > 1:
			name, err = r.longName(name[1:])
			if err != nil {
				return nil, err
			}

		default:
			name = strings.TrimSuffix(name, "/")
		}

		return &Header{Name: name, Size: r.remaining}, nil
	}
}

// Read reads from the current member's data.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.source.Read(p)
	r.remaining -= int64(n)
	if err == io.EOF && r.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// skipCurrent discards the unread data and alignment padding of the
// current member.
func (r *Reader) skipCurrent() error {
	skip := r.remaining + r.padding
	r.remaining, r.padding = 0, 0
	if skip == 0 {
		return nil
	}
	discarded, err := r.source.Discard(int(skip))
	if err == io.EOF && int64(discarded) == skip-1 {
		// The final member's padding byte is optional in practice.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: truncated member data: %v", ErrFormat, err)
	}
	return nil
}

func (r *Reader) longName(offsetText string) (string, error) {
	offset, err := strconv.Atoi(offsetText)
	if err != nil || offset < 0 || offset >= len(r.longNames) {
		return "", fmt.Errorf("%w: bad long name reference /%s", ErrFormat, offsetText)
	}
	name := r.longNames[offset:]
	if end := bytes.IndexByte(name, '\n'); end >= 0 {
		name = name[:end]
	}
	return strings.TrimSuffix(string(name), "/"), nil
}

func isSymbolTable(name string) bool {
	switch name {
	case "/", "/SYM64/", "__.SYMDEF", "__.SYMDEF SORTED", "__.SYMDEF_64", "__.SYMDEF_64 SORTED":
		return true
	}
	return false
}

// CountMembers returns the number of members in the archive at path.
func CountMembers(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader, err := NewReader(file)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		count++
	}
}
