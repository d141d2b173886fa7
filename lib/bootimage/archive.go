// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package bootimage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliergopher/cpio"
	"github.com/pierrec/lz4/v4"
)

// ModuleArchiveName is the file name of the compressed module archive
// inside the image tree.
const ModuleArchiveName = "modules.cpio.lz4"

// SizePrefix selects the frame written in front of the LZ4 block.
type SizePrefix string

const (
	// PrefixFramed writes the compressed payload length then the
	// uncompressed length, both u32 little-endian.
	PrefixFramed SizePrefix = "framed"

	// PrefixUncompressed writes only the u32 little-endian
	// uncompressed length, the layout the loader's lz4 reader has
	// historically consumed.
	PrefixUncompressed SizePrefix = "uncompressed"
)

// Validate reports whether p names a known frame layout. The empty
// value means PrefixFramed.
func (p SizePrefix) Validate() error {
	switch p {
	case "", PrefixFramed, PrefixUncompressed:
		return nil
	}
	return fmt.Errorf("unknown size prefix %q; must be %q or %q", string(p), PrefixFramed, PrefixUncompressed)
}

// ErrArchiveFormat is returned by [ReadModuleArchive] for malformed
// frames.
var ErrArchiveFormat = errors.New("malformed module archive")

// archiveFileMode is a regular file readable by everyone.
const archiveFileMode = cpio.TypeReg | 0o644

// BuildModuleArchive packs the named files of moduleDir, in the given
// order, into a newc cpio archive. Timestamps are zeroed and modes are
// fixed so the archive depends only on names and contents.
func BuildModuleArchive(moduleDir string, names []string) ([]byte, error) {
	var buffer bytes.Buffer
	writer := cpio.NewWriter(&buffer)
	for _, name := range names {
		path := filepath.Join(moduleDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		header := &cpio.Header{
			Name:    name,
			Mode:    archiveFileMode,
			Size:    int64(len(data)),
			ModTime: time.Unix(0, 0),
		}
		if err := writer.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("archiving %s: %w", name, err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("archiving %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finishing module archive: %w", err)
	}
	return buffer.Bytes(), nil
}

// CompressArchive LZ4-block compresses data and prepends the frame
// selected by prefix.
func CompressArchive(data []byte, prefix SizePrefix) ([]byte, error) {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("module archive of %d bytes exceeds the 32-bit size prefix", len(data))
	}
	payload := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 {
		// Incompressible input; a block of one literal run is still a
		// valid LZ4 block.
		payload = literalBlock(data)
	} else {
		payload = payload[:written]
	}

	var frame []byte
	switch prefix {
	case "", PrefixFramed:
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(data)))
	case PrefixUncompressed:
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(data)))
	default:
		return nil, prefix.Validate()
	}
	return append(frame, payload...), nil
}

func literalBlock(data []byte) []byte {
	block := make([]byte, 0, len(data)+len(data)/255+2)
	length := len(data)
	if length < 15 {
		block = append(block, byte(length<<4))
	} else {
		block = append(block, 0xF0)
		remaining := length - 15
		for remaining >= 255 {
			block = append(block, 255)
			remaining -= 255
		}
		block = append(block, byte(remaining))
	}
	return append(block, data...)
}

// ArchiveMember is one file recovered from a module archive.
type ArchiveMember struct {
	Name string
	Data []byte
}

// ReadModuleArchive decompresses a framed module archive and returns
// its members in archive order.
func ReadModuleArchive(frame []byte, prefix SizePrefix) ([]ArchiveMember, error) {
	var payload []byte
	var size uint32
	switch prefix {
	case "", PrefixFramed:
		if len(frame) < 8 {
			return nil, fmt.Errorf("%w: short frame header", ErrArchiveFormat)
		}
		compressed := binary.LittleEndian.Uint32(frame[0:4])
		size = binary.LittleEndian.Uint32(frame[4:8])
		if uint64(compressed) != uint64(len(frame)-8) {
			return nil, fmt.Errorf("%w: payload is %d bytes, prefix says %d", ErrArchiveFormat, len(frame)-8, compressed)
		}
		payload = frame[8:]
	case PrefixUncompressed:
		if len(frame) < 4 {
			return nil, fmt.Errorf("%w: short frame header", ErrArchiveFormat)
		}
		size = binary.LittleEndian.Uint32(frame[0:4])
		payload = frame[4:]
	default:
		return nil, prefix.Validate()
	}

	data := make([]byte, size)
	read, err := lz4.UncompressBlock(payload, data)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrArchiveFormat, err)
	}
	if read != int(size) {
		return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", ErrArchiveFormat, read, size)
	}

	var members []ArchiveMember
	reader := cpio.NewReader(bytes.NewReader(data))
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return members, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: cpio: %v", ErrArchiveFormat, err)
		}
		content, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: cpio member %s: %v", ErrArchiveFormat, header.Name, err)
		}
		members = append(members, ArchiveMember{Name: header.Name, Data: content})
	}
}
