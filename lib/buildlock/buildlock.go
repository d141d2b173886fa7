// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

// Package buildlock serializes runs that share a build directory.
//
// Every stage after build-cells mutates the build directory in place
// (relinking and stripping rewrite modules, the image assembler
// replaces the ISO), so two concurrent runs would interleave those
// rewrites. [Acquire] takes an exclusive flock(2) on a lock file in the
// build directory and fails immediately if another process holds it.
// The kernel drops the lock when the holder exits, so a crashed run
// never leaves a stale lock behind.
package buildlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// FileName is the lock file's name inside the build directory.
const FileName = ".cellbuild.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("build directory is locked by another run")

// Lock is a held build directory lock.
type Lock struct {
	path string
	fd   int
}

// Acquire locks buildDir, creating it and the lock file if needed. The
// holder's PID is written into the file for diagnostics.
func Acquire(buildDir string) (*Lock, error) {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", buildDir, err)
	}
	path := filepath.Join(buildDir, FileName)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (%s held by pid %s)", ErrLocked, path, holder(path))
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := unix.Ftruncate(fd, 0); err == nil {
		unix.Pwrite(fd, []byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, fd: fd}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	unlockErr := unix.Flock(l.fd, unix.LOCK_UN)
	closeErr := unix.Close(l.fd)
	l.fd = -1
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", l.path, closeErr)
	}
	return nil
}

func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "unknown"
	}
	pid := string(data)
	if pid[len(pid)-1] == '\n' {
		pid = pid[:len(pid)-1]
	}
	return pid
}
