// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package objscan

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFiles copies each source into dstDir as <prefix><base name>.
// Sources that do not exist are skipped, because companion paths are
// derived speculatively. Returns the number of files copied.
func CopyFiles(dstDir string, sources []string, prefix string) (int, error) {
	copied := 0
	for _, source := range sources {
		if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		destination := filepath.Join(dstDir, prefix+filepath.Base(source))
		if err := copyFile(source, destination); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyFile(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer input.Close()

	info, err := input.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", destination, err)
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return fmt.Errorf("copying %s to %s: %w", source, destination, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destination, err)
	}
	return nil
}
