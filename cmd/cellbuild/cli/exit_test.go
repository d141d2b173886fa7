// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/theseus-os/cellbuild/lib/process"
)

func TestExitErrorIsSilent(t *testing.T) {
	var buffer bytes.Buffer
	code := process.Report(&buffer, fmt.Errorf("manifest: %w", &ExitError{Code: 1}))
	if code != 1 {
		t.Errorf("Report() = %d, want 1", code)
	}
	if buffer.Len() != 0 {
		t.Errorf("output = %q, want nothing", buffer.String())
	}

	code = process.Report(&buffer, &ExitError{Code: 4})
	if code != 4 {
		t.Errorf("Report() = %d, want 4", code)
	}
}
