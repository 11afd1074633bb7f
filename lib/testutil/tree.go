// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TreeTime is the modified time WriteTree gives every file.
var TreeTime = time.Unix(1700000000, 0)

// WriteTree creates files, keyed by slash-separated relative path,
// under a fresh temporary directory and returns its path. Every file
// gets [TreeTime] as its modified time.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		WriteFile(t, root, name, content)
	}
	return root
}

// WriteFile writes one file under root, creating parent directories,
// and sets its modified time to [TreeTime].
func WriteFile(t *testing.T, root, name, content string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("creating directory for %s: %v", name, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	if err := os.Chtimes(full, TreeTime, TreeTime); err != nil {
		t.Fatalf("setting times on %s: %v", name, err)
	}
	return full
}
