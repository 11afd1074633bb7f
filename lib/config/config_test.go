// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codetease/vegh/lib/snapshot"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "vegh.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Snapshot.FormatVersion != 2 {
		t.Errorf("expected format_version=2, got %d", cfg.Snapshot.FormatVersion)
	}
	if cfg.Snapshot.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Snapshot.Compression)
	}
	if cfg.Pack.FollowSymlinks {
		t.Error("expected follow_symlinks=false by default")
	}
	if cfg.Hash.ChunkSize != 1<<20 {
		t.Errorf("expected chunk_size=1048576, got %d", cfg.Hash.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresVeghConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when VEGH_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "VEGH_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithVeghConfig(t *testing.T) {
	configPath := writeConfig(t, `
author: Jane Doe
snapshot:
  format_version: 1
  compression: lz4
`)
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Author != "Jane Doe" {
		t.Errorf("expected author=Jane Doe, got %q", cfg.Author)
	}
	format, err := cfg.SnapshotFormat()
	if err != nil || format.Version() != snapshot.Version1 {
		t.Errorf("SnapshotFormat() = %v, %v; want format 1", format, err)
	}
	compression, err := cfg.SnapshotCompression()
	if err != nil || compression != snapshot.CompressionLZ4 {
		t.Errorf("SnapshotCompression() = %v, %v; want lz4", compression, err)
	}

	// Unset sections keep their defaults.
	if cfg.Hash.ChunkSize != 1<<20 {
		t.Errorf("expected default chunk_size, got %d", cfg.Hash.ChunkSize)
	}
}

func TestLoadFile_ReplacesExcludeList(t *testing.T) {
	configPath := writeConfig(t, `
pack:
  exclude: ["node_modules", "*.log"]
  follow_symlinks: true
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if len(cfg.Pack.Exclude) != 2 || cfg.Pack.Exclude[0] != "node_modules" {
		t.Errorf("expected exclude list from file, got %v", cfg.Pack.Exclude)
	}
	if !cfg.Pack.FollowSymlinks {
		t.Error("expected follow_symlinks=true")
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	configPath := writeConfig(t, `
snapshot:
  compresion: zstd
`)
	if _, err := LoadFile(configPath); err == nil {
		t.Error("expected error for misspelled key, got nil")
	}
}

func TestLoadFile_EmptyFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile() of empty file failed: %v", err)
	}
	if cfg.Snapshot.Compression != "zstd" {
		t.Errorf("expected defaults from empty file, got compression=%s", cfg.Snapshot.Compression)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("VEGH_TEST_DIR", "/srv/vegh")

	configPath := writeConfig(t, `
home: ${HOME}/state
cache:
  path: ${VEGH_HOME}/index.cbor
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Home != "/home/tester/state" {
		t.Errorf("expected home=/home/tester/state, got %s", cfg.Home)
	}
	if cfg.Cache.Path != "/home/tester/state/index.cbor" {
		t.Errorf("expected cache path under home, got %s", cfg.Cache.Path)
	}

	vars := map[string]string{}
	tests := []struct {
		input, want string
	}{
		{"${VEGH_TEST_DIR}/x", "/srv/vegh/x"},
		{"${VEGH_UNSET_VARIABLE:-/fallback}/x", "/fallback/x"},
		{"${VEGH_UNSET_VARIABLE}", ""},
		{"/no/variables", "/no/variables"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input, vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\") failed: %v", err)
	}
	if strings.Contains(cfg.Cache.Path, "${") {
		t.Errorf("defaults not expanded: cache path %s", cfg.Cache.Path)
	}

	explicit := writeConfig(t, "author: explicit\n")
	fromEnvironment := writeConfig(t, "author: environment\n")
	t.Setenv(EnvironmentVariable, fromEnvironment)

	cfg, err = Resolve(explicit)
	if err != nil || cfg.Author != "explicit" {
		t.Errorf("Resolve(explicit) author = %q, %v; want explicit", cfg.Author, err)
	}
	cfg, err = Resolve("")
	if err != nil || cfg.Author != "environment" {
		t.Errorf("Resolve(\"\") with VEGH_CONFIG author = %q, %v; want environment", cfg.Author, err)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Snapshot.FormatVersion = 99
	cfg.Snapshot.Compression = "gzip"
	cfg.Pack.Exclude = []string{"[bad"}
	cfg.Hash.ChunkSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, field := range []string{"snapshot.format_version", "snapshot.compression", "pack.exclude", "hash.chunk_size"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("validation error does not mention %s: %v", field, err)
		}
	}
}
