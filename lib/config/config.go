// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/codetease/vegh/lib/snapshot"
)

// EnvironmentVariable names the variable [Load] reads.
const EnvironmentVariable = "VEGH_CONFIG"

// Config is the vegh configuration.
type Config struct {
	// Author is recorded in the metadata of new snapshots.
	Author string `yaml:"author"`

	// Home is the base directory for vegh state. Available to other
	// paths as ${VEGH_HOME}.
	Home string `yaml:"home"`

	// Snapshot configures the container format of new snapshots.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Pack configures the directory walker.
	Pack PackConfig `yaml:"pack"`

	// Cache configures the incremental cache.
	Cache CacheConfig `yaml:"cache"`

	// Hash configures integrity hashing.
	Hash HashConfig `yaml:"hash"`
}

// SnapshotConfig configures the container format.
type SnapshotConfig struct {
	// FormatVersion is 1 or 2.
	// Default: 2
	FormatVersion int `yaml:"format_version"`

	// Compression is "none", "lz4", or "zstd".
	// Default: zstd
	Compression string `yaml:"compression"`
}

// PackConfig configures the directory walker.
type PackConfig struct {
	// Exclude holds path.Match patterns matched against relative
	// paths and base names.
	// Default: .git
	Exclude []string `yaml:"exclude"`

	// FollowSymlinks packs the targets of symlinks to regular files.
	// Default: false
	FollowSymlinks bool `yaml:"follow_symlinks"`
}

// CacheConfig configures the incremental cache.
type CacheConfig struct {
	// Path is where the cache file lives. Empty disables the cache.
	// Default: ${VEGH_HOME}/cache.cbor
	Path string `yaml:"path"`
}

// HashConfig configures integrity hashing.
type HashConfig struct {
	// ChunkSize is the streaming read size in bytes.
	// Default: 1048576
	ChunkSize int `yaml:"chunk_size"`
}

// Default returns the default configuration. Fields absent from a
// loaded file keep these values.
func Default() *Config {
	return &Config{
		Home: "${HOME}/.cache/vegh",
		Snapshot: SnapshotConfig{
			FormatVersion: int(snapshot.CurrentVersion),
			Compression:   snapshot.CompressionZstd.String(),
		},
		Pack: PackConfig{
			Exclude: []string{".git"},
		},
		Cache: CacheConfig{
			Path: "${VEGH_HOME}/cache.cbor",
		},
		Hash: HashConfig{
			ChunkSize: 1 << 20,
		},
	}
}

// Load loads configuration from the file named by VEGH_CONFIG. Fails
// if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your vegh.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// [Default], and expands variables.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// Resolve loads the explicit path if one is given, else the file named
// by VEGH_CONFIG if set, else returns the defaults with variables
// expanded.
func Resolve(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return LoadFile(explicitPath)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", configPath, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	if c.Home != "" {
		c.Home = filepath.Clean(expandVars(c.Home, vars))
	}
	vars["VEGH_HOME"] = c.Home

	if c.Cache.Path != "" {
		c.Cache.Path = filepath.Clean(expandVars(c.Cache.Path, vars))
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars take precedence over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.SnapshotFormat(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot.format_version: %w", err))
	}
	if _, err := c.SnapshotCompression(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot.compression: %w", err))
	}
	for _, pattern := range c.Pack.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("pack.exclude pattern %q: %w", pattern, err))
		}
	}
	if c.Hash.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("hash.chunk_size must be positive, got %d", c.Hash.ChunkSize))
	}
	if c.Home == "" {
		errs = append(errs, fmt.Errorf("home is required"))
	}

	return errors.Join(errs...)
}

// SnapshotFormat returns the configured format policy.
func (c *Config) SnapshotFormat() (snapshot.Format, error) {
	if c.Snapshot.FormatVersion < 1 || c.Snapshot.FormatVersion > 255 {
		return nil, fmt.Errorf("version %d out of range", c.Snapshot.FormatVersion)
	}
	return snapshot.LookupFormat(uint8(c.Snapshot.FormatVersion))
}

// SnapshotCompression returns the configured block compression.
func (c *Config) SnapshotCompression() (snapshot.Compression, error) {
	return snapshot.ParseCompression(c.Snapshot.Compression)
}
