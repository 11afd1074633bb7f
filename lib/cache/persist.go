// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/codetease/vegh/lib/codec"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// fileVersion is the schema version of the on-disk cache file.
const fileVersion = 1

// fileRecord is the CBOR layout of a saved cache. Files are sorted by
// path so that saving an unchanged cache produces identical bytes.
type fileRecord struct {
	Version      int               `cbor:"version"`
	LastSnapshot int64             `cbor:"last_snapshot"`
	Files        []fileRecordEntry `cbor:"files"`
}

type fileRecordEntry struct {
	Path         string         `cbor:"path"`
	Size         uint64         `cbor:"size"`
	ModifiedTime int64          `cbor:"modified"`
	Digest       *digest.Digest `cbor:"digest,omitempty"`
}

// Save atomically writes the cache to path: the file is written to a
// temporary name in the same directory and renamed into place, so a
// reader never sees a partial cache.
func (c *Cache) Save(path string) error {
	if err := c.check(); err != nil {
		return err
	}

	record := fileRecord{Version: fileVersion, LastSnapshot: c.lastSnapshot}
	for _, entry := range c.Entries() {
		record.Files = append(record.Files, fileRecordEntry(entry))
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", directory, err)
	}
	tmpFile, err := os.CreateTemp(directory, ".cache-*.cbor")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming cache to %s: %w", path, err)
	}

	success = true
	return nil
}

// Load reads a cache saved by [Cache.Save]. A missing file yields an
// empty cache; a file that does not decode, or decodes to a cache no
// Save would produce, fails with [fault.InvalidUsage].
func Load(path string) (*Cache, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	defer file.Close()

	var record fileRecord
	if err := codec.NewDecoder(file).Decode(&record); err != nil {
		return nil, fault.New(fault.InvalidUsage, "decoding cache %s: %w", path, err)
	}
	if record.Version != fileVersion {
		return nil, fault.New(fault.InvalidUsage, "cache %s has schema version %d, want %d", path, record.Version, fileVersion)
	}

	loaded := New()
	loaded.lastSnapshot = record.LastSnapshot
	for _, raw := range record.Files {
		if raw.Path == "" {
			return nil, fault.New(fault.InvalidUsage, "cache %s has an entry with an empty path", path)
		}
		if _, duplicate := loaded.files[raw.Path]; duplicate {
			return nil, fault.New(fault.InvalidUsage, "cache %s records %q twice", path, raw.Path)
		}
		loaded.files[raw.Path] = Entry(raw)
	}
	return loaded, nil
}
