// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache is the incremental snapshot cache: the last observed
// size, modified time, and content digest of every file a previous
// run packed.
//
// A cache hit is decided from size and modified time alone. The
// recorded digest is never consulted to decide a hit; it is carried so
// that a hit can reuse it instead of re-hashing the file. A file whose
// content changed while both attributes stayed the same is therefore
// reported as a hit. That trade is deliberate for an incremental
// packer and is not corrected here.
//
// The unit of ModifiedTime is the caller's choice (the packer uses
// Unix seconds) but must be consistent across Record and CheckHit.
//
// A Cache is not safe for concurrent mutation. Callers sharing one
// across goroutines must serialize access.
package cache

import (
	"sort"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// Entry is the last observed state of one file.
type Entry struct {
	Path         string         `json:"path"`
	Size         uint64         `json:"size"`
	ModifiedTime int64          `json:"modified"`
	Digest       *digest.Digest `json:"digest,omitempty"`
}

// Cache maps relative paths to their last observed state. Create one
// with [New] or [Load]; a zero Cache is malformed and every operation
// on it fails with [fault.InvalidUsage].
type Cache struct {
	lastSnapshot int64
	files        map[string]Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{files: make(map[string]Entry)}
}

func (c *Cache) check() error {
	if c == nil {
		return fault.New(fault.InvalidUsage, "nil cache")
	}
	if c.files == nil {
		return fault.New(fault.InvalidUsage, "cache was not created with cache.New or cache.Load")
	}
	return nil
}

// CheckHit reports whether path was recorded with exactly this size
// and modified time. A path never recorded is a miss. Fails only when
// the cache itself is nil or malformed.
func (c *Cache) CheckHit(path string, size uint64, modified int64) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	entry, ok := c.files[path]
	return ok && entry.Size == size && entry.ModifiedTime == modified, nil
}

// Record inserts or replaces the entry for path. The last write wins;
// nothing from a previous entry is kept.
func (c *Cache) Record(path string, size uint64, modified int64, sum *digest.Digest) error {
	if err := c.check(); err != nil {
		return err
	}
	if path == "" {
		return fault.New(fault.InvalidUsage, "recording an empty path")
	}
	entry := Entry{Path: path, Size: size, ModifiedTime: modified}
	if sum != nil {
		copied := *sum
		entry.Digest = &copied
	}
	c.files[path] = entry
	return nil
}

// Remove deletes the entry for path, reporting whether one existed.
// Entries are only ever removed by the caller.
func (c *Cache) Remove(path string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	_, existed := c.files[path]
	delete(c.files, path)
	return existed, nil
}

// Lookup returns the entry recorded for path.
func (c *Cache) Lookup(path string) (Entry, bool, error) {
	if err := c.check(); err != nil {
		return Entry{}, false, err
	}
	entry, ok := c.files[path]
	return entry, ok, nil
}

// Len returns the number of recorded paths. A nil or malformed cache
// has none.
func (c *Cache) Len() int {
	if c.check() != nil {
		return 0
	}
	return len(c.files)
}

// Paths returns every recorded path in sorted order.
func (c *Cache) Paths() []string {
	if c.check() != nil {
		return nil
	}
	paths := make([]string, 0, len(c.files))
	for path := range c.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns every entry sorted by path.
func (c *Cache) Entries() []Entry {
	paths := c.Paths()
	entries := make([]Entry, len(paths))
	for i, path := range paths {
		entries[i] = c.files[path]
	}
	return entries
}

// LastSnapshot returns the timestamp of the snapshot that last
// updated the cache, or zero if none has.
func (c *Cache) LastSnapshot() int64 {
	if c.check() != nil {
		return 0
	}
	return c.lastSnapshot
}

// SetLastSnapshot records the timestamp of the snapshot that updated
// the cache.
func (c *Cache) SetLastSnapshot(timestamp int64) error {
	if err := c.check(); err != nil {
		return err
	}
	c.lastSnapshot = timestamp
	return nil
}
