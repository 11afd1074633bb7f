// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack builds a snapshot from a directory tree, consulting an
// incremental cache so that files unchanged since the previous run
// are not hashed again.
//
// Files are visited in walk order, names sorted within each directory,
// so packing the same tree twice produces the same directory. Only
// regular files are packed; directories are implied by their contents
// and symlinks are skipped unless FollowSymlinks is set.
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/codetease/vegh/lib/cache"
	"github.com/codetease/vegh/lib/clock"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/snapshot"
)

// Options configures a pack run.
type Options struct {
	// Format selects the snapshot format. Defaults to format 2.
	Format snapshot.Format

	// Compression applies to both container blocks. The zero value
	// is CompressionNone; callers wanting the default should pass
	// snapshot.CompressionZstd.
	Compression snapshot.Compression

	// Author and Comment go into the snapshot metadata.
	Author  string
	Comment string

	// ToolVersion is recorded in the metadata.
	ToolVersion string

	// Exclude holds path.Match patterns. A pattern excludes a file
	// or directory when it matches either the slash-separated path
	// relative to the root or the base name alone. An excluded
	// directory is not descended into.
	Exclude []string

	// FollowSymlinks packs the targets of symlinks that resolve to
	// regular files. Symlinked directories are never descended into.
	FollowSymlinks bool

	// Cache, when non-nil, is consulted and updated in place. Saving
	// it is the caller's job.
	Cache *cache.Cache

	// Clock supplies the snapshot timestamp. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger receives per-file debug records and a summary. Nil
	// discards.
	Logger *slog.Logger
}

// Result summarizes a pack run.
type Result struct {
	// Files is the number of files packed and Bytes their total
	// payload size.
	Files int
	Bytes uint64

	// CacheHits and CacheMisses count cache decisions. Both stay zero
	// without a cache.
	CacheHits   int
	CacheMisses int

	// Skipped counts excluded paths and non-regular files.
	Skipped int

	// Snapshot describes the written container.
	Snapshot snapshot.WriteResult
}

// file is one planned entry.
type file struct {
	relative string
	absolute string
	size     uint64
	modified int64
	known    *digest.Digest
}

// Directory packs the tree under root into a snapshot written to out.
// The context is checked between files; a cancelled run returns the
// context's error and leaves out partially written.
func Directory(ctx context.Context, root string, out io.Writer, options Options) (Result, error) {
	for _, pattern := range options.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return Result{}, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}
	if options.Format == nil {
		options.Format = snapshot.FormatV2{}
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var result Result
	files, err := plan(ctx, root, options, logger, &result)
	if err != nil {
		return result, err
	}

	now := options.Clock.Now()
	builder := snapshot.NewBuilder(options.Format, snapshot.Metadata{
		Author:         options.Author,
		Comment:        options.Comment,
		Timestamp:      now.Unix(),
		TimestampHuman: now.UTC().Format(time.RFC3339),
		ToolVersion:    options.ToolVersion,
	})
	if err := builder.SetCompression(options.Compression); err != nil {
		return result, err
	}
	for _, planned := range files {
		absolute := planned.absolute
		err := builder.AddFile(planned.relative, planned.size, planned.modified, planned.known,
			func() (io.ReadCloser, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return os.Open(absolute)
			})
		if err != nil {
			return result, err
		}
		result.Files++
		result.Bytes += planned.size
	}

	result.Snapshot, err = builder.WriteTo(out)
	if err != nil {
		return result, err
	}

	if options.Cache != nil {
		for i, entry := range result.Snapshot.Entries {
			// Format 1 entries carry no digest; keep a reused one.
			recorded := entry.Digest
			if recorded == nil {
				recorded = files[i].known
			}
			if err := options.Cache.Record(entry.Path, files[i].size, files[i].modified, recorded); err != nil {
				return result, err
			}
		}
		if err := options.Cache.SetLastSnapshot(now.Unix()); err != nil {
			return result, err
		}
	}

	logger.Info("packed snapshot",
		"root", root,
		"files", result.Files,
		"bytes", result.Bytes,
		"cache_hits", result.CacheHits,
		"cache_misses", result.CacheMisses,
		"skipped", result.Skipped,
		"container_bytes", result.Snapshot.Bytes,
		"digest", result.Snapshot.Digest.String(),
	)
	return result, nil
}

// plan walks root and decides, for each file, whether its digest can
// be reused from the cache.
func plan(ctx context.Context, root string, options Options, logger *slog.Logger, result *Result) ([]file, error) {
	var files []file
	err := filepath.WalkDir(root, func(current string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if current == root {
			return nil
		}

		relativeNative, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		relative := filepath.ToSlash(relativeNative)

		if excluded(options.Exclude, relative) {
			logger.Debug("excluded", "path", relative)
			result.Skipped++
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		info, err := regularFileInfo(current, entry, options.FollowSymlinks)
		if err != nil {
			return err
		}
		if info == nil {
			logger.Debug("skipping non-regular file", "path", relative, "type", entry.Type().String())
			result.Skipped++
			return nil
		}

		planned := file{
			relative: relative,
			absolute: current,
			size:     uint64(info.Size()),
			modified: info.ModTime().Unix(),
		}
		if options.Cache != nil {
			hit, err := options.Cache.CheckHit(relative, planned.size, planned.modified)
			if err != nil {
				return err
			}
			if hit {
				result.CacheHits++
				cached, _, _ := options.Cache.Lookup(relative)
				if cached.Digest != nil && cached.Digest.Algorithm == digest.BLAKE3 {
					planned.known = cached.Digest
				}
				logger.Debug("cache hit", "path", relative)
			} else {
				result.CacheMisses++
				logger.Debug("cache miss", "path", relative, "size", planned.size, "modified", planned.modified)
			}
		}
		files = append(files, planned)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// regularFileInfo returns the FileInfo for a packable file, or nil if
// the entry should be skipped.
func regularFileInfo(current string, entry fs.DirEntry, followSymlinks bool) (fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink != 0 {
		if !followSymlinks {
			return nil, nil
		}
		info, err := os.Stat(current)
		if errors.Is(err, fs.ErrNotExist) {
			// Dangling link.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, nil
		}
		return info, nil
	}
	if !entry.Type().IsRegular() {
		return nil, nil
	}
	return entry.Info()
}

func excluded(patterns []string, relative string) bool {
	base := path.Base(relative)
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, relative); matched {
			return true
		}
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
