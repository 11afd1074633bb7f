// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codetease/vegh/lib/cache"
	"github.com/codetease/vegh/lib/clock"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/snapshot"
	"github.com/codetease/vegh/lib/testutil"
)

var fileTime = testutil.TreeTime

func packTree(t *testing.T, root string, options Options) (Result, *snapshot.Snapshot) {
	t.Helper()
	var out bytes.Buffer
	result, err := Directory(t.Context(), root, &out, options)
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	opened, err := snapshot.OpenBytes(out.Bytes())
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	return result, opened
}

func TestDirectoryPacksTree(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.txt":       "hello world",
		"b/c.bin":     "",
		".git/config": "[core]",
		"build/x.o":   "object",
		"notes.tmp":   "scratch",
	})

	fake := clock.Fake(time.Unix(1712345678, 0))
	result, opened := packTree(t, root, Options{
		Compression: snapshot.CompressionZstd,
		Author:      "packer",
		Exclude:     []string{".git", "build", "*.tmp"},
		Clock:       fake,
	})

	if result.Files != 2 || result.Bytes != 11 {
		t.Errorf("Result files=%d bytes=%d, want 2 and 11", result.Files, result.Bytes)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", result.Skipped)
	}

	entries, err := opened.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Path != "a.txt" || entries[1].Path != "b/c.bin" {
		t.Fatalf("Entries = %+v, want a.txt and b/c.bin", entries)
	}
	if entries[0].ModifiedTime != fileTime.Unix() {
		t.Errorf("a.txt modified = %d, want %d", entries[0].ModifiedTime, fileTime.Unix())
	}

	metadata := opened.Metadata()
	if metadata.Timestamp != 1712345678 || metadata.Author != "packer" {
		t.Errorf("Metadata = %+v, want timestamp from the fake clock and author packer", metadata)
	}
	if metadata.FormatVersion != snapshot.Version2 {
		t.Errorf("FormatVersion = %d, want 2", metadata.FormatVersion)
	}

	content, err := opened.ReadEntry("a.txt")
	if err != nil || string(content) != "hello world" {
		t.Errorf("ReadEntry(a.txt) = %q, %v", content, err)
	}
	sum, err := opened.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if sum != result.Snapshot.Digest {
		t.Errorf("Result digest %s differs from container digest %s", result.Snapshot.Digest, sum)
	}
}

func TestDirectoryUsesCache(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.txt": "hello world",
		"b.txt": "second file",
	})
	index := cache.New()

	first, _ := packTree(t, root, Options{Cache: index, Clock: clock.Fake(fileTime)})
	if first.CacheHits != 0 || first.CacheMisses != 2 {
		t.Errorf("first run hits=%d misses=%d, want 0 and 2", first.CacheHits, first.CacheMisses)
	}
	if index.Len() != 2 {
		t.Fatalf("cache holds %d entries after first run, want 2", index.Len())
	}
	recorded, _, _ := index.Lookup("a.txt")
	want, _ := digest.Sum(digest.BLAKE3, []byte("hello world"))
	if recorded.Digest == nil || *recorded.Digest != want {
		t.Errorf("cached digest for a.txt = %v, want %s", recorded.Digest, want)
	}
	if index.LastSnapshot() != fileTime.Unix() {
		t.Errorf("LastSnapshot = %d, want %d", index.LastSnapshot(), fileTime.Unix())
	}

	second, _ := packTree(t, root, Options{Cache: index})
	if second.CacheHits != 2 || second.CacheMisses != 0 {
		t.Errorf("second run hits=%d misses=%d, want 2 and 0", second.CacheHits, second.CacheMisses)
	}

	// Growing a file changes its size: a miss.
	testutil.WriteFile(t, root, "b.txt", "second file, edited")
	third, opened := packTree(t, root, Options{Cache: index})
	if third.CacheHits != 1 || third.CacheMisses != 1 {
		t.Errorf("third run hits=%d misses=%d, want 1 and 1", third.CacheHits, third.CacheMisses)
	}
	content, err := opened.ReadEntry("b.txt")
	if err != nil || string(content) != "second file, edited" {
		t.Errorf("ReadEntry(b.txt) = %q, %v", content, err)
	}
}

func TestDirectoryReusesCachedDigest(t *testing.T) {
	// A hit is trusted: the recorded digest goes into the snapshot
	// without the file being re-hashed.
	root := testutil.WriteTree(t, map[string]string{"a.txt": "hello world"})
	index := cache.New()
	stale, _ := digest.Sum(digest.BLAKE3, []byte("different content"))
	if err := index.Record("a.txt", 11, fileTime.Unix(), &stale); err != nil {
		t.Fatalf("Record: %v", err)
	}

	_, opened := packTree(t, root, Options{Cache: index})
	entry, err := opened.Lookup("a.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Digest == nil || *entry.Digest != stale {
		t.Errorf("entry digest = %v, want the cached %s", entry.Digest, stale)
	}
}

func TestDirectoryFormatOne(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"only.txt": "v1"})
	result, opened := packTree(t, root, Options{Format: snapshot.FormatV1{}, Compression: snapshot.CompressionLZ4})
	if opened.Format().Version() != snapshot.Version1 {
		t.Errorf("format = %d, want 1", opened.Format().Version())
	}
	if result.Snapshot.Digest.Algorithm != digest.SHA256 {
		t.Errorf("format 1 digest algorithm = %s, want sha256", result.Snapshot.Digest.Algorithm)
	}
}

func TestDirectorySkipsSymlinks(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"target.txt": "target"})
	if err := os.Symlink("target.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	skipped, opened := packTree(t, root, Options{})
	if skipped.Files != 1 {
		t.Errorf("without FollowSymlinks packed %d files, want 1", skipped.Files)
	}
	if _, err := opened.Lookup("link.txt"); err == nil {
		t.Error("symlink packed without FollowSymlinks")
	}

	followed, opened := packTree(t, root, Options{FollowSymlinks: true})
	if followed.Files != 2 {
		t.Errorf("with FollowSymlinks packed %d files, want 2", followed.Files)
	}
	content, err := opened.ReadEntry("link.txt")
	if err != nil || string(content) != "target" {
		t.Errorf("ReadEntry(link.txt) = %q, %v", content, err)
	}
}

func TestDirectoryRejectsBadPattern(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"a": "a"})
	var out bytes.Buffer
	if _, err := Directory(t.Context(), root, &out, Options{Exclude: []string{"[unclosed"}}); err == nil {
		t.Error("Directory accepted a malformed exclude pattern")
	}
}

func TestDirectoryHonorsCancellation(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"a": "a", "b": "b"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	var out bytes.Buffer
	_, err := Directory(ctx, root, &out, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Directory with cancelled context: error = %v, want context.Canceled", err)
	}
}
