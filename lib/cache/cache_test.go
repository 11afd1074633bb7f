// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

func mustSum(t *testing.T, content string) digest.Digest {
	t.Helper()
	sum, err := digest.Sum(digest.BLAKE3, []byte(content))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	return sum
}

func TestCheckHitScenario(t *testing.T) {
	cache := New()
	sum := mustSum(t, "x")
	if err := cache.Record("x.txt", 100, 5000, &sum); err != nil {
		t.Fatalf("Record: %v", err)
	}

	tests := []struct {
		path     string
		size     uint64
		modified int64
		want     bool
	}{
		{"x.txt", 100, 5000, true},
		{"x.txt", 101, 5000, false},
		{"x.txt", 99, 5000, false},
		{"x.txt", 100, 5001, false},
		{"x.txt", 100, 4999, false},
		{"y.txt", 100, 5000, false},
		{"X.txt", 100, 5000, false},
	}
	for _, tt := range tests {
		hit, err := cache.CheckHit(tt.path, tt.size, tt.modified)
		if err != nil {
			t.Fatalf("CheckHit(%q, %d, %d): %v", tt.path, tt.size, tt.modified, err)
		}
		if hit != tt.want {
			t.Errorf("CheckHit(%q, %d, %d) = %v, want %v", tt.path, tt.size, tt.modified, hit, tt.want)
		}
	}
}

func TestCheckHitIgnoresDigest(t *testing.T) {
	// Content changes that leave size and modified time alone are
	// still hits: the decision never consults the digest.
	cache := New()
	if err := cache.Record("file", 3, 10, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	hit, err := cache.CheckHit("file", 3, 10)
	if err != nil || !hit {
		t.Errorf("CheckHit without digest = %v, %v; want hit", hit, err)
	}
}

func TestRecordLastWriteWins(t *testing.T) {
	cache := New()
	first := mustSum(t, "first")
	if err := cache.Record("file", 1, 1, &first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cache.Record("file", 2, 2, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, ok, err := cache.Lookup("file")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if entry.Size != 2 || entry.ModifiedTime != 2 || entry.Digest != nil {
		t.Errorf("entry after overwrite = %+v, want size 2, modified 2, no digest", entry)
	}
	if hit, _ := cache.CheckHit("file", 1, 1); hit {
		t.Error("old attributes still hit after overwrite")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestRecordCopiesDigest(t *testing.T) {
	cache := New()
	sum := mustSum(t, "content")
	if err := cache.Record("file", 7, 1, &sum); err != nil {
		t.Fatalf("Record: %v", err)
	}
	original := sum
	sum.Sum[0] ^= 0xff
	entry, _, _ := cache.Lookup("file")
	if *entry.Digest != original {
		t.Error("mutating the caller's digest changed the recorded entry")
	}
}

func TestRemoveAndPaths(t *testing.T) {
	cache := New()
	for _, path := range []string{"b", "a", "c/d"} {
		if err := cache.Record(path, 1, 1, nil); err != nil {
			t.Fatalf("Record(%q): %v", path, err)
		}
	}
	paths := cache.Paths()
	want := []string{"a", "b", "c/d"}
	if len(paths) != len(want) {
		t.Fatalf("Paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("Paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	removed, err := cache.Remove("b")
	if err != nil || !removed {
		t.Errorf("Remove(b) = %v, %v; want true", removed, err)
	}
	removed, err = cache.Remove("b")
	if err != nil || removed {
		t.Errorf("second Remove(b) = %v, %v; want false", removed, err)
	}
	if hit, _ := cache.CheckHit("b", 1, 1); hit {
		t.Error("removed path still hits")
	}
}

func TestMalformedCache(t *testing.T) {
	var nilCache *Cache
	zero := &Cache{}
	for name, cache := range map[string]*Cache{"nil": nilCache, "zero": zero} {
		if _, err := cache.CheckHit("x", 1, 1); !errors.Is(err, fault.InvalidUsage) {
			t.Errorf("%s cache: CheckHit error = %v, want InvalidUsage", name, err)
		}
		if err := cache.Record("x", 1, 1, nil); !errors.Is(err, fault.InvalidUsage) {
			t.Errorf("%s cache: Record error = %v, want InvalidUsage", name, err)
		}
		if cache.Len() != 0 || cache.Paths() != nil {
			t.Errorf("%s cache reports contents", name)
		}
	}
	if err := New().Record("", 1, 1, nil); !errors.Is(err, fault.InvalidUsage) {
		t.Errorf("Record(\"\") error = %v, want InvalidUsage", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.cbor")

	cache := New()
	sum := mustSum(t, "x")
	if err := cache.Record("x.txt", 100, 5000, &sum); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cache.Record("y.txt", 0, 6000, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := cache.SetLastSnapshot(1700000000); err != nil {
		t.Fatalf("SetLastSnapshot: %v", err)
	}
	if err := cache.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LastSnapshot() != 1700000000 {
		t.Errorf("LastSnapshot = %d, want 1700000000", loaded.LastSnapshot())
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len = %d, want 2", loaded.Len())
	}
	entry, ok, _ := loaded.Lookup("x.txt")
	if !ok || entry.Digest == nil || *entry.Digest != sum {
		t.Errorf("x.txt after reload = %+v, want digest %s", entry, sum)
	}
	if hit, _ := loaded.CheckHit("x.txt", 100, 5000); !hit {
		t.Error("reloaded cache misses x.txt")
	}

	// Saving an unchanged cache reproduces the file byte for byte.
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := loaded.Save(path); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(first) != string(second) {
		t.Error("re-saving an unchanged cache changed its bytes")
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".cache-*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cache, err := Load(filepath.Join(t.TempDir(), "absent.cbor"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("missing cache file loaded %d entries", cache.Len())
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.cbor")
	if err := os.WriteFile(path, []byte("this is not CBOR {"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, fault.InvalidUsage) {
		t.Errorf("Load of garbage: error = %v, want InvalidUsage", err)
	}
}
