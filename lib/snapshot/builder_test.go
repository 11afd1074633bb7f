// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// testMetadata is the metadata every test container carries.
var testMetadata = Metadata{
	Author:      "tester",
	Comment:     "unit test",
	Timestamp:   1700000000,
	ToolVersion: "test",
}

// buildContainer writes a container holding files in the given order.
func buildContainer(t *testing.T, format Format, compression Compression, files ...testFile) []byte {
	t.Helper()
	builder := NewBuilder(format, testMetadata)
	if err := builder.SetCompression(compression); err != nil {
		t.Fatalf("SetCompression(%s): %v", compression, err)
	}
	for _, file := range files {
		if err := builder.AddBytes(file.path, file.content, file.modified); err != nil {
			t.Fatalf("AddBytes(%q): %v", file.path, err)
		}
	}
	var buffer bytes.Buffer
	result, err := builder.WriteTo(&buffer)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if result.Bytes != int64(buffer.Len()) {
		t.Fatalf("WriteResult.Bytes = %d, buffer holds %d", result.Bytes, buffer.Len())
	}
	return buffer.Bytes()
}

type testFile struct {
	path     string
	content  []byte
	modified int64
}

// scenarioFiles is the two-entry archive used across the tests:
// a.txt holding "hello world" and an empty b/c.bin.
func scenarioFiles() []testFile {
	return []testFile{
		{path: "a.txt", content: []byte("hello world"), modified: 1700000100},
		{path: "b/c.bin", content: nil, modified: 1700000200},
	}
}

func TestBuilderResultDigest(t *testing.T) {
	for _, format := range []Format{FormatV1{}, FormatV2{}} {
		builder := NewBuilder(format, testMetadata)
		for _, file := range scenarioFiles() {
			if err := builder.AddBytes(file.path, file.content, file.modified); err != nil {
				t.Fatalf("AddBytes: %v", err)
			}
		}
		var buffer bytes.Buffer
		result, err := builder.WriteTo(&buffer)
		if err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		want, err := digest.Sum(format.HashAlgorithm(), buffer.Bytes())
		if err != nil {
			t.Fatalf("Sum: %v", err)
		}
		if result.Digest != want {
			t.Errorf("format %d: WriteResult.Digest = %s, want %s", format.Version(), result.Digest, want)
		}
		if len(result.Entries) != 2 {
			t.Errorf("format %d: %d entries in result, want 2", format.Version(), len(result.Entries))
		}
	}
}

func TestBuilderRecordsEntryDigests(t *testing.T) {
	data := buildContainer(t, FormatV2{}, CompressionZstd, scenarioFiles()...)
	entries, err := ListEntries(data)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	for i, file := range scenarioFiles() {
		want, _ := digest.Sum(digest.BLAKE3, file.content)
		if entries[i].Digest == nil {
			t.Fatalf("entry %q has no digest", entries[i].Path)
		}
		if *entries[i].Digest != want {
			t.Errorf("entry %q digest = %s, want %s", entries[i].Path, entries[i].Digest, want)
		}
		if entries[i].ModifiedTime != file.modified {
			t.Errorf("entry %q modified = %d, want %d", entries[i].Path, entries[i].ModifiedTime, file.modified)
		}
	}
}

func TestBuilderFormatOneOmitsCacheFields(t *testing.T) {
	data := buildContainer(t, FormatV1{}, CompressionLZ4, scenarioFiles()...)
	entries, err := ListEntries(data)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	for _, entry := range entries {
		if entry.Digest != nil || entry.ModifiedTime != 0 {
			t.Errorf("format 1 entry %q carries cache fields: %+v", entry.Path, entry)
		}
	}
	metadata, err := ReadMetadata(data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if metadata.CacheSchema != 0 {
		t.Errorf("format 1 CacheSchema = %d, want 0", metadata.CacheSchema)
	}
}

func TestBuilderTrustsKnownDigest(t *testing.T) {
	// A digest supplied by the caller (an incremental cache hit) is
	// recorded as-is, not recomputed.
	known, _ := digest.Sum(digest.BLAKE3, []byte("an older version"))
	builder := NewBuilder(FormatV2{}, testMetadata)
	content := []byte("current")
	err := builder.AddFile("cached.txt", uint64(len(content)), 5, &known, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content)), nil
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	var buffer bytes.Buffer
	if _, err := builder.WriteTo(&buffer); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	entries, err := ListEntries(buffer.Bytes())
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if *entries[0].Digest != known {
		t.Errorf("recorded digest = %s, want the supplied %s", entries[0].Digest, known)
	}
}

func TestBuilderRejectsKnownDigestOfWrongAlgorithm(t *testing.T) {
	known, _ := digest.Sum(digest.SHA256, []byte("x"))
	builder := NewBuilder(FormatV2{}, testMetadata)
	err := builder.AddFile("x", 1, 0, &known, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})
	if !errors.Is(err, fault.InvalidUsage) {
		t.Errorf("AddFile with SHA-256 digest: error = %v, want InvalidUsage", err)
	}
}

func TestBuilderRejectsDuplicatePath(t *testing.T) {
	builder := NewBuilder(FormatV2{}, testMetadata)
	if err := builder.AddBytes("same", []byte("1"), 0); err != nil {
		t.Fatalf("first AddBytes: %v", err)
	}
	err := builder.AddBytes("same", []byte("2"), 0)
	if !errors.Is(err, fault.InvalidUsage) {
		t.Errorf("duplicate AddBytes: error = %v, want InvalidUsage", err)
	}
	if builder.Len() != 1 {
		t.Errorf("Len = %d after rejected duplicate, want 1", builder.Len())
	}
}

func TestBuilderRejectsInvalidPath(t *testing.T) {
	builder := NewBuilder(FormatV2{}, testMetadata)
	for _, path := range []string{"", "nul\x00byte"} {
		if err := builder.AddBytes(path, nil, 0); !errors.Is(err, fault.InvalidUsage) {
			t.Errorf("AddBytes(%q): error = %v, want InvalidUsage", path, err)
		}
	}
}

func TestBuilderDetectsSizeChange(t *testing.T) {
	for _, content := range []string{"short", "much longer than declared"} {
		builder := NewBuilder(FormatV2{}, testMetadata)
		err := builder.AddFile("changing", 10, 0, nil, func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		})
		if err != nil {
			t.Fatalf("AddFile: %v", err)
		}
		if _, err := builder.WriteTo(io.Discard); err == nil {
			t.Errorf("WriteTo with %d-byte source declared as 10 bytes succeeded", len(content))
		}
	}
}

func TestBuilderPropagatesOpenError(t *testing.T) {
	openErr := errors.New("permission denied")
	builder := NewBuilder(FormatV2{}, testMetadata)
	err := builder.AddFile("locked", 1, 0, nil, func() (io.ReadCloser, error) {
		return nil, openErr
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := builder.WriteTo(io.Discard); !errors.Is(err, openErr) {
		t.Errorf("WriteTo error = %v, want wrapped %v", err, openErr)
	}
}

func TestSetCompressionRejectsUnknownTag(t *testing.T) {
	builder := NewBuilder(FormatV2{}, testMetadata)
	if err := builder.SetCompression(Compression(9)); !errors.Is(err, fault.UnsupportedCompression) {
		t.Errorf("SetCompression(9): error = %v, want UnsupportedCompression", err)
	}
}
