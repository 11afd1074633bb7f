// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

type tarMember struct {
	name     string
	content  string
	modified time.Time
	dir      bool
}

// buildLegacy writes a zstd-compressed tar stream in PyVegh layout.
func buildLegacy(t *testing.T, members ...tarMember) []byte {
	t.Helper()
	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	writer := tar.NewWriter(encoder)
	for _, member := range members {
		if member.modified.IsZero() {
			member.modified = legacyModified
		}
		header := &tar.Header{
			Name:     member.name,
			Mode:     0o644,
			Size:     int64(len(member.content)),
			ModTime:  member.modified,
			Typeflag: tar.TypeReg,
		}
		if member.dir {
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
			header.Size = 0
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("tar WriteHeader(%q): %v", member.name, err)
		}
		if _, err := writer.Write([]byte(member.content)); err != nil {
			t.Fatalf("tar Write(%q): %v", member.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("zstd Close: %v", err)
	}
	return compressed.Bytes()
}

var legacyModified = time.Unix(1650000000, 0)

func TestLegacySnapshot(t *testing.T) {
	data := buildLegacy(t,
		tarMember{name: LegacyMetadataName, content: `{
			// written by an old PyVegh
			"author": "someone",
			"timestamp": 1650000000.75,
			"comment": "legacy",
			"tool_version": "0.9.0",
		}`},
		tarMember{name: "src/", dir: true, modified: legacyModified},
		tarMember{name: "src/main.rs", content: "fn main() {}\n", modified: legacyModified},
		tarMember{name: "README.md", content: "# readme\n", modified: legacyModified},
	)

	snapshot, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if snapshot.Layout() != LayoutTar {
		t.Errorf("layout = %s, want tar+zstd", snapshot.Layout())
	}

	metadata := snapshot.Metadata()
	want := Metadata{
		FormatVersion: Version1,
		Author:        "someone",
		Comment:       "legacy",
		Timestamp:     1650000000,
		ToolVersion:   "0.9.0",
	}
	if metadata != want {
		t.Errorf("Metadata = %+v, want %+v", metadata, want)
	}

	entries, err := snapshot.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Path != "src/main.rs" || entries[1].Path != "README.md" {
		t.Fatalf("Entries = %+v, want src/main.rs and README.md only", entries)
	}
	if entries[0].ModifiedTime != legacyModified.Unix() {
		t.Errorf("ModifiedTime = %d, want %d", entries[0].ModifiedTime, legacyModified.Unix())
	}

	content, err := snapshot.ReadEntry("README.md")
	if err != nil {
		t.Fatalf("ReadEntry(README.md): %v", err)
	}
	if string(content) != "# readme\n" {
		t.Errorf("ReadEntry(README.md) = %q", content)
	}
	if _, err := snapshot.ReadEntry(LegacyMetadataName); !errors.Is(err, fault.EntryNotFound) {
		t.Errorf("ReadEntry(%s): error = %v, want EntryNotFound", LegacyMetadataName, err)
	}

	sum, err := snapshot.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	wantSum, _ := digest.Sum(digest.SHA256, data)
	if sum != wantSum {
		t.Errorf("legacy Digest = %s, want SHA-256 %s", sum, wantSum)
	}

	failures, err := snapshot.VerifyEntries()
	if err != nil || len(failures) != 0 {
		t.Errorf("VerifyEntries = %v, %v", failures, err)
	}
}

func TestLegacyMetadataReadsFormatVersion(t *testing.T) {
	data := buildLegacy(t,
		tarMember{name: "file.txt", content: "x", modified: legacyModified},
		tarMember{name: LegacyMetadataName, content: `{"author":"a","timestamp":1,"timestamp_human":"then","format_version":"2"}`},
	)
	metadata, err := ReadMetadata(data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if metadata.FormatVersion != Version2 || metadata.TimestampHuman != "then" {
		t.Errorf("ReadMetadata = %+v, want format 2 with timestamp_human", metadata)
	}
}

func TestLegacyMetadataFailures(t *testing.T) {
	cases := []struct {
		name    string
		members []tarMember
		kind    fault.Kind
	}{
		{"no metadata member", []tarMember{{name: "a", content: "a"}}, fault.CorruptContainer},
		{"malformed JSON", []tarMember{{name: LegacyMetadataName, content: "{not json"}}, fault.CorruptContainer},
		{"non-numeric version", []tarMember{{name: LegacyMetadataName, content: `{"format_version":"two"}`}}, fault.CorruptContainer},
		{"future version", []tarMember{{name: LegacyMetadataName, content: `{"format_version":"7"}`}}, fault.UnsupportedFormatVersion},
	}
	for _, tc := range cases {
		data := buildLegacy(t, tc.members...)
		_, err := ReadMetadata(data)
		expectKind(t, tc.name+": ReadMetadata", err, tc.kind)
		_, err = OpenBytes(data)
		expectKind(t, tc.name+": OpenBytes", err, tc.kind)
	}
}

func TestLegacyDuplicateMemberIsCorrupt(t *testing.T) {
	data := buildLegacy(t,
		tarMember{name: LegacyMetadataName, content: `{"author":"a"}`},
		tarMember{name: "same.txt", content: "first"},
		tarMember{name: "same.txt", content: "second"},
	)
	snapshot, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	_, err = snapshot.Entries()
	expectKind(t, "Entries", err, fault.CorruptContainer)
	_, err = ListEntries(data)
	expectKind(t, "ListEntries", err, fault.CorruptContainer)
}

func TestLegacyWalkStreamsMembersInOrder(t *testing.T) {
	data := buildLegacy(t,
		tarMember{name: "one.txt", content: "1"},
		tarMember{name: LegacyMetadataName, content: `{"author":"a"}`},
		tarMember{name: "two.txt", content: "22"},
		tarMember{name: "three.txt", content: "333"},
	)
	snapshot, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	var got []string
	err = snapshot.Walk(func(entry Entry, payload io.Reader) error {
		// Leave two.txt unread; the walk must skip it.
		if entry.Path == "two.txt" {
			got = append(got, entry.Path+"=")
			return nil
		}
		content, err := io.ReadAll(payload)
		if err != nil {
			return err
		}
		got = append(got, entry.Path+"="+string(content))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"one.txt=1", "two.txt=", "three.txt=333"}
	if !slices.Equal(got, want) {
		t.Errorf("Walk visited %q, want %q", got, want)
	}
}
