// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"math"
	"strings"

	"github.com/codetease/vegh/lib/codec"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// maxDirectorySize bounds the uncompressed directory block.
const maxDirectorySize = 256 << 20

// Entry describes one file in a snapshot. Payload bytes are not held;
// read them with [Snapshot.ReadEntry] or [Snapshot.OpenEntry].
type Entry struct {
	// Path is the entry path exactly as stored. Lookups match it
	// byte for byte: no case folding, no "." or ".." cleaning.
	Path string `json:"path"`

	// Size is the payload length in bytes.
	Size uint64 `json:"size"`

	// Offset is the payload's position in the uncompressed data
	// stream (native containers) or tar stream (legacy snapshots).
	Offset uint64 `json:"offset"`

	// ModifiedTime is in Unix seconds. Format 2 containers record it
	// in the directory and legacy snapshots take it from the tar
	// header; format 1 containers leave it zero.
	//
	// Digest is the BLAKE3 content digest, recorded by format 2
	// containers only.
	ModifiedTime int64          `json:"modified,omitempty"`
	Digest       *digest.Digest `json:"digest,omitempty"`
}

// directoryRecord is the CBOR layout of the directory block.
type directoryRecord struct {
	Entries []directoryEntry `cbor:"entries"`
}

type directoryEntry struct {
	Path         string         `cbor:"path"`
	Size         uint64         `cbor:"size"`
	Offset       uint64         `cbor:"offset"`
	ModifiedTime int64          `cbor:"modified,omitempty"`
	Digest       *digest.Digest `cbor:"digest,omitempty"`
}

func encodeDirectory(entries []Entry) ([]byte, error) {
	record := directoryRecord{Entries: make([]directoryEntry, len(entries))}
	for i, entry := range entries {
		record.Entries[i] = directoryEntry(entry)
	}
	return codec.Marshal(record)
}

// decodeDirectory parses and validates a directory block. dataSize is
// the uncompressed length of the data block; the entries must tile it
// exactly, in order.
func decodeDirectory(data []byte, format Format, dataSize uint64) ([]Entry, error) {
	var record directoryRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fault.New(fault.CorruptContainer, "decoding directory: %w", err)
	}

	entries := make([]Entry, len(record.Entries))
	var expectedOffset uint64
	for i, raw := range record.Entries {
		entry := Entry(raw)
		if err := checkPath(entry.Path); err != nil {
			return nil, err
		}
		if entry.Size > math.MaxInt64 || entry.Offset > math.MaxInt64 {
			return nil, fault.New(fault.CorruptContainer,
				"entry %q declares %d bytes at offset %d", entry.Path, entry.Size, entry.Offset)
		}
		if entry.Offset != expectedOffset {
			return nil, fault.New(fault.CorruptContainer,
				"entry %q starts at offset %d, want %d", entry.Path, entry.Offset, expectedOffset)
		}
		if entry.Size > dataSize-expectedOffset {
			return nil, fault.New(fault.CorruptContainer,
				"entry %q (%d bytes at offset %d) runs past the end of the data block (%d bytes)",
				entry.Path, entry.Size, entry.Offset, dataSize)
		}
		if err := format.checkEntry(entry); err != nil {
			return nil, err
		}
		expectedOffset += entry.Size
		entries[i] = entry
	}
	if expectedOffset != dataSize {
		return nil, fault.New(fault.CorruptContainer,
			"directory covers %d bytes but the data block holds %d", expectedOffset, dataSize)
	}

	if _, err := indexEntries(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// indexEntries maps each path to its position, rejecting duplicates.
func indexEntries(entries []Entry) (map[string]int, error) {
	index := make(map[string]int, len(entries))
	for i, entry := range entries {
		if first, exists := index[entry.Path]; exists {
			return nil, fault.New(fault.CorruptContainer,
				"path %q appears twice (entries %d and %d)", entry.Path, first, i)
		}
		index[entry.Path] = i
	}
	return index, nil
}

// checkPath rejects paths no writer produces. Paths are otherwise
// opaque: this is not a normalization step.
func checkPath(path string) error {
	if path == "" {
		return fault.New(fault.CorruptContainer, "entry has an empty path")
	}
	if strings.IndexByte(path, 0) >= 0 {
		return fault.New(fault.CorruptContainer, "entry path %q contains a NUL byte", path)
	}
	return nil
}
