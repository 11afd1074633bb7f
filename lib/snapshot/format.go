// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"github.com/codetease/vegh/lib/codec"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// Format versions understood by this reader.
const (
	Version1 uint8 = 1
	Version2 uint8 = 2

	// CurrentVersion is what new snapshots are written as.
	CurrentVersion = Version2
)

// CacheSchemaVersion is the cache schema marker carried by format 2
// metadata. It identifies the per-entry fields (modified time and
// content digest) that an incremental cache can be seeded from.
const CacheSchemaVersion = 2

// Format is the version-specific policy of a snapshot: which digest
// algorithm covers the container and how the metadata record is laid
// out. The set of implementations is closed: [FormatV1] and
// [FormatV2].
type Format interface {
	// Version returns the format version byte.
	Version() uint8

	// HashAlgorithm returns the algorithm used for the whole-container
	// digest.
	HashAlgorithm() digest.Algorithm

	encodeMetadata(Metadata) ([]byte, error)
	decodeMetadata(record []byte) (Metadata, error)

	// checkEntry validates the version-specific fields of a
	// directory entry.
	checkEntry(Entry) error
}

// LookupFormat returns the policy for version. Versions other than 1
// and 2 fail with [fault.UnsupportedFormatVersion]. Version 0 is never
// written and is reported the same way here; the header parser treats
// it as corruption before getting this far.
func LookupFormat(version uint8) (Format, error) {
	switch version {
	case Version1:
		return FormatV1{}, nil
	case Version2:
		return FormatV2{}, nil
	default:
		return nil, fault.New(fault.UnsupportedFormatVersion,
			"format version %d is not supported (this reader supports %d and %d)",
			version, Version1, Version2)
	}
}

// Metadata is the snapshot-level record stored in the header. Absent
// text fields are empty strings.
type Metadata struct {
	FormatVersion uint8  `json:"format_version"`
	Author        string `json:"author"`
	Comment       string `json:"comment"`

	// Timestamp is the creation time in Unix seconds.
	Timestamp      int64  `json:"timestamp"`
	TimestampHuman string `json:"timestamp_human,omitempty"`
	ToolVersion    string `json:"tool_version,omitempty"`

	// CacheSchema is zero for format 1.
	CacheSchema uint32 `json:"cache_schema,omitempty"`
}

// FormatV1 is the legacy format: SHA-256 container digest, legacy
// metadata layout, directory entries without cache fields.
type FormatV1 struct{}

// Version returns 1.
func (FormatV1) Version() uint8 { return Version1 }

// HashAlgorithm returns SHA-256.
func (FormatV1) HashAlgorithm() digest.Algorithm { return digest.SHA256 }

type metadataRecordV1 struct {
	Author      string `cbor:"author,omitempty"`
	Timestamp   int64  `cbor:"timestamp"`
	Comment     string `cbor:"comment,omitempty"`
	ToolVersion string `cbor:"tool_version,omitempty"`
}

func (FormatV1) encodeMetadata(meta Metadata) ([]byte, error) {
	return codec.Marshal(metadataRecordV1{
		Author:      meta.Author,
		Timestamp:   meta.Timestamp,
		Comment:     meta.Comment,
		ToolVersion: meta.ToolVersion,
	})
}

func (FormatV1) decodeMetadata(record []byte) (Metadata, error) {
	var decoded metadataRecordV1
	if err := codec.Unmarshal(record, &decoded); err != nil {
		return Metadata{}, fault.New(fault.CorruptContainer, "decoding format 1 metadata: %w", err)
	}
	return Metadata{
		FormatVersion: Version1,
		Author:        decoded.Author,
		Comment:       decoded.Comment,
		Timestamp:     decoded.Timestamp,
		ToolVersion:   decoded.ToolVersion,
	}, nil
}

func (FormatV1) checkEntry(Entry) error { return nil }

// FormatV2 is the current format: BLAKE3 container digest, extended
// metadata with a cache schema marker, and per-entry modified time and
// content digest.
type FormatV2 struct{}

// Version returns 2.
func (FormatV2) Version() uint8 { return Version2 }

// HashAlgorithm returns BLAKE3.
func (FormatV2) HashAlgorithm() digest.Algorithm { return digest.BLAKE3 }

type metadataRecordV2 struct {
	Author         string `cbor:"author,omitempty"`
	Timestamp      int64  `cbor:"timestamp"`
	TimestampHuman string `cbor:"timestamp_human,omitempty"`
	Comment        string `cbor:"comment,omitempty"`
	ToolVersion    string `cbor:"tool_version,omitempty"`

	// CacheSchema is required; a pointer distinguishes "absent" from
	// "zero".
	CacheSchema *uint32 `cbor:"cache_schema"`
}

func (FormatV2) encodeMetadata(meta Metadata) ([]byte, error) {
	schema := meta.CacheSchema
	if schema == 0 {
		schema = CacheSchemaVersion
	}
	return codec.Marshal(metadataRecordV2{
		Author:         meta.Author,
		Timestamp:      meta.Timestamp,
		TimestampHuman: meta.TimestampHuman,
		Comment:        meta.Comment,
		ToolVersion:    meta.ToolVersion,
		CacheSchema:    &schema,
	})
}

func (FormatV2) decodeMetadata(record []byte) (Metadata, error) {
	var decoded metadataRecordV2
	if err := codec.Unmarshal(record, &decoded); err != nil {
		return Metadata{}, fault.New(fault.CorruptContainer, "decoding format 2 metadata: %w", err)
	}
	if decoded.CacheSchema == nil {
		return Metadata{}, fault.New(fault.CorruptContainer, "format 2 metadata has no cache schema marker")
	}
	return Metadata{
		FormatVersion:  Version2,
		Author:         decoded.Author,
		Comment:        decoded.Comment,
		Timestamp:      decoded.Timestamp,
		TimestampHuman: decoded.TimestampHuman,
		ToolVersion:    decoded.ToolVersion,
		CacheSchema:    *decoded.CacheSchema,
	}, nil
}

func (FormatV2) checkEntry(entry Entry) error {
	if entry.Digest == nil {
		return fault.New(fault.CorruptContainer, "entry %q has no content digest", entry.Path)
	}
	if entry.Digest.Algorithm != digest.BLAKE3 {
		return fault.New(fault.CorruptContainer, "entry %q digest uses %s, format 2 requires %s",
			entry.Path, entry.Digest.Algorithm, digest.BLAKE3)
	}
	return nil
}
