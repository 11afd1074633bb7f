// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot reads and writes vegh snapshot containers: a
// directory tree plus metadata in a single compressed, self-describing
// file.
//
// The package is organized in layers, each usable on its own:
//
//   - Format policy: [LookupFormat] maps the header's version byte to
//     a [Format] ([FormatV1] or [FormatV2]) that fixes the digest
//     algorithm and the metadata layout. This is the only place the
//     version number is switched on.
//
//   - Header: magic, version, a CBOR metadata record, and a CRC32C.
//     [ReadMetadata] parses the header alone and never touches the
//     body.
//
//   - Blocks: the body is two length-prefixed blocks, each stored raw
//     or compressed with zstd or LZ4. The directory block lists every
//     entry; the data block holds all payloads back to back.
//
//   - Directory: [Snapshot.Entries] decompresses only the directory
//     block. [Snapshot.OpenEntry] decompresses the data block only as
//     far as the end of the requested entry.
//
// The on-disk layout, all integers little-endian:
//
//	header:  "VEGH" | version u8 | reserved u8 (0) | metadata length u32
//	         | metadata (CBOR) | CRC32C u32 over everything before it
//	block:   compression u8 | reserved [3]u8 (0) | stored length u64
//	         | uncompressed length u64 | stored bytes
//	body:    directory block | data block
//
// Format 1 hashes the whole container with SHA-256 and carries the
// legacy metadata fields (author, timestamp, comment, tool version).
// Format 2 hashes with BLAKE3, adds a cache schema marker to the
// metadata, and records each entry's modified time and BLAKE3 content
// digest in the directory.
//
// Snapshots produced by PyVegh (a zstd-compressed tar stream with a
// .vegh.json metadata member) are also readable; see [LayoutTar]. For
// those, reading metadata necessarily decompresses the stream up to
// the metadata member.
//
// A [Snapshot] is immutable and safe for concurrent readers.
package snapshot
