// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/codetease/vegh/lib/fault"
)

// Header layout constants.
const (
	// headerPrefixSize is magic(4) + version(1) + reserved(1) +
	// metadata length(4).
	headerPrefixSize = 10

	// headerCRCSize is the trailing CRC32C.
	headerCRCSize = 4

	// maxMetadataSize bounds the metadata record. Real records are a
	// few hundred bytes; anything near this limit is corruption.
	maxMetadataSize = 1 << 20
)

// containerMagic opens every native container.
var containerMagic = [4]byte{'V', 'E', 'G', 'H'}

// crc32cTable is the CRC32C (Castagnoli) table for header checksums.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// header is the parsed fixed region of a native container.
type header struct {
	format   Format
	metadata Metadata

	// size is the total byte length of the header, i.e. the offset of
	// the directory block.
	size int64
}

// ReadMetadata returns the metadata of a snapshot held in memory.
// For native containers only the header region is read; the body is
// never decompressed. data is not modified.
func ReadMetadata(data []byte) (Metadata, error) {
	return ReadMetadataFrom(bytes.NewReader(data))
}

// ReadMetadataFrom reads snapshot metadata from the start of a stream.
// For native containers it consumes exactly the header bytes.
func ReadMetadataFrom(r io.Reader) (Metadata, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Metadata{}, truncated("reading magic", err)
	}

	switch detectLayout(magic) {
	case LayoutContainer:
		parsed, err := readHeaderAfterMagic(r, magic)
		if err != nil {
			return Metadata{}, err
		}
		return parsed.metadata, nil
	case LayoutTar:
		// The tar reader needs the magic bytes back.
		meta, _, err := readTarMetadata(io.MultiReader(bytes.NewReader(magic[:]), r))
		return meta, err
	default:
		return Metadata{}, notASnapshot(magic)
	}
}

// readHeader parses a native container header from the start of r.
func readHeader(r io.Reader) (header, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return header{}, truncated("reading magic", err)
	}
	if magic != containerMagic {
		return header{}, notASnapshot(magic)
	}
	return readHeaderAfterMagic(r, magic)
}

func readHeaderAfterMagic(r io.Reader, magic [4]byte) (header, error) {
	var prefix [headerPrefixSize]byte
	copy(prefix[:4], magic[:])
	if _, err := io.ReadFull(r, prefix[4:]); err != nil {
		return header{}, truncated("reading header", err)
	}

	version := prefix[4]
	if version == 0 {
		return header{}, fault.New(fault.CorruptContainer, "header declares format version 0")
	}
	if prefix[5] != 0 {
		return header{}, fault.New(fault.CorruptContainer, "header reserved byte is %#02x, want 0", prefix[5])
	}

	metadataLength := binary.LittleEndian.Uint32(prefix[6:10])
	if metadataLength > maxMetadataSize {
		return header{}, fault.New(fault.CorruptContainer,
			"metadata record is %d bytes, limit is %d", metadataLength, maxMetadataSize)
	}

	record := make([]byte, metadataLength)
	if _, err := io.ReadFull(r, record); err != nil {
		return header{}, truncated("reading metadata record", err)
	}

	var crcBytes [headerCRCSize]byte
	if _, err := io.ReadFull(r, crcBytes[:]); err != nil {
		return header{}, truncated("reading header CRC", err)
	}
	expectedCRC := binary.LittleEndian.Uint32(crcBytes[:])

	checksum := crc32.New(crc32cTable)
	checksum.Write(prefix[:])
	checksum.Write(record)
	if checksum.Sum32() != expectedCRC {
		return header{}, fault.New(fault.CorruptContainer,
			"header CRC mismatch: expected %08x, got %08x", expectedCRC, checksum.Sum32())
	}

	// The bytes are structurally sound; from here on an unknown
	// version is unsupported, not corrupt.
	format, err := LookupFormat(version)
	if err != nil {
		return header{}, err
	}

	metadata, err := format.decodeMetadata(record)
	if err != nil {
		return header{}, err
	}

	return header{
		format:   format,
		metadata: metadata,
		size:     int64(headerPrefixSize) + int64(metadataLength) + headerCRCSize,
	}, nil
}

// writeHeader serializes the header for format and metadata.
func writeHeader(w io.Writer, format Format, metadata Metadata) (int64, error) {
	record, err := format.encodeMetadata(metadata)
	if err != nil {
		return 0, fmt.Errorf("encoding metadata: %w", err)
	}
	if len(record) > maxMetadataSize {
		return 0, fmt.Errorf("metadata record is %d bytes, limit is %d", len(record), maxMetadataSize)
	}

	var prefix [headerPrefixSize]byte
	copy(prefix[:4], containerMagic[:])
	prefix[4] = format.Version()
	binary.LittleEndian.PutUint32(prefix[6:10], uint32(len(record)))

	checksum := crc32.New(crc32cTable)
	checksum.Write(prefix[:])
	checksum.Write(record)
	var crcBytes [headerCRCSize]byte
	binary.LittleEndian.PutUint32(crcBytes[:], checksum.Sum32())

	var written int64
	for _, part := range [][]byte{prefix[:], record, crcBytes[:]} {
		n, err := w.Write(part)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing header: %w", err)
		}
	}
	return written, nil
}

// truncated converts a short read into a CorruptContainer failure.
// Other I/O errors pass through untagged: they are the source's
// problem, not the container's.
func truncated(step string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fault.New(fault.CorruptContainer, "%s: container is truncated", step)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func notASnapshot(magic [4]byte) error {
	return fault.New(fault.CorruptContainer, "not a vegh snapshot (magic bytes %x)", magic[:])
}
