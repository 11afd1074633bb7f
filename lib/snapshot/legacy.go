// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/jsonc"

	"github.com/codetease/vegh/lib/fault"
)

// LegacyMetadataName is the tar member holding PyVegh metadata. It is
// never listed as an entry.
const LegacyMetadataName = ".vegh.json"

// legacyMetadata is the JSON written by PyVegh. format_version is a
// string there and defaults to "1" when absent; timestamp_human is
// often missing entirely.
type legacyMetadata struct {
	Author         string      `json:"author"`
	Timestamp      json.Number `json:"timestamp"`
	TimestampHuman *string     `json:"timestamp_human"`
	Comment        string      `json:"comment"`
	ToolVersion    string      `json:"tool_version"`
	FormatVersion  string      `json:"format_version"`
}

// tarBody is the archive of a PyVegh snapshot.
type tarBody struct {
	source io.ReaderAt
	size   int64
}

func (b *tarBody) stream() io.Reader {
	return io.NewSectionReader(b.source, 0, b.size)
}

// newTarStream starts a zstd decoder over r.
func newTarStream(r io.Reader) (*zstd.Decoder, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return nil, fault.New(fault.CorruptContainer, "starting zstd decoder: %w", err)
	}
	return decoder, nil
}

// readTarMetadata decompresses r until the metadata member and
// decodes it.
func readTarMetadata(r io.Reader) (Metadata, Format, error) {
	decoder, err := newTarStream(r)
	if err != nil {
		return Metadata{}, nil, err
	}
	defer decoder.Close()

	members := tar.NewReader(decoder)
	for {
		member, err := members.Next()
		if errors.Is(err, io.EOF) {
			return Metadata{}, nil, fault.New(fault.CorruptContainer, "metadata member %s not found", LegacyMetadataName)
		}
		if err != nil {
			return Metadata{}, nil, fault.New(fault.CorruptContainer, "reading tar stream: %w", err)
		}
		if member.Name != LegacyMetadataName {
			continue
		}
		if member.Size > maxMetadataSize {
			return Metadata{}, nil, fault.New(fault.CorruptContainer,
				"%s is %d bytes, limit is %d", LegacyMetadataName, member.Size, maxMetadataSize)
		}
		raw, err := io.ReadAll(members)
		if err != nil {
			return Metadata{}, nil, fault.New(fault.CorruptContainer, "reading %s: %w", LegacyMetadataName, err)
		}
		return decodeLegacyMetadata(raw)
	}
}

func decodeLegacyMetadata(raw []byte) (Metadata, Format, error) {
	var decoded legacyMetadata
	if err := json.Unmarshal(jsonc.ToJSON(raw), &decoded); err != nil {
		return Metadata{}, nil, fault.New(fault.CorruptContainer, "decoding %s: %w", LegacyMetadataName, err)
	}

	versionText := decoded.FormatVersion
	if versionText == "" {
		versionText = "1"
	}
	version, err := strconv.ParseUint(versionText, 10, 8)
	if err != nil || version == 0 {
		return Metadata{}, nil, fault.New(fault.CorruptContainer,
			"%s format_version %q is not a version number", LegacyMetadataName, decoded.FormatVersion)
	}
	format, err := LookupFormat(uint8(version))
	if err != nil {
		return Metadata{}, nil, err
	}

	timestamp, err := parseLegacyTimestamp(decoded.Timestamp)
	if err != nil {
		return Metadata{}, nil, err
	}

	metadata := Metadata{
		FormatVersion: format.Version(),
		Author:        decoded.Author,
		Comment:       decoded.Comment,
		Timestamp:     timestamp,
		ToolVersion:   decoded.ToolVersion,
	}
	if decoded.TimestampHuman != nil {
		metadata.TimestampHuman = *decoded.TimestampHuman
	}
	return metadata, format, nil
}

// parseLegacyTimestamp accepts integer or fractional Unix seconds.
func parseLegacyTimestamp(number json.Number) (int64, error) {
	if number == "" {
		return 0, nil
	}
	if whole, err := number.Int64(); err == nil {
		return whole, nil
	}
	fractional, err := number.Float64()
	if err != nil {
		return 0, fault.New(fault.CorruptContainer, "%s timestamp %q is not a number", LegacyMetadataName, number)
	}
	return int64(fractional), nil
}

// countingReader counts bytes passed through it. Sitting between the
// zstd decoder and the tar reader, it reports positions in the
// uncompressed tar stream.
type countingReader struct {
	reader io.Reader
	count  uint64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.count += uint64(n)
	return n, err
}

// eachMember calls fn for every listed member of the tar stream, in
// stream order, with a reader of the member's data.
func (b *tarBody) eachMember(fn func(Entry, io.Reader) error) error {
	decoder, err := newTarStream(b.stream())
	if err != nil {
		return err
	}
	defer decoder.Close()

	counter := &countingReader{reader: decoder}
	members := tar.NewReader(counter)
	for {
		member, err := members.Next()
		if errors.Is(err, io.EOF) {
			// Drain the padding after the end-of-archive marker so the
			// zstd frame checksum is checked.
			_, err := io.Copy(io.Discard, &corruptOnError{reader: counter})
			return err
		}
		if err != nil {
			return fault.New(fault.CorruptContainer, "reading tar stream: %w", err)
		}
		// tar.Reader does not read ahead: once Next returns, every
		// byte up to the start of this member's data has passed
		// through the counter.
		if member.Name == LegacyMetadataName || !member.FileInfo().Mode().IsRegular() {
			continue
		}
		if err := checkPath(member.Name); err != nil {
			return err
		}
		entry := Entry{
			Path:         member.Name,
			Size:         uint64(member.Size),
			Offset:       counter.count,
			ModifiedTime: member.ModTime.Unix(),
		}
		if err := fn(entry, &corruptOnError{reader: members}); err != nil {
			return err
		}
	}
}

func (b *tarBody) entries() ([]Entry, error) {
	var entries []Entry
	err := b.eachMember(func(entry Entry, _ io.Reader) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *tarBody) walk(entries []Entry, fn func(Entry, io.Reader) error) error {
	position := 0
	err := b.eachMember(func(member Entry, payload io.Reader) error {
		if position >= len(entries) || entries[position].Path != member.Path {
			return fault.New(fault.CorruptContainer, "tar member %q is out of place", member.Path)
		}
		entry := entries[position]
		position++
		if err := fn(entry, payload); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, payload); err != nil {
			return fmt.Errorf("entry %q: %w", entry.Path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if position != len(entries) {
		return fault.New(fault.CorruptContainer, "tar stream ended after %d of %d entries", position, len(entries))
	}
	return nil
}

func (b *tarBody) open(entry Entry) (io.ReadCloser, error) {
	decoder, err := newTarStream(b.stream())
	if err != nil {
		return nil, err
	}
	stream := &corruptOnError{reader: decoder}
	if _, err := io.CopyN(io.Discard, stream, int64(entry.Offset)); err != nil {
		decoder.Close()
		return nil, fmt.Errorf("seeking to entry %q: %w", entry.Path, truncatedBlock(err))
	}
	return &entryReader{
		Reader: io.LimitReader(stream, int64(entry.Size)),
		closer: closerFunc(decoder.Close),
	}, nil
}

// corruptOnError tags decoder failures as corruption.
type corruptOnError struct {
	reader io.Reader
}

func (r *corruptOnError) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fault.New(fault.CorruptContainer, "decoding zstd stream: %w", err)
	}
	return n, err
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
