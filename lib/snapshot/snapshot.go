// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// Layout identifies the physical structure of a snapshot.
type Layout uint8

const (
	// LayoutContainer is the native vegh container.
	LayoutContainer Layout = iota + 1

	// LayoutTar is the PyVegh layout: a zstd-compressed tar stream
	// with a .vegh.json metadata member.
	LayoutTar
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutContainer:
		return "container"
	case LayoutTar:
		return "tar+zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// zstdMagic opens every zstd frame.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

func detectLayout(magic [4]byte) Layout {
	switch magic {
	case containerMagic:
		return LayoutContainer
	case zstdMagic:
		return LayoutTar
	default:
		return 0
	}
}

// archive is the layout-specific part of a Snapshot.
type archive interface {
	entries() ([]Entry, error)
	open(entry Entry) (io.ReadCloser, error)

	// walk streams the payloads of entries, which must be the
	// archive's own listing, in a single pass.
	walk(entries []Entry, fn func(Entry, io.Reader) error) error
}

// Snapshot is an opened, read-only snapshot. Opening parses the
// header only; the directory is decompressed on first use and cached.
// Safe for concurrent use.
type Snapshot struct {
	source   io.ReaderAt
	size     int64
	layout   Layout
	format   Format
	metadata Metadata
	archive  archive

	loadOnce sync.Once
	list     []Entry
	index    map[string]int
	loadErr  error
}

// OpenBytes opens a snapshot held in memory. data must not be
// modified while the Snapshot is in use.
func OpenBytes(data []byte) (*Snapshot, error) {
	return Open(bytes.NewReader(data), int64(len(data)))
}

// Open opens the snapshot of the given size readable through source.
// *os.File and *bytes.Reader both satisfy io.ReaderAt.
//
// Fails with [fault.CorruptContainer] if the header is malformed and
// [fault.UnsupportedFormatVersion] if it declares an unknown version.
func Open(source io.ReaderAt, size int64) (*Snapshot, error) {
	var magic [4]byte
	if size < int64(len(magic)) {
		return nil, fault.New(fault.CorruptContainer, "snapshot is %d bytes, too short for a header", size)
	}
	if _, err := source.ReadAt(magic[:], 0); err != nil {
		return nil, truncated("reading magic", err)
	}

	snapshot := &Snapshot{source: source, size: size, layout: detectLayout(magic)}
	switch snapshot.layout {
	case LayoutContainer:
		parsed, err := readHeader(io.NewSectionReader(source, 0, size))
		if err != nil {
			return nil, err
		}
		body, err := openContainerBody(source, size, parsed)
		if err != nil {
			return nil, err
		}
		snapshot.format = parsed.format
		snapshot.metadata = parsed.metadata
		snapshot.archive = body

	case LayoutTar:
		body := &tarBody{source: source, size: size}
		metadata, format, err := readTarMetadata(body.stream())
		if err != nil {
			return nil, err
		}
		snapshot.format = format
		snapshot.metadata = metadata
		snapshot.archive = body

	default:
		return nil, notASnapshot(magic)
	}
	return snapshot, nil
}

// Metadata returns the snapshot metadata.
func (s *Snapshot) Metadata() Metadata { return s.metadata }

// Format returns the snapshot's format policy.
func (s *Snapshot) Format() Format { return s.format }

// Layout returns the physical layout.
func (s *Snapshot) Layout() Layout { return s.layout }

// Size returns the container size in bytes.
func (s *Snapshot) Size() int64 { return s.size }

func (s *Snapshot) load() error {
	s.loadOnce.Do(func() {
		list, err := s.archive.entries()
		if err != nil {
			s.loadErr = err
			return
		}
		index, err := indexEntries(list)
		if err != nil {
			s.loadErr = err
			return
		}
		s.list, s.index = list, index
	})
	return s.loadErr
}

// Entries returns every entry in archive order. Only the directory is
// decompressed. The returned slice is a copy.
func (s *Snapshot) Entries() ([]Entry, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return append([]Entry(nil), s.list...), nil
}

// Lookup returns the entry stored under path, or a
// [fault.EntryNotFound] error. Matching is exact and case-sensitive.
func (s *Snapshot) Lookup(path string) (Entry, error) {
	if err := s.load(); err != nil {
		return Entry{}, err
	}
	position, ok := s.index[path]
	if !ok {
		return Entry{}, fault.New(fault.EntryNotFound, "no entry %q in snapshot", path)
	}
	return s.list[position], nil
}

// OpenEntry returns a stream of the payload stored under path. Only
// the part of the data block up to the end of this entry is
// decompressed. The caller must close the stream.
func (s *Snapshot) OpenEntry(path string) (io.ReadCloser, error) {
	entry, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	return s.archive.open(entry)
}

// ReadEntry returns the payload stored under path.
func (s *Snapshot) ReadEntry(path string) ([]byte, error) {
	entry, err := s.Lookup(path)
	if err != nil {
		return nil, err
	}
	reader, err := s.archive.open(entry)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	content, err := readPayload(reader, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("reading entry %q: %w", path, err)
	}
	return content, nil
}

// Walk calls fn with every entry in archive order and a reader of its
// payload. The data stream is decompressed once, front to back, and
// drained to the end so that frame checksums are checked. fn need not
// consume the reader; an error from fn stops the walk and is returned.
func (s *Snapshot) Walk(fn func(entry Entry, payload io.Reader) error) error {
	if err := s.load(); err != nil {
		return err
	}
	return s.archive.walk(s.list, fn)
}

// Digest hashes the entire container with the format's algorithm,
// streaming the source in chunks.
func (s *Snapshot) Digest() (digest.Digest, error) {
	hasher, err := digest.New(s.format.HashAlgorithm())
	if err != nil {
		return digest.Digest{}, err
	}
	if _, err := io.Copy(hasher, io.NewSectionReader(s.source, 0, s.size)); err != nil {
		return digest.Digest{}, fmt.Errorf("hashing snapshot: %w", err)
	}
	return hasher.Finalize()
}

// VerifyDigest hashes the container and compares the result with
// expected, failing with [fault.HashMismatch] on any difference.
func (s *Snapshot) VerifyDigest(expected digest.Digest) error {
	actual, err := s.Digest()
	if err != nil {
		return err
	}
	return digest.Verify(expected, actual)
}

// EntryFailure records one entry that failed verification.
type EntryFailure struct {
	Path string
	Err  error
}

// VerifyEntries decompresses every payload in one pass, checks each
// against its recorded digest (format 2 containers), and checks every
// block's frame checksum. Returns the entries whose content digest
// disagrees; structural corruption is returned as an error instead.
func (s *Snapshot) VerifyEntries() ([]EntryFailure, error) {
	var failures []EntryFailure
	err := s.Walk(func(entry Entry, payload io.Reader) error {
		err := verifyEntry(entry, payload)
		if errors.Is(err, fault.HashMismatch) {
			failures = append(failures, EntryFailure{Path: entry.Path, Err: err})
			return nil
		}
		return err
	})
	return failures, err
}

func verifyEntry(entry Entry, payload io.Reader) error {
	sink := io.Discard
	var hasher *digest.Hasher
	if entry.Digest != nil {
		var err error
		if hasher, err = digest.New(entry.Digest.Algorithm); err != nil {
			return err
		}
		sink = hasher
	}

	copied, err := io.Copy(sink, payload)
	if err != nil {
		return fmt.Errorf("entry %q: %w", entry.Path, err)
	}
	if uint64(copied) != entry.Size {
		return fault.New(fault.CorruptContainer, "entry %q yielded %d bytes, want %d", entry.Path, copied, entry.Size)
	}
	if hasher == nil {
		return nil
	}
	actual, err := hasher.Finalize()
	if err != nil {
		return err
	}
	if err := digest.Verify(*entry.Digest, actual); err != nil {
		return fmt.Errorf("entry %q: %w", entry.Path, err)
	}
	return nil
}

// ListEntries opens data and lists its entries.
func ListEntries(data []byte) ([]Entry, error) {
	snapshot, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	return snapshot.Entries()
}

// ReadEntry opens data and returns the payload stored under path.
func ReadEntry(data []byte, path string) ([]byte, error) {
	snapshot, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	return snapshot.ReadEntry(path)
}

// containerBody is the archive of a native container.
type containerBody struct {
	source    io.ReaderAt
	format    Format
	directory block
	data      block
}

func openContainerBody(source io.ReaderAt, size int64, parsed header) (*containerBody, error) {
	directory, err := readBlockHeader(source, parsed.size, size, "directory")
	if err != nil {
		return nil, err
	}
	data, err := readBlockHeader(source, directory.end(), size, "data")
	if err != nil {
		return nil, err
	}
	if data.end() != size {
		return nil, fault.New(fault.CorruptContainer,
			"%d trailing bytes after the data block", size-data.end())
	}
	return &containerBody{source: source, format: parsed.format, directory: directory, data: data}, nil
}

func (b *containerBody) entries() ([]Entry, error) {
	raw, err := readBlock(b.source, b.directory, maxDirectorySize)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return decodeDirectory(raw, b.format, b.data.uncompressedSize)
}

func (b *containerBody) open(entry Entry) (io.ReadCloser, error) {
	stream, err := openBlock(b.source, b.data)
	if err != nil {
		return nil, err
	}
	if entry.Offset > 0 {
		if _, err := io.CopyN(io.Discard, stream, int64(entry.Offset)); err != nil {
			stream.Close()
			return nil, fmt.Errorf("seeking to entry %q: %w", entry.Path, truncatedBlock(err))
		}
	}
	return &entryReader{Reader: io.LimitReader(stream, int64(entry.Size)), closer: stream}, nil
}

func (b *containerBody) walk(entries []Entry, fn func(Entry, io.Reader) error) error {
	stream, err := openBlock(b.source, b.data)
	if err != nil {
		return err
	}
	defer stream.Close()

	// The directory tiles the data block in order, so each payload
	// starts where the previous one ended.
	for _, entry := range entries {
		payload := io.LimitReader(stream, int64(entry.Size))
		if err := fn(entry, payload); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, payload); err != nil {
			return fmt.Errorf("entry %q: %w", entry.Path, err)
		}
	}
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return fmt.Errorf("verifying data block: %w", err)
	}
	return nil
}

type entryReader struct {
	io.Reader
	closer io.Closer
}

func (r *entryReader) Close() error { return r.closer.Close() }
