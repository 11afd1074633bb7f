// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"fmt"
	"io"

	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
)

// Builder accumulates entries and writes them as a native container.
// Payloads are pulled from their sources only during [Builder.WriteTo],
// in the order they were added.
//
// Typical usage:
//
//	builder := snapshot.NewBuilder(snapshot.FormatV2{}, metadata)
//	builder.AddBytes("a.txt", []byte("hello world"), modified)
//	builder.AddFile("big.bin", size, modified, nil, openFunc)
//	result, err := builder.WriteTo(output)
//
// The compressed data block is held in memory until it is complete,
// because block headers carry the stored length up front.
type Builder struct {
	format      Format
	metadata    Metadata
	compression Compression

	pending []pendingEntry
	paths   map[string]struct{}
}

type pendingEntry struct {
	entry Entry
	open  func() (io.ReadCloser, error)
}

// WriteResult describes a written container.
type WriteResult struct {
	// Bytes is the total container size.
	Bytes int64

	// Digest is the whole-container digest under the format's
	// algorithm, computed while writing.
	Digest digest.Digest

	// Entries is the directory as written.
	Entries []Entry
}

// NewBuilder creates a builder for the given format. The metadata's
// FormatVersion and CacheSchema are filled in from the format.
func NewBuilder(format Format, metadata Metadata) *Builder {
	metadata.FormatVersion = format.Version()
	return &Builder{
		format:      format,
		metadata:    metadata,
		compression: CompressionZstd,
		paths:       make(map[string]struct{}),
	}
}

// SetCompression selects the compression for both blocks. The
// default is zstd.
func (b *Builder) SetCompression(compression Compression) error {
	if !compression.supported() {
		return fault.New(fault.UnsupportedCompression, "compression tag %d", uint8(compression))
	}
	b.compression = compression
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.pending)
}

// AddBytes adds an in-memory payload.
func (b *Builder) AddBytes(path string, content []byte, modified int64) error {
	return b.AddFile(path, uint64(len(content)), modified, nil, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(content)), nil
	})
}

// AddFile adds a payload of the given size read from open at write
// time. For format 2, a non-nil known digest is trusted as the
// payload's BLAKE3 digest (typically reused from an incremental cache
// hit); a nil digest is computed while writing. The source must yield
// exactly size bytes.
func (b *Builder) AddFile(path string, size uint64, modified int64, known *digest.Digest, open func() (io.ReadCloser, error)) error {
	if checkPath(path) != nil {
		return fault.New(fault.InvalidUsage, "invalid entry path %q", path)
	}
	if _, exists := b.paths[path]; exists {
		return fault.New(fault.InvalidUsage, "path %q added twice", path)
	}
	if known != nil && known.Algorithm != digest.BLAKE3 {
		return fault.New(fault.InvalidUsage, "entry %q: known digest uses %s, want %s", path, known.Algorithm, digest.BLAKE3)
	}

	entry := Entry{Path: path, Size: size}
	if b.format.Version() >= Version2 {
		entry.ModifiedTime = modified
		if known != nil {
			copied := *known
			entry.Digest = &copied
		}
	}
	b.paths[path] = struct{}{}
	b.pending = append(b.pending, pendingEntry{entry: entry, open: open})
	return nil
}

// WriteTo writes the container to w.
func (b *Builder) WriteTo(w io.Writer) (WriteResult, error) {
	dataBlock, err := newBlockWriter(b.compression)
	if err != nil {
		return WriteResult{}, err
	}

	entries := make([]Entry, len(b.pending))
	var offset uint64
	for i, pending := range b.pending {
		entry := pending.entry
		entry.Offset = offset
		if err := b.copyPayload(dataBlock, &entry, pending.open); err != nil {
			return WriteResult{}, err
		}
		if err := b.format.checkEntry(entry); err != nil {
			return WriteResult{}, err
		}
		offset += entry.Size
		entries[i] = entry
	}

	directoryBytes, err := encodeDirectory(entries)
	if err != nil {
		return WriteResult{}, fmt.Errorf("encoding directory: %w", err)
	}
	directoryBlock, err := newBlockWriter(b.compression)
	if err != nil {
		return WriteResult{}, err
	}
	if _, err := directoryBlock.Write(directoryBytes); err != nil {
		return WriteResult{}, fmt.Errorf("compressing directory: %w", err)
	}

	hasher, err := digest.New(b.format.HashAlgorithm())
	if err != nil {
		return WriteResult{}, err
	}
	out := io.MultiWriter(w, hasher)

	result := WriteResult{Entries: entries}
	written, err := writeHeader(out, b.format, b.metadata)
	result.Bytes += written
	if err != nil {
		return result, err
	}
	written, err = directoryBlock.finish(out)
	result.Bytes += written
	if err != nil {
		return result, fmt.Errorf("writing directory block: %w", err)
	}
	written, err = dataBlock.finish(out)
	result.Bytes += written
	if err != nil {
		return result, fmt.Errorf("writing data block: %w", err)
	}

	result.Digest, err = hasher.Finalize()
	return result, err
}

// copyPayload streams one payload into the data block, computing the
// format 2 digest when it is not already known.
func (b *Builder) copyPayload(dataBlock io.Writer, entry *Entry, open func() (io.ReadCloser, error)) error {
	source, err := open()
	if err != nil {
		return fmt.Errorf("opening %q: %w", entry.Path, err)
	}
	defer source.Close()

	destination := dataBlock
	var hasher *digest.Hasher
	if b.format.Version() >= Version2 && entry.Digest == nil {
		hasher, err = digest.New(digest.BLAKE3)
		if err != nil {
			return err
		}
		destination = io.MultiWriter(dataBlock, hasher)
	}

	// Read one byte past the declared size to catch sources that
	// grew since they were measured.
	copied, err := io.Copy(destination, io.LimitReader(source, int64(entry.Size)+1))
	if err != nil {
		return fmt.Errorf("copying %q: %w", entry.Path, err)
	}
	if uint64(copied) != entry.Size {
		return fmt.Errorf("%q yielded %d bytes, declared size is %d (file changed while packing?)",
			entry.Path, copied, entry.Size)
	}

	if hasher != nil {
		sum, err := hasher.Finalize()
		if err != nil {
			return err
		}
		entry.Digest = &sum
	}
	return nil
}
