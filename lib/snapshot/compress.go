// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/codetease/vegh/lib/fault"
)

// Compression identifies how a block's bytes are stored. The values
// are written into block headers; changing them breaks every existing
// snapshot.
type Compression uint8

const (
	// CompressionNone stores the block raw.
	CompressionNone Compression = 0

	// CompressionLZ4 stores the block as an LZ4 frame with content
	// checksum. Fast to decode; weaker ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd stores the block as a zstd frame with content
	// checksum. The default.
	CompressionZstd Compression = 2
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as produced by String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

func (c Compression) supported() bool {
	return c <= CompressionZstd
}

// blockHeaderSize is compression(1) + reserved(3) + stored length(8)
// + uncompressed length(8).
const blockHeaderSize = 20

// block locates one block within a container.
type block struct {
	compression      Compression
	storedLength     uint64
	uncompressedSize uint64

	// offset is where the stored bytes start, just past the block
	// header.
	offset int64
}

// end returns the offset of the first byte after the block.
func (b block) end() int64 {
	return b.offset + int64(b.storedLength)
}

// readBlockHeader parses the block header at offset. containerSize
// bounds the stored bytes so that a truncated container is caught
// before any decompression starts.
func readBlockHeader(source io.ReaderAt, offset, containerSize int64, name string) (block, error) {
	var raw [blockHeaderSize]byte
	if offset+blockHeaderSize > containerSize {
		return block{}, fault.New(fault.CorruptContainer, "%s block header at offset %d: container is truncated", name, offset)
	}
	if _, err := source.ReadAt(raw[:], offset); err != nil {
		return block{}, truncated("reading "+name+" block header", err)
	}

	compression := Compression(raw[0])
	if raw[1] != 0 || raw[2] != 0 || raw[3] != 0 {
		return block{}, fault.New(fault.CorruptContainer, "%s block has non-zero reserved bytes: %x", name, raw[1:4])
	}

	parsed := block{
		compression:      compression,
		storedLength:     binary.LittleEndian.Uint64(raw[4:12]),
		uncompressedSize: binary.LittleEndian.Uint64(raw[12:20]),
		offset:           offset + blockHeaderSize,
	}

	if parsed.storedLength > uint64(containerSize-parsed.offset) {
		return block{}, fault.New(fault.CorruptContainer,
			"%s block claims %d stored bytes but only %d remain", name, parsed.storedLength, containerSize-parsed.offset)
	}
	if parsed.uncompressedSize > math.MaxInt64 {
		return block{}, fault.New(fault.CorruptContainer,
			"%s block declares %d uncompressed bytes", name, parsed.uncompressedSize)
	}
	if !compression.supported() {
		return block{}, fault.New(fault.UnsupportedCompression, "%s block uses compression tag %d", name, raw[0])
	}
	if compression == CompressionNone && parsed.storedLength != parsed.uncompressedSize {
		return block{}, fault.New(fault.CorruptContainer,
			"raw %s block stores %d bytes but declares %d", name, parsed.storedLength, parsed.uncompressedSize)
	}
	return parsed, nil
}

// openBlock returns a stream of the block's uncompressed bytes. The
// stream yields exactly uncompressedSize bytes and then io.EOF; a
// decoder failure, a checksum failure, or a length disagreement
// surfaces as a CorruptContainer error from Read.
func openBlock(source io.ReaderAt, b block) (io.ReadCloser, error) {
	stored := io.NewSectionReader(source, b.offset, int64(b.storedLength))

	var decoded io.Reader
	closeDecoder := func() {}
	switch b.compression {
	case CompressionNone:
		decoded = stored
	case CompressionLZ4:
		decoded = lz4.NewReader(stored)
	case CompressionZstd:
		decoder, err := zstd.NewReader(stored,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			return nil, fault.New(fault.CorruptContainer, "starting zstd decoder: %w", err)
		}
		decoded = decoder
		closeDecoder = decoder.Close
	default:
		return nil, fault.New(fault.UnsupportedCompression, "compression tag %d", uint8(b.compression))
	}

	return &blockReader{
		decoded:   decoded,
		remaining: b.uncompressedSize,
		close:     closeDecoder,
		name:      b.compression.String(),
	}, nil
}

// blockReader enforces the declared uncompressed length and tags
// decoder errors as corruption.
type blockReader struct {
	decoded   io.Reader
	remaining uint64
	close     func()
	name      string
	err       error
}

func (r *blockReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.remaining == 0 {
		// Confirm the decoder agrees the block is over. This is also
		// where zstd and LZ4 verify the frame checksum.
		var probe [1]byte
		n, err := r.decoded.Read(probe[:])
		switch {
		case n > 0:
			r.err = fault.New(fault.CorruptContainer, "%s block decodes to more bytes than declared", r.name)
		case err == nil:
			// A zero-byte read without EOF; try again next call.
			return 0, nil
		case errors.Is(err, io.EOF):
			r.err = io.EOF
		default:
			r.err = fault.New(fault.CorruptContainer, "decoding %s block: %w", r.name, err)
		}
		return 0, r.err
	}

	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.decoded.Read(p)
	r.remaining -= uint64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if r.remaining > 0 {
				r.err = fault.New(fault.CorruptContainer,
					"%s block ended %d bytes short of its declared length", r.name, r.remaining)
				return n, r.err
			}
			// Exactly at the declared length; the next Read
			// confirms the end.
			return n, nil
		}
		r.err = fault.New(fault.CorruptContainer, "decoding %s block: %w", r.name, err)
		return n, r.err
	}
	return n, nil
}

func (r *blockReader) Close() error {
	if r.close != nil {
		r.close()
		r.close = nil
	}
	return nil
}

// readBlock decompresses a whole block into memory, refusing blocks
// larger than limit.
func readBlock(source io.ReaderAt, b block, limit uint64) ([]byte, error) {
	if b.uncompressedSize > limit {
		return nil, fault.New(fault.CorruptContainer,
			"block declares %d uncompressed bytes, limit is %d", b.uncompressedSize, limit)
	}
	reader, err := openBlock(source, b)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := readPayload(reader, b.uncompressedSize)
	if err != nil {
		return nil, err
	}
	// Drain to EOF so the frame checksum is checked.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return nil, err
	}
	return data, nil
}

// payloadChunk is the most readPayload allocates ahead of the bytes
// actually decoded.
const payloadChunk = 1 << 20

// readPayload reads exactly size bytes from r. The buffer grows with
// the bytes r produces, so a size claimed by a corrupt header costs
// nothing until the data backs it up.
func readPayload(r io.Reader, size uint64) ([]byte, error) {
	if size > math.MaxInt64 {
		return nil, fault.New(fault.CorruptContainer, "payload of %d bytes is too large", size)
	}
	var buffer bytes.Buffer
	buffer.Grow(int(min(size, payloadChunk)))
	copied, err := io.Copy(&buffer, io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, truncatedBlock(err)
	}
	if uint64(copied) != size {
		return nil, fault.New(fault.CorruptContainer, "payload ended after %d of %d bytes", copied, size)
	}
	return buffer.Bytes(), nil
}

func truncatedBlock(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fault.New(fault.CorruptContainer, "block is truncated")
	}
	return err
}

// blockWriter compresses a block into memory. Block headers carry the
// stored length up front, so the stored bytes have to exist before the
// header can be written.
type blockWriter struct {
	compression  Compression
	stored       bytes.Buffer
	encoder      io.WriteCloser
	uncompressed uint64
}

func newBlockWriter(compression Compression) (*blockWriter, error) {
	writer := &blockWriter{compression: compression}
	switch compression {
	case CompressionNone:
		writer.encoder = nopWriteCloser{&writer.stored}
	case CompressionLZ4:
		encoder := lz4.NewWriter(&writer.stored)
		if err := encoder.Apply(lz4.ChecksumOption(true), lz4.ConcurrencyOption(1)); err != nil {
			return nil, fmt.Errorf("configuring lz4 encoder: %w", err)
		}
		writer.encoder = encoder
	case CompressionZstd:
		encoder, err := zstd.NewWriter(&writer.stored,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(true),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		writer.encoder = encoder
	default:
		return nil, fault.New(fault.UnsupportedCompression, "compression tag %d", uint8(compression))
	}
	return writer, nil
}

func (w *blockWriter) Write(p []byte) (int, error) {
	n, err := w.encoder.Write(p)
	w.uncompressed += uint64(n)
	return n, err
}

// finish flushes the encoder and writes header plus stored bytes to
// out.
func (w *blockWriter) finish(out io.Writer) (int64, error) {
	if err := w.encoder.Close(); err != nil {
		return 0, fmt.Errorf("closing %s encoder: %w", w.compression, err)
	}
	// Empty blocks are always stored raw so that readers never feed
	// a decoder zero input.
	if w.uncompressed == 0 {
		w.compression = CompressionNone
		w.stored.Reset()
	}

	var raw [blockHeaderSize]byte
	raw[0] = byte(w.compression)
	binary.LittleEndian.PutUint64(raw[4:12], uint64(w.stored.Len()))
	binary.LittleEndian.PutUint64(raw[12:20], w.uncompressed)

	headerWritten, err := out.Write(raw[:])
	if err != nil {
		return int64(headerWritten), fmt.Errorf("writing block header: %w", err)
	}
	bodyWritten, err := w.stored.WriteTo(out)
	if err != nil {
		return int64(headerWritten) + bodyWritten, fmt.Errorf("writing block data: %w", err)
	}
	return int64(headerWritten) + bodyWritten, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
