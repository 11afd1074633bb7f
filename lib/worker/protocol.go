// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"io"

	"github.com/codetease/vegh/lib/cache"
	"github.com/codetease/vegh/lib/digest"
	"github.com/codetease/vegh/lib/fault"
	"github.com/codetease/vegh/lib/snapshot"
)

// File is a snapshot source: anything readable at an offset with a
// known size. *os.File and *bytes.Reader both fit.
type File struct {
	// Name labels the file in progress messages and logs.
	Name   string
	Reader io.ReaderAt
	Size   int64
}

// Request is one command to the worker. The set is closed: only the
// types in this package implement it.
type Request interface {
	// RequestID returns the caller-chosen identifier echoed in every
	// response to this request.
	RequestID() uint64

	isRequest()
}

// CheckIntegrityStream hashes a whole snapshot in chunks, emitting
// [Progress] as it goes. The algorithm is the one the snapshot's
// header selects.
type CheckIntegrityStream struct {
	ID   uint64
	File File

	// ChunkSize is the read size in bytes. Zero uses the worker's
	// default.
	ChunkSize int
}

// GetMetadata reads the snapshot's metadata.
type GetMetadata struct {
	ID   uint64
	File File
}

// ListFiles lists the snapshot's entries.
type ListFiles struct {
	ID   uint64
	File File
}

// CheckCache asks whether a file's observed size and modified time
// match the cache.
type CheckCache struct {
	ID       uint64
	Cache    *cache.Cache
	Path     string
	Size     uint64
	Modified int64
}

// GetFileContent extracts one entry's payload.
type GetFileContent struct {
	ID   uint64
	File File
	Path string
}

// GetLibraryInfo reports versions and capabilities.
type GetLibraryInfo struct {
	ID uint64
}

func (r CheckIntegrityStream) RequestID() uint64 { return r.ID }
func (r GetMetadata) RequestID() uint64          { return r.ID }
func (r ListFiles) RequestID() uint64            { return r.ID }
func (r CheckCache) RequestID() uint64           { return r.ID }
func (r GetFileContent) RequestID() uint64       { return r.ID }
func (r GetLibraryInfo) RequestID() uint64       { return r.ID }

func (CheckIntegrityStream) isRequest() {}
func (GetMetadata) isRequest()          {}
func (ListFiles) isRequest()            {}
func (CheckCache) isRequest()           {}
func (GetFileContent) isRequest()       {}
func (GetLibraryInfo) isRequest()       {}

// Response is one message from the worker. Every response except
// [Ready] and [Progress] is terminal: it is the last message for its
// request. The set is closed.
type Response interface {
	isResponse()
}

// Ready is sent once, before any other response.
type Ready struct{}

// Progress reports how far a streaming request has got.
type Progress struct {
	RequestID uint64
	Task      string

	// Percent is bytes consumed over total bytes, times 100, rounded
	// down. Never decreases within one request.
	Percent int
}

// ResultIntegrity is the whole-snapshot digest.
type ResultIntegrity struct {
	RequestID uint64
	Digest    digest.Digest
	Hex       string
	Base64    string
}

// ResultMetadata carries snapshot metadata.
type ResultMetadata struct {
	RequestID uint64
	Metadata  snapshot.Metadata
}

// FileInfo is one listed entry.
type FileInfo struct {
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// ResultFiles lists a snapshot's entries in archive order.
type ResultFiles struct {
	RequestID uint64
	Files     []FileInfo
}

// ResultCacheHit answers a [CheckCache].
type ResultCacheHit struct {
	RequestID uint64
	Hit       bool
}

// ResultFileContent carries an extracted payload.
type ResultFileContent struct {
	RequestID uint64
	Path      string
	Content   []byte
}

// LibraryInfo describes the core the worker runs.
type LibraryInfo struct {
	Version         string   `json:"version"`
	CoreVersion     string   `json:"core_version"`
	SupportedFormat string   `json:"supported_format"`
	Engine          string   `json:"engine"`
	Features        []string `json:"features"`
}

// ResultLibraryInfo answers a [GetLibraryInfo].
type ResultLibraryInfo struct {
	RequestID uint64
	Info      LibraryInfo
}

// Error is the terminal response of a failed request. Kind is empty
// for failures outside the fault taxonomy, such as I/O errors from
// the source.
type Error struct {
	RequestID uint64
	Kind      fault.Kind
	Message   string
}

func (Ready) isResponse()             {}
func (Progress) isResponse()          {}
func (ResultIntegrity) isResponse()   {}
func (ResultMetadata) isResponse()    {}
func (ResultFiles) isResponse()       {}
func (ResultCacheHit) isResponse()    {}
func (ResultFileContent) isResponse() {}
func (ResultLibraryInfo) isResponse() {}
func (Error) isResponse()             {}
