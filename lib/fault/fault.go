// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the failure kinds shared by the snapshot,
// digest, and cache packages. Every failure a caller may want to
// render differently ("this file is corrupt" vs "this version is not
// supported yet") carries a [Kind], and the kind survives any number
// of fmt.Errorf("...: %w") wrappers:
//
//	if errors.Is(err, fault.UnsupportedFormatVersion) {
//	    // offer an upgrade instead of a corruption warning
//	}
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Kind implements error so that it can be
// used directly as an errors.Is target.
type Kind string

const (
	// CorruptContainer means the bytes are structurally invalid:
	// bad magic or reserved bytes, header checksum mismatch, a
	// compressed frame that fails to decode, or duplicate paths.
	CorruptContainer Kind = "corrupt_container"

	// UnsupportedCompression means a block names a compression
	// algorithm this reader does not implement.
	UnsupportedCompression Kind = "unsupported_compression"

	// UnsupportedFormatVersion means the header is well-formed but
	// declares a format version this reader does not implement.
	UnsupportedFormatVersion Kind = "unsupported_format_version"

	// EntryNotFound means the container is valid but the requested
	// path is not in it.
	EntryNotFound Kind = "entry_not_found"

	// HashMismatch means a computed digest differs from the one the
	// caller expected.
	HashMismatch Kind = "hash_mismatch"

	// InvalidUsage means the API was misused: an operation on a
	// finalized hasher, or a nil or malformed cache.
	InvalidUsage Kind = "invalid_usage"
)

// Error returns the kind name.
func (k Kind) Error() string { return string(k) }

// Error is a failure tagged with a Kind. Construct it with [New] or
// [Wrap] rather than directly.
type Error struct {
	Kind Kind
	Err  error
}

// Error returns the message of the wrapped error prefixed with the
// kind, e.g. "corrupt_container: header CRC mismatch".
func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// New creates an Error of the given kind with a formatted message.
// The format string may use %w.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the first tagged error in err's chain,
// or the empty Kind if err carries none.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}
