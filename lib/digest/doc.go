// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes whole-file integrity digests for snapshot
// containers, either in one call ([Sum]) or incrementally over
// caller-supplied chunks ([Hasher]).
//
// Two algorithms exist, selected by the snapshot format version:
// SHA-256 for format 1 and BLAKE3-256 for format 2. Both produce 32
// bytes. A [Digest] always carries its algorithm so that a SHA-256
// value can never be compared against a BLAKE3 value by accident.
//
// The streaming and one-shot paths are interchangeable: for any
// split of a buffer B into consecutive chunks, feeding the chunks
// through [Hasher.Update] in order and calling [Hasher.Finalize]
// yields exactly Sum(algorithm, B). A Hasher keeps no reference to
// chunks after Update returns, so memory stays constant regardless
// of how many bytes pass through it.
//
// A Hasher is single-use. Finalize consumes it; any later Update,
// Write, or Finalize returns a [fault.InvalidUsage] error instead of
// producing a result. Abandoning a Hasher without finalizing has no
// side effects.
package digest
