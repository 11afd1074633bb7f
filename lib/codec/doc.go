// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every vegh on-disk structure: snapshot metadata records, snapshot
// directories, and persisted caches.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which matters
// because snapshot bytes are hashed as a whole.
//
// The decoder rejects duplicate map keys (a duplicated "path" key in a
// directory record would otherwise silently shadow the first) and
// ignores unknown fields so that newer writers stay readable.
//
// Types that only ever live on disk use cbor struct tags. Types that
// also appear in CLI --json output use json tags; fxamacker/cbor falls
// back to json tags when cbor tags are absent, so one tag controls
// both encodings. Never put both tags on the same field.
package codec
