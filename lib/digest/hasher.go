// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"hash"

	"github.com/codetease/vegh/lib/fault"
)

// Hasher accumulates a digest over a sequence of chunks. Chunks must
// be delivered in the byte order of the original data.
//
//	hasher, err := digest.New(digest.BLAKE3)
//	for chunk := range chunks {
//	    hasher.Update(chunk)
//	}
//	result, err := hasher.Finalize()
//
// Hasher implements [io.Writer], so io.Copy(hasher, reader) works.
// It is not safe for concurrent use.
type Hasher struct {
	algorithm Algorithm

	// state is nil after Finalize.
	state   hash.Hash
	written uint64
}

// New creates a Hasher for the given algorithm.
func New(algorithm Algorithm) (*Hasher, error) {
	state, err := algorithm.newState()
	if err != nil {
		return nil, err
	}
	return &Hasher{algorithm: algorithm, state: state}, nil
}

// Algorithm returns the algorithm this hasher computes.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Update feeds chunk into the digest. Zero-length chunks are
// accepted and change nothing.
func (h *Hasher) Update(chunk []byte) error {
	if err := h.check("Update"); err != nil {
		return err
	}
	// hash.Hash.Write never returns an error.
	h.state.Write(chunk)
	h.written += uint64(len(chunk))
	return nil
}

// Write implements io.Writer on top of Update.
func (h *Hasher) Write(p []byte) (int, error) {
	if err := h.Update(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Written returns the number of bytes consumed so far.
func (h *Hasher) Written() uint64 {
	return h.written
}

// Finalize returns the digest of everything passed to Update and
// consumes the hasher.
func (h *Hasher) Finalize() (Digest, error) {
	if err := h.check("Finalize"); err != nil {
		return Digest{}, err
	}
	result := Digest{Algorithm: h.algorithm}
	copy(result.Sum[:], h.state.Sum(nil))
	h.state = nil
	return result, nil
}

// Finalized reports whether Finalize has been called.
func (h *Hasher) Finalized() bool {
	return h == nil || h.state == nil
}

func (h *Hasher) check(operation string) error {
	if h == nil {
		return fault.New(fault.InvalidUsage, "%s called on a nil hasher", operation)
	}
	if h.state == nil {
		return fault.New(fault.InvalidUsage, "%s called on a finalized %s hasher", operation, h.algorithm)
	}
	return nil
}
