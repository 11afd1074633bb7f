// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/codetease/vegh/lib/fault"
)

// Size is the byte length of every digest this package produces.
const Size = 32

// Algorithm identifies a digest algorithm. The numeric values are
// stored in cache files; changing them breaks persisted caches.
type Algorithm uint8

const (
	// SHA256 is the legacy algorithm used by format version 1.
	SHA256 Algorithm = 1

	// BLAKE3 is the 256-bit BLAKE3 hash used by format version 2.
	BLAKE3 Algorithm = 2
)

// String returns the lowercase algorithm name.
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case BLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Valid reports whether a is an algorithm this package implements.
func (a Algorithm) Valid() bool {
	return a == SHA256 || a == BLAKE3
}

// ParseAlgorithm parses an algorithm name as produced by String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "sha256", "sha-256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return 0, fmt.Errorf("unknown digest algorithm %q", name)
	}
}

func (a Algorithm) newState() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fault.New(fault.InvalidUsage, "digest algorithm %s is not implemented", a)
	}
}

// Digest is a 32-byte hash tagged with the algorithm that produced
// it. The zero value is not a valid digest.
type Digest struct {
	Algorithm Algorithm
	Sum       [Size]byte
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Hex returns the lowercase hex encoding of the digest bytes. This is
// the canonical text form used in listings, logs, and CLI output.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum[:])
}

// Base64 returns the standard base64 encoding of the digest bytes.
func (d Digest) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Sum[:])
}

// String returns "<algorithm>:<hex>".
func (d Digest) String() string {
	return d.Algorithm.String() + ":" + d.Hex()
}

// Parse parses a digest in "<algorithm>:<hex>" form, or bare hex when
// the algorithm is supplied separately via fallback. A zero fallback
// requires the prefixed form.
func Parse(text string, fallback Algorithm) (Digest, error) {
	algorithm := fallback
	hexPart := text
	if name, rest, found := strings.Cut(text, ":"); found {
		parsed, err := ParseAlgorithm(name)
		if err != nil {
			return Digest{}, err
		}
		algorithm, hexPart = parsed, rest
	}
	if !algorithm.Valid() {
		return Digest{}, fmt.Errorf("digest %q has no algorithm prefix", text)
	}

	decoded, err := hex.DecodeString(hexPart)
	if err != nil {
		return Digest{}, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != Size {
		return Digest{}, fmt.Errorf("digest is %d bytes, want %d", len(decoded), Size)
	}

	result := Digest{Algorithm: algorithm}
	copy(result.Sum[:], decoded)
	return result, nil
}

// Sum hashes data in one call.
func Sum(algorithm Algorithm, data []byte) (Digest, error) {
	switch algorithm {
	case SHA256:
		return Digest{Algorithm: SHA256, Sum: sha256.Sum256(data)}, nil
	case BLAKE3:
		return Digest{Algorithm: BLAKE3, Sum: blake3.Sum256(data)}, nil
	default:
		return Digest{}, fault.New(fault.InvalidUsage, "digest algorithm %s is not implemented", algorithm)
	}
}

// Verify compares a computed digest against the one the caller
// expected. A different algorithm counts as a mismatch.
func Verify(expected, actual Digest) error {
	if expected != actual {
		return fault.New(fault.HashMismatch, "expected %s, got %s", expected, actual)
	}
	return nil
}

// MarshalText encodes the digest in "<algorithm>:<hex>" form, so that
// JSON output and CBOR files carry a readable string.
func (d Digest) MarshalText() ([]byte, error) {
	if !d.Algorithm.Valid() {
		return nil, fmt.Errorf("cannot encode digest with algorithm %s", d.Algorithm)
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes the "<algorithm>:<hex>" form.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text), 0)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
