// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto bundles the primitives the consensus core depends on:
// BLAKE3 and Keccak-256 hashing, Ed25519 transaction signatures, BLS12-381
// consensus votes, and a Groth16 verifier over BLS12-381 for the compliance
// ZK proof path.
package crypto

import (
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// HashSize is the width, in bytes, of every Hash256 value in the system.
const HashSize = 32

// Hash256 is a 32-byte digest. The zero value is the canonical empty hash.
type Hash256 [HashSize]byte

// String renders the hash as a 0x-prefixed hex string.
func (h Hash256) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 2+HashSize*2)
	buf[0], buf[1] = '0', 'x'
	for i, b := range h {
		buf[2+i*2] = hextable[b>>4]
		buf[2+i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether h is the all-zero hash (the empty-trie root, the
// genesis parent hash, ...).
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// Bytes returns a freshly allocated copy of the digest.
func (h Hash256) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// BytesToHash left-truncates or zero-left-pads b into a Hash256. Consensus
// code should only ever call this with exactly HashSize bytes; the padding
// behavior exists for convenience at the edges (tests, CLI tooling).
func BytesToHash(b []byte) Hash256 {
	var h Hash256
	if len(b) > HashSize {
		b = b[len(b)-HashSize:]
	}
	copy(h[HashSize-len(b):], b)
	return h
}

// Blake3 hashes data with BLAKE3 at the default 256-bit output size. This is
// the default hash function for MPT node encoding, header hashing, and trie
// key derivation.
func Blake3(data ...[]byte) Hash256 {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak256 hashes data with Keccak-256 (not the NIST SHA3-256 variant).
// Used exclusively for address derivation from an Ed25519 public key.
func Keccak256(data ...[]byte) Hash256 {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}
