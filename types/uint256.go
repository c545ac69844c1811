// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"

	"github.com/holiman/uint256"
)

// UInt256 is a 256-bit unsigned integer used for every balance, fee, and gas
// price in the system. It wraps holiman/uint256 and adds the checked
// arithmetic the consensus core requires (overflow must be a typed error,
// never silent wraparound).
type UInt256 struct {
	v uint256.Int
}

// ErrOverflow is returned by checked arithmetic when the result would not
// fit in 256 bits.
var ErrOverflow = errors.New("uint256 overflow")

// ErrUnderflow is returned by checked subtraction when the minuend is
// smaller than the subtrahend.
var ErrUnderflow = errors.New("uint256 underflow")

// Zero is the additive identity.
func Zero() UInt256 { return UInt256{} }

// NewUInt256FromUint64 builds a UInt256 from a u64.
func NewUInt256FromUint64(v uint64) UInt256 {
	var out UInt256
	out.v.SetUint64(v)
	return out
}

// NewUInt256FromBig decodes a big-endian byte slice into a UInt256.
func NewUInt256FromBig(b []byte) (UInt256, error) {
	if len(b) > 32 {
		return UInt256{}, ErrOverflow
	}
	var out UInt256
	out.v.SetBytes(b)
	return out, nil
}

// Bytes32 returns the big-endian, zero-padded 32-byte encoding.
func (u UInt256) Bytes32() [32]byte {
	return u.v.Bytes32()
}

// Bytes returns the minimal big-endian encoding (no leading zero bytes,
// empty slice for zero).
func (u UInt256) Bytes() []byte {
	return u.v.Bytes()
}

// Uint64 truncates to the low 64 bits; callers must only use this where the
// value is already known to fit (gas quantities, small counters).
func (u UInt256) Uint64() uint64 {
	return u.v.Uint64()
}

// IsZero reports whether u is zero.
func (u UInt256) IsZero() bool {
	return u.v.IsZero()
}

// Cmp compares u to other: -1, 0, +1.
func (u UInt256) Cmp(other UInt256) int {
	return u.v.Cmp(&other.v)
}

// LessThan reports whether u < other.
func (u UInt256) LessThan(other UInt256) bool {
	return u.Cmp(other) < 0
}

// GreaterThan reports whether u > other.
func (u UInt256) GreaterThan(other UInt256) bool {
	return u.Cmp(other) > 0
}

// Add returns u + other, or ErrOverflow if the sum does not fit in 256 bits.
func (u UInt256) Add(other UInt256) (UInt256, error) {
	var out UInt256
	_, overflow := out.v.AddOverflow(&u.v, &other.v)
	if overflow {
		return UInt256{}, ErrOverflow
	}
	return out, nil
}

// Sub returns u - other, or ErrUnderflow if other > u.
func (u UInt256) Sub(other UInt256) (UInt256, error) {
	if u.LessThan(other) {
		return UInt256{}, ErrUnderflow
	}
	var out UInt256
	out.v.Sub(&u.v, &other.v)
	return out, nil
}

// Mul returns u * other, or ErrOverflow if the product does not fit in 256
// bits.
func (u UInt256) Mul(other UInt256) (UInt256, error) {
	var out UInt256
	_, overflow := out.v.MulOverflow(&u.v, &other.v)
	if overflow {
		return UInt256{}, ErrOverflow
	}
	return out, nil
}

// MulUint64 returns u * n, or ErrOverflow on overflow. Convenience for the
// ubiquitous `gasUsed * price` computation where one operand is a plain u64.
func (u UInt256) MulUint64(n uint64) (UInt256, error) {
	return u.Mul(NewUInt256FromUint64(n))
}

// Div returns u / other. Division by zero returns zero, matching EVM-style
// semantics used throughout the corpus rather than panicking.
func (u UInt256) Div(other UInt256) UInt256 {
	var out UInt256
	out.v.Div(&u.v, &other.v)
	return out
}
