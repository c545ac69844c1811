// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"encoding/hex"

	"github.com/basalt-foundation/basalt/crypto"
)

// AddressSize is the width, in bytes, of an Address.
const AddressSize = 20

// Address is a 20-byte account identifier. System addresses have their
// first 18 bytes zero (only the low 2 bytes vary), reserving the space for
// a small fixed set of protocol sinks (burn, unbonding escrow, ...).
type Address [AddressSize]byte

// ZeroAddress is the default/sink address: the burn sink, and the `to`
// field of a contract-deploy transaction.
var ZeroAddress = Address{}

// IsSystem reports whether a is a reserved system address.
func (a Address) IsSystem() bool {
	for _, b := range a[:18] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String renders the address as a 0x-prefixed hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns a freshly allocated copy of the address.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than AddressSize.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressSize {
		b = b[len(b)-AddressSize:]
	}
	copy(a[AddressSize-len(b):], b)
	return a
}

// DeriveAddress computes the address bound to an Ed25519 public key: the
// rightmost 20 bytes of Keccak-256(pubkey), per spec §4.1.
func DeriveAddress(pubKey []byte) Address {
	digest := crypto.Keccak256(pubKey)
	return BytesToAddress(digest[:])
}

// Hash returns BLAKE3(address), the key under which the account trie stores
// this address's leaf (spec §4.2: "Trie keys are the nibble sequence of the
// externally hashed identifier").
func (a Address) Hash() crypto.Hash256 {
	return crypto.Blake3(a[:])
}

// DeriveContractAddress computes the address a ContractDeploy transaction
// creates: the rightmost 20 bytes of BLAKE3(sender || nonce), where nonce
// is the deploying account's nonce at the time of deployment (so
// redeploying from the same sender never collides).
func DeriveContractAddress(sender Address, nonce uint64) Address {
	w := make([]byte, 0, AddressSize+8)
	w = append(w, sender[:]...)
	for shift := 56; shift >= 0; shift -= 8 {
		w = append(w, byte(nonce>>uint(shift)))
	}
	digest := crypto.Blake3(w)
	return BytesToAddress(digest[:])
}

// SystemAddress builds a reserved system address from a 2-byte low suffix.
func SystemAddress(low uint16) Address {
	var a Address
	a[18] = byte(low >> 8)
	a[19] = byte(low)
	return a
}

var (
	// BurnAddress is the sink base-fee portions are credited to.
	BurnAddress = SystemAddress(0x0001)
	// UnbondingEscrowAddress holds stake pending the unbonding window.
	UnbondingEscrowAddress = SystemAddress(0x0002)
)
