// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "github.com/basalt-foundation/basalt/crypto"

// AccountKind discriminates the four account kinds the state model allows.
type AccountKind uint8

const (
	AccountExternallyOwned AccountKind = iota
	AccountContract
	AccountSystem
	AccountValidator
)

// AccountState is the per-address record stored in the account trie. It is
// created on first write and destroyed by explicit delete; it is never
// referenced across trees by identity, only by address (spec §3).
type AccountState struct {
	Nonce          uint64
	Balance        UInt256
	StorageRoot    crypto.Hash256
	CodeHash       crypto.Hash256
	Kind           AccountKind
	ComplianceHash crypto.Hash256
}

// NewAccountState returns the zero-value account for a brand-new address:
// nonce 0, zero balance, empty storage root, no code, externally-owned.
func NewAccountState() AccountState {
	return AccountState{Kind: AccountExternallyOwned}
}

// IncrementNonce advances the nonce by one. Saturating past u64::MAX is a
// fatal-to-the-transaction NonceOverflow, never a silent wraparound
// (spec §4.5 "Nonce overflow").
func (a *AccountState) IncrementNonce() error {
	if a.Nonce == ^uint64(0) {
		return ErrNonceOverflowError
	}
	a.Nonce++
	return nil
}

// ErrNonceOverflowError is returned by IncrementNonce when the nonce is
// already at u64::MAX.
var ErrNonceOverflowError = nonceOverflowError{}

type nonceOverflowError struct{}

func (nonceOverflowError) Error() string { return "nonce overflow" }
