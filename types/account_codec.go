// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
)

// Encode produces the canonical account-trie leaf value for a.
func (a *AccountState) Encode() []byte {
	w := codec.NewWriter()
	w.WriteUvarint(a.Nonce)
	w.WriteBytes(a.Balance.Bytes())
	w.WriteFixed(a.StorageRoot[:])
	w.WriteFixed(a.CodeHash[:])
	w.WriteUvarint(uint64(a.Kind))
	w.WriteFixed(a.ComplianceHash[:])
	return w.Bytes()
}

// DecodeAccountState parses the encoding produced by Encode.
func DecodeAccountState(b []byte) (*AccountState, error) {
	r := codec.NewReader(b)
	a := &AccountState{}

	nonce, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	a.Nonce = nonce

	balanceB, err := r.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = NewUInt256FromBig(balanceB); err != nil {
		return nil, err
	}

	storageRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	a.StorageRoot = crypto.BytesToHash(storageRoot)

	codeHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	a.CodeHash = crypto.BytesToHash(codeHash)

	kind, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	a.Kind = AccountKind(kind)

	complianceHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	a.ComplianceHash = crypto.BytesToHash(complianceHash)

	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}
	return a, nil
}
