// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package compliance

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// nullifier identifies one consumed proof within a block: the BLAKE3 digest
// of its schema id and raw proof bytes. Two presentations of the identical
// proof collide on purpose — that is the replay the nullifier set rejects
// (spec §4.7 "Nullifier uniqueness"). It is cleared at every block
// boundary, since spec §4.7 scopes uniqueness to "within a block", not
// across the chain's lifetime.
type nullifier [32]byte

func computeNullifier(schemaID uint32, proof []byte) nullifier {
	w := codec.NewWriter()
	w.WriteUvarint(uint64(schemaID))
	w.WriteBytes(proof)
	return nullifier(crypto.Blake3(w.Bytes()))
}

// bindingCommitment derives the scalar field element a proof's public
// inputs must commit to: BLAKE3(sender || receiver || amount || timestamp
// || schemaID), read as a field element the same way DecodePublicInputs
// reads a proof's own public inputs. This binds a proof to the exact
// transaction presenting it (spec §4.7 "Proof binding"): sender, receiver,
// amount, and block timestamp.
func bindingCommitment(sender, receiver types.Address, amount types.UInt256, blockTimestamp uint64, schemaID uint32) fr.Element {
	w := codec.NewWriter()
	w.WriteFixed(sender[:])
	w.WriteFixed(receiver[:])
	w.WriteBytes(amount.Bytes())
	w.WriteUvarint(blockTimestamp)
	w.WriteUvarint(uint64(schemaID))
	digest := crypto.Blake3(w.Bytes())

	var el fr.Element
	el.SetBytes(digest[:])
	return el
}
