// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "github.com/basalt-foundation/basalt/crypto"

// MerkleRoot computes a binary Merkle root over leaves in order, BLAKE3
// hashing sibling pairs and promoting an odd leaf unchanged (spec §3:
// "transactions root (Merkle over tx hashes)", "receipts root (Merkle over
// receipt hashes)"). The empty set's root is the zero hash (spec §4.6
// "Empty block invariant").
func MerkleRoot(leaves []crypto.Hash256) crypto.Hash256 {
	if len(leaves) == 0 {
		return crypto.Hash256{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([]crypto.Hash256, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.Blake3(level[i][:], level[i+1][:]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}
