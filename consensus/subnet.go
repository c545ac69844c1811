// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// SubnetConfig describes a subnet's own validator set and its anchoring
// cadence onto the mainnet (spec §4.8 "Subnets").
type SubnetConfig struct {
	ID types.Address
	// RequiredKYCLevel is the minimum KYC attestation level the subnet's
	// validator set demands of its own participants.
	RequiredKYCLevel uint8
	// AnchorEvery is this subnet's own anchoring-cadence override.
	AnchorEvery uint64
	// AnchorInterval is the network-wide default ceiling: a subnet may
	// anchor more often than this but never less often.
	AnchorInterval uint64
}

// AnchorCadence resolves spec §4.8's "min(anchorEvery, anchorInterval)":
// AnchorEvery is a per-subnet override of the network-wide AnchorInterval
// ceiling, so the effective cadence is whichever is stricter (smaller).
func (c SubnetConfig) AnchorCadence() uint64 {
	if c.AnchorEvery == 0 {
		return c.AnchorInterval
	}
	if c.AnchorInterval == 0 {
		return c.AnchorEvery
	}
	if c.AnchorEvery < c.AnchorInterval {
		return c.AnchorEvery
	}
	return c.AnchorInterval
}

// ShouldAnchor reports whether a subnet block at subnetHeight is due to be
// anchored to the mainnet, given the last anchored height.
func (c SubnetConfig) ShouldAnchor(subnetHeight, lastAnchoredHeight uint64) bool {
	cadence := c.AnchorCadence()
	if cadence == 0 {
		return false
	}
	return subnetHeight-lastAnchoredHeight >= cadence
}

// AnchorProof is the mainnet transaction payload anchoring a subnet block:
// its hash plus the BLS aggregate proving the subnet's own quorum signed it
// (spec §4.8: "Anchoring is a mainnet transaction carrying the subnet block
// hash plus the BLS aggregate proving subnet quorum").
type AnchorProof struct {
	SubnetID        types.Address
	SubnetHeight    uint64
	SubnetBlockHash crypto.Hash256
	QuorumCert      *QuorumCert
}

// VerifyAnchor checks that proof's quorum certificate was signed by at
// least quorum members of the subnet's own validator set.
func VerifyAnchor(proof AnchorProof, subnetValidators *ValidatorSet, quorum int) bool {
	if proof.QuorumCert == nil {
		return false
	}
	if proof.QuorumCert.BlockHash != proof.SubnetBlockHash {
		return false
	}
	return proof.QuorumCert.Verify(subnetValidators, quorum)
}
