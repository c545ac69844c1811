// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"

	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// Phase is a consensus phase within a (height, view) round (spec §3
// "Consensus view state").
type Phase uint8

const (
	PhasePropose Phase = iota
	PhasePrepare
	PhasePreCommit
	PhaseCommit
	PhaseViewChange
)

func (p Phase) String() string {
	switch p {
	case PhasePropose:
		return "propose"
	case PhasePrepare:
		return "prepare"
	case PhasePreCommit:
		return "pre_commit"
	case PhaseCommit:
		return "commit"
	case PhaseViewChange:
		return "view_change"
	default:
		return "unknown"
	}
}

// Vote is one validator's BLS-signed ballot for a phase at a given
// (height, view), carrying the block hash it votes for (spec §6 "VOTE
// (phase, blockHash, view, blsSig)").
type Vote struct {
	Phase     Phase
	Height    uint64
	View      uint64
	BlockHash crypto.Hash256
	Signer    types.Address
	Signature *crypto.BLSSignature
}

// VoteSigningPayload returns the canonical bytes a vote's BLS signature commits
// to: every field except the signature and signer identity itself, mirroring
// the transaction signing-payload convention (spec §4.1).
func VoteSigningPayload(phase Phase, height, view uint64, blockHash crypto.Hash256) []byte {
	w := codec.NewWriter()
	w.WriteUvarint(uint64(phase))
	w.WriteUvarint(height)
	w.WriteUvarint(view)
	w.WriteFixed(blockHash[:])
	return w.Bytes()
}

// ErrQuorumNotReached is returned by Aggregate when fewer than quorum votes
// are present.
var ErrQuorumNotReached = errors.New("consensus: quorum not reached")

// ErrConflictingVotes is returned by Aggregate when the supplied votes do
// not all agree on the same block hash at the same (height, view, phase).
var ErrConflictingVotes = errors.New("consensus: conflicting votes cannot be aggregated")

// QuorumCert is an aggregated BLS certificate: >= quorum validators' votes
// for the same (phase, height, view, blockHash), summed into a single
// signature, with Signers listing which validators signed. Aggregate leaves
// SignerBitfield empty; the engine encodes the finalized header's signer
// bitfield from Signers (buildSignerBitfield).
type QuorumCert struct {
	Phase          Phase
	Height         uint64
	View           uint64
	BlockHash      crypto.Hash256
	Signers        []types.Address
	SignerBitfield []byte
	Aggregate      *crypto.BLSSignature
}

// Aggregate combines votes (all assumed already individually well-formed)
// into a QuorumCert, failing if fewer than quorum votes are present or if
// they disagree on the ballot.
func Aggregate(votes []*Vote, quorum int) (*QuorumCert, error) {
	if len(votes) < quorum {
		return nil, ErrQuorumNotReached
	}
	first := votes[0]
	sigs := make([]*crypto.BLSSignature, 0, len(votes))
	signers := make([]types.Address, 0, len(votes))
	for _, v := range votes {
		if v.Phase != first.Phase || v.Height != first.Height || v.View != first.View || v.BlockHash != first.BlockHash {
			return nil, ErrConflictingVotes
		}
		sigs = append(sigs, v.Signature)
		signers = append(signers, v.Signer)
	}
	agg, err := crypto.AggregateBLSSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return &QuorumCert{
		Phase:     first.Phase,
		Height:    first.Height,
		View:      first.View,
		BlockHash: first.BlockHash,
		Signers:   signers,
		Aggregate: agg,
	}, nil
}

// Verify checks cert's aggregate signature against the union of its
// signers' BLS public keys in validators, and that at least quorum distinct,
// eligible members signed.
func (c *QuorumCert) Verify(validators *ValidatorSet, quorum int) bool {
	if len(c.Signers) < quorum {
		return false
	}
	seen := make(map[types.Address]struct{}, len(c.Signers))
	pks := make([]*crypto.BLSPublicKey, 0, len(c.Signers))
	for _, addr := range c.Signers {
		if _, dup := seen[addr]; dup {
			return false
		}
		seen[addr] = struct{}{}
		info, ok := validators.Get(addr)
		if !ok || info.BLSKey == nil || !info.eligible() {
			return false
		}
		pks = append(pks, info.BLSKey)
	}
	payload := VoteSigningPayload(c.Phase, c.Height, c.View, c.BlockHash)
	return crypto.VerifyBLSAggregate(pks, payload, c.Aggregate)
}
