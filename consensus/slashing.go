// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// EvidenceTracker watches PREPARE votes for equivocation: a validator that
// signs two conflicting block hashes at the same (height, view) (spec §4.8
// "Safety"). It never evicts recorded votes, so the first-seen vote for a
// given (signer, height, view) is retained for comparison against any
// later one.
type EvidenceTracker struct {
	mu   sync.Mutex
	seen map[prepareKey]*Vote
}

type prepareKey struct {
	signer types.Address
	height uint64
	view   uint64
}

// NewEvidenceTracker returns an empty tracker.
func NewEvidenceTracker() *EvidenceTracker {
	return &EvidenceTracker{seen: make(map[prepareKey]*Vote)}
}

// Observe records a PREPARE vote and returns slashing evidence if it
// conflicts with a previously observed vote from the same signer at the
// same (height, view) for a different block hash. The earlier vote is kept
// as evidence.SignatureA; no vote is ever evicted, so a validator can never
// launder an equivocation by being the first to grab a quorum.
func (t *EvidenceTracker) Observe(vote *Vote) (*types.SlashingEvidence, bool) {
	if vote.Phase != PhasePrepare {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := prepareKey{signer: vote.Signer, height: vote.Height, view: vote.View}
	prior, ok := t.seen[key]
	if !ok {
		t.seen[key] = vote
		return nil, false
	}
	if prior.BlockHash == vote.BlockHash {
		return nil, false
	}
	evidence := &types.SlashingEvidence{
		Validator:  vote.Signer,
		Height:     vote.Height,
		View:       vote.View,
		BlockHashA: prior.BlockHash,
		BlockHashB: vote.BlockHash,
		SignatureA: prior.Signature.Bytes(),
		SignatureB: vote.Signature.Bytes(),
	}
	return evidence, true
}

// VerifyEvidence reports whether evidence's two signatures each verify
// against signer's BLS key for their respective (conflicting) block hashes
// at the claimed (height, view), making the equivocation provable
// independent of this node's own observation history.
func VerifyEvidence(validators *ValidatorSet, evidence types.SlashingEvidence) bool {
	if evidence.BlockHashA == evidence.BlockHashB {
		return false
	}
	info, ok := validators.Get(evidence.Validator)
	if !ok || info.BLSKey == nil {
		return false
	}
	sigA, err := crypto.BLSSignatureFromBytes(evidence.SignatureA)
	if err != nil {
		return false
	}
	sigB, err := crypto.BLSSignatureFromBytes(evidence.SignatureB)
	if err != nil {
		return false
	}
	payloadA := VoteSigningPayload(PhasePrepare, evidence.Height, evidence.View, evidence.BlockHashA)
	payloadB := VoteSigningPayload(PhasePrepare, evidence.Height, evidence.View, evidence.BlockHashB)
	return crypto.VerifyBLS(info.BLSKey, payloadA, sigA) && crypto.VerifyBLS(info.BLSKey, payloadB, sigB)
}
