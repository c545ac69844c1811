// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package compliance

import (
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// Gate evaluates spec §4.7's compliance predicate against a Registry,
// satisfying validation.ComplianceChecker. It is the single entry point
// both the validator (at admission) and the executor (at apply time)
// call, so a transaction can never be admitted to the mempool under one
// verdict and applied under another.
type Gate struct {
	registry *Registry

	nullMu      sync.Mutex
	blockHeight uint64
	seen        map[uint32]map[nullifier]struct{}
}

// NewGate returns a Gate backed by registry.
func NewGate(registry *Registry) *Gate {
	return &Gate{
		registry: registry,
		seen:     make(map[uint32]map[nullifier]struct{}),
	}
}

// BeginBlock clears the per-block nullifier set. The block builder and the
// chain manager's re-execution path both call this before processing a
// block's transactions, since spec §4.7 scopes nullifier uniqueness to a
// single block, not the chain's lifetime.
func (g *Gate) BeginBlock(height uint64) {
	g.nullMu.Lock()
	defer g.nullMu.Unlock()
	g.blockHeight = height
	g.seen = make(map[uint32]map[nullifier]struct{})
}

// CheckTransaction is the spec §4.7 predicate: ErrNone for transactions not
// bound to a policy-bearing token, otherwise the first compliance
// violation found on the traditional or ZK path according to which one
// the target token's policy demands.
func (g *Gate) CheckTransaction(db *state.DB, tx *types.Transaction, blockTimestamp uint64) types.ErrorCode {
	if tx.Type != types.TxTransfer && tx.Type != types.TxContractCall {
		return types.ErrNone
	}
	policy := g.registry.GetPolicy(tx.To)
	if policy == nil {
		return types.ErrNone
	}
	if policy.Paused {
		return types.ErrCompliancePaused
	}
	if policy.RequiresZK() {
		return g.checkZK(policy, tx, blockTimestamp)
	}
	return g.checkTraditional(db, policy, tx, blockTimestamp)
}

// checkTraditional runs the attestation-based path (spec §4.7 "Traditional
// path"), in the fixed order the spec lists checks in.
func (g *Gate) checkTraditional(db *state.DB, policy *Policy, tx *types.Transaction, blockTimestamp uint64) types.ErrorCode {
	if g.registry.KYCLevel(tx.Sender) < policy.RequiredSenderKYC {
		return types.ErrComplianceKYCMissing
	}
	if g.registry.KYCLevel(tx.To) < policy.RequiredReceiverKYC {
		return types.ErrComplianceKYCMissing
	}

	if policy.SanctionsCheck {
		if g.registry.IsSanctioned(tx.Sender) || g.registry.IsSanctioned(tx.To) {
			return types.ErrComplianceSanctioned
		}
	}

	if len(policy.BlockedCountries) > 0 {
		if _, blocked := policy.BlockedCountries[g.registry.Country(tx.Sender)]; blocked {
			return types.ErrComplianceGeoRestricted
		}
		if _, blocked := policy.BlockedCountries[g.registry.Country(tx.To)]; blocked {
			return types.ErrComplianceGeoRestricted
		}
	}

	if !policy.MaxHoldingAmount.IsZero() {
		receiver, found, err := db.GetAccount(tx.To)
		if err != nil {
			return types.ErrInvalidEncoding
		}
		current := types.Zero()
		if found {
			current = receiver.Balance
		}
		projected, err := current.Add(tx.Value)
		if err != nil || projected.GreaterThan(policy.MaxHoldingAmount) {
			return types.ErrComplianceHoldingLimit
		}
	}

	if policy.LockupEnd > blockTimestamp {
		return types.ErrComplianceLockup
	}

	if !policy.TravelRuleThreshold.IsZero() && !tx.Value.LessThan(policy.TravelRuleThreshold) {
		if len(tx.Data) == 0 {
			return types.ErrComplianceTravelRuleMissing
		}
	}

	return types.ErrNone
}

// checkZK runs the ZK-proof path (spec §4.7 "ZK path"): every requirement
// the policy lists must be satisfied by exactly one attached proof, whose
// schema is registered, whose issuer tier meets the requirement, whose
// public inputs are correctly shaped and bound to this transaction, whose
// pairing check passes, and whose nullifier has not already been consumed
// in this block.
func (g *Gate) checkZK(policy *Policy, tx *types.Transaction, blockTimestamp uint64) types.ErrorCode {
	for _, req := range policy.ZKRequirements {
		var found *types.ComplianceProof
		matches := 0
		for i := range tx.ComplianceProofs {
			if tx.ComplianceProofs[i].SchemaID == req.SchemaID {
				found = &tx.ComplianceProofs[i]
				matches++
			}
		}
		if found == nil {
			return types.ErrComplianceProofMissing
		}
		if matches > 1 {
			return types.ErrComplianceProofInvalid
		}

		vk, issuerTier, ok := g.registry.Schema(req.SchemaID)
		if !ok || issuerTier < req.MinIssuerTier {
			return types.ErrComplianceProofInvalid
		}

		if len(found.Proof) != crypto.Groth16ProofSize {
			return types.ErrComplianceProofInvalid
		}
		if len(found.PublicInputs) == 0 || len(found.PublicInputs)%crypto.PublicInputWidth != 0 {
			return types.ErrComplianceProofInvalid
		}

		proof, err := crypto.DecodeGroth16Proof(found.Proof)
		if err != nil {
			return types.ErrComplianceProofInvalid
		}
		inputs, err := crypto.DecodePublicInputs(found.PublicInputs)
		if err != nil {
			return types.ErrComplianceProofInvalid
		}
		if len(vk.IC) != len(inputs)+1 {
			return types.ErrComplianceProofInvalid
		}

		expected := bindingCommitment(tx.Sender, tx.To, tx.Value, blockTimestamp, req.SchemaID)
		if !inputs[0].Equal(&expected) {
			return types.ErrComplianceProofInvalid
		}

		ok, err = crypto.VerifyGroth16(vk, proof, inputs)
		if err != nil || !ok {
			return types.ErrComplianceProofInvalid
		}

		null := computeNullifier(req.SchemaID, found.Proof)
		g.nullMu.Lock()
		set, exists := g.seen[req.SchemaID]
		if !exists {
			set = make(map[nullifier]struct{})
			g.seen[req.SchemaID] = set
		}
		if _, replay := set[null]; replay {
			g.nullMu.Unlock()
			return types.ErrComplianceProofInvalid
		}
		// Consumed only now that verification has fully succeeded (spec
		// §4.7 "Nullifier consumption"): a rejected proof never burns its
		// nullifier, so a corrected resubmission in the same block is not
		// locked out by its own failed attempt.
		set[null] = struct{}{}
		g.nullMu.Unlock()
	}
	return types.ErrNone
}
