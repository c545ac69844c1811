// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the pipelined three-phase BFT engine (spec
// §4.8, component C12): weighted leader rotation, BLS-aggregated
// PREPARE/PRE-COMMIT/COMMIT quorums, view-change on timeout, and
// equivocation slashing evidence.
package consensus

import (
	"sort"
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// ReputationFloor is the minimum reputation a validator must hold to be
// considered for leader routing or vote-weight counting (spec §4.8
// "Validator set": "Reputation below 0.2 excludes a peer from routing and
// voting consideration").
const ReputationFloor = 0.2

// Reputation event adjustments (spec §4.8 "Leader rotation").
const (
	ReputationTimeoutPenalty         = 0.05
	ReputationInvalidProposalPenalty = 0.05
	ReputationProposalReward         = 0.01
)

// Reputation composition weights (spec §4.8 "Validator set": availability,
// response latency, block validity, protocol compliance).
const (
	WeightAvailability = 0.25
	WeightLatency      = 0.15
	WeightValidity     = 0.35
	WeightCompliance   = 0.25
)

// ComputeReputation combines the four fixed-weight factors (each in [0, 1])
// into a single composite reputation score, clamped to [0, 1].
func ComputeReputation(availability, latency, validity, compliance float64) float64 {
	score := availability*WeightAvailability + latency*WeightLatency +
		validity*WeightValidity + compliance*WeightCompliance
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidatorInfo is one member of the active consensus validator set: its
// stake-weighted voting power, its disjoint BLS key material (spec §4.1:
// "validators maintain disjoint Ed25519 and BLS key material"), and its
// reputation score.
type ValidatorInfo struct {
	Address    types.Address
	Stake      types.UInt256
	BLSKey     *crypto.BLSPublicKey
	Reputation float64
}

// eligible reports whether v counts toward routing/voting (spec §4.8).
func (v *ValidatorInfo) eligible() bool {
	return v.Reputation >= ReputationFloor
}

// weight is stake x reputation (spec §4.8 "each validator has weight =
// stake x reputation"), truncated to an integer voting-power unit. Stake is
// assumed to fit a u64 (genesis configurations allocate validator stake in
// token-unit, not wei-scale, quantities); a stake that does not fit is
// capped rather than overflowing the weighted-index arithmetic.
func (v *ValidatorInfo) weight() uint64 {
	if !v.eligible() {
		return 0
	}
	stake := v.Stake.Uint64()
	return uint64(float64(stake) * v.Reputation)
}

// ValidatorSet is the committee securing a given height range: its members,
// their weights, and the mutex-guarded structural mutation spec §9's
// "Global mutable state" design note calls for (reads hold the read
// lock).
type ValidatorSet struct {
	mu         sync.RWMutex
	validators map[types.Address]*ValidatorInfo
}

// NewValidatorSet returns a ValidatorSet seeded with members.
func NewValidatorSet(members []*ValidatorInfo) *ValidatorSet {
	vs := &ValidatorSet{validators: make(map[types.Address]*ValidatorInfo, len(members))}
	for _, m := range members {
		vs.validators[m.Address] = m
	}
	return vs
}

// sorted returns every validator ordered by address, for deterministic
// cumulative-weight iteration (spec §4.8 "weightedIndex").
func (vs *ValidatorSet) sorted() []*ValidatorInfo {
	out := make([]*ValidatorInfo, 0, len(vs.validators))
	for _, v := range vs.validators {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return addressLess(out[i].Address, out[j].Address)
	})
	return out
}

func addressLess(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TotalWeight sums the weight of every eligible validator.
func (vs *ValidatorSet) TotalWeight() uint64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	var total uint64
	for _, v := range vs.validators {
		total += v.weight()
	}
	return total
}

// EligibleCount returns n, the number of validators currently eligible for
// routing/voting, used to derive f = floor((n-1)/3) and quorum = 2f+1.
func (vs *ValidatorSet) EligibleCount() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	n := 0
	for _, v := range vs.validators {
		if v.eligible() {
			n++
		}
	}
	return n
}

// Quorum returns the minimum number of votes (2f+1 out of n, f =
// floor((n-1)/3)) required for a phase to advance (spec GLOSSARY
// "Quorum").
func (vs *ValidatorSet) Quorum() int {
	n := vs.EligibleCount()
	if n == 0 {
		return 0
	}
	f := (n - 1) / 3
	return 2*f + 1
}

// FaultTolerance returns f = floor((n-1)/3).
func (vs *ValidatorSet) FaultTolerance() int {
	n := vs.EligibleCount()
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// weightedIndex maps a cumulative-weight offset in [0, TotalWeight) to the
// validator whose cumulative weight range contains it (spec §4.8 "Leader
// rotation": "validators[weightedIndex(V mod totalWeight)]").
func (vs *ValidatorSet) weightedIndex(offset uint64) *ValidatorInfo {
	var cumulative uint64
	for _, v := range vs.sorted() {
		w := v.weight()
		if w == 0 {
			continue
		}
		cumulative += w
		if offset < cumulative {
			return v
		}
	}
	return nil
}

// LeaderForView returns the leader for consensus view V (spec §4.8: "For
// view V, leader = validators[weightedIndex(V mod totalWeight)]"), or nil
// if the validator set has no eligible weight.
func (vs *ValidatorSet) LeaderForView(view uint64) *ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	total := vs.totalWeightLocked()
	if total == 0 {
		return nil
	}
	return vs.weightedIndex(view % total)
}

func (vs *ValidatorSet) totalWeightLocked() uint64 {
	var total uint64
	for _, v := range vs.validators {
		total += v.weight()
	}
	return total
}

// Get returns the validator at addr, if a member of the set.
func (vs *ValidatorSet) Get(addr types.Address) (*ValidatorInfo, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[addr]
	return v, ok
}

// Members returns every validator, including ineligible ones, sorted by
// address.
func (vs *ValidatorSet) Members() []*ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sorted()
}

// adjustReputation clamps and stores a reputation delta for addr; no-op if
// addr is not a member.
func (vs *ValidatorSet) adjustReputation(addr types.Address, delta float64) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.validators[addr]
	if !ok {
		return
	}
	v.Reputation = clamp01(v.Reputation + delta)
}

// PenalizeTimeout applies the timeout/invalid-proposal reputation penalty
// to addr (spec §4.8: "Reputation penalty 0.05 per timeout/invalid
// proposal").
func (vs *ValidatorSet) PenalizeTimeout(addr types.Address) {
	vs.adjustReputation(addr, -ReputationTimeoutPenalty)
}

// PenalizeInvalidProposal applies the invalid-proposal reputation penalty.
func (vs *ValidatorSet) PenalizeInvalidProposal(addr types.Address) {
	vs.adjustReputation(addr, -ReputationInvalidProposalPenalty)
}

// RewardProposal applies the successful-proposal reputation bonus (spec
// §4.8: "+0.01 per successful proposal").
func (vs *ValidatorSet) RewardProposal(addr types.Address) {
	vs.adjustReputation(addr, ReputationProposalReward)
}

// Slash zeroes out addr's stake and reputation, the 100% stake slashing
// penalty for equivocation (spec §4.8 "Safety": "Such evidence embedded in
// any future block triggers 100% stake slashing").
func (vs *ValidatorSet) Slash(addr types.Address) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.validators[addr]
	if !ok {
		return
	}
	v.Stake = types.Zero()
	v.Reputation = 0
}

// SetBLSKey rotates addr's BLS public key in place, used by key rotation
// transaction activation (spec §4.8 "Key rotation").
func (vs *ValidatorSet) SetBLSKey(addr types.Address, key *crypto.BLSPublicKey) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if v, ok := vs.validators[addr]; ok {
		v.BLSKey = key
	}
}

// Upsert adds or replaces a validator entry (register/exit/deposit/withdraw
// staking transactions rebuild the set from authenticated state; spec §3's
// expansion note on validator-set persistence).
func (vs *ValidatorSet) Upsert(info *ValidatorInfo) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.validators[info.Address] = info
}

// Remove drops addr from the set entirely (used when an exited validator's
// stake has been fully withdrawn).
func (vs *ValidatorSet) Remove(addr types.Address) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	delete(vs.validators, addr)
}
