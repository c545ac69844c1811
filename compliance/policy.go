// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package compliance implements the protocol-enforced transfer policy and
// ZK proof verification predicate (spec §4.7, component C11): evaluated at
// validator admission (validation.ComplianceChecker) and again at executor
// entry, over a pluggable Groth16 verifier.
package compliance

import (
	"github.com/basalt-foundation/basalt/types"
)

// KYCLevel is an ordered attestation tier; higher satisfies lower
// requirements.
type KYCLevel uint8

// ZKRequirement names one proof schema a policy demands, and the minimum
// tier its issuer must hold. MinIssuerTier == 0 is rejected at
// registration: a self-attested tier is not suitable for compliance
// (spec §4.7).
type ZKRequirement struct {
	SchemaID      uint32
	MinIssuerTier uint8
}

// Policy is the per-token compliance configuration (spec §3 "Compliance
// policy").
type Policy struct {
	Token               types.Address
	RequiredSenderKYC   KYCLevel
	RequiredReceiverKYC KYCLevel
	SanctionsCheck      bool
	BlockedCountries    map[string]struct{}
	MaxHoldingAmount    types.UInt256
	LockupEnd           uint64 // block timestamp, ms
	TravelRuleThreshold types.UInt256
	Paused              bool
	ZKRequirements      []ZKRequirement
	Issuer              types.Address
}

// RequiresZK reports whether this policy is satisfied through the ZK path
// rather than the traditional attestation path (spec §4.7 "Combined rule").
func (p *Policy) RequiresZK() bool {
	return len(p.ZKRequirements) > 0
}
