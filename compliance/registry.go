// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package compliance

import (
	"errors"
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// ErrNotGovernance is returned when a governance-only mutation is attempted
// by an address other than the registry's configured governance address.
var ErrNotGovernance = errors.New("compliance: caller is not the governance address")

// ErrNotPolicyIssuer is returned when an existing policy is updated by an
// address other than its original issuer.
var ErrNotPolicyIssuer = errors.New("compliance: caller is not the policy issuer")

// ErrUnknownPolicy names the no-policy-registered condition. No function in
// this package returns it: GetPolicy reports an unregistered token with a
// nil policy.
var ErrUnknownPolicy = errors.New("compliance: no policy registered for token")

// ErrZeroIssuerTier is returned when a verifying key is registered with
// issuer tier zero: a self-attested tier cannot satisfy any MinIssuerTier
// requirement, so registering one is rejected outright (spec §4.7).
var ErrZeroIssuerTier = errors.New("compliance: issuer tier must be non-zero")

// schemaKey holds a registered Groth16 verifying key together with the
// attested tier of the schema's issuer (the tier a proof under this schema
// satisfies, fixed at registration rather than carried per-proof).
type schemaKey struct {
	vk         *crypto.Groth16VerifyingKey
	issuerTier uint8
}

// Registry holds every piece of mutable compliance configuration: per-token
// policies, attested KYC levels, the sanctions and blocked-country lists,
// and the schema-keyed Groth16 verifying-key set (spec §3 "Compliance
// registry", §4.7).
//
// Policy ownership follows spec §4.7 "Policy ownership": a new policy is
// owned by whoever writes it first; only that issuer may subsequently
// update it. Every other registry — sanctions, KYC attestation, country,
// and the ZK verifying-key set — is governance-gated: mutable only by the
// single configured governance address, matching spec §4.7 "Governance
// gating".
type Registry struct {
	mu sync.RWMutex

	governance types.Address

	policies map[types.Address]*Policy

	kycLevels  map[types.Address]KYCLevel
	sanctioned map[types.Address]struct{}
	countries  map[types.Address]string // address -> ISO country code

	schemas map[uint32]schemaKey
}

// NewRegistry returns an empty registry whose governance-gated mutations
// are authorized only for the given governance address.
func NewRegistry(governance types.Address) *Registry {
	return &Registry{
		governance: governance,
		policies:   make(map[types.Address]*Policy),
		kycLevels:  make(map[types.Address]KYCLevel),
		sanctioned: make(map[types.Address]struct{}),
		countries:  make(map[types.Address]string),
		schemas:    make(map[uint32]schemaKey),
	}
}

// SetPolicy registers or updates the policy for policy.Token. On first
// registration the caller becomes the policy's issuer; on update, the
// caller must equal the existing issuer.
func (r *Registry) SetPolicy(caller types.Address, policy *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range policy.ZKRequirements {
		if req.MinIssuerTier == 0 {
			return ErrZeroIssuerTier
		}
	}

	existing, ok := r.policies[policy.Token]
	if ok {
		if existing.Issuer != caller {
			return ErrNotPolicyIssuer
		}
		policy.Issuer = existing.Issuer
	} else {
		policy.Issuer = caller
	}
	r.policies[policy.Token] = policy
	return nil
}

// GetPolicy returns the policy registered for token, or nil if none exists
// (the token is exempt from the compliance gate).
func (r *Registry) GetPolicy(token types.Address) *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[token]
}

// SetKYCLevel attests addr's KYC level. Governance-gated.
func (r *Registry) SetKYCLevel(caller, addr types.Address, level KYCLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return ErrNotGovernance
	}
	r.kycLevels[addr] = level
	return nil
}

// KYCLevel returns addr's attested KYC level (zero if never attested).
func (r *Registry) KYCLevel(addr types.Address) KYCLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kycLevels[addr]
}

// SetSanctioned adds or removes addr from the sanctions list.
// Governance-gated.
func (r *Registry) SetSanctioned(caller, addr types.Address, sanctioned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return ErrNotGovernance
	}
	if sanctioned {
		r.sanctioned[addr] = struct{}{}
	} else {
		delete(r.sanctioned, addr)
	}
	return nil
}

// IsSanctioned reports whether addr is on the sanctions list.
func (r *Registry) IsSanctioned(addr types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sanctioned[addr]
	return ok
}

// SetCountry attests addr's jurisdiction by ISO-3166 alpha-2 code.
// Governance-gated.
func (r *Registry) SetCountry(caller, addr types.Address, countryCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return ErrNotGovernance
	}
	r.countries[addr] = countryCode
	return nil
}

// Country returns addr's attested country code, or "" if never attested.
func (r *Registry) Country(addr types.Address) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countries[addr]
}

// RegisterSchema installs the verifying key for schemaID and the tier its
// issuer attests to. Governance-gated; issuerTier == 0 is rejected.
func (r *Registry) RegisterSchema(caller types.Address, schemaID uint32, vk *crypto.Groth16VerifyingKey, issuerTier uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.governance {
		return ErrNotGovernance
	}
	if issuerTier == 0 {
		return ErrZeroIssuerTier
	}
	r.schemas[schemaID] = schemaKey{vk: vk, issuerTier: issuerTier}
	return nil
}

// Schema returns the verifying key and issuer tier registered for
// schemaID, or (nil, 0, false) if none is registered.
func (r *Registry) Schema(schemaID uint32) (*crypto.Groth16VerifyingKey, uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[schemaID]
	if !ok {
		return nil, 0, false
	}
	return s.vk, s.issuerTier, true
}
