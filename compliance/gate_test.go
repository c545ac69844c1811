// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package compliance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
)

func newTestDB() *state.DB {
	return state.New(trie.NewMemStore())
}

var (
	governance = types.Address{0x01}
	token      = types.Address{0x02}
	sender     = types.Address{0x03}
	receiver   = types.Address{0x04}
)

func TestGateNoPolicyIsExempt(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrNone, gate.CheckTransaction(db, tx, 0))
}

func TestGateKYCMissing(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:             token,
		RequiredSenderKYC: 2,
	}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrComplianceKYCMissing, gate.CheckTransaction(db, tx, 0))

	require.NoError(reg.SetKYCLevel(governance, sender, 2))
	require.Equal(types.ErrNone, gate.CheckTransaction(db, tx, 0))
}

func TestGateSanctioned(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{Token: token, SanctionsCheck: true}))
	gate := NewGate(reg)
	db := newTestDB()

	require.NoError(reg.SetSanctioned(governance, sender, true))
	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrComplianceSanctioned, gate.CheckTransaction(db, tx, 0))
}

func TestGateGeoRestricted(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:            token,
		BlockedCountries: map[string]struct{}{"KP": {}},
	}))
	gate := NewGate(reg)
	db := newTestDB()

	require.NoError(reg.SetCountry(governance, sender, "KP"))
	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrComplianceGeoRestricted, gate.CheckTransaction(db, tx, 0))
}

func TestGateHoldingLimit(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:            token,
		MaxHoldingAmount: types.NewUInt256FromUint64(100),
	}))
	gate := NewGate(reg)
	db := newTestDB()

	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(90)
	require.NoError(db.PutAccount(token, acc))

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token, Value: types.NewUInt256FromUint64(20)}
	require.Equal(types.ErrComplianceHoldingLimit, gate.CheckTransaction(db, tx, 0))

	tx.Value = types.NewUInt256FromUint64(5)
	require.Equal(types.ErrNone, gate.CheckTransaction(db, tx, 0))
}

func TestGateLockup(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{Token: token, LockupEnd: 1000}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrComplianceLockup, gate.CheckTransaction(db, tx, 500))
	require.Equal(types.ErrNone, gate.CheckTransaction(db, tx, 1000))
}

func TestGateTravelRuleMissing(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:               token,
		TravelRuleThreshold: types.NewUInt256FromUint64(1000),
	}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token, Value: types.NewUInt256FromUint64(1000)}
	require.Equal(types.ErrComplianceTravelRuleMissing, gate.CheckTransaction(db, tx, 0))

	tx.Data = []byte{0x01}
	require.Equal(types.ErrNone, gate.CheckTransaction(db, tx, 0))
}

func TestGatePaused(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{Token: token, Paused: true}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrCompliancePaused, gate.CheckTransaction(db, tx, 0))
}

func TestGateZKProofMissing(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:          token,
		ZKRequirements: []ZKRequirement{{SchemaID: 7, MinIssuerTier: 1}},
	}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{Type: types.TxTransfer, Sender: sender, To: token}
	require.Equal(types.ErrComplianceProofMissing, gate.CheckTransaction(db, tx, 0))
}

func TestGateZKUnregisteredSchemaRejected(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(governance, &Policy{
		Token:          token,
		ZKRequirements: []ZKRequirement{{SchemaID: 7, MinIssuerTier: 1}},
	}))
	gate := NewGate(reg)
	db := newTestDB()

	tx := &types.Transaction{
		Type: types.TxTransfer, Sender: sender, To: token,
		ComplianceProofs: []types.ComplianceProof{{
			SchemaID:     7,
			Proof:        make([]byte, 192),
			PublicInputs: make([]byte, 32),
		}},
	}
	require.Equal(types.ErrComplianceProofInvalid, gate.CheckTransaction(db, tx, 0))
}

func TestRegistryPolicyOwnership(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.NoError(reg.SetPolicy(sender, &Policy{Token: token}))
	require.ErrorIs(reg.SetPolicy(receiver, &Policy{Token: token}), ErrNotPolicyIssuer)
	require.NoError(reg.SetPolicy(sender, &Policy{Token: token, SanctionsCheck: true}))
}

func TestRegistryGovernanceGating(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	require.ErrorIs(reg.SetSanctioned(sender, receiver, true), ErrNotGovernance)
	require.ErrorIs(reg.SetKYCLevel(sender, receiver, 1), ErrNotGovernance)
	require.ErrorIs(reg.SetCountry(sender, receiver, "US"), ErrNotGovernance)
}

func TestRegistryZeroIssuerTierRejected(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	err := reg.SetPolicy(governance, &Policy{
		Token:          token,
		ZKRequirements: []ZKRequirement{{SchemaID: 1, MinIssuerTier: 0}},
	})
	require.ErrorIs(err, ErrZeroIssuerTier)
}

func TestGateBeginBlockClearsNullifierSet(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(governance)
	gate := NewGate(reg)

	null1 := computeNullifier(3, []byte{1, 2, 3})
	gate.seen[3] = map[nullifier]struct{}{null1: {}}
	_, replay := gate.seen[3][null1]
	require.True(replay)

	gate.BeginBlock(5)
	require.Empty(gate.seen)
}
