// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validation implements the stateless-against-policy transaction
// predicate (spec §4.4, component C6): a pure function of
// (tx, stateDB, chainParams) that never mutates state and yields a typed
// rejection code on the first failing precondition.
package validation

import (
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// ComplianceChecker is the predicate the compliance gate exposes to
// validation (spec §4.7); kept as an interface here so validation never
// imports compliance's registry/governance machinery directly.
type ComplianceChecker interface {
	CheckTransaction(db *state.DB, tx *types.Transaction, blockTimestamp uint64) types.ErrorCode
}

// Validator checks transactions against a chain's parameters and a state
// view, in the fixed order spec §4.4 mandates.
type Validator struct {
	params     types.ChainParams
	compliance ComplianceChecker
}

// New returns a Validator for the given chain parameters and compliance
// gate.
func New(params types.ChainParams, compliance ComplianceChecker) *Validator {
	return &Validator{params: params, compliance: compliance}
}

// Validate runs every precondition in spec §4.4's fixed order and returns
// the first failure, or ErrNone if tx is admissible against db. Step 3
// requires nonce equality: this is the strict check the block builder uses
// to re-validate a candidate immediately before sequential execution, where
// a nonce gap can never be satisfied within the same block.
// blockTimestamp binds the compliance ZK proof path (spec §4.7 "Proof
// binding"); the block builder passes the actual candidate block timestamp
// at re-validate time.
func (v *Validator) Validate(tx *types.Transaction, db *state.DB, blockTimestamp uint64) types.ErrorCode {
	return v.validate(tx, db, blockTimestamp, false)
}

// ValidateForAdmission runs the same preconditions as Validate, except step
// 3 accepts any nonce at or above the sender's current on-chain nonce
// (rejecting only nonce-too-low). This is the mempool's admission check
// (spec §5 "Mempool ordering": "nonce-gap filtering ... a transaction whose
// nonce leaves a gap ... remains in the pool until promoted or evicted" —
// which requires the pool to accept a future-nonce transaction in the
// first place rather than reject it outright).
func (v *Validator) ValidateForAdmission(tx *types.Transaction, db *state.DB, blockTimestamp uint64) types.ErrorCode {
	return v.validate(tx, db, blockTimestamp, true)
}

func (v *Validator) validate(tx *types.Transaction, db *state.DB, blockTimestamp uint64, allowFutureNonce bool) types.ErrorCode {
	// 1. Signature present; derived address equals declared sender; Ed25519
	// verification succeeds.
	if len(tx.SenderPublicKey) == 0 || len(tx.Signature) == 0 {
		return types.ErrInvalidSignature
	}
	if types.DeriveAddress(tx.SenderPublicKey) != tx.Sender {
		return types.ErrInvalidSignature
	}
	if !crypto.VerifyEd25519(tx.SenderPublicKey, tx.Signature, tx.SigningPayload()) {
		return types.ErrInvalidSignature
	}

	// 2. Chain id equals current chain.
	if tx.ChainID != v.params.ChainID {
		return types.ErrInvalidChainID
	}

	// 3. Nonce equals sender's current on-chain nonce (or, for admission,
	// is at or above it).
	acc, found, err := db.GetAccount(tx.Sender)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	currentNonce := uint64(0)
	if found {
		currentNonce = acc.Nonce
	}
	if tx.Nonce < currentNonce {
		return types.ErrNonceTooLow
	}
	if tx.Nonce > currentNonce && !allowFutureNonce {
		return types.ErrNonceTooHigh
	}

	// 4. Gas limit bounds.
	if tx.GasLimit > v.params.BlockGasLimit {
		return types.ErrGasLimitExceeded
	}
	if tx.GasLimit < tx.IntrinsicBaseCost() {
		return types.ErrGasLimitExceeded
	}

	// 5. Fee field consistency.
	switch tx.FeeMode {
	case types.FeeLegacy:
		if tx.GasPrice.LessThan(v.params.MinGasPrice) {
			return types.ErrGasLimitExceeded
		}
	case types.FeeDynamic:
		if tx.MaxPriorityFeePerGas.GreaterThan(tx.MaxFeePerGas) {
			return types.ErrGasLimitExceeded
		}
		if tx.MaxFeePerGas.LessThan(v.params.MinGasPrice) {
			return types.ErrGasLimitExceeded
		}
	}

	// 6. Balance covers value + gasLimit * maxEffectivePrice.
	maxGasCost, err := tx.MaxEffectivePrice().MulUint64(tx.GasLimit)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	required, err := tx.Value.Add(maxGasCost)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	if !found || acc.Balance.LessThan(required) {
		return types.ErrInsufficientBalance
	}

	// 7. Data length within the per-type cap.
	if cap := tx.DataCap(); cap > 0 && len(tx.Data) > cap {
		return types.ErrDataTooLarge
	}

	// 8. Compliance predicate.
	if v.compliance != nil {
		if code := v.compliance.CheckTransaction(db, tx, blockTimestamp); code != types.ErrNone {
			return code
		}
	}

	return types.ErrNone
}
