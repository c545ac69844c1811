// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// Reserved storage slots the staking module keeps inside a validator
// account's own storage subtrie, the same mechanism contract accounts use
// for arbitrary key-value state (spec §3 "Storage slot").
var (
	slotStake    = crypto.Blake3([]byte("basalt/validator/stake"))
	slotActive   = crypto.Blake3([]byte("basalt/validator/active"))
	slotUnbondAt = crypto.Blake3([]byte("basalt/validator/unbond_at"))
	slotBLSKey   = crypto.Blake3([]byte("basalt/validator/bls_key"))
)

func getUInt256(db *state.DB, addr types.Address, slot crypto.Hash256) (types.UInt256, error) {
	v, found, err := db.GetStorage(addr, slot)
	if err != nil || !found {
		return types.Zero(), err
	}
	return types.NewUInt256FromBig(v)
}

func setUInt256(db *state.DB, addr types.Address, slot crypto.Hash256, v types.UInt256) error {
	return db.SetStorage(addr, slot, v.Bytes())
}

func getBool(db *state.DB, addr types.Address, slot crypto.Hash256) (bool, error) {
	v, found, err := db.GetStorage(addr, slot)
	if err != nil || !found || len(v) == 0 {
		return false, err
	}
	return v[0] == 1, nil
}

func setBool(db *state.DB, addr types.Address, slot crypto.Hash256, v bool) error {
	if v {
		return db.SetStorage(addr, slot, []byte{1})
	}
	return db.SetStorage(addr, slot, []byte{0})
}

func getUint64(db *state.DB, addr types.Address, slot crypto.Hash256) (uint64, error) {
	v, found, err := db.GetStorage(addr, slot)
	if err != nil || !found {
		return 0, err
	}
	r := codec.NewReader(v)
	return r.ReadUvarint()
}

func setUint64(db *state.DB, addr types.Address, slot crypto.Hash256, v uint64) error {
	w := codec.NewWriter()
	w.WriteUvarint(v)
	return db.SetStorage(addr, slot, w.Bytes())
}

// Staking applies spec §4.5 step 5's four validator-set operations
// directly against a transaction's execution fork. It has no dependency on
// the consensus engine's in-memory validator set: that set is rebuilt by
// scanning AccountValidator accounts, keeping the staking ledger itself
// inside ordinary authenticated state (spec §4.3).
type Staking struct {
	params types.ChainParams
}

// NewStaking returns a Staking module bound to params.
func NewStaking(params types.ChainParams) *Staking {
	return &Staking{params: params}
}

// Register implements TxValidatorRegister: stake (tx.Value) must meet the
// chain minimum and the sender must not already be an active validator.
func (s *Staking) Register(fork *state.DB, sender types.Address, stake types.UInt256, blsKey []byte) types.ErrorCode {
	active, err := getBool(fork, sender, slotActive)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if active {
		return types.ErrStakingNotAvailable
	}
	if stake.LessThan(s.params.MinValidatorStake) {
		return types.ErrStakeBelowMinimum
	}

	acc, found, err := fork.GetAccount(sender)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if !found {
		acc = types.NewAccountState()
	}
	if acc.Balance.LessThan(stake) {
		return types.ErrInsufficientBalance
	}
	newBalance, err := acc.Balance.Sub(stake)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	acc.Balance = newBalance
	acc.Kind = types.AccountValidator
	if err := fork.PutAccount(sender, acc); err != nil {
		return types.ErrInvalidEncoding
	}

	if err := setUInt256(fork, sender, slotStake, stake); err != nil {
		return types.ErrInvalidEncoding
	}
	if err := setBool(fork, sender, slotActive, true); err != nil {
		return types.ErrInvalidEncoding
	}
	if err := fork.SetStorage(sender, slotBLSKey, blsKey); err != nil {
		return types.ErrInvalidEncoding
	}
	return types.ErrNone
}

// Exit implements TxValidatorExit: marks the validator inactive and starts
// its unbonding window.
func (s *Staking) Exit(fork *state.DB, sender types.Address, blockHeight uint64) types.ErrorCode {
	active, err := getBool(fork, sender, slotActive)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if !active {
		return types.ErrValidatorNotRegistered
	}
	if err := setBool(fork, sender, slotActive, false); err != nil {
		return types.ErrInvalidEncoding
	}
	if err := setUint64(fork, sender, slotUnbondAt, blockHeight+s.params.UnbondingPeriod); err != nil {
		return types.ErrInvalidEncoding
	}
	return types.ErrNone
}

// Deposit implements TxStakeDeposit: extends an active validator's stake.
func (s *Staking) Deposit(fork *state.DB, sender types.Address, amount types.UInt256) types.ErrorCode {
	active, err := getBool(fork, sender, slotActive)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if !active {
		return types.ErrValidatorNotRegistered
	}

	acc, found, err := fork.GetAccount(sender)
	if err != nil || !found {
		return types.ErrInvalidEncoding
	}
	newBalance, err := acc.Balance.Sub(amount)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	acc.Balance = newBalance
	if err := fork.PutAccount(sender, acc); err != nil {
		return types.ErrInvalidEncoding
	}

	stake, err := getUInt256(fork, sender, slotStake)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	newStake, err := stake.Add(amount)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if err := setUInt256(fork, sender, slotStake, newStake); err != nil {
		return types.ErrInvalidEncoding
	}
	return types.ErrNone
}

// Withdraw implements TxStakeWithdraw: only permitted once the unbonding
// window recorded by Exit has elapsed, at which point the full stake is
// credited back to the sender's balance in the same atomic transition
// (spec §9 Open Question (ii)).
func (s *Staking) Withdraw(fork *state.DB, sender types.Address, blockHeight uint64) types.ErrorCode {
	active, err := getBool(fork, sender, slotActive)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if active {
		return types.ErrStakingNotAvailable
	}
	unbondAt, err := getUint64(fork, sender, slotUnbondAt)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if blockHeight < unbondAt {
		return types.ErrStakingNotAvailable
	}

	stake, err := getUInt256(fork, sender, slotStake)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	if stake.IsZero() {
		return types.ErrValidatorNotRegistered
	}

	acc, found, err := fork.GetAccount(sender)
	if err != nil || !found {
		return types.ErrInvalidEncoding
	}
	newBalance, err := acc.Balance.Add(stake)
	if err != nil {
		return types.ErrInvalidEncoding
	}
	acc.Balance = newBalance
	if err := fork.PutAccount(sender, acc); err != nil {
		return types.ErrInvalidEncoding
	}
	if err := setUInt256(fork, sender, slotStake, types.Zero()); err != nil {
		return types.ErrInvalidEncoding
	}
	return types.ErrNone
}
