// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// Outcome is everything the block builder needs to turn one executed
// transaction into a receipt (spec §3 "Receipt").
type Outcome struct {
	Success           bool
	GasUsed           uint64
	ErrorCode         types.ErrorCode
	Events            []Event
	EffectiveGasPrice types.UInt256
}

// Executor runs one transaction at a time, atomically, against a state
// fork (spec §4.5, component C7). It never owns the fork: callers (the
// block builder, or a speculative re-execution path) fork, execute, and
// commit or discard.
type Executor struct {
	params  types.ChainParams
	sandbox Sandbox
	staking *Staking
}

// New returns an Executor bound to params and sandbox.
func New(params types.ChainParams, sandbox Sandbox) *Executor {
	return &Executor{params: params, sandbox: sandbox, staking: NewStaking(params)}
}

// Execute runs tx against fork, mutating it in place. fork must already be
// a child of the view the block builder intends to commit into — Execute
// itself never forks or commits the top-level view; it only forks
// internally for the contract-deploy/call commit-on-success /
// discard-on-failure rule (spec §4.5 steps 3-4).
func (e *Executor) Execute(fork *state.DB, tx *types.Transaction, baseFee types.UInt256, proposer types.Address, blockHeight uint64) (Outcome, error) {
	effectivePrice := tx.EffectiveGasPrice(baseFee)

	sender, found, err := fork.GetAccount(tx.Sender)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		sender = types.NewAccountState()
	}

	preCharge, err := effectivePrice.MulUint64(tx.GasLimit)
	if err != nil {
		return Outcome{}, err
	}
	debited, err := sender.Balance.Sub(preCharge)
	if err != nil {
		// The validator's balance precheck (spec §4.4 step 6) uses the max
		// possible price, so this should be unreachable in practice; treat
		// it as a failed transaction rather than a fatal error.
		return e.failedOutcome(fork, tx, effectivePrice, tx.GasLimit, types.ErrInsufficientBalance, baseFee, proposer)
	}
	sender.Balance = debited

	if err := sender.IncrementNonce(); err != nil {
		if putErr := fork.PutAccount(tx.Sender, sender); putErr != nil {
			return Outcome{}, putErr
		}
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrNonceOverflow, nil, baseFee, proposer)
	}
	if err := fork.PutAccount(tx.Sender, sender); err != nil {
		return Outcome{}, err
	}

	switch tx.Type {
	case types.TxTransfer:
		return e.executeTransfer(fork, tx, effectivePrice, baseFee, proposer)
	case types.TxContractDeploy:
		return e.executeDeploy(fork, tx, effectivePrice, baseFee, proposer)
	case types.TxContractCall:
		return e.executeCall(fork, tx, effectivePrice, baseFee, proposer)
	case types.TxValidatorRegister:
		code := e.staking.Register(fork, tx.Sender, tx.Value, tx.Data)
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, code, nil, baseFee, proposer)
	case types.TxValidatorExit:
		code := e.staking.Exit(fork, tx.Sender, blockHeight)
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, code, nil, baseFee, proposer)
	case types.TxStakeDeposit:
		code := e.staking.Deposit(fork, tx.Sender, tx.Value)
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, code, nil, baseFee, proposer)
	case types.TxStakeWithdraw:
		code := e.staking.Withdraw(fork, tx.Sender, blockHeight)
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, code, nil, baseFee, proposer)
	case types.TxSystem:
		return e.postCharge(fork, tx, effectivePrice, 0, types.ErrNone, nil, baseFee, proposer)
	default:
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrSandboxViolation, nil, baseFee, proposer)
	}
}

// executeTransfer implements spec §4.5 step 2, including the self-transfer
// idempotence rule.
func (e *Executor) executeTransfer(fork *state.DB, tx *types.Transaction, effectivePrice, baseFee types.UInt256, proposer types.Address) (Outcome, error) {
	if tx.Sender != tx.To {
		sender, _, err := fork.GetAccount(tx.Sender)
		if err != nil {
			return Outcome{}, err
		}
		newSenderBalance, err := sender.Balance.Sub(tx.Value)
		if err != nil {
			return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrInsufficientBalance, nil, baseFee, proposer)
		}
		sender.Balance = newSenderBalance
		if err := fork.PutAccount(tx.Sender, sender); err != nil {
			return Outcome{}, err
		}

		receiver, found, err := fork.GetAccount(tx.To)
		if err != nil {
			return Outcome{}, err
		}
		if !found {
			receiver = types.NewAccountState()
		}
		newReceiverBalance, err := receiver.Balance.Add(tx.Value)
		if err != nil {
			return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrInsufficientBalance, nil, baseFee, proposer)
		}
		receiver.Balance = newReceiverBalance
		if err := fork.PutAccount(tx.To, receiver); err != nil {
			return Outcome{}, err
		}
	}
	return e.postCharge(fork, tx, effectivePrice, 21_000, types.ErrNone, nil, baseFee, proposer)
}

// executeDeploy implements spec §4.5 step 3: run the constructor against a
// sub-fork, commit on success, discard on failure, value refunded on
// failure; the sender nonce increment and gas charge already happened in
// Execute and are never reverted by this step.
func (e *Executor) executeDeploy(fork *state.DB, tx *types.Transaction, effectivePrice, baseFee types.UInt256, proposer types.Address) (Outcome, error) {
	sender, _, err := fork.GetAccount(tx.Sender)
	if err != nil {
		return Outcome{}, err
	}
	contract := types.DeriveContractAddress(tx.Sender, sender.Nonce-1)

	sub := fork.Fork()
	result := e.sandbox.Deploy(sub, contract, tx.Data, tx.GasLimit)
	if !result.Success {
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, result.ErrorCode, nil, baseFee, proposer)
	}

	acc, found, err := sub.GetAccount(contract)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		acc = types.NewAccountState()
		acc.Kind = types.AccountContract
	}
	newBalance, err := acc.Balance.Add(tx.Value)
	if err != nil {
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrInsufficientBalance, nil, baseFee, proposer)
	}
	acc.Balance = newBalance
	if err := sub.PutAccount(contract, acc); err != nil {
		return Outcome{}, err
	}
	fork.Commit(sub)
	return e.postCharge(fork, tx, effectivePrice, result.GasUsed, types.ErrNone, result.Events, baseFee, proposer)
}

// executeCall implements spec §4.5 step 4.
func (e *Executor) executeCall(fork *state.DB, tx *types.Transaction, effectivePrice, baseFee types.UInt256, proposer types.Address) (Outcome, error) {
	_, found, err := fork.GetAccount(tx.To)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, types.ErrContractNotFound, nil, baseFee, proposer)
	}

	sub := fork.Fork()
	result := e.sandbox.Call(sub, tx.To, tx.Data, tx.GasLimit)
	if !result.Success {
		return e.postCharge(fork, tx, effectivePrice, tx.GasLimit, result.ErrorCode, nil, baseFee, proposer)
	}
	fork.Commit(sub)
	return e.postCharge(fork, tx, effectivePrice, result.GasUsed, types.ErrNone, result.Events, baseFee, proposer)
}

// failedOutcome handles the rare pre-charge-can't-even-happen case: the
// transaction never ran, but it still must be reflected as a failure
// rather than propagated as a node-level error.
func (e *Executor) failedOutcome(fork *state.DB, tx *types.Transaction, effectivePrice types.UInt256, gasUsed uint64, code types.ErrorCode, baseFee types.UInt256, proposer types.Address) (Outcome, error) {
	return Outcome{Success: false, GasUsed: gasUsed, ErrorCode: code, EffectiveGasPrice: effectivePrice}, nil
}

// postCharge implements spec §4.5 step 6: refund unused gas, burn the
// base-fee portion, credit the tip to the proposer. Always runs, success
// or failure, because gas is always fully accounted for.
func (e *Executor) postCharge(fork *state.DB, tx *types.Transaction, effectivePrice types.UInt256, gasUsed uint64, code types.ErrorCode, events []Event, baseFee types.UInt256, proposer types.Address) (Outcome, error) {
	if code == types.ErrNone {
		// Value already moved for transfer/deploy/call/staking; nothing
		// further to refund for `value` on success.
	} else if tx.Type == types.TxTransfer || tx.Type == types.TxContractDeploy || tx.Type == types.TxContractCall {
		// Failure on a value-carrying operation: value is refunded to the
		// sender (spec §4.5 "Failure semantics").
		sender, _, err := fork.GetAccount(tx.Sender)
		if err != nil {
			return Outcome{}, err
		}
		refundedValue, err := sender.Balance.Add(tx.Value)
		if err == nil {
			sender.Balance = refundedValue
			if err := fork.PutAccount(tx.Sender, sender); err != nil {
				return Outcome{}, err
			}
		}
	}

	unused := tx.GasLimit - gasUsed
	refund, err := effectivePrice.MulUint64(unused)
	if err == nil && !refund.IsZero() {
		sender, _, err := fork.GetAccount(tx.Sender)
		if err == nil {
			if newBalance, err := sender.Balance.Add(refund); err == nil {
				sender.Balance = newBalance
				_ = fork.PutAccount(tx.Sender, sender)
			}
		}
	}

	burnPortion, err := baseFee.MulUint64(gasUsed)
	if err == nil && !burnPortion.IsZero() {
		e.creditSink(fork, types.BurnAddress, burnPortion)
	}

	if effectivePrice.GreaterThan(baseFee) {
		tipPrice, err := effectivePrice.Sub(baseFee)
		if err == nil {
			tip, err := tipPrice.MulUint64(gasUsed)
			if err == nil && !tip.IsZero() {
				e.creditSink(fork, proposer, tip)
			}
		}
	}

	return Outcome{
		Success:           code == types.ErrNone,
		GasUsed:           gasUsed,
		ErrorCode:         code,
		Events:            events,
		EffectiveGasPrice: effectivePrice,
	}, nil
}

func (e *Executor) creditSink(fork *state.DB, addr types.Address, amount types.UInt256) {
	acc, found, err := fork.GetAccount(addr)
	if err != nil {
		return
	}
	if !found {
		acc = types.NewAccountState()
		acc.Kind = types.AccountSystem
	}
	if newBalance, err := acc.Balance.Add(amount); err == nil {
		acc.Balance = newBalance
		_ = fork.PutAccount(addr, acc)
	}
}
