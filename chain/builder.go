// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain implements the block builder (spec §4.6, component C9)
// and the chain manager (component C10): packing validated transactions
// into a sealed block, and appending sealed blocks under parent/number/
// timestamp invariants.
package chain

import (
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/execution"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

// Builder packs candidate transactions into a sealed block against a fork
// of the state DB.
type Builder struct {
	params    types.ChainParams
	validator *validation.Validator
	executor  *execution.Executor
}

// NewBuilder returns a Builder wired to validator and executor.
func NewBuilder(params types.ChainParams, validator *validation.Validator, executor *execution.Executor) *Builder {
	return &Builder{params: params, validator: validator, executor: executor}
}

// NextBaseFee computes the base fee for the block following parent, per
// spec §4.6's symmetric multiplicative adjustment bounded by
// 1/BaseFeeDenominator, gated by targetGas = gasLimit/elasticityMultiplier.
func NextBaseFee(params types.ChainParams, parentBaseFee types.UInt256, parentGasUsed, parentGasLimit uint64) types.UInt256 {
	if parentBaseFee.IsZero() {
		return params.InitialBaseFee
	}
	target := parentGasLimit / params.ElasticityMultiple
	if parentGasUsed == target {
		return parentBaseFee
	}

	if parentGasUsed > target {
		delta := parentGasUsed - target
		adjustment := mulDivUint64(parentBaseFee, delta, target, params.BaseFeeDenominator)
		if adjustment.IsZero() {
			adjustment = types.NewUInt256FromUint64(1)
		}
		next, err := parentBaseFee.Add(adjustment)
		if err != nil {
			return parentBaseFee
		}
		return next
	}

	delta := target - parentGasUsed
	adjustment := mulDivUint64(parentBaseFee, delta, target, params.BaseFeeDenominator)
	if adjustment.IsZero() {
		adjustment = types.NewUInt256FromUint64(1)
	}
	next, err := parentBaseFee.Sub(adjustment)
	if err != nil {
		return types.Zero()
	}
	return next
}

// mulDivUint64 computes parentBaseFee * delta / target / denominator,
// bounding the adjustment magnitude to +/- 1/denominator of the base fee
// per unit of deviation from target (spec §4.6).
func mulDivUint64(baseFee types.UInt256, delta, target, denominator uint64) types.UInt256 {
	if target == 0 {
		return types.Zero()
	}
	scaled, err := baseFee.MulUint64(delta)
	if err != nil {
		// Overflow on a u256 multiplication by realistic gas deltas would
		// mean base fee is already astronomically large; cap the
		// adjustment at baseFee/denominator (the full step for a delta
		// equal to target) instead of aborting block production.
		return baseFee.Div(types.NewUInt256FromUint64(denominator))
	}
	perTarget := scaled.Div(types.NewUInt256FromUint64(target))
	return perTarget.Div(types.NewUInt256FromUint64(denominator))
}

// Result is a sealed block plus the receipts it produced.
type Result struct {
	Block    types.Block
	Receipts []types.Receipt
}

// Build packs candidates (already fee-ordered by the mempool) under the
// block gas limit against a fresh fork of db, seals, and returns the
// result. db itself is left untouched; Build returns the fork it executed
// against as its second result, and the caller commits it with
// db.Commit(fork) once consensus finalizes the block.
func (b *Builder) Build(parent types.BlockHeader, candidates []*types.Transaction, proposer types.Address, db *state.DB, timestamp uint64) (*Result, *state.DB) {
	baseFee := NextBaseFee(b.params, parent.BaseFee, parent.GasUsed, parent.GasLimit)
	fork := db.Fork()

	var (
		included []*types.Transaction
		receipts []types.Receipt
		gasUsed  uint64
	)

	for _, tx := range candidates {
		if code := b.validator.Validate(tx, fork, timestamp); code != types.ErrNone {
			continue
		}
		if gasUsed+tx.GasLimit > b.params.BlockGasLimit {
			break
		}

		outcome, err := b.executor.Execute(fork, tx, baseFee, proposer, parent.Number+1)
		if err != nil {
			continue
		}
		gasUsed += outcome.GasUsed

		logs := make([]types.Log, 0, len(outcome.Events))
		for _, ev := range outcome.Events {
			logs = append(logs, types.Log{
				Contract:  ev.Contract,
				Signature: ev.Signature,
				Topics:    ev.Topics,
				Data:      ev.Data,
			})
		}

		receipts = append(receipts, types.Receipt{
			TxHash:            tx.Hash(),
			BlockNumber:       parent.Number + 1,
			Index:             uint64(len(receipts)),
			Sender:            tx.Sender,
			To:                tx.To,
			GasUsed:           outcome.GasUsed,
			Success:           outcome.Success,
			ErrorCode:         outcome.ErrorCode,
			PostStateRoot:     fork.Root(),
			EffectiveGasPrice: outcome.EffectiveGasPrice,
			Logs:              logs,
		})
		included = append(included, tx)
	}

	txHashes := make([]crypto.Hash256, len(included))
	for i, tx := range included {
		txHashes[i] = tx.Hash()
	}
	receiptHashes := make([]crypto.Hash256, len(receipts))
	for i := range receipts {
		receiptHashes[i] = crypto.Blake3(receipts[i].Encode())
	}

	header := types.BlockHeader{
		Version:          1,
		Number:           parent.Number + 1,
		ParentHash:       parent.Hash(),
		StateRoot:        fork.Root(),
		TransactionsRoot: types.MerkleRoot(txHashes),
		ReceiptsRoot:     types.MerkleRoot(receiptHashes),
		Proposer:         proposer,
		Timestamp:        timestamp,
		ChainID:          b.params.ChainID,
		GasUsed:          gasUsed,
		GasLimit:         b.params.BlockGasLimit,
		BaseFee:          baseFee,
	}
	blockHash := header.Hash()
	for i := range receipts {
		receipts[i].BlockHash = blockHash
	}

	block := types.Block{Header: header, Transactions: included}
	return &Result{Block: block, Receipts: receipts}, fork
}
