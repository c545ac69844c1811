// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	stded25519 "crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basalt-foundation/basalt/compliance"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/execution"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

func newTestChainDB(t *testing.T) *state.DB {
	t.Helper()
	return state.New(trie.NewMemStore())
}

func newTestBuilder() (*Builder, types.ChainParams) {
	params := types.DefaultChainParams()
	gate := compliance.NewGate(compliance.NewRegistry(types.Address{0xFF}))
	v := validation.New(params, gate)
	e := execution.New(params, execution.NewDeterministicSandbox())
	return NewBuilder(params, v, e), params
}

func signedTransfer(t *testing.T, params types.ChainParams, pub stded25519.PublicKey, priv stded25519.PrivateKey, to types.Address, nonce, value uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type:     types.TxTransfer,
		ChainID:  params.ChainID,
		Nonce:    nonce,
		Sender:   types.DeriveAddress(pub),
		To:       to,
		Value:    types.NewUInt256FromUint64(value),
		GasLimit: 21_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}
	tx.SenderPublicKey = pub
	tx.Signature = crypto.SignEd25519(priv, tx.SigningPayload())
	return tx
}

func TestNextBaseFeeHoldsAtTarget(t *testing.T) {
	params := types.DefaultChainParams()
	target := params.BlockGasLimit / params.ElasticityMultiple
	next := NextBaseFee(params, types.NewUInt256FromUint64(1000), target, params.BlockGasLimit)
	require.Equal(t, uint64(1000), next.Uint64())
}

func TestNextBaseFeeRisesWhenAboveTarget(t *testing.T) {
	params := types.DefaultChainParams()
	next := NextBaseFee(params, types.NewUInt256FromUint64(1000), params.BlockGasLimit, params.BlockGasLimit)
	require.Greater(t, next.Uint64(), uint64(1000))
}

func TestNextBaseFeeFallsWhenBelowTarget(t *testing.T) {
	params := types.DefaultChainParams()
	next := NextBaseFee(params, types.NewUInt256FromUint64(1000), 0, params.BlockGasLimit)
	require.Less(t, next.Uint64(), uint64(1000))
}

func TestBuildEmptyBlockHasZeroRoots(t *testing.T) {
	builder, params := newTestBuilder()
	db := newTestChainDB(t)
	genesis := types.BlockHeader{Number: 0, ChainID: params.ChainID, BaseFee: params.InitialBaseFee, GasLimit: params.BlockGasLimit}

	result, fork := builder.Build(genesis, nil, types.Address{0x01}, db, 1_000)
	require.Empty(t, result.Block.Transactions)
	require.Equal(t, crypto.Hash256{}, result.Block.Header.TransactionsRoot)
	require.Equal(t, crypto.Hash256{}, result.Block.Header.ReceiptsRoot)
	require.Equal(t, db.Root(), fork.Root())
}

func TestBuildIncludesValidTransaction(t *testing.T) {
	builder, params := newTestBuilder()
	db := newTestChainDB(t)

	pub, priv, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	sender := types.DeriveAddress(pub)

	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(10_000_000)
	require.NoError(t, db.PutAccount(sender, acc))

	tx := signedTransfer(t, params, pub, priv, types.Address{0x02}, 0, 500)
	genesis := types.BlockHeader{Number: 0, ChainID: params.ChainID, BaseFee: params.InitialBaseFee, GasLimit: params.BlockGasLimit}

	result, fork := builder.Build(genesis, []*types.Transaction{tx}, types.Address{0x01}, db, 1_000)
	require.Len(t, result.Block.Transactions, 1)
	require.Len(t, result.Receipts, 1)
	require.True(t, result.Receipts[0].Success)
	require.NotEqual(t, crypto.Hash256{}, result.Block.Header.TransactionsRoot)
	require.Equal(t, result.Block.Header.Hash(), result.Receipts[0].BlockHash)

	receiver, found, err := fork.GetAccount(types.Address{0x02})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(500), receiver.Balance.Uint64())
}

func TestBuildSkipsInvalidTransaction(t *testing.T) {
	builder, params := newTestBuilder()
	db := newTestChainDB(t)

	pub, priv, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	sender := types.DeriveAddress(pub)
	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(100)
	require.NoError(t, db.PutAccount(sender, acc))

	tx := signedTransfer(t, params, pub, priv, types.Address{0x02}, 0, 500)
	genesis := types.BlockHeader{Number: 0, ChainID: params.ChainID, BaseFee: params.InitialBaseFee, GasLimit: params.BlockGasLimit}

	result, _ := builder.Build(genesis, []*types.Transaction{tx}, types.Address{0x01}, db, 1_000)
	require.Empty(t, result.Block.Transactions)
	require.Empty(t, result.Receipts)
}

func TestBuildDeterministicAcrossEquivalentRuns(t *testing.T) {
	builder, params := newTestBuilder()
	db1 := newTestChainDB(t)
	db2 := newTestChainDB(t)

	pub, priv, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	sender := types.DeriveAddress(pub)
	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(10_000_000)
	require.NoError(t, db1.PutAccount(sender, acc))
	require.NoError(t, db2.PutAccount(sender, acc))

	tx := signedTransfer(t, params, pub, priv, types.Address{0x02}, 0, 500)
	genesis := types.BlockHeader{Number: 0, ChainID: params.ChainID, BaseFee: params.InitialBaseFee, GasLimit: params.BlockGasLimit}

	r1, _ := builder.Build(genesis, []*types.Transaction{tx}, types.Address{0x01}, db1, 1_000)
	r2, _ := builder.Build(genesis, []*types.Transaction{tx}, types.Address{0x01}, db2, 1_000)

	require.Equal(t, r1.Block.Header.Hash(), r2.Block.Header.Hash())
	require.Equal(t, r1.Block.Header.StateRoot, r2.Block.Header.StateRoot)
}
