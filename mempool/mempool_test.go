// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	stded25519 "crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basalt-foundation/basalt/compliance"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

func newTestValidator(params types.ChainParams) *validation.Validator {
	gate := compliance.NewGate(compliance.NewRegistry(types.Address{0xFF}))
	return validation.New(params, gate)
}

func newFundedSender(t *testing.T, db *state.DB, balance uint64) (stded25519.PublicKey, stded25519.PrivateKey, types.Address) {
	t.Helper()
	pub, priv, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	addr := types.DeriveAddress(pub)
	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(balance)
	require.NoError(t, db.PutAccount(addr, acc))
	return pub, priv, addr
}

func signedTransfer(params types.ChainParams, pub stded25519.PublicKey, priv stded25519.PrivateKey, to types.Address, nonce, value, gasPrice uint64, priority bool) *types.Transaction {
	tx := &types.Transaction{
		Type:     types.TxTransfer,
		ChainID:  params.ChainID,
		Nonce:    nonce,
		Sender:   types.DeriveAddress(pub),
		To:       to,
		Value:    types.NewUInt256FromUint64(value),
		GasLimit: 21_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(gasPrice),
		Priority: priority,
	}
	tx.SenderPublicKey = pub
	tx.Signature = crypto.SignEd25519(priv, tx.SigningPayload())
	return tx
}

func TestAddAdmitsValidTransaction(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, _ := newFundedSender(t, db, 10_000_000)

	mp := New(DefaultConfig(), newTestValidator(params), nil)
	tx := signedTransfer(params, pub, priv, types.Address{0x02}, 0, 500, 1, false)

	require.NoError(t, mp.Add(tx, db, 1_000))
	require.Equal(t, 1, mp.Len())
	require.True(t, mp.Has(tx.Hash()))
}

func TestAddRejectsDuplicateHash(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, _ := newFundedSender(t, db, 10_000_000)

	mp := New(DefaultConfig(), newTestValidator(params), nil)
	tx := signedTransfer(params, pub, priv, types.Address{0x02}, 0, 500, 1, false)

	require.NoError(t, mp.Add(tx, db, 1_000))
	require.ErrorIs(t, mp.Add(tx, db, 1_000), ErrAlreadyKnown)
}

func TestAddRejectsNonceTooLow(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, sender := newFundedSender(t, db, 10_000_000)

	acc, _, err := db.GetAccount(sender)
	require.NoError(t, err)
	acc.Nonce = 5
	require.NoError(t, db.PutAccount(sender, acc))

	mp := New(DefaultConfig(), newTestValidator(params), nil)
	tx := signedTransfer(params, pub, priv, types.Address{0x02}, 3, 500, 1, false)

	err = mp.Add(tx, db, 1_000)
	require.Error(t, err)
	rejErr, ok := err.(*RejectionError)
	require.True(t, ok)
	require.Equal(t, types.ErrNonceTooLow, rejErr.Code)
}

func TestNonceGapAdmittedButWithheldFromPending(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, sender := newFundedSender(t, db, 10_000_000)

	mp := New(DefaultConfig(), newTestValidator(params), nil)
	tx0 := signedTransfer(params, pub, priv, types.Address{0x02}, 0, 100, 1, false)
	tx2 := signedTransfer(params, pub, priv, types.Address{0x02}, 2, 100, 1, false)

	require.NoError(t, mp.Add(tx0, db, 1_000))
	// Admission allows a future nonce (spec §5 nonce-gap filtering): tx2
	// leaves a gap at nonce 1, so it is admitted into the pool but
	// withheld from Pending until nonce 1 arrives.
	require.NoError(t, mp.Add(tx2, db, 1_000))
	require.Equal(t, 2, mp.Len())

	pending := mp.Pending(db, types.NewUInt256FromUint64(0))
	require.Len(t, pending, 1)
	require.Equal(t, tx0.Hash(), pending[0].Hash())
	require.Equal(t, sender, pending[0].Sender)
}

func TestPendingOrdersByEffectiveFeeDescending(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	mp := New(DefaultConfig(), newTestValidator(params), nil)

	pubA, privA, _ := newFundedSender(t, db, 10_000_000)
	pubB, privB, _ := newFundedSender(t, db, 10_000_000)

	txLow := signedTransfer(params, pubA, privA, types.Address{0x02}, 0, 100, 1, false)
	txHigh := signedTransfer(params, pubB, privB, types.Address{0x02}, 0, 100, 5, false)

	require.NoError(t, mp.Add(txLow, db, 1_000))
	require.NoError(t, mp.Add(txHigh, db, 1_000))

	pending := mp.Pending(db, types.Zero())
	require.Len(t, pending, 2)
	require.Equal(t, txHigh.Hash(), pending[0].Hash())
	require.Equal(t, txLow.Hash(), pending[1].Hash())
}

func TestPerSenderLimitExceeded(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, _ := newFundedSender(t, db, 1_000_000_000)

	cfg := DefaultConfig()
	cfg.PerSenderLimit = 1
	mp := New(cfg, newTestValidator(params), nil)

	tx0 := signedTransfer(params, pub, priv, types.Address{0x02}, 0, 100, 1, false)
	require.NoError(t, mp.Add(tx0, db, 1_000))

	tx1 := signedTransfer(params, pub, priv, types.Address{0x02}, 1, 100, 1, false)
	require.ErrorIs(t, mp.Add(tx1, db, 1_000), ErrSenderLimitExceeded)
}

func TestEvictsLowestFeeNonReservedWhenFull(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())

	cfg := DefaultConfig()
	cfg.GlobalLimit = 2
	cfg.ReservedLimit = 1
	mp := New(cfg, newTestValidator(params), nil)

	pubA, privA, _ := newFundedSender(t, db, 10_000_000)
	pubB, privB, _ := newFundedSender(t, db, 10_000_000)
	pubC, privC, _ := newFundedSender(t, db, 10_000_000)

	txLow := signedTransfer(params, pubA, privA, types.Address{0x02}, 0, 100, 1, false)
	txMid := signedTransfer(params, pubB, privB, types.Address{0x02}, 0, 100, 2, false)
	txHigh := signedTransfer(params, pubC, privC, types.Address{0x02}, 0, 100, 5, false)

	require.NoError(t, mp.Add(txLow, db, 1_000))
	require.NoError(t, mp.Add(txMid, db, 1_000))
	require.Equal(t, 2, mp.Len())

	require.NoError(t, mp.Add(txHigh, db, 1_000))
	require.Equal(t, 2, mp.Len())
	require.False(t, mp.Has(txLow.Hash()))
	require.True(t, mp.Has(txMid.Hash()))
	require.True(t, mp.Has(txHigh.Hash()))
}

func TestRemoveMinedDropsTransactions(t *testing.T) {
	params := types.DefaultChainParams()
	db := state.New(trie.NewMemStore())
	pub, priv, _ := newFundedSender(t, db, 10_000_000)

	mp := New(DefaultConfig(), newTestValidator(params), nil)
	tx := signedTransfer(params, pub, priv, types.Address{0x02}, 0, 500, 1, false)
	require.NoError(t, mp.Add(tx, db, 1_000))

	mp.RemoveMined([]*types.Transaction{tx})
	require.Equal(t, 0, mp.Len())
	require.False(t, mp.Has(tx.Hash()))
}
