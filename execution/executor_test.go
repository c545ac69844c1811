// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
)

func newExecTestDB(t *testing.T, addr types.Address, balance uint64) *state.DB {
	t.Helper()
	db := state.New(trie.NewMemStore())
	acc := types.NewAccountState()
	acc.Balance = types.NewUInt256FromUint64(balance)
	require.NoError(t, db.PutAccount(addr, acc))
	return db
}

func TestExecuteTransferSuccess(t *testing.T) {
	require := require.New(t)
	sender := types.Address{0x01}
	receiver := types.Address{0x02}
	proposer := types.Address{0x03}

	db := newExecTestDB(t, sender, 10_000_000)
	exec := New(types.DefaultChainParams(), NewDeterministicSandbox())

	tx := &types.Transaction{
		Type:     types.TxTransfer,
		Sender:   sender,
		To:       receiver,
		Value:    types.NewUInt256FromUint64(500),
		GasLimit: 21_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}

	outcome, err := exec.Execute(db, tx, types.Zero(), proposer, 1)
	require.NoError(err)
	require.True(outcome.Success)
	require.Equal(uint64(21_000), outcome.GasUsed)

	senderAcc, _, err := db.GetAccount(sender)
	require.NoError(err)
	require.Equal(uint64(10_000_000-21_000-500), senderAcc.Balance.Uint64())
	require.Equal(uint64(1), senderAcc.Nonce)

	receiverAcc, _, err := db.GetAccount(receiver)
	require.NoError(err)
	require.Equal(uint64(500), receiverAcc.Balance.Uint64())
}

func TestExecuteSelfTransferOnlyLosesGas(t *testing.T) {
	require := require.New(t)
	sender := types.Address{0x01}
	proposer := types.Address{0x03}

	db := newExecTestDB(t, sender, 10_000_000)
	exec := New(types.DefaultChainParams(), NewDeterministicSandbox())

	tx := &types.Transaction{
		Type:     types.TxTransfer,
		Sender:   sender,
		To:       sender,
		Value:    types.NewUInt256FromUint64(777),
		GasLimit: 21_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}

	outcome, err := exec.Execute(db, tx, types.Zero(), proposer, 1)
	require.NoError(err)
	require.True(outcome.Success)

	acc, _, err := db.GetAccount(sender)
	require.NoError(err)
	require.Equal(uint64(10_000_000-21_000), acc.Balance.Uint64())
}

func TestExecuteDynamicFeeSplit(t *testing.T) {
	require := require.New(t)
	sender := types.Address{0x01}
	receiver := types.Address{0x02}
	proposer := types.Address{0x03}

	db := newExecTestDB(t, sender, 10_000_000)
	exec := New(types.DefaultChainParams(), NewDeterministicSandbox())

	baseFee := types.NewUInt256FromUint64(5)
	tx := &types.Transaction{
		Type:                 types.TxTransfer,
		Sender:               sender,
		To:                   receiver,
		Value:                types.NewUInt256FromUint64(100),
		GasLimit:             21_000,
		FeeMode:              types.FeeDynamic,
		MaxFeePerGas:         types.NewUInt256FromUint64(20),
		MaxPriorityFeePerGas: types.NewUInt256FromUint64(10),
	}

	outcome, err := exec.Execute(db, tx, baseFee, proposer, 1)
	require.NoError(err)
	require.True(outcome.Success)
	require.Equal(uint64(15), outcome.EffectiveGasPrice.Uint64())

	proposerAcc, _, err := db.GetAccount(proposer)
	require.NoError(err)
	require.Equal(uint64(10*21_000), proposerAcc.Balance.Uint64())

	burnAcc, _, err := db.GetAccount(types.BurnAddress)
	require.NoError(err)
	require.Equal(uint64(5*21_000), burnAcc.Balance.Uint64())
}

func TestExecuteContractDeployOutOfGasRollsBack(t *testing.T) {
	require := require.New(t)
	sender := types.Address{0x01}
	proposer := types.Address{0x03}

	db := newExecTestDB(t, sender, 10_000_000)
	exec := New(types.DefaultChainParams(), NewDeterministicSandbox())

	code := make([]byte, 100_000)
	tx := &types.Transaction{
		Type:     types.TxContractDeploy,
		Sender:   sender,
		To:       types.ZeroAddress,
		GasLimit: 500,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
		Data:     code,
	}

	outcome, err := exec.Execute(db, tx, types.Zero(), proposer, 1)
	require.NoError(err)
	require.False(outcome.Success)
	require.Equal(types.ErrOutOfGas, outcome.ErrorCode)
	require.Equal(uint64(500), outcome.GasUsed)

	senderAcc, _, err := db.GetAccount(sender)
	require.NoError(err)
	require.Equal(uint64(1), senderAcc.Nonce)
	require.Equal(uint64(10_000_000-500), senderAcc.Balance.Uint64())

	contract := types.DeriveContractAddress(sender, 0)
	_, found, err := db.GetAccount(contract)
	require.NoError(err)
	require.False(found)
}

func TestExecuteContractCallNotFound(t *testing.T) {
	require := require.New(t)
	sender := types.Address{0x01}
	proposer := types.Address{0x03}

	db := newExecTestDB(t, sender, 1_000_000)
	exec := New(types.DefaultChainParams(), NewDeterministicSandbox())

	tx := &types.Transaction{
		Type:     types.TxContractCall,
		Sender:   sender,
		To:       types.Address{0x99},
		GasLimit: 50_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}

	outcome, err := exec.Execute(db, tx, types.Zero(), proposer, 1)
	require.NoError(err)
	require.False(outcome.Success)
	require.Equal(types.ErrContractNotFound, outcome.ErrorCode)
	require.Equal(tx.GasLimit, outcome.GasUsed)
}

func TestStakingRegisterExitWithdraw(t *testing.T) {
	require := require.New(t)
	validator := types.Address{0x05}
	proposer := types.Address{0x03}
	params := types.DefaultChainParams()

	db := newExecTestDB(t, validator, 100_000_000)
	exec := New(params, NewDeterministicSandbox())

	register := &types.Transaction{
		Type:     types.TxValidatorRegister,
		Sender:   validator,
		Value:    params.MinValidatorStake,
		GasLimit: 46_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
		Data:     make([]byte, 48),
	}
	outcome, err := exec.Execute(db, register, types.Zero(), proposer, 1)
	require.NoError(err)
	require.True(outcome.Success)

	exit := &types.Transaction{
		Type:     types.TxValidatorExit,
		Sender:   validator,
		Nonce:    1,
		GasLimit: 46_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}
	outcome, err = exec.Execute(db, exit, types.Zero(), proposer, 10)
	require.NoError(err)
	require.True(outcome.Success)

	withdrawTooEarly := &types.Transaction{
		Type:     types.TxStakeWithdraw,
		Sender:   validator,
		Nonce:    2,
		GasLimit: 46_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}
	outcome, err = exec.Execute(db, withdrawTooEarly, types.Zero(), proposer, 11)
	require.NoError(err)
	require.False(outcome.Success)
	require.Equal(types.ErrStakingNotAvailable, outcome.ErrorCode)

	withdraw := &types.Transaction{
		Type:     types.TxStakeWithdraw,
		Sender:   validator,
		Nonce:    3,
		GasLimit: 46_000,
		FeeMode:  types.FeeLegacy,
		GasPrice: types.NewUInt256FromUint64(1),
	}
	outcome, err = exec.Execute(db, withdraw, types.Zero(), proposer, 10+params.UnbondingPeriod)
	require.NoError(err)
	require.True(outcome.Success)

	acc, _, err := db.GetAccount(validator)
	require.NoError(err)
	// Stake debited on register and credited back on withdraw cancel out;
	// only the four transactions' flat gas charges (46 000 each) remain
	// spent.
	require.Equal(uint64(100_000_000-4*46_000), acc.Balance.Uint64())
}
