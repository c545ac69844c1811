// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package execution implements the atomic per-transaction state transition
// (spec §4.5, component C7): pre-charge, value transfer, contract
// deploy/call against a sandbox, staking, and post-charge fee accounting.
package execution

import (
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// Event is one emitted log entry, in the order the executing code produced
// it (spec §5 "Event emission ordering").
type Event struct {
	Contract  types.Address
	Signature crypto.Hash256
	Topics    []crypto.Hash256
	Data      []byte
}

// SandboxResult is what the sandbox reports back for one deploy or call.
type SandboxResult struct {
	Success bool
	GasUsed uint64
	Events  []Event
	// ErrorCode is meaningful only when Success is false.
	ErrorCode types.ErrorCode
}

// Sandbox is the opaque bytecode execution environment contract bodies run
// in. Spec §1 treats "the on-chain SDK programming model" and the sandbox
// internals as external collaborators the core only consumes through this
// interface; no dynamic code loading, no reflection-based dispatch (spec §1
// Non-goals).
type Sandbox interface {
	// Deploy runs a contract's constructor against fork, which is scoped to
	// this call only: every storage write Deploy makes is visible solely
	// through fork until the executor commits it.
	Deploy(fork *state.DB, contract types.Address, code []byte, gasLimit uint64) SandboxResult
	// Call runs a contract's entry point against fork, scoped the same way.
	Call(fork *state.DB, contract types.Address, input []byte, gasLimit uint64) SandboxResult
}

// DeterministicSandbox is a minimal, fully deterministic stand-in sandbox:
// it charges a fixed per-byte cost for the supplied code/input and always
// succeeds within budget, failing OutOfGas (full gas charged) if
// the budget is exceeded. Contract bytecode semantics are explicitly out
// of scope (spec §1); this lets the executor, mempool, and block builder
// be exercised end-to-end without depending on a real VM.
type DeterministicSandbox struct {
	// PerByteGas is the gas charged per byte of code or call input.
	PerByteGas uint64
}

// NewDeterministicSandbox returns a DeterministicSandbox with the
// conventional per-byte cost used by the bundled local genesis.
func NewDeterministicSandbox() *DeterministicSandbox {
	return &DeterministicSandbox{PerByteGas: 8}
}

func (s *DeterministicSandbox) run(fork *state.DB, contract types.Address, payload []byte, gasLimit uint64, codeHash bool) SandboxResult {
	cost := uint64(len(payload)) * s.PerByteGas
	if cost > gasLimit {
		return SandboxResult{Success: false, GasUsed: gasLimit, ErrorCode: types.ErrOutOfGas}
	}
	acc, found, err := fork.GetAccount(contract)
	if err != nil {
		return SandboxResult{Success: false, GasUsed: gasLimit, ErrorCode: types.ErrSandboxViolation}
	}
	if !found {
		acc = types.NewAccountState()
		acc.Kind = types.AccountContract
	}
	if codeHash {
		acc.CodeHash = crypto.Blake3(payload)
	}
	if err := fork.PutAccount(contract, acc); err != nil {
		return SandboxResult{Success: false, GasUsed: gasLimit, ErrorCode: types.ErrSandboxViolation}
	}
	return SandboxResult{Success: true, GasUsed: cost}
}

// Deploy implements Sandbox.
func (s *DeterministicSandbox) Deploy(fork *state.DB, contract types.Address, code []byte, gasLimit uint64) SandboxResult {
	return s.run(fork, contract, code, gasLimit, true)
}

// Call implements Sandbox.
func (s *DeterministicSandbox) Call(fork *state.DB, contract types.Address, input []byte, gasLimit uint64) SandboxResult {
	return s.run(fork, contract, input, gasLimit, false)
}
