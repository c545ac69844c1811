// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/log"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/store"
	"github.com/basalt-foundation/basalt/types"
)

// Append invariant violations (spec §4.6 "Chain append invariants"). These
// are distinct from types.ErrorCode: they reject a block outright rather
// than attach to one transaction's receipt.
var (
	ErrInvalidParentHash  = errors.New("chain: block does not extend the current head")
	ErrInvalidBlockNumber = errors.New("chain: block number is not parent number + 1")
	ErrInvalidTimestamp   = errors.New("chain: block timestamp does not strictly increase")
)

// Manager owns the canonical chain: the append-only sequence of blocks the
// node has finalized, their hash/number indexes, and the pruning of
// retained bodies (component C10, spec §4.6 "Chain manager").
type Manager struct {
	mu sync.RWMutex

	logger *zap.Logger
	kv     store.KV
	params types.ChainParams

	head     types.BlockHeader
	headDB   *state.DB
	byNumber map[uint64]crypto.Hash256
	byHash   map[crypto.Hash256]types.Block
	receipts map[crypto.Hash256][]types.Receipt
}

// NewManager returns a Manager seeded at genesis. genesisDB is the state
// view containing genesis's allocated balances/validators, already at
// genesis.StateRoot.
func NewManager(kv store.KV, params types.ChainParams, genesis types.Block, genesisDB *state.DB, logger *zap.Logger) (*Manager, error) {
	if genesis.Header.Number != 0 {
		return nil, ErrInvalidBlockNumber
	}
	if genesis.Header.ParentHash != (crypto.Hash256{}) {
		return nil, ErrInvalidParentHash
	}
	if logger == nil {
		logger = log.NewNop()
	}

	m := &Manager{
		logger:   logger,
		kv:       kv,
		params:   params,
		head:     genesis.Header,
		headDB:   genesisDB,
		byNumber: map[uint64]crypto.Hash256{0: genesis.Header.Hash()},
		byHash:   map[crypto.Hash256]types.Block{genesis.Header.Hash(): genesis},
		receipts: make(map[crypto.Hash256][]types.Receipt),
	}
	return m, nil
}

// Head returns the current chain tip's header.
func (m *Manager) Head() types.BlockHeader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head
}

// HeadState returns the state DB committed as of the current head. Callers
// must Fork() before mutating.
func (m *Manager) HeadState() *state.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headDB
}

// Append validates block/receipts/fork against the append invariants (spec
// §4.6 "Chain append invariants") and, if they hold, advances the head.
// fork must be the state view produced by building block against the
// current head's state (typically Builder.Build's second return value).
func (m *Manager) Append(block types.Block, receipts []types.Receipt, fork *state.DB) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := block.Header
	if h.Number != m.head.Number+1 {
		return ErrInvalidBlockNumber
	}
	if h.ParentHash != m.head.Hash() {
		return ErrInvalidParentHash
	}
	if h.Timestamp <= m.head.Timestamp {
		return ErrInvalidTimestamp
	}

	hash := h.Hash()
	m.head = h
	m.headDB = fork
	m.byNumber[h.Number] = hash
	m.byHash[hash] = block
	m.receipts[hash] = receipts

	m.logger.Debug("appended block", zap.Uint64("number", h.Number), zap.Int("receipts", len(receipts)))
	m.evictRetainedBodies(h.Number)
	return nil
}

// evictRetainedBodies drops bodies older than params.RetainedBodies blocks
// behind the current head, archiving them into the store's CFArchive column
// family (spec §6 "Body retention") instead of discarding them outright.
func (m *Manager) evictRetainedBodies(headNumber uint64) {
	if headNumber <= m.params.RetainedBodies {
		return
	}
	evictNumber := headNumber - m.params.RetainedBodies
	hash, ok := m.byNumber[evictNumber]
	if !ok {
		return
	}
	block, ok := m.byHash[hash]
	if !ok {
		return
	}

	if m.kv != nil {
		archiveKey := store.PrefixedKey(store.CFArchive, hash[:])
		if err := m.kv.Put(archiveKey, block.Encode()); err != nil {
			m.logger.Warn("failed to archive evicted body", zap.Uint64("number", evictNumber), zap.Error(err))
		}
	}
	delete(m.byHash, hash)
}

// BlockByNumber returns the block at number, if it is still retained in
// memory (older bodies live only in CFArchive, full-block encoded, once
// evicted; callers needing an evicted body read and DecodeBlock the
// archive entry directly).
func (m *Manager) BlockByNumber(number uint64) (types.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.byNumber[number]
	if !ok {
		return types.Block{}, false
	}
	block, ok := m.byHash[hash]
	return block, ok
}

// BlockByHash returns the block with the given hash, if still retained.
func (m *Manager) BlockByHash(hash crypto.Hash256) (types.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.byHash[hash]
	return block, ok
}

// ReceiptsForBlock returns the receipts produced by the block with the
// given hash, if still retained.
func (m *Manager) ReceiptsForBlock(hash crypto.Hash256) ([]types.Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[hash]
	return r, ok
}
