// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool implements the ordered set of pending transactions
// (spec §4, component C8): admission against the validator, partitioning by
// sender, nonce-gap filtering, and bounded eviction of the lowest-fee
// non-reserved transaction when the pool is full (spec §5 "Memory bounds").
package mempool

import (
	"errors"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/log"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

// Structural admission failures distinct from a validation rejection (spec
// §7: "mempool admission failures are returned to the submitter").
var (
	// ErrAlreadyKnown is returned for a transaction hash already tracked by
	// the pool, admitted or not.
	ErrAlreadyKnown = errors.New("mempool: transaction already known")
	// ErrNonceAlreadyQueued is returned when the sender already has a
	// different transaction queued at the same nonce; Basalt does not
	// support fee-bump replacement.
	ErrNonceAlreadyQueued = errors.New("mempool: sender already has a transaction at this nonce")
	// ErrSenderLimitExceeded is returned when the sender's queue is already
	// at Config.PerSenderLimit.
	ErrSenderLimitExceeded = errors.New("mempool: sender queue is full")
	// ErrPoolFull is returned when the global pool is full and no
	// lower-fee victim is available to evict.
	ErrPoolFull = errors.New("mempool: pool is full")
)

// RejectionError wraps a types.ErrorCode surfaced by the validator during
// admission, so a caller can recover the closed error-code ABI (spec §6)
// without mempool re-exporting it under a different name.
type RejectionError struct {
	Code types.ErrorCode
}

func (e *RejectionError) Error() string {
	return "mempool: rejected: " + e.Code.String()
}

// DefaultPerSenderLimit is the default cap on queued transactions per
// sender (spec §5 "per-sender (default 64)").
const DefaultPerSenderLimit = 64

// DefaultGlobalLimit is the default cap on total pooled transactions
// (spec §5 "global (default 50 000 ...)").
const DefaultGlobalLimit = 50_000

// DefaultReservedLimit is the size of the sub-pool reserved for
// enterprise-flagged (Transaction.Priority) transactions within
// DefaultGlobalLimit (spec §5 "a reserved sub-pool for enterprise-flagged
// transactions").
const DefaultReservedLimit = 5_000

// Config bounds a Mempool's capacity.
type Config struct {
	PerSenderLimit int
	GlobalLimit    int
	ReservedLimit  int
}

// DefaultConfig returns the spec's default capacity limits.
func DefaultConfig() Config {
	return Config{
		PerSenderLimit: DefaultPerSenderLimit,
		GlobalLimit:    DefaultGlobalLimit,
		ReservedLimit:  DefaultReservedLimit,
	}
}

// senderQueue is one sender's queued transactions, keyed by nonce.
type senderQueue struct {
	txs map[uint64]*types.Transaction
}

func newSenderQueue() *senderQueue {
	return &senderQueue{txs: make(map[uint64]*types.Transaction)}
}

// Mempool is a single-writer/many-reader ordered set of pending
// transactions, guarded by one mutex covering structural mutation (spec §5
// "Shared resource policy"). Reads of the pending set take a coarse-grained
// snapshot.
type Mempool struct {
	mu sync.RWMutex

	cfg       Config
	validator *validation.Validator
	logger    *zap.Logger

	byHash        map[crypto.Hash256]*types.Transaction
	bySender      map[types.Address]*senderQueue
	reservedCount int

	// seen is a bounded working set of every hash ever admitted, used to
	// reject a resubmission cheaply without walking byHash; it outlives
	// individual evictions so an evicted-then-resubmitted transaction is
	// still recognized instead of silently re-admitted as fresh.
	seen *lru.Cache[crypto.Hash256, struct{}]
}

// New returns an empty Mempool bounded by cfg, admitting through validator.
func New(cfg Config, validator *validation.Validator, logger *zap.Logger) *Mempool {
	if cfg.PerSenderLimit <= 0 {
		cfg.PerSenderLimit = DefaultPerSenderLimit
	}
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = DefaultGlobalLimit
	}
	if logger == nil {
		logger = log.NewNop()
	}
	seen, _ := lru.New[crypto.Hash256, struct{}](cfg.GlobalLimit * 2)
	return &Mempool{
		cfg:       cfg,
		validator: validator,
		logger:    logger,
		byHash:    make(map[crypto.Hash256]*types.Transaction),
		bySender:  make(map[types.Address]*senderQueue),
		seen:      seen,
	}
}

// Add validates tx against db and, if admissible, inserts it into the pool,
// evicting a lower-fee non-reserved transaction if the pool is full.
// blockTimestamp is the mempool's best current-time estimate, binding the
// compliance ZK proof path (spec §4.7 "Proof binding").
func (m *Mempool) Add(tx *types.Transaction, db *state.DB, blockTimestamp uint64) error {
	hash := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[hash]; ok {
		return ErrAlreadyKnown
	}
	if m.seen.Contains(hash) {
		return ErrAlreadyKnown
	}

	if code := m.validator.ValidateForAdmission(tx, db, blockTimestamp); code != types.ErrNone {
		m.logger.Debug("mempool: rejected transaction",
			zap.Stringer("hash", hash), zap.Stringer("code", code))
		return &RejectionError{Code: code}
	}

	q := m.bySender[tx.Sender]
	if q != nil {
		if _, exists := q.txs[tx.Nonce]; exists {
			return ErrNonceAlreadyQueued
		}
		if len(q.txs) >= m.cfg.PerSenderLimit {
			return ErrSenderLimitExceeded
		}
	}

	if len(m.byHash) >= m.cfg.GlobalLimit {
		if !m.evictForSpace(tx) {
			return ErrPoolFull
		}
	}

	if q == nil {
		q = newSenderQueue()
		m.bySender[tx.Sender] = q
	}
	q.txs[tx.Nonce] = tx
	m.byHash[hash] = tx
	if tx.Priority {
		m.reservedCount++
	}
	m.seen.Add(hash, struct{}{})

	m.logger.Debug("mempool: admitted transaction",
		zap.Stringer("hash", hash), zap.Stringer("sender", tx.Sender), zap.Uint64("nonce", tx.Nonce))
	return nil
}

// evictForSpace makes room for candidate by evicting the lowest-fee
// non-reserved transaction; if the pool holds only reserved transactions
// and candidate is itself reserved, it evicts the lowest-fee reserved
// transaction instead (spec §5: "lowest-fee non-reserved transactions are
// evicted first"). Must be called with mu held.
func (m *Mempool) evictForSpace(candidate *types.Transaction) bool {
	if victim := m.lowestFee(false); victim != nil {
		m.removeLocked(victim)
		m.logger.Debug("mempool: evicted transaction for space", zap.Stringer("hash", victim.Hash()))
		return true
	}
	if !candidate.Priority {
		return false
	}
	if victim := m.lowestFee(true); victim != nil {
		m.removeLocked(victim)
		m.logger.Debug("mempool: evicted reserved transaction for space", zap.Stringer("hash", victim.Hash()))
		return true
	}
	return false
}

// lowestFee scans the pool for the lowest MaxEffectivePrice transaction
// among reserved (Priority == wantReserved) transactions, or nil if none.
func (m *Mempool) lowestFee(wantReserved bool) *types.Transaction {
	var lowest *types.Transaction
	for _, tx := range m.byHash {
		if tx.Priority != wantReserved {
			continue
		}
		if lowest == nil || tx.MaxEffectivePrice().LessThan(lowest.MaxEffectivePrice()) {
			lowest = tx
		}
	}
	return lowest
}

// removeLocked deletes tx from every index. Must be called with mu held.
func (m *Mempool) removeLocked(tx *types.Transaction) {
	delete(m.byHash, tx.Hash())
	if tx.Priority && m.reservedCount > 0 {
		m.reservedCount--
	}
	q, ok := m.bySender[tx.Sender]
	if !ok {
		return
	}
	delete(q.txs, tx.Nonce)
	if len(q.txs) == 0 {
		delete(m.bySender, tx.Sender)
	}
}

// Remove evicts the transaction with hash from the pool, if present.
func (m *Mempool) Remove(hash crypto.Hash256) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byHash[hash]
	if !ok {
		return
	}
	m.removeLocked(tx)
}

// RemoveMined drops every transaction in txs from the pool, called by the
// consensus engine once a block containing them finalizes.
func (m *Mempool) RemoveMined(txs []*types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.removeLocked(tx)
	}
}

// Has reports whether hash is currently tracked by the pool (regardless of
// whether it is presently in the nonce-contiguous pending view).
func (m *Mempool) Has(hash crypto.Hash256) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHash[hash]
	return ok
}

// Get returns the transaction with hash, if tracked.
func (m *Mempool) Get(hash crypto.Hash256) (*types.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byHash[hash]
	return tx, ok
}

// Len returns the total number of transactions currently tracked, pending
// or gapped.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}

// Pending returns the nonce-contiguous, fee-ordered set of transactions
// eligible for inclusion in the next block (spec §5 "Mempool ordering"):
// descending effective gas price under baseFee, ties broken by
// (sender, nonce) ascending. A sender's transaction at nonce N+1 is
// withheld until nonce N (at or above the account's current on-chain
// nonce) is present in the queue, per spec §5's nonce-gap filtering.
func (m *Mempool) Pending(db *state.DB, baseFee types.UInt256) []*types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Transaction
	for sender, q := range m.bySender {
		nonce := uint64(0)
		if acc, found, err := db.GetAccount(sender); err == nil && found {
			nonce = acc.Nonce
		}
		for {
			tx, ok := q.txs[nonce]
			if !ok {
				break
			}
			out = append(out, tx)
			nonce++
		}
	}

	sort.Slice(out, func(i, j int) bool {
		pi := out[i].EffectiveGasPrice(baseFee)
		pj := out[j].EffectiveGasPrice(baseFee)
		if cmp := pi.Cmp(pj); cmp != 0 {
			return cmp > 0
		}
		if out[i].Sender != out[j].Sender {
			return addressLess(out[i].Sender, out[j].Sender)
		}
		return out[i].Nonce < out[j].Nonce
	})
	return out
}

func addressLess(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
