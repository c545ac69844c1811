// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state implements Basalt's authenticated state: an account trie
// plus, per contract account, a storage subtrie whose root lives in the
// account record (spec §4.3). Forking returns a copy-on-write view over
// the same content-addressed node store; committing a fork replaces the
// parent's root pointer with the fork's.
package state

import (
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
)

// DB is one view of the authenticated state: an account trie, with
// per-contract storage subtries loaded lazily and cached for the lifetime
// of this view.
//
// Every storage write synchronously updates the owning account's
// StorageRoot and re-persists the account record in the same call, so the
// account trie can never reference a stale storage root — the "forgetting
// storage mutations" consensus-breaking bug class spec §4.3 calls out is
// structurally impossible here rather than merely tested for. Dirty-key
// tracking is still kept explicitly (DirtyKeys/DeletedAddresses) because
// spec §4.3 treats it as a mandatory, observable property, not only an
// implementation detail.
type DB struct {
	store trie.NodeStore
	accs  *trie.Trie

	storageTries map[types.Address]*trie.Trie

	dirtyAccounts   map[types.Address]struct{}
	deletedAccounts map[types.Address]struct{}
	dirtyStorage    map[types.Address]map[crypto.Hash256]struct{}
	deletedStorage  map[types.Address]map[crypto.Hash256]struct{}
}

// New returns an empty state DB (root = zero hash, the empty-trie root).
func New(store trie.NodeStore) *DB {
	return newDB(store, trie.New(store))
}

// NewWithRoot resumes a state DB at a previously computed account-trie
// root.
func NewWithRoot(store trie.NodeStore, root crypto.Hash256) *DB {
	return newDB(store, trie.NewWithRoot(store, root))
}

func newDB(store trie.NodeStore, accs *trie.Trie) *DB {
	return &DB{
		store:           store,
		accs:            accs,
		storageTries:    make(map[types.Address]*trie.Trie),
		dirtyAccounts:   make(map[types.Address]struct{}),
		deletedAccounts: make(map[types.Address]struct{}),
		dirtyStorage:    make(map[types.Address]map[crypto.Hash256]struct{}),
		deletedStorage:  make(map[types.Address]map[crypto.Hash256]struct{}),
	}
}

// Root returns the current account-trie root: the consensus state root.
func (db *DB) Root() crypto.Hash256 {
	return db.accs.Root()
}

// Fork returns a child view sharing the same node store. Because nodes are
// immutable and content-addressed, the fork's trie can be seeded directly
// with the parent's current root: reads of untouched data land on shared
// nodes, and writes build new nodes without mutating anything the parent
// can see.
func (db *DB) Fork() *DB {
	return newDB(db.store, trie.NewWithRoot(db.store, db.accs.Root()))
}

// Commit merges fork's state into db: db's root pointer becomes fork's
// root. This is the entire merge — every storage write fork performed is
// already reachable from fork's root, because storage writes always
// flowed back through the owning account record.
func (db *DB) Commit(fork *DB) {
	db.accs = fork.accs
}

// GetAccount returns the account at addr, or (zero value, false) if it has
// never been written (or was deleted).
func (db *DB) GetAccount(addr types.Address) (types.AccountState, bool, error) {
	key := addr.Hash()
	val, ok, err := db.accs.Get(key[:])
	if err != nil || !ok {
		return types.AccountState{}, false, err
	}
	acc, err := types.DecodeAccountState(val)
	if err != nil {
		return types.AccountState{}, false, err
	}
	return *acc, true, nil
}

// PutAccount writes (creates or overwrites) the account at addr.
func (db *DB) PutAccount(addr types.Address, acc types.AccountState) error {
	key := addr.Hash()
	if err := db.accs.Put(key[:], acc.Encode()); err != nil {
		return err
	}
	db.dirtyAccounts[addr] = struct{}{}
	delete(db.deletedAccounts, addr)
	return nil
}

// DeleteAccount removes addr and, per spec §4.3, empties its storage
// subtrie from this view: subsequent reads of any of its slots return
// absent even though the underlying store may still retain the
// now-unreferenced storage nodes pending pruning.
func (db *DB) DeleteAccount(addr types.Address) error {
	key := addr.Hash()
	if _, err := db.accs.Delete(key[:]); err != nil {
		return err
	}
	delete(db.storageTries, addr)
	delete(db.dirtyStorage, addr)
	delete(db.deletedStorage, addr)
	delete(db.dirtyAccounts, addr)
	db.deletedAccounts[addr] = struct{}{}
	return nil
}

// storageTrie returns the (lazily loaded, cached) storage subtrie for addr.
func (db *DB) storageTrie(addr types.Address) (*trie.Trie, types.AccountState, bool, error) {
	if t, ok := db.storageTries[addr]; ok {
		acc, found, err := db.GetAccount(addr)
		return t, acc, found, err
	}
	acc, found, err := db.GetAccount(addr)
	if err != nil {
		return nil, types.AccountState{}, false, err
	}
	var root crypto.Hash256
	if found {
		root = acc.StorageRoot
	}
	t := trie.NewWithRoot(db.store, root)
	db.storageTries[addr] = t
	return t, acc, found, nil
}

// GetStorage returns the value at (addr, slot), or (nil, false) if unset.
func (db *DB) GetStorage(addr types.Address, slot crypto.Hash256) ([]byte, bool, error) {
	if _, deleted := db.deletedAccounts[addr]; deleted {
		return nil, false, nil
	}
	t, _, found, err := db.storageTrie(addr)
	if err != nil || !found {
		return nil, false, err
	}
	key := crypto.Blake3(slot[:])
	return t.Get(key[:])
}

// SetStorage writes (addr, slot) = value, immediately recomputing and
// persisting the owning account's storage root so the account trie can
// never drift out of sync with its storage subtrie.
func (db *DB) SetStorage(addr types.Address, slot crypto.Hash256, value []byte) error {
	t, acc, found, err := db.storageTrie(addr)
	if err != nil {
		return err
	}
	if !found {
		acc = types.NewAccountState()
		acc.Kind = types.AccountContract
	}
	key := crypto.Blake3(slot[:])
	if err := t.Put(key[:], value); err != nil {
		return err
	}
	acc.StorageRoot = t.Root()
	if err := db.PutAccount(addr, acc); err != nil {
		return err
	}
	if db.dirtyStorage[addr] == nil {
		db.dirtyStorage[addr] = make(map[crypto.Hash256]struct{})
	}
	db.dirtyStorage[addr][slot] = struct{}{}
	delete(db.deletedStorage[addr], slot)
	return nil
}

// DeleteStorage removes (addr, slot), immediately recomputing and
// persisting the owning account's storage root.
func (db *DB) DeleteStorage(addr types.Address, slot crypto.Hash256) error {
	t, acc, found, err := db.storageTrie(addr)
	if err != nil || !found {
		return err
	}
	key := crypto.Blake3(slot[:])
	if _, err := t.Delete(key[:]); err != nil {
		return err
	}
	acc.StorageRoot = t.Root()
	if err := db.PutAccount(addr, acc); err != nil {
		return err
	}
	if db.deletedStorage[addr] == nil {
		db.deletedStorage[addr] = make(map[crypto.Hash256]struct{})
	}
	db.deletedStorage[addr][slot] = struct{}{}
	if db.dirtyStorage[addr] != nil {
		delete(db.dirtyStorage[addr], slot)
	}
	return nil
}

// DirtyAccounts returns the set of addresses written in this view.
func (db *DB) DirtyAccounts() []types.Address {
	out := make([]types.Address, 0, len(db.dirtyAccounts))
	for a := range db.dirtyAccounts {
		out = append(out, a)
	}
	return out
}

// DeletedAccounts returns the set of addresses deleted in this view.
func (db *DB) DeletedAccounts() []types.Address {
	out := make([]types.Address, 0, len(db.deletedAccounts))
	for a := range db.deletedAccounts {
		out = append(out, a)
	}
	return out
}

// Store exposes the underlying node store, for pruning and proof serving.
func (db *DB) Store() trie.NodeStore {
	return db.store
}

// Proof returns an inclusion/absence proof for addr's account leaf.
func (db *DB) Proof(addr types.Address) ([][]byte, error) {
	key := addr.Hash()
	return db.accs.Prove(key[:])
}
