// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
)

// NodeStore is the pluggable key-value contract the trie persists its
// content-addressed nodes through. Nodes are immutable once written:
// Put is idempotent (the same hash always encodes the same bytes), and
// nothing but Prune ever removes an entry.
type NodeStore interface {
	Get(hash crypto.Hash256) ([]byte, bool)
	Put(hash crypto.Hash256, encoded []byte)
	Delete(hash crypto.Hash256)
}

// MemStore is an in-memory NodeStore, used by tests, speculative forks, and
// as the node store the state DB's account and storage tries sit on; state
// DB commits do not write its nodes into the durable KV store.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[crypto.Hash256][]byte
}

// NewMemStore returns an empty in-memory node store.
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[crypto.Hash256][]byte)}
}

func (s *MemStore) Get(hash crypto.Hash256) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.nodes[hash]
	return b, ok
}

func (s *MemStore) Put(hash crypto.Hash256, encoded []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[hash] = encoded
}

func (s *MemStore) Delete(hash crypto.Hash256) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, hash)
}

// Len reports the number of nodes currently stored, for test assertions and
// pruning diagnostics.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// CollectReachable walks every node reachable from root and returns the set
// of their hashes (spec §4.2 "collect_reachable(root) → set<hash>").
func CollectReachable(store NodeStore, root crypto.Hash256) (map[crypto.Hash256]struct{}, error) {
	out := make(map[crypto.Hash256]struct{})
	if root.IsZero() {
		return out, nil
	}
	if err := collectReachable(store, root, out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectReachable(store NodeStore, hash crypto.Hash256, out map[crypto.Hash256]struct{}) error {
	if _, seen := out[hash]; seen {
		return nil
	}
	encoded, ok := store.Get(hash)
	if !ok {
		return ErrNodeNotFound
	}
	out[hash] = struct{}{}
	node, err := decodeNode(encoded)
	if err != nil {
		return err
	}
	switch node.Type {
	case NodeExtension:
		if !node.Child.IsZero() {
			if err := collectReachable(store, node.Child, out); err != nil {
				return err
			}
		}
	case NodeBranch:
		for _, child := range node.Children {
			if !child.IsZero() {
				if err := collectReachable(store, child, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Prune deletes every node from store that is not a member of keep,
// returning the number of nodes removed (spec §4.2 "prune(keep_set) → u32").
// Only a MemStore-like store that supports enumeration can be pruned this
// way; callers pass the concrete store alongside the set of hashes to keep
// (as returned by CollectReachable).
func Prune(store *MemStore, keep map[crypto.Hash256]struct{}) uint32 {
	store.mu.Lock()
	defer store.mu.Unlock()
	var removed uint32
	for hash := range store.nodes {
		if _, ok := keep[hash]; !ok {
			delete(store.nodes, hash)
			removed++
		}
	}
	return removed
}
