// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"bytes"
	"errors"

	"github.com/basalt-foundation/basalt/crypto"
)

// ErrNodeNotFound is returned when a referenced node hash is missing from
// the backing NodeStore — a byzantine-peer or corrupted-store condition,
// never expected in normal operation.
var ErrNodeNotFound = errors.New("trie: node not found in store")

// Trie is a Modified Merkle-Patricia Trie over a pluggable NodeStore. Nodes
// are content-addressed and immutable: Put/Delete never mutate an existing
// node, they write new ones and advance the root pointer, which is exactly
// what lets forks share nodes by reference (spec §4.3).
type Trie struct {
	store NodeStore
	root  crypto.Hash256
}

// New returns an empty trie (root is the all-zero hash) over store.
func New(store NodeStore) *Trie {
	return &Trie{store: store}
}

// NewWithRoot resumes a trie at a previously computed root.
func NewWithRoot(store NodeStore, root crypto.Hash256) *Trie {
	return &Trie{store: store, root: root}
}

// Root returns the current root hash.
func (t *Trie) Root() crypto.Hash256 {
	return t.root
}

func (t *Trie) loadNode(hash crypto.Hash256) (*Node, error) {
	if hash.IsZero() {
		return &Node{Type: NodeEmpty}, nil
	}
	encoded, ok := t.store.Get(hash)
	if !ok {
		return nil, ErrNodeNotFound
	}
	return decodeNode(encoded)
}

func (t *Trie) storeNode(n *Node) crypto.Hash256 {
	encoded := n.encode()
	hash := crypto.Blake3(encoded)
	t.store.Put(hash, encoded)
	return hash
}

// Get looks up key, returning (value, true) if present.
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	return t.get(t.root, keyToNibbles(key))
}

func (t *Trie) get(hash crypto.Hash256, path []byte) ([]byte, bool, error) {
	if hash.IsZero() {
		return nil, false, nil
	}
	node, err := t.loadNode(hash)
	if err != nil {
		return nil, false, err
	}
	switch node.Type {
	case NodeLeaf:
		if bytes.Equal(node.Path, path) {
			return node.Value, true, nil
		}
		return nil, false, nil
	case NodeExtension:
		if len(path) < len(node.Path) || !bytes.Equal(path[:len(node.Path)], node.Path) {
			return nil, false, nil
		}
		return t.get(node.Child, path[len(node.Path):])
	case NodeBranch:
		if len(path) == 0 {
			if node.HasValue {
				return node.BranchVal, true, nil
			}
			return nil, false, nil
		}
		return t.get(node.Children[path[0]], path[1:])
	default:
		return nil, false, nil
	}
}

// Put inserts or updates key -> value.
func (t *Trie) Put(key, value []byte) error {
	newRoot, err := t.insert(t.root, keyToNibbles(key), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(hash crypto.Hash256, path, value []byte) (crypto.Hash256, error) {
	if hash.IsZero() {
		return t.storeNode(&Node{Type: NodeLeaf, Path: path, Value: value}), nil
	}
	node, err := t.loadNode(hash)
	if err != nil {
		return crypto.Hash256{}, err
	}

	switch node.Type {
	case NodeLeaf:
		cp := commonPrefixLen(node.Path, path)
		if cp == len(node.Path) && cp == len(path) {
			return t.storeNode(&Node{Type: NodeLeaf, Path: node.Path, Value: value}), nil
		}

		branch := &Node{Type: NodeBranch}
		if cp == len(node.Path) {
			branch.HasValue = true
			branch.BranchVal = node.Value
		} else {
			idx := node.Path[cp]
			leaf := &Node{Type: NodeLeaf, Path: node.Path[cp+1:], Value: node.Value}
			branch.Children[idx] = t.storeNode(leaf)
		}
		if cp == len(path) {
			branch.HasValue = true
			branch.BranchVal = value
		} else {
			idx := path[cp]
			leaf := &Node{Type: NodeLeaf, Path: path[cp+1:], Value: value}
			branch.Children[idx] = t.storeNode(leaf)
		}
		branchHash := t.storeNode(branch)
		if cp == 0 {
			return branchHash, nil
		}
		return t.storeNode(&Node{Type: NodeExtension, Path: append([]byte(nil), path[:cp]...), Child: branchHash}), nil

	case NodeExtension:
		cp := commonPrefixLen(node.Path, path)
		if cp == len(node.Path) {
			newChild, err := t.insert(node.Child, path[cp:], value)
			if err != nil {
				return crypto.Hash256{}, err
			}
			return t.storeNode(&Node{Type: NodeExtension, Path: node.Path, Child: newChild}), nil
		}

		branch := &Node{Type: NodeBranch}
		idxNode := node.Path[cp]
		remNode := node.Path[cp+1:]
		var nodeChildHash crypto.Hash256
		if len(remNode) == 0 {
			nodeChildHash = node.Child
		} else {
			nodeChildHash = t.storeNode(&Node{Type: NodeExtension, Path: remNode, Child: node.Child})
		}
		branch.Children[idxNode] = nodeChildHash

		if cp == len(path) {
			branch.HasValue = true
			branch.BranchVal = value
		} else {
			idxNew := path[cp]
			leaf := &Node{Type: NodeLeaf, Path: path[cp+1:], Value: value}
			branch.Children[idxNew] = t.storeNode(leaf)
		}
		branchHash := t.storeNode(branch)
		if cp == 0 {
			return branchHash, nil
		}
		return t.storeNode(&Node{Type: NodeExtension, Path: append([]byte(nil), path[:cp]...), Child: branchHash}), nil

	case NodeBranch:
		newBranch := *node
		if len(path) == 0 {
			newBranch.HasValue = true
			newBranch.BranchVal = value
			return t.storeNode(&newBranch), nil
		}
		idx := path[0]
		newChild, err := t.insert(node.Children[idx], path[1:], value)
		if err != nil {
			return crypto.Hash256{}, err
		}
		newBranch.Children[idx] = newChild
		return t.storeNode(&newBranch), nil

	default:
		return crypto.Hash256{}, ErrNodeNotFound
	}
}

// Delete removes key, reporting whether it was present.
func (t *Trie) Delete(key []byte) (bool, error) {
	newRoot, changed, err := t.delete(t.root, keyToNibbles(key))
	if err != nil {
		return false, err
	}
	if changed {
		t.root = newRoot
	}
	return changed, nil
}

func (t *Trie) delete(hash crypto.Hash256, path []byte) (crypto.Hash256, bool, error) {
	if hash.IsZero() {
		return hash, false, nil
	}
	node, err := t.loadNode(hash)
	if err != nil {
		return crypto.Hash256{}, false, err
	}

	switch node.Type {
	case NodeLeaf:
		if bytes.Equal(node.Path, path) {
			return crypto.Hash256{}, true, nil
		}
		return hash, false, nil

	case NodeExtension:
		if len(path) < len(node.Path) || !bytes.Equal(path[:len(node.Path)], node.Path) {
			return hash, false, nil
		}
		newChild, changed, err := t.delete(node.Child, path[len(node.Path):])
		if err != nil {
			return crypto.Hash256{}, false, err
		}
		if !changed {
			return hash, false, nil
		}
		if newChild.IsZero() {
			return crypto.Hash256{}, true, nil
		}
		merged, err := t.mergeExtension(node.Path, newChild)
		if err != nil {
			return crypto.Hash256{}, false, err
		}
		return merged, true, nil

	case NodeBranch:
		newBranch := *node
		if len(path) == 0 {
			if !node.HasValue {
				return hash, false, nil
			}
			newBranch.HasValue = false
			newBranch.BranchVal = nil
		} else {
			idx := path[0]
			newChild, changed, err := t.delete(node.Children[idx], path[1:])
			if err != nil {
				return crypto.Hash256{}, false, err
			}
			if !changed {
				return hash, false, nil
			}
			newBranch.Children[idx] = newChild
		}
		compacted, err := t.compactBranch(&newBranch)
		if err != nil {
			return crypto.Hash256{}, false, err
		}
		return compacted, true, nil

	default:
		return crypto.Hash256{}, false, ErrNodeNotFound
	}
}

// mergeExtension prepends prefix to whatever child currently holds,
// merging extension-into-extension and extension-into-leaf per spec §4.2's
// re-compaction requirement.
func (t *Trie) mergeExtension(prefix []byte, child crypto.Hash256) (crypto.Hash256, error) {
	childNode, err := t.loadNode(child)
	if err != nil {
		return crypto.Hash256{}, err
	}
	switch childNode.Type {
	case NodeLeaf:
		merged := append(append([]byte(nil), prefix...), childNode.Path...)
		return t.storeNode(&Node{Type: NodeLeaf, Path: merged, Value: childNode.Value}), nil
	case NodeExtension:
		merged := append(append([]byte(nil), prefix...), childNode.Path...)
		return t.storeNode(&Node{Type: NodeExtension, Path: merged, Child: childNode.Child}), nil
	default: // Branch
		return t.storeNode(&Node{Type: NodeExtension, Path: prefix, Child: child}), nil
	}
}

// compactBranch collapses a branch with no value and a single child into
// an extension+child, collapses a branch with no children into a bare
// leaf holding its value, and disappears entirely when it holds neither
// (spec §4.2).
func (t *Trie) compactBranch(b *Node) (crypto.Hash256, error) {
	childCount := 0
	var onlyIdx byte
	for i, child := range b.Children {
		if !child.IsZero() {
			childCount++
			onlyIdx = byte(i)
		}
	}

	switch {
	case childCount == 0 && !b.HasValue:
		return crypto.Hash256{}, nil
	case childCount == 0 && b.HasValue:
		return t.storeNode(&Node{Type: NodeLeaf, Path: []byte{}, Value: b.BranchVal}), nil
	case childCount == 1 && !b.HasValue:
		childHash := b.Children[onlyIdx]
		merged, err := t.mergeExtension([]byte{onlyIdx}, childHash)
		if err != nil {
			return crypto.Hash256{}, err
		}
		return merged, nil
	default:
		return t.storeNode(b), nil
	}
}

// Prove returns the ordered list of encoded nodes from root to the leaf
// holding key, or to the first diverging node if key is absent (spec
// §4.2 "prove(key) → proof").
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	if t.root.IsZero() {
		return nil, nil
	}
	path := keyToNibbles(key)
	var proof [][]byte
	hash := t.root
	for !hash.IsZero() {
		encoded, ok := t.store.Get(hash)
		if !ok {
			return nil, ErrNodeNotFound
		}
		proof = append(proof, encoded)
		node, err := decodeNode(encoded)
		if err != nil {
			return nil, err
		}
		switch node.Type {
		case NodeLeaf:
			return proof, nil
		case NodeExtension:
			if len(path) < len(node.Path) || !bytes.Equal(path[:len(node.Path)], node.Path) {
				return proof, nil
			}
			path = path[len(node.Path):]
			hash = node.Child
		case NodeBranch:
			if len(path) == 0 {
				return proof, nil
			}
			hash = node.Children[path[0]]
			path = path[1:]
		default:
			return proof, nil
		}
	}
	return proof, nil
}

// Verify checks a proof produced by Prove against root for key, asserting
// either inclusion (claimedValue non-nil, must match exactly) or absence
// (claimedValue nil) — spec §4.2 "verify(root, proof) → bool".
func Verify(root crypto.Hash256, key []byte, proof [][]byte, claimedValue []byte) bool {
	if len(proof) == 0 {
		return claimedValue == nil
	}

	path := keyToNibbles(key)
	expected := root
	for i, encoded := range proof {
		if crypto.Blake3(encoded) != expected {
			return false
		}
		node, err := decodeNode(encoded)
		if err != nil {
			return false
		}
		last := i == len(proof)-1

		switch node.Type {
		case NodeLeaf:
			if !last {
				return false
			}
			if bytes.Equal(node.Path, path) {
				return bytes.Equal(node.Value, claimedValue)
			}
			return claimedValue == nil

		case NodeExtension:
			if len(path) < len(node.Path) || !bytes.Equal(path[:len(node.Path)], node.Path) {
				return last && claimedValue == nil
			}
			path = path[len(node.Path):]
			expected = node.Child
			if expected.IsZero() {
				return last && claimedValue == nil
			}

		case NodeBranch:
			if len(path) == 0 {
				if !last {
					return false
				}
				if node.HasValue {
					return bytes.Equal(node.BranchVal, claimedValue)
				}
				return claimedValue == nil
			}
			expected = node.Children[path[0]]
			path = path[1:]
			if expected.IsZero() {
				return last && claimedValue == nil
			}

		default:
			return false
		}
	}
	return false
}
