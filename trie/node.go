// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trie implements Basalt's Modified Merkle-Patricia Trie: a
// content-addressed, immutable node store keyed by BLAKE3(encoding), with
// inclusion/absence proofs and reachability-based garbage collection
// (spec §4.2).
package trie

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
)

// NodeType discriminates the four MPT node variants (spec §3 "MPT node
// variants").
type NodeType uint8

const (
	NodeEmpty NodeType = iota
	NodeLeaf
	NodeExtension
	NodeBranch
)

// BranchWidth is the number of children a branch node holds: one per
// nibble.
const BranchWidth = 16

// Node is the tagged union of MPT node variants. Only the fields relevant
// to Type are meaningful; this mirrors the "tagged unions... dispatched by
// a match" design note (spec §9) rather than an interface with dynamic
// dispatch.
type Node struct {
	Type NodeType

	// Leaf, Extension
	Path []byte // nibbles, NOT hex-prefix encoded

	// Leaf only
	Value []byte

	// Extension only
	Child crypto.Hash256

	// Branch only
	Children  [BranchWidth]crypto.Hash256
	HasValue  bool
	BranchVal []byte
}

// hexPrefixEncode compacts a nibble path into bytes, carrying the parity
// and leaf/extension distinction in a compact prefix nibble, the way
// Ethereum-style Patricia tries avoid an extra discriminant byte per node.
func hexPrefixEncode(nibbles []byte, terminator bool) []byte {
	oddLen := len(nibbles) % 2
	flag := byte(0)
	if terminator {
		flag += 2
	}
	flag += byte(oddLen)

	var out []byte
	if oddLen == 1 {
		out = make([]byte, 0, len(nibbles)/2+1)
		out = append(out, flag<<4|nibbles[0])
		nibbles = nibbles[1:]
	} else {
		out = make([]byte, 0, len(nibbles)/2+1)
		out = append(out, flag<<4)
	}
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return out
}

// hexPrefixDecode is the inverse of hexPrefixEncode, returning the nibble
// path and whether it terminates a key (leaf) rather than extending
// (extension).
func hexPrefixDecode(b []byte) (nibbles []byte, terminator bool) {
	if len(b) == 0 {
		return nil, false
	}
	flag := b[0] >> 4
	terminator = flag&2 != 0
	odd := flag&1 != 0

	nibbles = make([]byte, 0, len(b)*2)
	if odd {
		nibbles = append(nibbles, b[0]&0x0f)
	}
	for _, byt := range b[1:] {
		nibbles = append(nibbles, byt>>4, byt&0x0f)
	}
	return nibbles, terminator
}

// encode produces the canonical byte representation this node is hashed
// from.
func (n *Node) encode() []byte {
	w := codec.NewWriter()
	w.WriteUvarint(uint64(n.Type))
	switch n.Type {
	case NodeEmpty:
		// no further fields
	case NodeLeaf:
		w.WriteBytes(hexPrefixEncode(n.Path, true))
		w.WriteBytes(n.Value)
	case NodeExtension:
		w.WriteBytes(hexPrefixEncode(n.Path, false))
		w.WriteFixed(n.Child[:])
	case NodeBranch:
		for i := 0; i < BranchWidth; i++ {
			w.WriteFixed(n.Children[i][:])
		}
		w.WriteBool(n.HasValue)
		if n.HasValue {
			w.WriteBytes(n.BranchVal)
		}
	}
	return w.Bytes()
}

// hash returns BLAKE3 of the node's canonical encoding (spec §3: "Node hash
// = BLAKE3 of canonical node encoding").
func (n *Node) hash() crypto.Hash256 {
	return crypto.Blake3(n.encode())
}

// decodeNode parses the encoding produced by encode.
func decodeNode(b []byte) (*Node, error) {
	r := codec.NewReader(b)
	typ, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	n := &Node{Type: NodeType(typ)}
	switch n.Type {
	case NodeEmpty:
	case NodeLeaf:
		pathB, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		path, _ := hexPrefixDecode(pathB)
		n.Path = path
		if n.Value, err = r.ReadBytes(0); err != nil {
			return nil, err
		}
	case NodeExtension:
		pathB, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		path, _ := hexPrefixDecode(pathB)
		n.Path = path
		childB, err := r.ReadFixed(crypto.HashSize)
		if err != nil {
			return nil, err
		}
		n.Child = crypto.BytesToHash(childB)
	case NodeBranch:
		for i := 0; i < BranchWidth; i++ {
			childB, err := r.ReadFixed(crypto.HashSize)
			if err != nil {
				return nil, err
			}
			n.Children[i] = crypto.BytesToHash(childB)
		}
		hasValue, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		n.HasValue = hasValue
		if hasValue {
			if n.BranchVal, err = r.ReadBytes(0); err != nil {
				return nil, err
			}
		}
	default:
		return nil, codec.ErrInvalidEncoding
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}
	return n, nil
}

// keyToNibbles expands a byte key into its nibble sequence, two nibbles per
// byte, high nibble first.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
