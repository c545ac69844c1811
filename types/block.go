// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
)

// MaxExtraDataSize is the header's extra-data cap (spec §3 "BlockHeader").
const MaxExtraDataSize = 256

// BlockHeader is the canonical per-block header (spec §3). BLSAggregateSignature
// and SignerBitfield carry the block's finality certificate: they are
// attached once the COMMIT quorum is observed, and are not part of the
// hash that validators sign during PREPARE/PRE-COMMIT (see Hash). View is
// part of that hash.
type BlockHeader struct {
	Version               uint32
	Number                uint64
	ParentHash            crypto.Hash256
	StateRoot             crypto.Hash256
	TransactionsRoot      crypto.Hash256
	ReceiptsRoot          crypto.Hash256
	Proposer              Address
	Timestamp             uint64 // ms, strictly increasing
	ChainID               uint32
	GasUsed               uint64
	GasLimit              uint64
	BaseFee               UInt256
	ExtraData             []byte // <= MaxExtraDataSize
	BLSAggregateSignature []byte // 96-byte G2 point once finalized, else empty
	SignerBitfield        []byte
	View                  uint64
}

// writeIdentityFields appends every field that participates in the
// header's identity hash: everything except the finality certificate
// (BLSAggregateSignature, SignerBitfield), which is attached only after
// the block that hash identifies is already agreed upon.
func (h *BlockHeader) writeIdentityFields(w *codec.Writer) {
	w.WriteUvarint(uint64(h.Version))
	w.WriteUvarint(h.Number)
	w.WriteFixed(h.ParentHash[:])
	w.WriteFixed(h.StateRoot[:])
	w.WriteFixed(h.TransactionsRoot[:])
	w.WriteFixed(h.ReceiptsRoot[:])
	w.WriteFixed(h.Proposer[:])
	w.WriteUvarint(h.Timestamp)
	w.WriteUvarint(uint64(h.ChainID))
	w.WriteUvarint(h.GasUsed)
	w.WriteUvarint(h.GasLimit)
	w.WriteBytes(h.BaseFee.Bytes())
	w.WriteBytes(h.ExtraData)
	w.WriteUvarint(h.View)
}

// Hash returns BLAKE3 of the header's canonical identity encoding (spec §8
// "blockHash = BLAKE3(canonical(header))").
func (h *BlockHeader) Hash() crypto.Hash256 {
	w := codec.NewWriter()
	h.writeIdentityFields(w)
	return crypto.Blake3(w.Bytes())
}

// Encode returns the full persisted encoding, including the finality
// certificate, per spec §6 "Block-body encoding" (header portion).
func (h *BlockHeader) Encode() []byte {
	w := codec.NewWriter()
	h.writeIdentityFields(w)
	w.WriteBytes(h.BLSAggregateSignature)
	w.WriteBytes(h.SignerBitfield)
	return w.Bytes()
}

// DecodeBlockHeader parses the encoding produced by Encode.
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	r := codec.NewReader(b)
	h := &BlockHeader{}

	version, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	h.Version = uint32(version)

	if h.Number, err = r.ReadUvarint(); err != nil {
		return nil, err
	}

	parentHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.ParentHash = crypto.BytesToHash(parentHash)

	stateRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.StateRoot = crypto.BytesToHash(stateRoot)

	txRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.TransactionsRoot = crypto.BytesToHash(txRoot)

	receiptsRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.ReceiptsRoot = crypto.BytesToHash(receiptsRoot)

	proposer, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	h.Proposer = BytesToAddress(proposer)

	if h.Timestamp, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	chainID, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	h.ChainID = uint32(chainID)

	if h.GasUsed, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if h.GasLimit, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	baseFee, err := r.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	if h.BaseFee, err = NewUInt256FromBig(baseFee); err != nil {
		return nil, err
	}
	if h.ExtraData, err = r.ReadBytes(MaxExtraDataSize); err != nil {
		return nil, err
	}
	if h.View, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if h.BLSAggregateSignature, err = r.ReadBytes(0); err != nil {
		return nil, err
	}
	if h.SignerBitfield, err = r.ReadBytes(0); err != nil {
		return nil, err
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}
	return h, nil
}

// Block is a sealed header plus its ordered transactions and any slashing
// evidence gathered for this height (spec §3 "Block").
type Block struct {
	Header           BlockHeader
	Transactions     []*Transaction
	SlashingEvidence []SlashingEvidence
}

// SlashingEvidence is two conflicting signed PREPARE votes from the same
// validator at the same (height, view) (spec §4.8 "Safety").
type SlashingEvidence struct {
	Validator    Address
	Height       uint64
	View         uint64
	BlockHashA   crypto.Hash256
	BlockHashB   crypto.Hash256
	SignatureA   []byte
	SignatureB   []byte
}

func (e *SlashingEvidence) writeTo(w *codec.Writer) {
	w.WriteFixed(e.Validator[:])
	w.WriteUvarint(e.Height)
	w.WriteUvarint(e.View)
	w.WriteFixed(e.BlockHashA[:])
	w.WriteFixed(e.BlockHashB[:])
	w.WriteBytes(e.SignatureA)
	w.WriteBytes(e.SignatureB)
}

func decodeSlashingEvidence(r *codec.Reader) (SlashingEvidence, error) {
	var e SlashingEvidence
	validator, err := r.ReadFixed(AddressSize)
	if err != nil {
		return e, err
	}
	e.Validator = BytesToAddress(validator)
	if e.Height, err = r.ReadUvarint(); err != nil {
		return e, err
	}
	if e.View, err = r.ReadUvarint(); err != nil {
		return e, err
	}
	hashA, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return e, err
	}
	e.BlockHashA = crypto.BytesToHash(hashA)
	hashB, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return e, err
	}
	e.BlockHashB = crypto.BytesToHash(hashB)
	if e.SignatureA, err = r.ReadBytes(0); err != nil {
		return e, err
	}
	if e.SignatureB, err = r.ReadBytes(0); err != nil {
		return e, err
	}
	return e, nil
}

// Encode returns the full persisted block encoding (spec §6 "Block-body
// encoding"): the documented header prefix — version, number, hash,
// parent/state/transactions/receipts roots, timestamp, proposer, chain id,
// gas used/limit, base fee, protocol version, extra data, and the
// transaction-hash list — followed by the finality certificate and view,
// and then the full transaction and slashing-evidence content a
// reconstructed Block needs to round-trip (DecodeBlock(Encode(b)) == b),
// which the hash-only prefix alone cannot carry.
func (b *Block) Encode() []byte {
	h := &b.Header
	w := codec.NewWriter()
	w.WriteUvarint(uint64(h.Version))
	w.WriteUvarint(h.Number)
	hash := h.Hash()
	w.WriteFixed(hash[:])
	w.WriteFixed(h.ParentHash[:])
	w.WriteFixed(h.StateRoot[:])
	w.WriteFixed(h.TransactionsRoot[:])
	w.WriteFixed(h.ReceiptsRoot[:])
	w.WriteUvarint(h.Timestamp)
	w.WriteFixed(h.Proposer[:])
	w.WriteUvarint(uint64(h.ChainID))
	w.WriteUvarint(h.GasUsed)
	w.WriteUvarint(h.GasLimit)
	w.WriteBytes(h.BaseFee.Bytes())
	w.WriteUvarint(uint64(h.Version)) // protocol version
	w.WriteBytes(h.ExtraData)

	w.WriteUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txHash := tx.Hash()
		w.WriteFixed(txHash[:])
	}

	w.WriteUvarint(h.View)
	w.WriteBytes(h.BLSAggregateSignature)
	w.WriteBytes(h.SignerBitfield)

	w.WriteUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.WriteBytes(tx.Encode())
	}

	w.WriteUvarint(uint64(len(b.SlashingEvidence)))
	for i := range b.SlashingEvidence {
		b.SlashingEvidence[i].writeTo(w)
	}

	return w.Bytes()
}

// DecodeBlock parses the encoding produced by Block.Encode, rebuilding
// the full transaction set from the trailing bodies rather than the
// hash-only prefix, and rejects any encoding whose persisted hash does
// not match the recomputed header hash.
func DecodeBlock(b []byte) (*Block, error) {
	r := codec.NewReader(b)
	var h BlockHeader

	version, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	h.Version = uint32(version)
	if h.Number, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	persistedHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	wantHash := crypto.BytesToHash(persistedHash)

	parentHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.ParentHash = crypto.BytesToHash(parentHash)
	stateRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.StateRoot = crypto.BytesToHash(stateRoot)
	txRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.TransactionsRoot = crypto.BytesToHash(txRoot)
	receiptsRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	h.ReceiptsRoot = crypto.BytesToHash(receiptsRoot)
	if h.Timestamp, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	proposer, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	h.Proposer = BytesToAddress(proposer)
	chainID, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	h.ChainID = uint32(chainID)
	if h.GasUsed, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if h.GasLimit, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	baseFee, err := r.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	if h.BaseFee, err = NewUInt256FromBig(baseFee); err != nil {
		return nil, err
	}
	if _, err = r.ReadUvarint(); err != nil { // protocol version
		return nil, err
	}
	if h.ExtraData, err = r.ReadBytes(MaxExtraDataSize); err != nil {
		return nil, err
	}

	hashCount, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < hashCount; i++ {
		if _, err := r.ReadFixed(crypto.HashSize); err != nil {
			return nil, err
		}
	}

	if h.View, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if h.BLSAggregateSignature, err = r.ReadBytes(0); err != nil {
		return nil, err
	}
	if h.SignerBitfield, err = r.ReadBytes(0); err != nil {
		return nil, err
	}

	if gotHash := h.Hash(); gotHash != wantHash {
		return nil, codec.ErrInvalidEncoding
	}

	txCount, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if txCount != hashCount {
		return nil, codec.ErrInvalidEncoding
	}
	txs := make([]*Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		raw, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	evidenceCount, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	evidence := make([]SlashingEvidence, 0, evidenceCount)
	for i := uint64(0); i < evidenceCount; i++ {
		e, err := decodeSlashingEvidence(r)
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, e)
	}

	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}

	return &Block{Header: h, Transactions: txs, SlashingEvidence: evidence}, nil
}
