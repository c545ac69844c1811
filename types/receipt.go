// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
)

// Log is one emitted event, scoped to the contract that emitted it (spec
// §3 "Receipt": "emitted events (each: contract, signature, up to N
// indexed topics, payload)").
type Log struct {
	Contract  Address
	Signature crypto.Hash256
	Topics    []crypto.Hash256
	Data      []byte
}

// Receipt is the record of one executed transaction's outcome (spec §3).
// BlockHash is the zero hash until the containing block is sealed, at
// which point the block builder back-patches it to the final header hash.
type Receipt struct {
	TxHash            crypto.Hash256
	BlockHash         crypto.Hash256
	BlockNumber       uint64
	Index             uint64
	Sender            Address
	To                Address
	GasUsed           uint64
	Success           bool
	ErrorCode         ErrorCode
	PostStateRoot     crypto.Hash256
	EffectiveGasPrice UInt256
	Logs              []Log
}

// Encode returns the canonical persisted encoding (spec §6 "Receipt
// encoding").
func (r *Receipt) Encode() []byte {
	w := codec.NewWriter()
	w.WriteFixed(r.TxHash[:])
	w.WriteFixed(r.BlockHash[:])
	w.WriteUvarint(r.BlockNumber)
	w.WriteUvarint(r.Index)
	w.WriteFixed(r.Sender[:])
	w.WriteFixed(r.To[:])
	w.WriteUvarint(r.GasUsed)
	w.WriteBool(r.Success)
	w.WriteUvarint(uint64(r.ErrorCode))
	w.WriteFixed(r.PostStateRoot[:])
	w.WriteBytes(r.EffectiveGasPrice.Bytes())
	w.WriteUvarint(uint64(len(r.Logs)))
	for _, l := range r.Logs {
		w.WriteFixed(l.Contract[:])
		w.WriteFixed(l.Signature[:])
		w.WriteUvarint(uint64(len(l.Topics)))
		for _, t := range l.Topics {
			w.WriteFixed(t[:])
		}
		w.WriteBytes(l.Data)
	}
	return w.Bytes()
}

// DecodeReceipt parses the encoding produced by Encode.
func DecodeReceipt(b []byte) (*Receipt, error) {
	r := codec.NewReader(b)
	out := &Receipt{}

	txHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	out.TxHash = crypto.BytesToHash(txHash)

	blockHash, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	out.BlockHash = crypto.BytesToHash(blockHash)

	if out.BlockNumber, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if out.Index, err = r.ReadUvarint(); err != nil {
		return nil, err
	}

	sender, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	out.Sender = BytesToAddress(sender)

	to, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	out.To = BytesToAddress(to)

	if out.GasUsed, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if out.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	errCode, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	out.ErrorCode = ErrorCode(errCode)

	postStateRoot, err := r.ReadFixed(crypto.HashSize)
	if err != nil {
		return nil, err
	}
	out.PostStateRoot = crypto.BytesToHash(postStateRoot)

	effPrice, err := r.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	if out.EffectiveGasPrice, err = NewUInt256FromBig(effPrice); err != nil {
		return nil, err
	}

	logCount, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	out.Logs = make([]Log, 0, logCount)
	for i := uint64(0); i < logCount; i++ {
		contract, err := r.ReadFixed(AddressSize)
		if err != nil {
			return nil, err
		}
		sig, err := r.ReadFixed(crypto.HashSize)
		if err != nil {
			return nil, err
		}
		topicCount, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		topics := make([]crypto.Hash256, topicCount)
		for j := range topics {
			tb, err := r.ReadFixed(crypto.HashSize)
			if err != nil {
				return nil, err
			}
			topics[j] = crypto.BytesToHash(tb)
		}
		data, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		out.Logs = append(out.Logs, Log{
			Contract:  BytesToAddress(contract),
			Signature: crypto.BytesToHash(sig),
			Topics:    topics,
			Data:      data,
		})
	}

	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}
	return out, nil
}
