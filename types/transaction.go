// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/basalt-foundation/basalt/codec"
	"github.com/basalt-foundation/basalt/crypto"
)

// TxType discriminates the transaction kinds the executor understands.
type TxType uint8

const (
	TxTransfer TxType = iota
	TxContractDeploy
	TxContractCall
	TxValidatorRegister
	TxValidatorExit
	TxStakeDeposit
	TxStakeWithdraw
	TxSystem
)

// FeeMode discriminates legacy single-price fees from EIP-1559 fee fields.
// Consensus structures carry no optional fields, so the fee shape is a
// tagged union dispatched on this discriminant rather than two nilable
// pointers.
type FeeMode uint8

const (
	FeeLegacy FeeMode = iota
	FeeDynamic
)

const (
	// MaxCallDataSize is the per-type cap for ContractCall data (spec §4.4).
	MaxCallDataSize = 128 * 1024
	// MaxDeployDataSize is the per-type cap for ContractDeploy data.
	MaxDeployDataSize = 2 * 1024 * 1024
	// ComplianceProofByteLength is the fixed Groth16 proof encoding length
	// (spec §4.7: "proof byte-length != 192").
	ComplianceProofByteLength = 192
)

// ComplianceProof is one ZK proof attached to a transaction, binding a
// schema id to a Groth16 proof and its public inputs.
type ComplianceProof struct {
	SchemaID     uint32
	Proof        []byte // exactly ComplianceProofByteLength bytes
	PublicInputs []byte // a positive multiple of 32 bytes
}

// Transaction is the canonical, signed transaction record (spec §3).
type Transaction struct {
	Type                 TxType
	Nonce                uint64
	Sender               Address
	To                   Address
	Value                UInt256
	GasLimit             uint64
	FeeMode              FeeMode
	GasPrice             UInt256 // valid when FeeMode == FeeLegacy
	MaxFeePerGas         UInt256 // valid when FeeMode == FeeDynamic
	MaxPriorityFeePerGas UInt256 // valid when FeeMode == FeeDynamic
	Data                 []byte
	Priority             bool
	ChainID              uint32
	ComplianceProofs     []ComplianceProof
	SenderPublicKey      []byte // 32-byte Ed25519 public key
	Signature            []byte // 64-byte Ed25519 signature
}

// writeSigningFields appends every field the signature commits to, in fixed
// order, excluding the signature and the sender public key themselves
// (spec §4.1: "binds every field except itself and the recovered public
// key"). Varint-prefixed fields count their prefix bytes in the payload
// length, so every implementation produces identical signed bytes.
func (t *Transaction) writeSigningFields(w *codec.Writer) {
	w.WriteUvarint(uint64(t.Type))
	w.WriteUvarint(t.Nonce)
	w.WriteFixed(t.Sender[:])
	w.WriteFixed(t.To[:])
	w.WriteBytes(t.Value.Bytes())
	w.WriteUvarint(t.GasLimit)
	w.WriteUvarint(uint64(t.FeeMode))
	w.WriteBytes(t.GasPrice.Bytes())
	w.WriteBytes(t.MaxFeePerGas.Bytes())
	w.WriteBytes(t.MaxPriorityFeePerGas.Bytes())
	w.WriteBytes(t.Data)
	w.WriteBool(t.Priority)
	w.WriteUvarint(uint64(t.ChainID))
	w.WriteUvarint(uint64(len(t.ComplianceProofs)))
	for _, p := range t.ComplianceProofs {
		w.WriteUvarint(uint64(p.SchemaID))
		w.WriteBytes(p.Proof)
		w.WriteBytes(p.PublicInputs)
	}
}

// SigningPayload returns the canonical bytes an Ed25519 signature over this
// transaction is computed against.
func (t *Transaction) SigningPayload() []byte {
	w := codec.NewWriter()
	t.writeSigningFields(w)
	return w.Bytes()
}

// Encode returns the full canonical encoding, including the signature and
// sender public key, used for the transaction hash, mempool storage, and
// on-the-wire TX_PAYLOAD messages.
func (t *Transaction) Encode() []byte {
	w := codec.NewWriter()
	t.writeSigningFields(w)
	w.WriteBytes(t.SenderPublicKey)
	w.WriteBytes(t.Signature)
	return w.Bytes()
}

// DecodeTransaction parses the encoding produced by Encode.
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := codec.NewReader(b)
	t := &Transaction{}

	typ, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	t.Type = TxType(typ)

	if t.Nonce, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	sender, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	t.Sender = BytesToAddress(sender)
	to, err := r.ReadFixed(AddressSize)
	if err != nil {
		return nil, err
	}
	t.To = BytesToAddress(to)

	valueB, err := r.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	if t.Value, err = NewUInt256FromBig(valueB); err != nil {
		return nil, err
	}

	if t.GasLimit, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	feeMode, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	t.FeeMode = FeeMode(feeMode)

	for _, dst := range []*UInt256{&t.GasPrice, &t.MaxFeePerGas, &t.MaxPriorityFeePerGas} {
		b, err := r.ReadBytes(32)
		if err != nil {
			return nil, err
		}
		v, err := NewUInt256FromBig(b)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if t.Data, err = r.ReadBytes(MaxDeployDataSize); err != nil {
		return nil, err
	}
	if t.Priority, err = r.ReadBool(); err != nil {
		return nil, err
	}
	chainID, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	t.ChainID = uint32(chainID)

	proofCount, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	t.ComplianceProofs = make([]ComplianceProof, 0, proofCount)
	for i := uint64(0); i < proofCount; i++ {
		schemaID, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		proof, err := r.ReadBytes(ComplianceProofByteLength)
		if err != nil {
			return nil, err
		}
		inputs, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		t.ComplianceProofs = append(t.ComplianceProofs, ComplianceProof{
			SchemaID:     uint32(schemaID),
			Proof:        proof,
			PublicInputs: inputs,
		})
	}

	if t.SenderPublicKey, err = r.ReadBytes(64); err != nil {
		return nil, err
	}
	if t.Signature, err = r.ReadBytes(64); err != nil {
		return nil, err
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, err
	}
	return t, nil
}

// Hash returns the canonical identifier of this transaction: BLAKE3 of its
// full encoding, including signature. Mempool keys, the transactions root,
// and receipts all reference transactions by this hash.
func (t *Transaction) Hash() crypto.Hash256 {
	return crypto.Blake3(t.Encode())
}

// EffectiveGasPrice returns the price actually paid per unit of gas given a
// block's base fee (spec GLOSSARY "Effective gas price").
func (t *Transaction) EffectiveGasPrice(baseFee UInt256) UInt256 {
	if t.FeeMode == FeeLegacy {
		return t.GasPrice
	}
	tipCap, err := baseFee.Add(t.MaxPriorityFeePerGas)
	if err != nil {
		// baseFee + tip overflowed 256 bits: the max fee is the binding
		// ceiling regardless.
		return t.MaxFeePerGas
	}
	if tipCap.GreaterThan(t.MaxFeePerGas) {
		return t.MaxFeePerGas
	}
	return tipCap
}

// MaxEffectivePrice returns the highest price this transaction could ever
// pay per unit of gas, used for the balance pre-check (spec §4.4 step 6).
func (t *Transaction) MaxEffectivePrice() UInt256 {
	if t.FeeMode == FeeLegacy {
		return t.GasPrice
	}
	return t.MaxFeePerGas
}

// IntrinsicBaseCost returns the minimum gas a transaction of this type must
// grant (spec §4.4 step 4). Staking and system transactions have a flat
// cost; transfers are cheap; contract operations scale with data length.
func (t *Transaction) IntrinsicBaseCost() uint64 {
	const (
		baseCost     = 21_000
		perDataByte  = 16
		deployExtra  = 32_000
		stakingExtra = 25_000
	)
	switch t.Type {
	case TxTransfer:
		return baseCost
	case TxContractCall:
		return baseCost + uint64(len(t.Data))*perDataByte
	case TxContractDeploy:
		return baseCost + deployExtra + uint64(len(t.Data))*perDataByte
	case TxValidatorRegister, TxValidatorExit, TxStakeDeposit, TxStakeWithdraw:
		return baseCost + stakingExtra
	case TxSystem:
		return 0
	default:
		return baseCost
	}
}

// DataCap returns the maximum permitted length of Data for this
// transaction's type (spec §4.4 step 7); zero means no specific cap beyond
// the overall deploy cap.
func (t *Transaction) DataCap() int {
	switch t.Type {
	case TxContractCall:
		return MaxCallDataSize
	case TxContractDeploy:
		return MaxDeployDataSize
	default:
		return 0
	}
}
