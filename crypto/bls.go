// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// blsDomainSeparationTag is the single BLS domain separation tag this
// package signs and verifies under; every BLS signature, consensus vote or
// otherwise, uses it.
var blsDomainSeparationTag = []byte("BASALT_BLS_CONSENSUS_VOTE_V1")

// BLSPublicKeySize is the width of a min-pubkey-size (G1) public key.
const BLSPublicKeySize = 48

// BLSSignatureSize is the width of a min-pubkey-size (G2) signature.
const BLSSignatureSize = 96

// BLSSecretKey is a validator's consensus signing key. Validators maintain
// disjoint Ed25519 and BLS key material (spec §4.1).
type BLSSecretKey struct {
	sk blst.SecretKey
}

// BLSPublicKey is a 48-byte G1 point.
type BLSPublicKey struct {
	p blst.P1Affine
}

// BLSSignature is a 96-byte G2 point.
type BLSSignature struct {
	p blst.P2Affine
}

// GenerateBLSKey derives a BLS secret key from 32 bytes of entropy.
func GenerateBLSKey(ikm [32]byte) (*BLSSecretKey, error) {
	sk := blst.KeyGen(ikm[:])
	if sk == nil {
		return nil, errors.New("crypto: bls key generation failed")
	}
	return &BLSSecretKey{sk: *sk}, nil
}

// Public derives the public key corresponding to sk.
func (sk *BLSSecretKey) Public() *BLSPublicKey {
	pub := new(blst.P1Affine).From(&sk.sk)
	return &BLSPublicKey{p: *pub}
}

// Sign produces a BLS signature over msg.
func (sk *BLSSecretKey) Sign(msg []byte) *BLSSignature {
	sig := new(blst.P2Affine).Sign(&sk.sk, msg, blsDomainSeparationTag)
	return &BLSSignature{p: *sig}
}

// Bytes serializes the public key to its compressed 48-byte form.
func (pk *BLSPublicKey) Bytes() []byte {
	return pk.p.Compress()
}

// BLSPublicKeyFromBytes decodes a compressed 48-byte public key.
func BLSPublicKeyFromBytes(b []byte) (*BLSPublicKey, error) {
	if len(b) != BLSPublicKeySize {
		return nil, errors.New("crypto: invalid bls public key length")
	}
	p := new(blst.P1Affine).Uncompress(b)
	if p == nil || !p.KeyValidate() {
		return nil, errors.New("crypto: invalid bls public key")
	}
	return &BLSPublicKey{p: *p}, nil
}

// Bytes serializes the signature to its compressed 96-byte form.
func (sig *BLSSignature) Bytes() []byte {
	return sig.p.Compress()
}

// BLSSignatureFromBytes decodes a compressed 96-byte signature.
func BLSSignatureFromBytes(b []byte) (*BLSSignature, error) {
	if len(b) != BLSSignatureSize {
		return nil, errors.New("crypto: invalid bls signature length")
	}
	p := new(blst.P2Affine).Uncompress(b)
	if p == nil {
		return nil, errors.New("crypto: invalid bls signature")
	}
	return &BLSSignature{p: *p}, nil
}

// VerifyBLS checks a single signature against a single public key.
func VerifyBLS(pk *BLSPublicKey, msg []byte, sig *BLSSignature) bool {
	return sig.p.Verify(true, &pk.p, true, msg, blsDomainSeparationTag)
}

// AggregateBLSSignatures sums a set of G2 signatures into a single
// aggregate signature (spec §4.1: "aggregated as a sum of points").
func AggregateBLSSignatures(sigs []*BLSSignature) (*BLSSignature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("crypto: no signatures to aggregate")
	}
	points := make([]*blst.P2Affine, len(sigs))
	for i, s := range sigs {
		points[i] = &s.p
	}
	var agg blst.P2Aggregate
	if !agg.Aggregate(points, true) {
		return nil, errors.New("crypto: bls signature aggregation failed")
	}
	affine := agg.ToAffine()
	return &BLSSignature{p: *affine}, nil
}

// AggregateBLSPublicKeys sums a set of G1 public keys, used to verify an
// aggregate signature against the union of its signers.
func AggregateBLSPublicKeys(pks []*BLSPublicKey) (*BLSPublicKey, error) {
	if len(pks) == 0 {
		return nil, errors.New("crypto: no public keys to aggregate")
	}
	points := make([]*blst.P1Affine, len(pks))
	for i, p := range pks {
		points[i] = &p.p
	}
	var agg blst.P1Aggregate
	if !agg.Aggregate(points, true) {
		return nil, errors.New("crypto: bls public key aggregation failed")
	}
	affine := agg.ToAffine()
	return &BLSPublicKey{p: *affine}, nil
}

// VerifyBLSAggregate checks an aggregate signature against the sum of the
// given signer public keys over a single shared message (all consensus
// votes for a given phase/view sign the identical block hash payload).
func VerifyBLSAggregate(pks []*BLSPublicKey, msg []byte, sig *BLSSignature) bool {
	aggPk, err := AggregateBLSPublicKeys(pks)
	if err != nil {
		return false
	}
	return VerifyBLS(aggPk, msg, sig)
}
