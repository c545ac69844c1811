// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"errors"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// Groth16ProofSize is the fixed wire encoding of a proof: a compressed G1
// point (A, 48 bytes), a compressed G2 point (B, 96 bytes), and a
// compressed G1 point (C, 48 bytes) — 192 bytes total, matching spec §4.7's
// "proof byte-length != 192" check.
const Groth16ProofSize = 48 + 96 + 48

// PublicInputWidth is the encoding width of a single Groth16 public input:
// a BLS12-381 scalar field element, big-endian.
const PublicInputWidth = 32

// Groth16VerifyingKey is the per-schema verification key the compliance
// gate's verifier registry holds. IC (the "input commitments") has exactly
// len(publicInputs)+1 entries for any proof it verifies.
type Groth16VerifyingKey struct {
	Alpha bls12381.G1Affine
	Beta  bls12381.G2Affine
	Gamma bls12381.G2Affine
	Delta bls12381.G2Affine
	IC    []bls12381.G1Affine
}

// Groth16Proof is a decoded (A, B, C) proof triple.
type Groth16Proof struct {
	A bls12381.G1Affine
	B bls12381.G2Affine
	C bls12381.G1Affine
}

// DecodeGroth16Proof parses the 192-byte wire encoding.
func DecodeGroth16Proof(b []byte) (*Groth16Proof, error) {
	if len(b) != Groth16ProofSize {
		return nil, errors.New("crypto: invalid groth16 proof length")
	}
	var p Groth16Proof
	if _, err := p.A.SetBytes(b[0:48]); err != nil {
		return nil, err
	}
	if _, err := p.B.SetBytes(b[48:144]); err != nil {
		return nil, err
	}
	if _, err := p.C.SetBytes(b[144:192]); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodePublicInputs splits a public-inputs blob into scalar field
// elements. The caller must already have checked the length is a positive
// multiple of PublicInputWidth (spec §4.7 step "public inputs are not a
// positive multiple of 32").
func DecodePublicInputs(b []byte) ([]fr.Element, error) {
	if len(b) == 0 || len(b)%PublicInputWidth != 0 {
		return nil, errors.New("crypto: invalid public input length")
	}
	n := len(b) / PublicInputWidth
	out := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		out[i].SetBytes(b[i*PublicInputWidth : (i+1)*PublicInputWidth])
	}
	return out, nil
}

// VerifyGroth16 checks the standard Groth16 pairing equation:
//
//	e(A, B) == e(alpha, beta) * e(vk_x, gamma) * e(C, delta)
//
// where vk_x = IC[0] + sum(input_i * IC[i+1]).
func VerifyGroth16(vk *Groth16VerifyingKey, proof *Groth16Proof, inputs []fr.Element) (bool, error) {
	if len(vk.IC) != len(inputs)+1 {
		return false, errors.New("crypto: public input count does not match verifying key")
	}

	vkX := vk.IC[0]
	for i, input := range inputs {
		var scalar big.Int
		input.BigInt(&scalar)
		var term bls12381.G1Affine
		term.ScalarMultiplication(&vk.IC[i+1], &scalar)
		vkX.Add(&vkX, &term)
	}

	var negA bls12381.G1Affine
	negA.Neg(&proof.A)

	lhs, err := bls12381.Pair(
		[]bls12381.G1Affine{negA, vk.Alpha, vkX, proof.C},
		[]bls12381.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return false, err
	}

	var one bls12381.GT
	one.SetOne()
	return lhs.Equal(&one), nil
}
