// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	stded25519 "crypto/ed25519"
	"errors"
)

// ErrInvalidSignature is returned when an Ed25519 signature fails to
// verify, or when the declared public key is malformed.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// GenerateEd25519 produces a fresh Ed25519 key pair for tests and tooling.
func GenerateEd25519() (pub stded25519.PublicKey, priv stded25519.PrivateKey, err error) {
	return stded25519.GenerateKey(nil)
}

// SignEd25519 signs payload with priv (RFC 8032).
func SignEd25519(priv stded25519.PrivateKey, payload []byte) []byte {
	return stded25519.Sign(priv, payload)
}

// VerifyEd25519 reports whether sig is a valid signature over payload under
// pub. A malformed public key length is treated as verification failure
// rather than a panic.
func VerifyEd25519(pub, sig, payload []byte) bool {
	if len(pub) != stded25519.PublicKeySize {
		return false
	}
	if len(sig) != stded25519.SignatureSize {
		return false
	}
	return stded25519.Verify(pub, payload, sig)
}
