// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"
	"sync"

	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/types"
)

// ErrRotationNotDueSigned is returned when a rotation request is not signed
// by both the old and the new BLS key (spec §4.8 "Key rotation": "rotation
// is a signed transaction carrying the new key signed by both old and
// new").
var ErrRotationNotDueSigned = errors.New("consensus: key rotation must be signed by both old and new keys")

// KeyRotationRequest is the payload of a validator's key-rotation
// transaction.
type KeyRotationRequest struct {
	Validator       types.Address
	NewKey          *crypto.BLSPublicKey
	OldKeySignature *crypto.BLSSignature
	NewKeySignature *crypto.BLSSignature
}

// pendingRotation is a validated rotation request waiting for its
// activation height.
type pendingRotation struct {
	validator      types.Address
	newKey         *crypto.BLSPublicKey
	activateHeight uint64
}

// KeyRotationManager tracks pending BLS key rotations and activates them
// once activationWindow blocks have elapsed, after which the old key is no
// longer accepted for that validator (spec §4.8 "Key rotation").
type KeyRotationManager struct {
	mu               sync.Mutex
	activationWindow uint64
	pending          []*pendingRotation
}

// NewKeyRotationManager returns a manager delaying activation by
// activationWindow blocks.
func NewKeyRotationManager(activationWindow uint64) *KeyRotationManager {
	return &KeyRotationManager{activationWindow: activationWindow}
}

// RotationPayload returns the canonical bytes a rotation's dual signature
// commits to: the validator address and the new key, so a rotation cannot
// be replayed onto a different validator or key.
func RotationPayload(validator types.Address, newKey *crypto.BLSPublicKey) []byte {
	return append(append([]byte{}, validator[:]...), newKey.Bytes()...)
}

// Request verifies req's dual signature (old key signs to authorize
// handoff, new key signs to prove possession) and schedules activation at
// currentHeight + activationWindow.
func (m *KeyRotationManager) Request(validators *ValidatorSet, req KeyRotationRequest, currentHeight uint64) error {
	info, ok := validators.Get(req.Validator)
	if !ok || info.BLSKey == nil {
		return ErrValidatorUnknown
	}
	payload := RotationPayload(req.Validator, req.NewKey)
	if !crypto.VerifyBLS(info.BLSKey, payload, req.OldKeySignature) {
		return ErrRotationNotDueSigned
	}
	if !crypto.VerifyBLS(req.NewKey, payload, req.NewKeySignature) {
		return ErrRotationNotDueSigned
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, &pendingRotation{
		validator:      req.Validator,
		newKey:         req.NewKey,
		activateHeight: currentHeight + m.activationWindow,
	})
	return nil
}

// ErrValidatorUnknown is returned when a rotation request names an address
// outside the current validator set.
var ErrValidatorUnknown = errors.New("consensus: unknown validator")

// Activate applies every pending rotation whose activation height has been
// reached at or before height, installing the new BLS key and evicting the
// rotation from the pending queue. Old keys are rejected implicitly from
// this point on: ValidatorSet.Get only ever returns the current key.
func (m *KeyRotationManager) Activate(validators *ValidatorSet, height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.pending[:0]
	for _, p := range m.pending {
		if height >= p.activateHeight {
			validators.SetBLSKey(p.validator, p.newKey)
			continue
		}
		remaining = append(remaining, p)
	}
	m.pending = remaining
}
