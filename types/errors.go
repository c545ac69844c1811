// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

// ErrorCode is the closed, numeric set of transactional failure codes
// published as the node's ABI (spec §6 "Error code surface"). These attach
// to receipts; they never stop the node or invalidate a containing block.
type ErrorCode uint32

const (
	ErrNone ErrorCode = iota
	ErrInvalidSignature
	ErrNonceTooLow
	ErrNonceTooHigh
	ErrInsufficientBalance
	ErrGasLimitExceeded
	ErrDataTooLarge
	ErrInvalidChainID
	ErrContractNotFound
	ErrOutOfGas
	ErrStackOverflow
	ErrRevert
	ErrSandboxViolation
	ErrComplianceKYCMissing
	ErrComplianceSanctioned
	ErrComplianceGeoRestricted
	ErrComplianceHoldingLimit
	ErrComplianceLockup
	ErrComplianceProofInvalid
	ErrComplianceProofMissing
	ErrStakingNotAvailable
	ErrStakeBelowMinimum
	ErrValidatorNotRegistered
	ErrNonceOverflow
	ErrInvalidParentHash
	ErrInvalidBlockNumber
	ErrInvalidTimestamp
	ErrCompliancePaused
	ErrComplianceTravelRuleMissing
	ErrInvalidEncoding
)

var errorCodeNames = map[ErrorCode]string{
	ErrNone:                        "none",
	ErrInvalidSignature:            "invalid_signature",
	ErrNonceTooLow:                 "nonce_too_low",
	ErrNonceTooHigh:                "nonce_too_high",
	ErrInsufficientBalance:         "insufficient_balance",
	ErrGasLimitExceeded:            "gas_limit_exceeded",
	ErrDataTooLarge:                "data_too_large",
	ErrInvalidChainID:              "invalid_chain_id",
	ErrContractNotFound:            "contract_not_found",
	ErrOutOfGas:                    "out_of_gas",
	ErrStackOverflow:               "stack_overflow",
	ErrRevert:                      "revert",
	ErrSandboxViolation:            "sandbox_violation",
	ErrComplianceKYCMissing:        "compliance_kyc_missing",
	ErrComplianceSanctioned:        "compliance_sanctioned",
	ErrComplianceGeoRestricted:     "compliance_geo_restricted",
	ErrComplianceHoldingLimit:      "compliance_holding_limit",
	ErrComplianceLockup:            "compliance_lockup",
	ErrComplianceProofInvalid:      "compliance_proof_invalid",
	ErrComplianceProofMissing:      "compliance_proof_missing",
	ErrStakingNotAvailable:         "staking_not_available",
	ErrStakeBelowMinimum:           "stake_below_minimum",
	ErrValidatorNotRegistered:      "validator_not_registered",
	ErrNonceOverflow:               "nonce_overflow",
	ErrInvalidParentHash:           "invalid_parent_hash",
	ErrInvalidBlockNumber:          "invalid_block_number",
	ErrInvalidTimestamp:            "invalid_timestamp",
	ErrCompliancePaused:            "compliance_paused",
	ErrComplianceTravelRuleMissing: "compliance_travel_rule_missing",
	ErrInvalidEncoding:             "invalid_encoding",
}

// String renders the error code's stable name. Never includes internal
// addresses, keys, or identity data (spec §7).
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "unknown"
}
