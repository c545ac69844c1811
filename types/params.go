// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package types

// ChainParams is the set of consensus parameters every validating node must
// agree on, fixed at genesis (spec §6 "Genesis configuration") and
// referenced by the validator, executor, and block builder.
type ChainParams struct {
	ChainID            uint32
	InitialBaseFee     UInt256
	BlockGasLimit      uint64
	MinGasPrice        UInt256
	MinValidatorStake  UInt256
	UnbondingPeriod    uint64 // blocks
	KeyRotationEpoch   uint64 // blocks
	ActivationWindow   uint64 // blocks
	RetainedBodies     uint64
	ElasticityMultiple uint64 // targetGas = gasLimit / ElasticityMultiple
	BaseFeeDenominator uint64 // bounds base fee adjustment to +/- 1/denominator
}

// DefaultChainParams returns the parameter set used by tests and the bundled
// local genesis, matching the scenario constants in spec §8.
func DefaultChainParams() ChainParams {
	return ChainParams{
		ChainID:            31337,
		InitialBaseFee:     NewUInt256FromUint64(1_000_000_000),
		BlockGasLimit:      30_000_000,
		MinGasPrice:        NewUInt256FromUint64(1),
		MinValidatorStake:  NewUInt256FromUint64(32_000_000),
		UnbondingPeriod:    100_800, // ~ 14 days at 12s blocks
		KeyRotationEpoch:   201_600,
		ActivationWindow:   6_646,
		RetainedBodies:     128,
		ElasticityMultiple: 2,
		BaseFeeDenominator: 8,
	}
}
