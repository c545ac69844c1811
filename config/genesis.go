// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basalt-foundation/basalt/consensus"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
)

// GenesisAllocation seeds one account's starting balance.
type GenesisAllocation struct {
	Address string `yaml:"address"`
	Balance uint64 `yaml:"balance"`
}

// GenesisValidator seeds one member of the genesis validator set.
type GenesisValidator struct {
	Address   string `yaml:"address"`
	Stake     uint64 `yaml:"stake"`
	BLSPubKey string `yaml:"blsPublicKey"`
}

// GenesisSpec is the on-disk genesis document: chain parameters, initial
// balances, and the starting validator committee, decoded with yaml.v3 —
// genesis is a config artifact, not a wire message, so it uses the node's
// config-file codec rather than the canonical binary codec.
type GenesisSpec struct {
	ChainID        uint32              `yaml:"chainID"`
	InitialBaseFee uint64              `yaml:"initialBaseFee"`
	Timestamp      uint64              `yaml:"timestamp"`
	Allocations    []GenesisAllocation `yaml:"allocations"`
	Validators     []GenesisValidator  `yaml:"validators"`
}

// LoadGenesisSpec reads and decodes the genesis document at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis file: %w", err)
	}
	var spec GenesisSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("config: decode genesis file: %w", err)
	}
	return &spec, nil
}

func parseAddress(s string) (types.Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("config: invalid address %q: %w", s, err)
	}
	return types.BytesToAddress(b), nil
}

func parseBLSPublicKey(s string) (*crypto.BLSPublicKey, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("config: invalid bls public key %q: %w", s, err)
	}
	return crypto.BLSPublicKeyFromBytes(b)
}

// Genesis is a GenesisSpec resolved into the runtime objects a node boots
// from: a sealed genesis block, the state DB it describes, and the
// starting validator set.
type Genesis struct {
	Block      types.Block
	DB         *state.DB
	Validators *consensus.ValidatorSet
}

// Build resolves spec into a Genesis, parsing every hex-encoded identifier
// and crediting every allocation into a fresh state DB.
func (spec *GenesisSpec) Build(params types.ChainParams) (*Genesis, error) {
	db := state.New(trie.NewMemStore())

	for _, alloc := range spec.Allocations {
		addr, err := parseAddress(alloc.Address)
		if err != nil {
			return nil, err
		}
		acc := types.NewAccountState()
		acc.Balance = types.NewUInt256FromUint64(alloc.Balance)
		if err := db.PutAccount(addr, acc); err != nil {
			return nil, fmt.Errorf("config: allocate %s: %w", alloc.Address, err)
		}
	}

	members := make([]*consensus.ValidatorInfo, 0, len(spec.Validators))
	for _, val := range spec.Validators {
		addr, err := parseAddress(val.Address)
		if err != nil {
			return nil, err
		}
		pub, err := parseBLSPublicKey(val.BLSPubKey)
		if err != nil {
			return nil, err
		}
		members = append(members, &consensus.ValidatorInfo{
			Address:    addr,
			Stake:      types.NewUInt256FromUint64(val.Stake),
			BLSKey:     pub,
			Reputation: 1,
		})

		acc, found, err := db.GetAccount(addr)
		if err != nil {
			return nil, err
		}
		if !found {
			acc = types.NewAccountState()
		}
		acc.Kind = types.AccountValidator
		if err := db.PutAccount(addr, acc); err != nil {
			return nil, err
		}
	}

	baseFee := params.InitialBaseFee
	if spec.InitialBaseFee != 0 {
		baseFee = types.NewUInt256FromUint64(spec.InitialBaseFee)
	}

	block := types.Block{Header: types.BlockHeader{
		Version:   1,
		Number:    0,
		ChainID:   params.ChainID,
		Timestamp: spec.Timestamp,
		BaseFee:   baseFee,
		GasLimit:  params.BlockGasLimit,
		StateRoot: db.Root(),
	}}

	return &Genesis{
		Block:      block,
		DB:         db,
		Validators: consensus.NewValidatorSet(members),
	}, nil
}
