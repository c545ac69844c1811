// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds a running node's configuration from command-line
// flags, environment variables, and an optional config file, layered via
// viper over a pflag.FlagSet (the same BuildFlagSet/BuildViper shape the
// node's teacher codebase uses), plus a YAML genesis document decoded with
// yaml.v3.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/basalt-foundation/basalt/types"
)

// Flag names, grouped the way BuildFlagSet registers them.
const (
	keyDataDir         = "data-dir"
	keyListenAddr      = "listen-addr"
	keyLogLevel        = "log-level"
	keyLogJSON         = "log-json"
	keyGenesisFile     = "genesis-file"
	keyChainID         = "chain-id"
	keyPerSenderLimit  = "mempool-per-sender-limit"
	keyGlobalLimit     = "mempool-global-limit"
	keyReservedLimit   = "mempool-reserved-limit"
	keyValidatorBLSHex = "validator-bls-key"
)

// BuildFlagSet registers every node flag with its default value, mirroring
// the distinct-function-per-flagset convention the node's flag/viper
// wiring follows.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("basalt", pflag.ContinueOnError)

	fs.String(keyDataDir, "./basalt-data", "directory holding the node's LevelDB state")
	fs.String(keyListenAddr, "0.0.0.0:9651", "P2P listen address")
	fs.String(keyLogLevel, "info", "log level: debug, info, warn, error")
	fs.Bool(keyLogJSON, false, "emit structured logs as JSON instead of console format")
	fs.String(keyGenesisFile, "./genesis.yaml", "path to the genesis document")
	fs.Uint32(keyChainID, 0, "override the genesis chain ID (0 keeps the genesis value)")
	fs.Int(keyPerSenderLimit, 0, "mempool per-sender queue limit (0 keeps the package default)")
	fs.Int(keyGlobalLimit, 0, "mempool global capacity (0 keeps the package default)")
	fs.Int(keyReservedLimit, 0, "mempool reserved sub-pool capacity (0 keeps the package default)")
	fs.String(keyValidatorBLSHex, "", "hex-encoded BLS secret key seed for this validator, if running as one")

	return fs
}

// BuildViper parses args against fs and layers a Viper instance over it:
// flags take precedence, then BASALT_-prefixed environment variables, then
// defaults. It does not itself read a config file; LoadGenesisSpec reads the
// genesis file separately since that document has its own schema (decoded
// via yaml.v3, not viper's generic config-file support).
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("BASALT")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}
	return v, nil
}

// NodeConfig is a running node's full resolved configuration.
type NodeConfig struct {
	DataDir     string
	ListenAddr  string
	LogLevel    string
	LogJSON     bool
	GenesisFile string
	ChainID     uint32

	MempoolPerSenderLimit int
	MempoolGlobalLimit    int
	MempoolReservedLimit  int

	ValidatorBLSKeyHex string
}

// NewNodeConfig resolves v's bound flags into a NodeConfig.
func NewNodeConfig(v *viper.Viper) NodeConfig {
	return NodeConfig{
		DataDir:     v.GetString(keyDataDir),
		ListenAddr:  v.GetString(keyListenAddr),
		LogLevel:    v.GetString(keyLogLevel),
		LogJSON:     v.GetBool(keyLogJSON),
		GenesisFile: v.GetString(keyGenesisFile),
		ChainID:     v.GetUint32(keyChainID),

		MempoolPerSenderLimit: v.GetInt(keyPerSenderLimit),
		MempoolGlobalLimit:    v.GetInt(keyGlobalLimit),
		MempoolReservedLimit:  v.GetInt(keyReservedLimit),

		ValidatorBLSKeyHex: v.GetString(keyValidatorBLSHex),
	}
}

// ChainParams resolves the node's effective chain parameters: the package
// defaults, with any non-zero flag override applied on top.
func (c NodeConfig) ChainParams() types.ChainParams {
	params := types.DefaultChainParams()
	if c.ChainID != 0 {
		params.ChainID = c.ChainID
	}
	return params
}
