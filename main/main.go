// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Command basalt assembles and runs a single Basalt validator node: it
// resolves configuration through BuildFlagSet/BuildViper into a typed
// config struct, loads the genesis document, opens the durable store, and
// wires the chain/mempool/consensus stack together. It does not implement
// P2P transport; Network is a local stub an embedding process can replace.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basalt-foundation/basalt/chain"
	"github.com/basalt-foundation/basalt/compliance"
	basaltconfig "github.com/basalt-foundation/basalt/config"
	"github.com/basalt-foundation/basalt/consensus"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/execution"
	"github.com/basalt-foundation/basalt/log"
	"github.com/basalt-foundation/basalt/mempool"
	"github.com/basalt-foundation/basalt/store"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

// node bundles the components running inside one process.
type node struct {
	logger     *zap.Logger
	kv         *store.LevelDB
	chainMgr   *chain.Manager
	builder    *chain.Builder
	pool       *mempool.Mempool
	validators *consensus.ValidatorSet
	engine     *consensus.Engine
	rotations  *consensus.KeyRotationManager
}

// stubNetwork logs every outbound consensus message instead of sending it;
// a real deployment swaps this for a transport that dials the other
// committee members.
type stubNetwork struct {
	logger *zap.Logger
}

func (n *stubNetwork) BroadcastProposal(p *consensus.Proposal) {
	n.logger.Debug("broadcast proposal", zap.Uint64("height", p.Block.Header.Number), zap.Uint64("view", p.View))
}

func (n *stubNetwork) SendVote(to types.Address, vote *consensus.Vote) {
	n.logger.Debug("send vote", zap.Uint64("height", vote.Height))
}

func (n *stubNetwork) BroadcastQuorumCert(cert *consensus.QuorumCert) {
	n.logger.Debug("broadcast quorum cert", zap.Uint64("height", cert.Height), zap.Int("phase", int(cert.Phase)))
}

func (n *stubNetwork) BroadcastViewChange(msg *consensus.ViewChangeMsg) {
	n.logger.Debug("broadcast view change")
}

func (n *stubNetwork) BroadcastNewView(msg *consensus.NewViewMsg) {
	n.logger.Debug("broadcast new view")
}

func buildNode(cfg basaltconfig.NodeConfig) (*node, error) {
	logger, err := log.New(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	params := cfg.ChainParams()

	genesisSpec, err := basaltconfig.LoadGenesisSpec(cfg.GenesisFile)
	if err != nil {
		return nil, err
	}
	if cfg.ChainID == 0 && genesisSpec.ChainID != 0 {
		params.ChainID = genesisSpec.ChainID
	}
	genesis, err := genesisSpec.Build(params)
	if err != nil {
		return nil, fmt.Errorf("build genesis: %w", err)
	}

	kv, err := store.OpenLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	chainMgr, err := chain.NewManager(kv, params, genesis.Block, genesis.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("build chain manager: %w", err)
	}

	// The governance system address administers the compliance registry;
	// a production deployment replaces SystemAddress(0x0003) with a
	// governance-owned key via a follow-up transaction.
	registry := compliance.NewRegistry(types.SystemAddress(0x0003))
	gate := compliance.NewGate(registry)
	validator := validation.New(params, gate)
	executor := execution.New(params, execution.NewDeterministicSandbox())
	builder := chain.NewBuilder(params, validator, executor)

	poolCfg := mempool.DefaultConfig()
	if cfg.MempoolPerSenderLimit > 0 {
		poolCfg.PerSenderLimit = cfg.MempoolPerSenderLimit
	}
	if cfg.MempoolGlobalLimit > 0 {
		poolCfg.GlobalLimit = cfg.MempoolGlobalLimit
	}
	if cfg.MempoolReservedLimit > 0 {
		poolCfg.ReservedLimit = cfg.MempoolReservedLimit
	}
	pool := mempool.New(poolCfg, validator, logger)

	network := &stubNetwork{logger: logger}

	self, selfBLS, err := resolveValidatorIdentity(cfg, genesis.Validators)
	if err != nil {
		logger.Warn("running without a local validator identity; node will follow but never propose", zap.Error(err))
	}

	engine := consensus.NewEngine(params, genesis.Validators, chainMgr, builder, pool, network, self, selfBLS, consensus.SystemClock{}, logger)

	return &node{
		logger:     logger,
		kv:         kv,
		chainMgr:   chainMgr,
		builder:    builder,
		pool:       pool,
		validators: genesis.Validators,
		engine:     engine,
		rotations:  consensus.NewKeyRotationManager(params.ActivationWindow),
	}, nil
}

// resolveValidatorIdentity derives the local validator's address and BLS
// secret key from the configured hex seed, matching it against the
// genesis-loaded validator set so the engine's self-address is always one
// of its own committee members.
func resolveValidatorIdentity(cfg basaltconfig.NodeConfig, validators *consensus.ValidatorSet) (types.Address, *crypto.BLSSecretKey, error) {
	var zero types.Address
	if cfg.ValidatorBLSKeyHex == "" {
		return zero, nil, fmt.Errorf("no validator key configured")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(cfg.ValidatorBLSKeyHex, "0x"))
	if err != nil {
		return zero, nil, fmt.Errorf("decode validator key seed: %w", err)
	}
	if len(raw) != 32 {
		return zero, nil, fmt.Errorf("validator key seed must be 32 bytes, got %d", len(raw))
	}
	var seed [32]byte
	copy(seed[:], raw)

	sk, err := crypto.GenerateBLSKey(seed)
	if err != nil {
		return zero, nil, err
	}
	pub := sk.Public()
	for _, v := range validators.Members() {
		if v.BLSKey != nil && string(v.BLSKey.Bytes()) == string(pub.Bytes()) {
			return v.Address, sk, nil
		}
	}
	return zero, nil, fmt.Errorf("configured validator key is not a genesis committee member")
}

func main() {
	fs := basaltconfig.BuildFlagSet()

	root := &cobra.Command{
		Use:                "basalt",
		Short:              "Basalt consensus node",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := basaltconfig.BuildViper(fs, args)
			if err != nil {
				return err
			}
			cfg := basaltconfig.NewNodeConfig(v)

			n, err := buildNode(cfg)
			if err != nil {
				return err
			}
			defer n.kv.Close()

			n.logger.Info("basalt node assembled",
				zap.String("dataDir", cfg.DataDir),
				zap.Uint64("head", n.chainMgr.Head().Number),
				zap.Int("validators", len(n.validators.Members())),
			)

			// Block handling and vote delivery arrive over the P2P
			// transport, out of scope here; a real main loop would select
			// over the transport's inbound channel and call the matching
			// Engine.On* method.
			select {}
		},
	}
	root.Flags().AddFlagSet(fs) // for --help text; actual parsing happens in BuildViper

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
