// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basalt-foundation/basalt/chain"
	"github.com/basalt-foundation/basalt/compliance"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/execution"
	"github.com/basalt-foundation/basalt/mempool"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/trie"
	"github.com/basalt-foundation/basalt/types"
	"github.com/basalt-foundation/basalt/validation"
)

func TestLeaderForViewWeightedRotation(t *testing.T) {
	a := types.Address{0x01}
	b := types.Address{0x02}
	vs := NewValidatorSet([]*ValidatorInfo{
		{Address: a, Stake: types.NewUInt256FromUint64(100), Reputation: 1},
		{Address: b, Stake: types.NewUInt256FromUint64(100), Reputation: 1},
	})
	require.Equal(t, a, vs.LeaderForView(0).Address)
	require.Equal(t, b, vs.LeaderForView(100).Address)
	require.Equal(t, a, vs.LeaderForView(200).Address)
}

func TestQuorumAndFaultTolerance(t *testing.T) {
	members := make([]*ValidatorInfo, 4)
	for i := range members {
		members[i] = &ValidatorInfo{Address: types.Address{byte(i + 1)}, Stake: types.NewUInt256FromUint64(1), Reputation: 1}
	}
	vs := NewValidatorSet(members)
	require.Equal(t, 1, vs.FaultTolerance())
	require.Equal(t, 3, vs.Quorum())
}

func TestReputationBelowFloorExcludesFromWeight(t *testing.T) {
	a := types.Address{0x01}
	vs := NewValidatorSet([]*ValidatorInfo{{Address: a, Stake: types.NewUInt256FromUint64(100), Reputation: 0.1}})
	require.Equal(t, uint64(0), vs.TotalWeight())
	require.Equal(t, 0, vs.EligibleCount())
}

// fixedClock is a deterministic Clock for tests: it always reports the same
// time, and Propose stamps each block at the parent's timestamp + 1 whenever
// the clock is not ahead of the parent, so timestamps still strictly increase.
type fixedClock struct{ millis uint64 }

func (c fixedClock) NowMillis() uint64 { return c.millis }

// msgKind distinguishes the queued wire messages a testNetwork buffers.
type msgKind int

const (
	msgProposal msgKind = iota
	msgVote
	msgCert
)

type queuedMsg struct {
	kind     msgKind
	to       types.Address
	proposal *Proposal
	vote     *Vote
	cert     *QuorumCert
}

// testNetwork is an in-process Network that queues every outbound message
// instead of dispatching it inline, and drains the queue breadth-first via
// pump(). This mirrors how a real asynchronous transport behaves (every
// validator sees a PROPOSAL before anyone's vote is processed) and avoids
// the ordering hazards a naive recursive dispatch would introduce.
type testNetwork struct {
	t       *testing.T
	engines map[types.Address]*Engine
	queue   []queuedMsg
}

func (n *testNetwork) BroadcastProposal(p *Proposal) {
	n.queue = append(n.queue, queuedMsg{kind: msgProposal, proposal: p})
}

func (n *testNetwork) SendVote(to types.Address, vote *Vote) {
	n.queue = append(n.queue, queuedMsg{kind: msgVote, to: to, vote: vote})
}

func (n *testNetwork) BroadcastQuorumCert(cert *QuorumCert) {
	n.queue = append(n.queue, queuedMsg{kind: msgCert, cert: cert})
}

func (n *testNetwork) BroadcastViewChange(*ViewChangeMsg) {}
func (n *testNetwork) BroadcastNewView(*NewViewMsg)       {}

// pump drains every queued message, including ones enqueued by handling an
// earlier one, until the queue is empty.
func (n *testNetwork) pump() {
	for len(n.queue) > 0 {
		m := n.queue[0]
		n.queue = n.queue[1:]
		switch m.kind {
		case msgProposal:
			for _, e := range n.engines {
				_ = e.OnProposal(m.proposal)
			}
		case msgVote:
			e, ok := n.engines[m.to]
			require.True(n.t, ok, "vote addressed to unknown validator")
			if m.vote.Phase == PhasePrepare {
				_, _ = e.OnPrepareVote(m.vote)
			} else {
				_, _ = e.OnPreCommitVote(m.vote)
			}
		case msgCert:
			for _, e := range n.engines {
				if m.cert.Phase == PhasePrepare {
					_ = e.OnPrepareCert(m.cert)
				} else {
					_ = e.OnCommitCert(m.cert)
				}
			}
		}
	}
}

func newTestValidatorIdentities(n int) ([]types.Address, []*crypto.BLSSecretKey, []*crypto.BLSPublicKey) {
	addrs := make([]types.Address, n)
	secrets := make([]*crypto.BLSSecretKey, n)
	pubs := make([]*crypto.BLSPublicKey, n)
	for i := 0; i < n; i++ {
		addrs[i] = types.Address{byte(i + 1)}
		var ikm [32]byte
		ikm[0] = byte(i + 11)
		sk, err := crypto.GenerateBLSKey(ikm)
		if err != nil {
			panic(err)
		}
		secrets[i] = sk
		pubs[i] = sk.Public()
	}
	return addrs, secrets, pubs
}

// newTestValidatorSet returns a fresh ValidatorSet instance with its own
// ValidatorInfo records: each simulated node must own an independent copy
// so that one engine's reputation adjustments never leak into another's.
func newTestValidatorSet(addrs []types.Address, pubs []*crypto.BLSPublicKey) *ValidatorSet {
	members := make([]*ValidatorInfo, len(addrs))
	for i := range addrs {
		members[i] = &ValidatorInfo{
			Address:    addrs[i],
			Stake:      types.NewUInt256FromUint64(1000),
			BLSKey:     pubs[i],
			Reputation: 1,
		}
	}
	return NewValidatorSet(members)
}

func newTestEngineComponents(t *testing.T, params types.ChainParams) (*chain.Manager, *chain.Builder, *mempool.Mempool) {
	t.Helper()
	gate := compliance.NewGate(compliance.NewRegistry(types.Address{0xFF}))
	v := validation.New(params, gate)
	ex := execution.New(params, execution.NewDeterministicSandbox())
	builder := chain.NewBuilder(params, v, ex)

	genesisDB := state.New(trie.NewMemStore())
	genesis := types.Block{Header: types.BlockHeader{
		Number:   0,
		ChainID:  params.ChainID,
		BaseFee:  params.InitialBaseFee,
		GasLimit: params.BlockGasLimit,
	}}
	mgr, err := chain.NewManager(nil, params, genesis, genesisDB, nil)
	require.NoError(t, err)

	pool := mempool.New(mempool.DefaultConfig(), v, nil)
	return mgr, builder, pool
}

// newTestCluster wires n independent Engines, each with its own chain
// manager/state/mempool but sharing one testNetwork, simulating n separate
// validator processes.
func newTestCluster(t *testing.T, n int) (*testNetwork, []*Engine, []types.Address) {
	t.Helper()
	params := types.DefaultChainParams()
	addrs, secrets, pubs := newTestValidatorIdentities(n)

	network := &testNetwork{t: t, engines: make(map[types.Address]*Engine, n)}
	clock := fixedClock{millis: 1_000}

	engines := make([]*Engine, n)
	for i := 0; i < n; i++ {
		vs := newTestValidatorSet(addrs, pubs)
		mgr, builder, pool := newTestEngineComponents(t, params)
		e := NewEngine(params, vs, mgr, builder, pool, network, addrs[i], secrets[i], clock, nil)
		engines[i] = e
		network.engines[addrs[i]] = e
	}
	return network, engines, addrs
}

func TestEnginePipelineFinalizesAcrossFourValidators(t *testing.T) {
	network, engines, addrs := newTestCluster(t, 4)

	proposal, err := engines[0].Propose(1, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), proposal.Block.Header.Number)
	require.Equal(t, addrs[0], proposal.Block.Header.Proposer)

	network.pump()

	for i, e := range engines {
		head := e.chainMgr.Head()
		require.Equalf(t, uint64(1), head.Number, "validator %d did not finalize height 1", i)
		require.Equal(t, proposal.Block.Header.Hash(), head.Hash())
		require.NotEmpty(t, head.BLSAggregateSignature, "validator %d missing finality certificate", i)
	}
}

func TestEngineRejectsProposalFromNonLeader(t *testing.T) {
	_, engines, _ := newTestCluster(t, 4)

	// addrs[0] is the weighted leader for view 0 (equal stake, address
	// order breaks the tie); addrs[1] must refuse to propose.
	_, err := engines[1].Propose(1, 0)
	require.ErrorIs(t, err, ErrNotLeader)
}

func TestEngineAdvancesSequentialHeights(t *testing.T) {
	network, engines, _ := newTestCluster(t, 4)

	_, err := engines[0].Propose(1, 0)
	require.NoError(t, err)
	network.pump()

	for _, e := range engines {
		require.Equal(t, uint64(1), e.chainMgr.Head().Number)
	}

	_, err = engines[0].Propose(2, 0)
	require.NoError(t, err)
	network.pump()

	for i, e := range engines {
		require.Equalf(t, uint64(2), e.chainMgr.Head().Number, "validator %d did not reach height 2", i)
	}
}

func TestViewTimerDoublesAndResets(t *testing.T) {
	timer := NewViewTimer()
	require.Equal(t, InitialViewTimeout, timer.Current())
	require.Equal(t, 2*InitialViewTimeout, timer.Timeout())
	require.Equal(t, 4*InitialViewTimeout, timer.Timeout())
	timer.Reset()
	require.Equal(t, InitialViewTimeout, timer.Current())
}

func TestEvidenceTrackerDetectsEquivocation(t *testing.T) {
	tracker := NewEvidenceTracker()
	signer := types.Address{0x01}
	var ikm [32]byte
	ikm[0] = 0x42
	sk, err := crypto.GenerateBLSKey(ikm)
	require.NoError(t, err)

	hashA := crypto.Blake3([]byte("a"))
	hashB := crypto.Blake3([]byte("b"))
	voteA := &Vote{Phase: PhasePrepare, Height: 5, View: 0, BlockHash: hashA, Signer: signer,
		Signature: sk.Sign(VoteSigningPayload(PhasePrepare, 5, 0, hashA))}
	voteB := &Vote{Phase: PhasePrepare, Height: 5, View: 0, BlockHash: hashB, Signer: signer,
		Signature: sk.Sign(VoteSigningPayload(PhasePrepare, 5, 0, hashB))}

	_, conflict := tracker.Observe(voteA)
	require.False(t, conflict)

	evidence, conflict := tracker.Observe(voteB)
	require.True(t, conflict)
	require.Equal(t, signer, evidence.Validator)
	require.Equal(t, voteA.BlockHash, evidence.BlockHashA)
	require.Equal(t, voteB.BlockHash, evidence.BlockHashB)

	vs := NewValidatorSet([]*ValidatorInfo{{Address: signer, BLSKey: sk.Public(), Reputation: 1, Stake: types.NewUInt256FromUint64(1)}})
	require.True(t, VerifyEvidence(vs, *evidence))
}
