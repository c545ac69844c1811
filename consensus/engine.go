// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basalt-foundation/basalt/chain"
	"github.com/basalt-foundation/basalt/crypto"
	"github.com/basalt-foundation/basalt/log"
	"github.com/basalt-foundation/basalt/mempool"
	"github.com/basalt-foundation/basalt/state"
	"github.com/basalt-foundation/basalt/types"
)

// Engine drives the pipelined three-phase BFT protocol (spec §4.8): leader
// proposal, PREPARE/PRE-COMMIT/COMMIT quorum collection over BLS-aggregated
// votes, view-change, and finality emission. Phase pipelining overlaps
// adjacent heights (height N can be in Commit while N+1 is in PreCommit and
// N+2 in Prepare), so Engine keeps one roundState per in-flight height
// rather than a single global phase.
//
// Consensus message handling is the "async-style continuation" spec §9
// maps onto an event loop over typed channels: an outer driver (out of
// scope here, per spec §1's P2P exclusion) receives PROPOSAL/VOTE/
// VIEW_CHANGE/NEW_VIEW messages off the wire and calls the matching On*
// method; Engine itself holds no socket and spawns no goroutines.
type Engine struct {
	mu sync.Mutex

	logger *zap.Logger
	params types.ChainParams
	clock  Clock

	validators *ValidatorSet
	chainMgr   *chain.Manager
	builder    *chain.Builder
	pool       *mempool.Mempool
	network    Network
	evidence   *EvidenceTracker

	self    types.Address
	selfBLS *crypto.BLSSecretKey

	rounds      map[uint64]*roundState
	timers      map[uint64]*ViewTimer
	viewChanges *viewChangeCollector
}

// Clock supplies the block timestamp a leader stamps onto its proposal.
// Consensus votes and state roots never depend on it beyond strict
// monotonicity (spec §9 Open Question (iii): wall-clock values never enter
// anything hashed except as this single per-block timestamp field).
type Clock interface {
	NowMillis() uint64
}

// SystemClock is the real wall-clock Clock implementation.
type SystemClock struct{}

// NowMillis returns the current time in Unix milliseconds.
func (SystemClock) NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Network is the set of outbound consensus wire messages (spec §6) Engine
// emits; an external P2P layer (out of scope per spec §1) implements
// delivery.
type Network interface {
	BroadcastProposal(p *Proposal)
	SendVote(to types.Address, vote *Vote)
	BroadcastQuorumCert(cert *QuorumCert)
	BroadcastViewChange(msg *ViewChangeMsg)
	BroadcastNewView(msg *NewViewMsg)
}

// Proposal is the wire shape a leader broadcasts for a view (spec §6
// "PROPOSAL(view, block)").
type Proposal struct {
	View  uint64
	Block types.Block
}

// roundState is the consensus state for one height, pipelined independently
// of its neighbors (spec §3 "Consensus view state").
type roundState struct {
	height uint64
	view   uint64
	phase  Phase

	block    *types.Block
	receipts []types.Receipt
	fork     *state.DB

	prepareVotes   map[types.Address]*Vote
	preCommitVotes map[types.Address]*Vote
	prepareCert    *QuorumCert
	preCommitCert  *QuorumCert

	locked bool
}

func newRoundState(height uint64) *roundState {
	return &roundState{
		height:         height,
		phase:          PhasePropose,
		prepareVotes:   make(map[types.Address]*Vote),
		preCommitVotes: make(map[types.Address]*Vote),
	}
}

// Errors returned by Engine's On* handlers; these are protocol-level
// rejections (drop and await timeout), never fatal per spec §7.
var (
	ErrNotLeader    = errors.New("consensus: local validator is not the leader for this view")
	ErrUnknownRound = errors.New("consensus: no round state for this height")
	ErrRootMismatch = errors.New("consensus: re-executed roots do not match the proposal")
)

// NewEngine wires an Engine for the local validator identified by (self,
// selfBLS).
func NewEngine(
	params types.ChainParams,
	validators *ValidatorSet,
	chainMgr *chain.Manager,
	builder *chain.Builder,
	pool *mempool.Mempool,
	network Network,
	self types.Address,
	selfBLS *crypto.BLSSecretKey,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		logger:      logger,
		params:      params,
		clock:       clock,
		validators:  validators,
		chainMgr:    chainMgr,
		builder:     builder,
		pool:        pool,
		network:     network,
		evidence:    NewEvidenceTracker(),
		self:        self,
		selfBLS:     selfBLS,
		rounds:      make(map[uint64]*roundState),
		timers:      make(map[uint64]*ViewTimer),
		viewChanges: newViewChangeCollector(),
	}
}

// round returns (creating if absent) the round state for height.
func (e *Engine) round(height uint64) *roundState {
	r, ok := e.rounds[height]
	if !ok {
		r = newRoundState(height)
		e.rounds[height] = r
	}
	return r
}

// timer returns (creating if absent) the view timer for height.
func (e *Engine) timer(height uint64) *ViewTimer {
	t, ok := e.timers[height]
	if !ok {
		t = NewViewTimer()
		e.timers[height] = t
	}
	return t
}

// parentContext resolves the header and state a height's candidate block
// must build on: the chain manager's committed head for the next height in
// line, or the still-speculative fork left by the immediately preceding
// in-flight round when the pipeline is more than one height deep.
func (e *Engine) parentContext(height uint64) (types.BlockHeader, *state.DB, bool) {
	head := e.chainMgr.Head()
	if height == head.Number+1 {
		return head, e.chainMgr.HeadState(), true
	}
	prior, ok := e.rounds[height-1]
	if !ok || prior.block == nil || prior.fork == nil {
		return types.BlockHeader{}, nil, false
	}
	return prior.block.Header, prior.fork, true
}

// Propose builds a candidate block for (height, view) from the mempool's
// pending set and broadcasts it, if the local validator is the leader for
// view (spec §4.8 step 1 "Propose").
func (e *Engine) Propose(height, view uint64) (*Proposal, error) {
	e.mu.Lock()

	leader := e.validators.LeaderForView(view)
	if leader == nil || leader.Address != e.self {
		e.mu.Unlock()
		return nil, ErrNotLeader
	}

	parentHeader, parentState, ok := e.parentContext(height)
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownRound
	}

	baseFee := chain.NextBaseFee(e.params, parentHeader.BaseFee, parentHeader.GasUsed, parentHeader.GasLimit)
	candidates := e.pool.Pending(parentState, baseFee)

	timestamp := e.clock.NowMillis()
	if timestamp <= parentHeader.Timestamp {
		timestamp = parentHeader.Timestamp + 1
	}

	result, fork := e.builder.Build(parentHeader, candidates, e.self, parentState, timestamp)

	r := e.round(height)
	r.view = view
	r.phase = PhasePrepare
	r.block = &result.Block
	r.receipts = result.Receipts
	r.fork = fork
	e.mu.Unlock()

	// Broadcasting happens with the lock released: a synchronous transport
	// that delivers straight back into this same Engine (as the leader
	// itself voting on its own proposal, for instance) must never re-enter
	// a held, non-reentrant mutex.
	proposal := &Proposal{View: view, Block: result.Block}
	e.network.BroadcastProposal(proposal)
	e.logger.Info("consensus: proposed block",
		zap.Uint64("height", height), zap.Uint64("view", view),
		zap.Stringer("hash", result.Block.Header.Hash()))
	return proposal, nil
}

// OnProposal re-executes a received proposal against the local state view
// and, if every recomputed root and the header hash match, signs and sends
// a PREPARE vote to the proposal's leader (spec §4.8 step 2 "Prepare").
func (e *Engine) OnProposal(p *Proposal) error {
	e.mu.Lock()

	height := p.Block.Header.Number
	leader := e.validators.LeaderForView(p.View)
	if leader == nil || leader.Address != p.Block.Header.Proposer {
		e.mu.Unlock()
		return ErrNotLeader
	}

	parentHeader, parentState, ok := e.parentContext(height)
	if !ok {
		e.mu.Unlock()
		return ErrUnknownRound
	}

	result, fork := e.builder.Build(parentHeader, p.Block.Transactions, p.Block.Header.Proposer, parentState, p.Block.Header.Timestamp)
	if result.Block.Header.Hash() != p.Block.Header.Hash() ||
		result.Block.Header.StateRoot != p.Block.Header.StateRoot ||
		result.Block.Header.TransactionsRoot != p.Block.Header.TransactionsRoot ||
		result.Block.Header.ReceiptsRoot != p.Block.Header.ReceiptsRoot ||
		result.Block.Header.GasUsed != p.Block.Header.GasUsed {
		e.validators.PenalizeInvalidProposal(leader.Address)
		e.mu.Unlock()
		e.logger.Warn("consensus: dropping proposal with mismatched roots",
			zap.Uint64("height", height), zap.Stringer("proposer", leader.Address))
		return ErrRootMismatch
	}

	r := e.round(height)
	r.view = p.View
	r.phase = PhasePrepare
	r.block = &result.Block
	r.receipts = result.Receipts
	r.fork = fork

	vote := e.signVote(PhasePrepare, height, p.View, p.Block.Header.Hash())
	if ev, conflict := e.evidence.Observe(vote); conflict {
		e.logger.Error("consensus: observed equivocating PREPARE vote",
			zap.Stringer("validator", ev.Validator), zap.Uint64("height", ev.Height))
	}
	e.timer(height).Reset()
	e.mu.Unlock()

	e.network.SendVote(leader.Address, vote)
	return nil
}

// signVote produces a Vote for the given ballot, signed with the local
// validator's BLS key.
func (e *Engine) signVote(phase Phase, height, view uint64, blockHash crypto.Hash256) *Vote {
	payload := VoteSigningPayload(phase, height, view, blockHash)
	return &Vote{
		Phase:     phase,
		Height:    height,
		View:      view,
		BlockHash: blockHash,
		Signer:    e.self,
		Signature: e.selfBLS.Sign(payload),
	}
}

// OnPrepareVote is the leader-side handler collecting PREPARE votes. Once
// quorum is reached it aggregates them and broadcasts the certificate as
// PRE-COMMIT (spec §4.8 step 3).
func (e *Engine) OnPrepareVote(vote *Vote) (*QuorumCert, error) {
	return e.collectVote(vote, PhasePrepare)
}

// OnPreCommitVote is the leader-side handler collecting PRE-COMMIT votes.
// Once quorum is reached it aggregates them into the final commit proof and
// broadcasts it as COMMIT (spec §4.8 step 4).
func (e *Engine) OnPreCommitVote(vote *Vote) (*QuorumCert, error) {
	return e.collectVote(vote, PhasePreCommit)
}

func (e *Engine) collectVote(vote *Vote, phase Phase) (*QuorumCert, error) {
	if vote.Phase != phase {
		return nil, errors.New("consensus: vote phase mismatch")
	}

	e.mu.Lock()

	leader := e.validators.LeaderForView(vote.View)
	if leader == nil || leader.Address != e.self {
		e.mu.Unlock()
		return nil, ErrNotLeader
	}

	r, ok := e.rounds[vote.Height]
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownRound
	}
	if ev, conflict := e.evidence.Observe(vote); conflict {
		e.logger.Error("consensus: observed equivocating vote", zap.Stringer("validator", ev.Validator))
	}

	var votes map[types.Address]*Vote
	if phase == PhasePrepare {
		votes = r.prepareVotes
	} else {
		votes = r.preCommitVotes
	}
	votes[vote.Signer] = vote

	quorum := e.validators.Quorum()
	list := make([]*Vote, 0, len(votes))
	for _, v := range votes {
		if v.BlockHash == vote.BlockHash {
			list = append(list, v)
		}
	}
	if len(list) < quorum {
		e.mu.Unlock()
		return nil, nil
	}

	cert, err := Aggregate(list, quorum)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	if phase == PhasePrepare {
		r.prepareCert = cert
	} else {
		r.preCommitCert = cert
	}
	e.mu.Unlock()

	e.network.BroadcastQuorumCert(cert)
	return cert, nil
}

// OnPrepareCert is the validator-side handler for a leader's aggregated
// PREPARE certificate: if it verifies, the validator locks the block and
// emits a PRE-COMMIT vote (spec §4.8 step 3).
func (e *Engine) OnPrepareCert(cert *QuorumCert) error {
	if cert.Phase != PhasePrepare {
		return errors.New("consensus: certificate phase mismatch")
	}
	e.mu.Lock()

	quorum := e.validators.Quorum()
	if !cert.Verify(e.validators, quorum) {
		e.mu.Unlock()
		return errors.New("consensus: invalid prepare quorum certificate")
	}

	r, ok := e.rounds[cert.Height]
	if !ok || r.block == nil || r.block.Header.Hash() != cert.BlockHash {
		e.mu.Unlock()
		return ErrUnknownRound
	}
	r.prepareCert = cert
	r.phase = PhasePreCommit
	r.locked = true

	leader := e.validators.LeaderForView(cert.View)
	if leader == nil {
		e.mu.Unlock()
		return ErrNotLeader
	}
	vote := e.signVote(PhasePreCommit, cert.Height, cert.View, cert.BlockHash)
	e.mu.Unlock()

	e.network.SendVote(leader.Address, vote)
	return nil
}

// OnCommitCert is the validator-side handler for a leader's aggregated
// PRE-COMMIT certificate (the final commit proof): it finalizes the block
// irreversibly (spec §4.8 step 4, "Finality").
func (e *Engine) OnCommitCert(cert *QuorumCert) error {
	if cert.Phase != PhasePreCommit {
		return errors.New("consensus: certificate phase mismatch")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	quorum := e.validators.Quorum()
	if !cert.Verify(e.validators, quorum) {
		return errors.New("consensus: invalid commit quorum certificate")
	}

	r, ok := e.rounds[cert.Height]
	if !ok || r.block == nil || r.block.Header.Hash() != cert.BlockHash {
		return ErrUnknownRound
	}

	finalHeader := r.block.Header
	finalHeader.BLSAggregateSignature = cert.Aggregate.Bytes()
	finalHeader.SignerBitfield = buildSignerBitfield(e.validators, cert.Signers)
	finalBlock := types.Block{
		Header:           finalHeader,
		Transactions:     r.block.Transactions,
		SlashingEvidence: r.block.SlashingEvidence,
	}

	if err := e.chainMgr.Append(finalBlock, r.receipts, r.fork); err != nil {
		return err
	}
	e.pool.RemoveMined(finalBlock.Transactions)
	e.validators.RewardProposal(finalBlock.Header.Proposer)

	delete(e.rounds, cert.Height)
	delete(e.timers, cert.Height)
	e.viewChanges.clear(cert.Height)

	e.logger.Info("consensus: finalized block",
		zap.Uint64("height", cert.Height), zap.Stringer("hash", cert.BlockHash))
	return nil
}

// OnViewTimeout is called by the outer driver when height's view timer
// expires without a valid proposal reaching quorum; it penalizes the
// timed-out leader, doubles the view timeout, and broadcasts a VIEW-CHANGE
// message carrying the round's lock state (spec §4.8 "View change").
func (e *Engine) OnViewTimeout(height uint64) *ViewChangeMsg {
	e.mu.Lock()

	r := e.round(height)
	if leader := e.validators.LeaderForView(r.view); leader != nil {
		e.validators.PenalizeTimeout(leader.Address)
	}
	e.timer(height).Timeout()

	var evidence *LockProof
	if r.locked && r.block != nil {
		evidence = &LockProof{Height: height, View: r.view, Block: r.block, PrepareCert: r.prepareCert}
	}
	msg := &ViewChangeMsg{Height: height, NewView: r.view + 1, Sender: e.self, Evidence: evidence}
	e.mu.Unlock()

	e.network.BroadcastViewChange(msg)
	return msg
}

// OnViewChange collects VIEW-CHANGE messages; once quorum is reached and
// the local validator is the next leader, it broadcasts NEW_VIEW (spec
// §4.8: "On collecting 2f+1 VIEW-CHANGE messages for view V+1, the next
// leader ... broadcasts NEW-VIEW").
func (e *Engine) OnViewChange(msg *ViewChangeMsg) *NewViewMsg {
	collected := e.viewChanges.add(msg)

	e.mu.Lock()

	if len(collected) < e.validators.Quorum() {
		e.mu.Unlock()
		return nil
	}
	leader := e.validators.LeaderForView(msg.NewView)
	if leader == nil || leader.Address != e.self {
		e.mu.Unlock()
		return nil
	}

	newViewMsg := &NewViewMsg{
		Height:      msg.Height,
		View:        msg.NewView,
		Leader:      e.self,
		ViewChanges: collected,
		ProposeFrom: highestLock(collected),
	}
	e.viewChanges.clear(msg.Height)

	r := e.round(msg.Height)
	r.view = msg.NewView
	e.timer(msg.Height).Reset()
	e.mu.Unlock()

	e.network.BroadcastNewView(newViewMsg)
	return newViewMsg
}

// OnNewView advances the local round to the new view once the next leader's
// NEW_VIEW evidence is observed. Individual VIEW-CHANGE authenticity here
// is delivered by the transport layer (spec §1 places P2P out of scope);
// Engine trusts the message once it carries at least quorum entries.
func (e *Engine) OnNewView(msg *NewViewMsg) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(msg.ViewChanges) < e.validators.Quorum() {
		return errors.New("consensus: new-view evidence below quorum")
	}
	r := e.round(msg.Height)
	r.view = msg.View
	e.timer(msg.Height).Reset()
	return nil
}

// buildSignerBitfield encodes signers as a bitfield indexed by validators'
// deterministic (address-sorted) member order (spec §3 "signer bitfield").
func buildSignerBitfield(vs *ValidatorSet, signers []types.Address) []byte {
	members := vs.Members()
	index := make(map[types.Address]int, len(members))
	for i, m := range members {
		index[m.Address] = i
	}
	bitfield := make([]byte, (len(members)+7)/8)
	for _, s := range signers {
		if i, ok := index[s]; ok {
			bitfield[i/8] |= 1 << uint(i%8)
		}
	}
	return bitfield
}
