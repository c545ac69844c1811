// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sync"
	"time"

	"github.com/basalt-foundation/basalt/types"
)

// InitialViewTimeout is the view timer's starting duration (spec §4.8 "View
// change": "initial 2 s").
const InitialViewTimeout = 2 * time.Second

// MaxViewTimeout is the doubling timeout's ceiling (spec §4.8: "doubling
// each consecutive timeout up to 60 s").
const MaxViewTimeout = 60 * time.Second

// LockProof carries a validator's highest-prepared block and its
// certificate, attached to a VIEW-CHANGE message so the next leader can
// safely propose from the most recently locked state (spec §3 "locked
// block"; spec §4.8 "carrying its highest prepared block and lock state").
type LockProof struct {
	Height       uint64
	View         uint64
	Block        *types.Block
	PrepareCert  *QuorumCert
}

// ViewChangeMsg is the wire shape broadcast when a validator's view timer
// expires without a valid proposal (spec §6 "VIEW_CHANGE(newView,
// highestPrepared, lockProof)").
type ViewChangeMsg struct {
	Height   uint64
	NewView  uint64
	Sender   types.Address
	Evidence *LockProof
}

// NewViewMsg is broadcast by the next leader once it collects quorum
// VIEW-CHANGE messages (spec §6 "NEW_VIEW(view, quorumProof)").
type NewViewMsg struct {
	Height      uint64
	View        uint64
	Leader      types.Address
	ViewChanges []*ViewChangeMsg
	// ProposeFrom is the highest locked block among all collected
	// VIEW-CHANGE evidence, the block the new leader must propose from
	// (spec §4.8: "proposes from the highest locked block").
	ProposeFrom *LockProof
}

// ViewTimer tracks the doubling view-change timeout for one height,
// resetting to InitialViewTimeout on every successful (non-timeout)
// advance (spec §4.8: "reset on success").
type ViewTimer struct {
	mu      sync.Mutex
	current time.Duration
}

// NewViewTimer returns a timer starting at InitialViewTimeout.
func NewViewTimer() *ViewTimer {
	return &ViewTimer{current: InitialViewTimeout}
}

// Current returns the timeout duration to arm for the next view.
func (t *ViewTimer) Current() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Timeout doubles the current timeout, capped at MaxViewTimeout, and
// returns the new value — called when a view times out without a valid
// proposal reaching quorum.
func (t *ViewTimer) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.current * 2
	if next > MaxViewTimeout {
		next = MaxViewTimeout
	}
	t.current = next
	return next
}

// Reset restores the timeout to InitialViewTimeout on a successful advance.
func (t *ViewTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = InitialViewTimeout
}

// viewChangeCollector accumulates VIEW-CHANGE messages per (height, newView)
// until quorum is reached.
type viewChangeCollector struct {
	mu  sync.Mutex
	msg map[uint64]map[uint64]map[types.Address]*ViewChangeMsg
}

func newViewChangeCollector() *viewChangeCollector {
	return &viewChangeCollector{msg: make(map[uint64]map[uint64]map[types.Address]*ViewChangeMsg)}
}

// add records msg and returns the full set collected so far for its
// (height, newView) pair.
func (c *viewChangeCollector) add(msg *ViewChangeMsg) []*ViewChangeMsg {
	c.mu.Lock()
	defer c.mu.Unlock()

	byView, ok := c.msg[msg.Height]
	if !ok {
		byView = make(map[uint64]map[types.Address]*ViewChangeMsg)
		c.msg[msg.Height] = byView
	}
	bySender, ok := byView[msg.NewView]
	if !ok {
		bySender = make(map[types.Address]*ViewChangeMsg)
		byView[msg.NewView] = bySender
	}
	bySender[msg.Sender] = msg

	out := make([]*ViewChangeMsg, 0, len(bySender))
	for _, m := range bySender {
		out = append(out, m)
	}
	return out
}

// clear discards every VIEW-CHANGE message recorded for height, called once
// a NEW_VIEW has been issued or the height finalizes.
func (c *viewChangeCollector) clear(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.msg, height)
}

// highestLock scans a set of VIEW-CHANGE messages and returns the evidence
// with the highest lock view (ties keep the first such message), the block the new
// leader must propose from (spec §4.8: "proposes from the highest locked
// block").
func highestLock(msgs []*ViewChangeMsg) *LockProof {
	var best *LockProof
	for _, m := range msgs {
		if m.Evidence == nil {
			continue
		}
		if best == nil || m.Evidence.View > best.View {
			best = m.Evidence
		}
	}
	return best
}
