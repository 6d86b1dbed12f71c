// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import (
	"time"

	"github.com/kaonchain/kaon/co"
)

// step is the position of the engine inside a round.
type step uint8

const (
	stepNewRound step = iota
	stepPropose
	stepPrevote
	stepPrevoteWait
	stepPrecommit
	stepPrecommitWait
	stepCommit
)

func (s step) String() string {
	switch s {
	case stepNewRound:
		return "newRound"
	case stepPropose:
		return "propose"
	case stepPrevote:
		return "prevote"
	case stepPrevoteWait:
		return "prevoteWait"
	case stepPrecommit:
		return "precommit"
	case stepPrecommitWait:
		return "precommitWait"
	case stepCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// TimeoutConfig bounds the waits of each round step. Each round adds its
// delta once more, so stuck heights back off instead of spinning.
type TimeoutConfig struct {
	Propose        time.Duration
	ProposeDelta   time.Duration
	Prevote        time.Duration
	PrevoteDelta   time.Duration
	Precommit      time.Duration
	PrecommitDelta time.Duration
	// Commit is the pause after a commit before entering the next
	// height, giving slow validators a chance to catch up.
	Commit time.Duration
}

// DefaultTimeoutConfig returns the stock timeout schedule.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Propose:        3 * time.Second,
		ProposeDelta:   500 * time.Millisecond,
		Prevote:        time.Second,
		PrevoteDelta:   500 * time.Millisecond,
		Precommit:      time.Second,
		PrecommitDelta: 500 * time.Millisecond,
		Commit:         time.Second,
	}
}

func (c TimeoutConfig) duration(s step, round uint32) time.Duration {
	switch s {
	case stepPropose:
		return c.Propose + time.Duration(round)*c.ProposeDelta
	case stepPrevoteWait:
		return c.Prevote + time.Duration(round)*c.PrevoteDelta
	case stepPrecommitWait:
		return c.Precommit + time.Duration(round)*c.PrecommitDelta
	case stepNewRound:
		return c.Commit
	default:
		return time.Second
	}
}

// timeoutInfo identifies the wait that expired.
type timeoutInfo struct {
	Height uint64
	Round  uint32
	Step   step
}

// timeoutTicker delivers at most one pending timeout; scheduling a new
// one supersedes the previous, which matches the engine only ever waiting
// on its current step.
type timeoutTicker struct {
	config TimeoutConfig
	tickCh chan timeoutInfo
	tockCh chan timeoutInfo
	stopCh chan struct{}
	goes   co.Goes
}

func newTimeoutTicker(config TimeoutConfig) *timeoutTicker {
	t := &timeoutTicker{
		config: config,
		tickCh: make(chan timeoutInfo, 16),
		tockCh: make(chan timeoutInfo, 16),
		stopCh: make(chan struct{}),
	}
	t.goes.Go(t.run)
	return t
}

func (t *timeoutTicker) Stop() {
	close(t.stopCh)
	t.goes.Wait()
}

// C delivers expired timeouts.
func (t *timeoutTicker) C() <-chan timeoutInfo {
	return t.tockCh
}

// Schedule arms the timer for the given step, superseding any pending one.
func (t *timeoutTicker) Schedule(ti timeoutInfo) {
	select {
	case t.tickCh <- ti:
	case <-t.stopCh:
	}
}

func (t *timeoutTicker) run() {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending timeoutInfo
	armed := false
	for {
		select {
		case <-t.stopCh:
			return
		case ti := <-t.tickCh:
			if armed && !timer.Stop() {
				<-timer.C
			}
			pending = ti
			timer.Reset(t.config.duration(ti.Step, ti.Round))
			armed = true
		case <-timer.C:
			armed = false
			select {
			case t.tockCh <- pending:
			case <-t.stopCh:
				return
			}
		}
	}
}
