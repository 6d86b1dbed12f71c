// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package health reports node liveness from the chain head: a
// validator that stopped committing is unhealthy even when its http
// surface still answers.
package health

import (
	"sync"
	"time"

	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
)

// DefaultMaxHeadAge is how stale the chain head may grow before the
// node reports unhealthy. Solo networks commit every round, so a
// minute covers several stuck rounds worth of timeouts.
const DefaultMaxHeadAge = time.Minute

// Status is the JSON health report.
type Status struct {
	Healthy       bool         `json:"healthy"`
	BestBlock     kaon.Bytes32 `json:"bestBlock"`
	BestNumber    uint64       `json:"bestNumber"`
	HeadCommitted time.Time    `json:"headCommitted"`
}

// Health tracks head commits observed through Touch.
type Health struct {
	repo       *chain.Repository
	maxHeadAge time.Duration

	lock      sync.RWMutex
	committed time.Time
}

func New(repo *chain.Repository, maxHeadAge time.Duration) *Health {
	if maxHeadAge == 0 {
		maxHeadAge = DefaultMaxHeadAge
	}
	return &Health{
		repo:       repo,
		maxHeadAge: maxHeadAge,
		// grace period on startup
		committed: time.Now(),
	}
}

// Touch records a head commit. Wire it to the repository ticker.
func (h *Health) Touch() {
	h.lock.Lock()
	h.committed = time.Now()
	h.lock.Unlock()
}

// Status reports the current liveness.
func (h *Health) Status() *Status {
	h.lock.RLock()
	committed := h.committed
	h.lock.RUnlock()

	best := h.repo.BestBlockSummary().Header
	return &Status{
		Healthy:       time.Since(committed) <= h.maxHeadAge,
		BestBlock:     best.ID(),
		BestNumber:    best.Number(),
		HeadCommitted: committed,
	}
}
