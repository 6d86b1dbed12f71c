// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validator

import "github.com/pkg/errors"

var (
	ErrEmptySchedule    = errors.New("empty epoch schedule")
	ErrEpochStart       = errors.New("first epoch must start at height 1")
	ErrEpochOrder       = errors.New("epoch starts must strictly increase")
	ErrNilEpochSet      = errors.New("epoch with nil validator set")
	ErrBeforeFirstEpoch = errors.New("height precedes first epoch")
)

// Epoch binds a validator set to the contiguous height range starting at
// Start. The set is replaced wholesale at the next epoch's start, never
// mutated in place.
type Epoch struct {
	Start uint64
	Set   *Set
}

// Schedule resolves the validator set active at any height. It is
// immutable; epoch transitions are just lookups, so passing the schedule
// into concurrent consumers needs no locking.
type Schedule struct {
	epochs []Epoch
}

// NewSchedule creates a schedule from epochs ordered by start height.
// The first epoch must start at height 1; genesis carries no votes.
func NewSchedule(epochs []Epoch) (*Schedule, error) {
	if len(epochs) == 0 {
		return nil, ErrEmptySchedule
	}
	if epochs[0].Start != 1 {
		return nil, ErrEpochStart
	}
	for i, ep := range epochs {
		if ep.Set == nil {
			return nil, errors.WithMessagef(ErrNilEpochSet, "epoch %d", i)
		}
		if i > 0 && ep.Start <= epochs[i-1].Start {
			return nil, errors.WithMessagef(ErrEpochOrder, "epoch %d", i)
		}
	}
	return &Schedule{epochs: append([]Epoch(nil), epochs...)}, nil
}

// SingleEpoch wraps a set that is active for the whole chain.
func SingleEpoch(set *Set) *Schedule {
	return &Schedule{epochs: []Epoch{{Start: 1, Set: set}}}
}

// Active returns the set active at height, or an error for height 0.
func (s *Schedule) Active(height uint64) (*Set, error) {
	for i := len(s.epochs) - 1; i >= 0; i-- {
		if s.epochs[i].Start <= height {
			return s.epochs[i].Set, nil
		}
	}
	return nil, ErrBeforeFirstEpoch
}
