// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validator

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/kaon"
)

var (
	ErrEmptySet       = errors.New("empty validator set")
	ErrTooMany        = errors.New("too many validators")
	ErrZeroWeight     = errors.New("validator with zero weight")
	ErrDuplicate      = errors.New("duplicate validator")
	ErrWeightOverflow = errors.New("total weight overflow")
)

// Set is an immutable, ordered set of validators with voting weight.
type Set struct {
	validators  []Validator
	byAddr      map[kaon.Address]int
	totalWeight uint64
}

// NewSet creates a validator set. Order matters: the proposer schedule is
// derived from it, so all nodes must build the set from identically ordered
// validators.
func NewSet(validators []Validator) (*Set, error) {
	if len(validators) == 0 {
		return nil, ErrEmptySet
	}
	if len(validators) > MaxValidators {
		return nil, errors.WithMessagef(ErrTooMany, "%d of max %d", len(validators), MaxValidators)
	}

	s := &Set{
		validators: append([]Validator(nil), validators...),
		byAddr:     make(map[kaon.Address]int, len(validators)),
	}
	for i, v := range s.validators {
		if v.Weight == 0 {
			return nil, errors.WithMessagef(ErrZeroWeight, "validator %v", v.Address)
		}
		if _, ok := s.byAddr[v.Address]; ok {
			return nil, errors.WithMessagef(ErrDuplicate, "validator %v", v.Address)
		}
		if s.totalWeight > MaxTotalWeight-v.Weight {
			return nil, ErrWeightOverflow
		}
		s.byAddr[v.Address] = i
		s.totalWeight += v.Weight
	}
	return s, nil
}

// Size returns the number of validators.
func (s *Set) Size() int {
	return len(s.validators)
}

// Validators returns a copy of the ordered validator list.
func (s *Set) Validators() []Validator {
	return append([]Validator(nil), s.validators...)
}

// TotalWeight returns the total voting weight.
func (s *Set) TotalWeight() uint64 {
	return s.totalWeight
}

// QuorumWeight returns the minimum weight of a supermajority, the smallest
// w such that w > 2/3 of total weight.
func (s *Set) QuorumWeight() uint64 {
	return s.totalWeight*2/3 + 1
}

// Contains returns whether addr belongs to the set.
func (s *Set) Contains(addr kaon.Address) bool {
	_, ok := s.byAddr[addr]
	return ok
}

// WeightOf returns the voting weight of addr, or 0 if absent.
func (s *Set) WeightOf(addr kaon.Address) uint64 {
	if i, ok := s.byAddr[addr]; ok {
		return s.validators[i].Weight
	}
	return 0
}

// Proposer returns the validator scheduled to propose at (height, round).
//
// The schedule is a weight-proportional deterministic draw seeded by height
// and round: every node derives the same proposer, and each failed round
// moves the seed forward so a faulty proposer is skipped.
func (s *Set) Proposer(height uint64, round uint32) Validator {
	var seed [12]byte
	binary.BigEndian.PutUint64(seed[:8], height)
	binary.BigEndian.PutUint32(seed[8:], round)
	h := kaon.Blake2b(seed[:])

	slot := binary.BigEndian.Uint64(h[:8]) % s.totalWeight
	for _, v := range s.validators {
		if slot < v.Weight {
			return v
		}
		slot -= v.Weight
	}
	// unreachable, slot < totalWeight
	return s.validators[len(s.validators)-1]
}

// Hash returns a digest of the ordered validator list, usable as a compact
// set identity.
func (s *Set) Hash() kaon.Bytes32 {
	var buf []byte
	for _, v := range s.validators {
		buf = append(buf, v.Address.Bytes()...)
		var w [8]byte
		binary.BigEndian.PutUint64(w[:], v.Weight)
		buf = append(buf, w[:]...)
	}
	return kaon.Blake2b(buf)
}
