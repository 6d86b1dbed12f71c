// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/kaon"
)

func testValidators(n int, weight uint64) []Validator {
	vals := make([]Validator, n)
	for i := range vals {
		var b [20]byte
		copy(b[:], fmt.Sprintf("validator-%d", i))
		vals[i] = Validator{Address: kaon.BytesToAddress(b[:]), Weight: weight}
	}
	return vals
}

func TestNewSet(t *testing.T) {
	_, err := NewSet(nil)
	assert.ErrorIs(t, err, ErrEmptySet)

	vals := testValidators(4, 10)
	s, err := NewSet(vals)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Size())
	assert.Equal(t, uint64(40), s.TotalWeight())
	assert.True(t, s.Contains(vals[0].Address))
	assert.Equal(t, uint64(10), s.WeightOf(vals[2].Address))
	assert.Equal(t, uint64(0), s.WeightOf(kaon.Address{}))

	// duplicates rejected
	_, err = NewSet(append(vals, vals[0]))
	assert.ErrorIs(t, err, ErrDuplicate)

	// zero weight rejected
	_, err = NewSet([]Validator{{Address: vals[0].Address}})
	assert.ErrorIs(t, err, ErrZeroWeight)
}

func TestQuorumWeight(t *testing.T) {
	for _, tc := range []struct {
		weights []uint64
		quorum  uint64
	}{
		{[]uint64{1, 1, 1}, 3},
		{[]uint64{1, 1, 1, 1}, 3},
		{[]uint64{10, 10, 10, 10}, 27},
		{[]uint64{1, 2, 3, 4}, 7},
	} {
		vals := testValidators(len(tc.weights), 1)
		for i := range vals {
			vals[i].Weight = tc.weights[i]
		}
		s, err := NewSet(vals)
		require.NoError(t, err)
		assert.Equal(t, tc.quorum, s.QuorumWeight(), "weights %v", tc.weights)
	}
}

func TestProposerDeterminism(t *testing.T) {
	vals := testValidators(5, 7)
	a, err := NewSet(vals)
	require.NoError(t, err)
	b, err := NewSet(vals)
	require.NoError(t, err)

	for height := uint64(1); height < 50; height++ {
		for round := uint32(0); round < 3; round++ {
			assert.Equal(t, a.Proposer(height, round), b.Proposer(height, round))
		}
	}
}

func TestProposerRotates(t *testing.T) {
	vals := testValidators(4, 1)
	s, err := NewSet(vals)
	require.NoError(t, err)

	seen := make(map[kaon.Address]bool)
	for height := uint64(1); height < 100; height++ {
		seen[s.Proposer(height, 0).Address] = true
	}
	// with 99 draws over 4 equal-weight validators, all must appear
	assert.Len(t, seen, 4)

	// a new round at the same height may pick a different proposer
	changed := false
	for height := uint64(1); height < 20; height++ {
		if s.Proposer(height, 0) != s.Proposer(height, 1) {
			changed = true
			break
		}
	}
	assert.True(t, changed)
}

func TestProposerWeightBias(t *testing.T) {
	vals := testValidators(2, 1)
	vals[0].Weight = 9
	s, err := NewSet(vals)
	require.NoError(t, err)

	counts := make(map[kaon.Address]int)
	for height := uint64(1); height <= 1000; height++ {
		counts[s.Proposer(height, 0).Address]++
	}
	// the heavy validator must propose far more often
	assert.Greater(t, counts[vals[0].Address], counts[vals[1].Address]*3)
}

func TestSetHash(t *testing.T) {
	vals := testValidators(3, 5)
	a, err := NewSet(vals)
	require.NoError(t, err)
	b, err := NewSet(vals)
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash())

	// order changes the hash
	reordered := []Validator{vals[1], vals[0], vals[2]}
	c, err := NewSet(reordered)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())
}
