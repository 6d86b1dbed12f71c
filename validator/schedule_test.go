// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule(t *testing.T) {
	setA, err := NewSet(testValidators(4, 1))
	require.NoError(t, err)
	setB, err := NewSet(testValidators(7, 1))
	require.NoError(t, err)

	_, err = NewSchedule(nil)
	assert.ErrorIs(t, err, ErrEmptySchedule)

	_, err = NewSchedule([]Epoch{{Start: 5, Set: setA}})
	assert.ErrorIs(t, err, ErrEpochStart)

	_, err = NewSchedule([]Epoch{{Start: 1, Set: nil}})
	assert.ErrorIs(t, err, ErrNilEpochSet)

	_, err = NewSchedule([]Epoch{{Start: 1, Set: setA}, {Start: 1, Set: setB}})
	assert.ErrorIs(t, err, ErrEpochOrder)

	sched, err := NewSchedule([]Epoch{{Start: 1, Set: setA}, {Start: 100, Set: setB}})
	require.NoError(t, err)

	_, err = sched.Active(0)
	assert.ErrorIs(t, err, ErrBeforeFirstEpoch)

	for height, want := range map[uint64]*Set{
		1:   setA,
		99:  setA,
		100: setB,
		1e6: setB,
	} {
		got, err := sched.Active(height)
		require.NoError(t, err)
		assert.Same(t, want, got, "height %d", height)
	}
}

func TestSingleEpoch(t *testing.T) {
	set, err := NewSet(testValidators(4, 1))
	require.NoError(t, err)

	sched := SingleEpoch(set)
	got, err := sched.Active(1)
	require.NoError(t, err)
	assert.Same(t, set, got)
}
