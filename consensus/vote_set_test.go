// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/validator"
)

const testChainID uint64 = 99

func newTestValSet(t *testing.T, n int) (*validator.Set, []*ecdsa.PrivateKey) {
	keys := make([]*ecdsa.PrivateKey, 0, n)
	vals := make([]validator.Validator, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys = append(keys, key)
		vals = append(vals, validator.Validator{
			Address: kaon.Address(crypto.PubkeyToAddress(key.PublicKey)),
			Weight:  1,
		})
	}
	set, err := validator.NewSet(vals)
	require.NoError(t, err)
	return set, keys
}

func signedVote(t *testing.T, key *ecdsa.PrivateKey, voteType block.VoteType, height uint64, round uint32, id kaon.Bytes32) *block.Vote {
	vote := block.NewVote(testChainID, voteType, height, round, id)
	sig, err := crypto.Sign(vote.SigningHash().Bytes(), key)
	require.NoError(t, err)
	return vote.WithSignature(sig)
}

func TestVoteSetQuorum(t *testing.T) {
	set, keys := newTestValSet(t, 4)
	vs := newVoteSet(testChainID, 5, 0, block.VoteTypePrevote, set)
	blockID := kaon.Blake2b([]byte("block"))

	for i, key := range keys {
		added, err := vs.Add(signedVote(t, key, block.VoteTypePrevote, 5, 0, blockID))
		require.NoError(t, err)
		assert.True(t, added)

		id, ok := vs.Quorum()
		if uint64(i+1) >= set.QuorumWeight() {
			require.True(t, ok)
			assert.Equal(t, blockID, id)
		} else {
			assert.False(t, ok)
		}
	}
}

func TestVoteSetSplitNoQuorum(t *testing.T) {
	set, keys := newTestValSet(t, 3)
	vs := newVoteSet(testChainID, 5, 0, block.VoteTypePrevote, set)

	idA := kaon.Blake2b([]byte("a"))
	idB := kaon.Blake2b([]byte("b"))
	_, err := vs.Add(signedVote(t, keys[0], block.VoteTypePrevote, 5, 0, idA))
	require.NoError(t, err)
	_, err = vs.Add(signedVote(t, keys[1], block.VoteTypePrevote, 5, 0, idB))
	require.NoError(t, err)
	_, err = vs.Add(signedVote(t, keys[2], block.VoteTypePrevote, 5, 0, kaon.Bytes32{}))
	require.NoError(t, err)

	_, ok := vs.Quorum()
	assert.False(t, ok)
	// everyone voted, waiting longer cannot help
	assert.True(t, vs.HasQuorumAny())
}

func TestVoteSetRejectsEquivocation(t *testing.T) {
	set, keys := newTestValSet(t, 3)
	vs := newVoteSet(testChainID, 5, 0, block.VoteTypePrevote, set)

	first := signedVote(t, keys[0], block.VoteTypePrevote, 5, 0, kaon.Blake2b([]byte("a")))
	added, err := vs.Add(first)
	require.NoError(t, err)
	assert.True(t, added)

	// duplicate is a no-op
	added, err = vs.Add(first)
	require.NoError(t, err)
	assert.False(t, added)

	// same signer, different block
	conflicting := signedVote(t, keys[0], block.VoteTypePrevote, 5, 0, kaon.Blake2b([]byte("b")))
	_, err = vs.Add(conflicting)
	require.Error(t, err)
	assert.False(t, IsCritical(err))
}

func TestVoteSetRejectsOutsiders(t *testing.T) {
	set, _ := newTestValSet(t, 3)
	vs := newVoteSet(testChainID, 5, 0, block.VoteTypePrevote, set)

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = vs.Add(signedVote(t, stranger, block.VoteTypePrevote, 5, 0, kaon.Bytes32{}))
	require.Error(t, err)
	assert.False(t, IsCritical(err))

	// garbage signature
	vote := block.NewVote(testChainID, block.VoteTypePrevote, 5, 0, kaon.Bytes32{}).
		WithSignature(make([]byte, 65))
	_, err = vs.Add(vote)
	require.Error(t, err)
	assert.False(t, IsCritical(err))
}

func TestVoteSetMismatchedTally(t *testing.T) {
	set, keys := newTestValSet(t, 1)
	vs := newVoteSet(testChainID, 5, 0, block.VoteTypePrevote, set)

	_, err := vs.Add(signedVote(t, keys[0], block.VoteTypePrevote, 6, 0, kaon.Bytes32{}))
	assert.Error(t, err)
	_, err = vs.Add(signedVote(t, keys[0], block.VoteTypePrecommit, 5, 0, kaon.Bytes32{}))
	assert.Error(t, err)
}

func TestHeightVoteSetPOLRound(t *testing.T) {
	set, keys := newTestValSet(t, 3)
	hvs := newHeightVoteSet(testChainID, 5, set)
	blockID := kaon.Blake2b([]byte("block"))

	for _, key := range keys {
		_, err := hvs.Add(signedVote(t, key, block.VoteTypePrevote, 5, 2, blockID))
		require.NoError(t, err)
	}

	round, ok := hvs.POLRound(blockID, 0)
	require.True(t, ok)
	assert.Equal(t, uint32(2), round)

	_, ok = hvs.POLRound(blockID, 3)
	assert.False(t, ok)
	_, ok = hvs.POLRound(kaon.Blake2b([]byte("other")), 0)
	assert.False(t, ok)
}
