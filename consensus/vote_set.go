// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import (
	"fmt"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/validator"
)

// voteSet tallies the weighted votes of one (height, round, type). It is
// confined to the engine goroutine and needs no locking.
type voteSet struct {
	chainID  uint64
	height   uint64
	round    uint32
	voteType block.VoteType
	valSet   *validator.Set

	votes         map[kaon.Address]*block.Vote
	weightByBlock map[kaon.Bytes32]uint64
	totalWeight   uint64
	quorumBlock   *kaon.Bytes32 // set once some block id reaches quorum
}

func newVoteSet(chainID uint64, height uint64, round uint32, voteType block.VoteType, valSet *validator.Set) *voteSet {
	return &voteSet{
		chainID:       chainID,
		height:        height,
		round:         round,
		voteType:      voteType,
		valSet:        valSet,
		votes:         make(map[kaon.Address]*block.Vote),
		weightByBlock: make(map[kaon.Bytes32]uint64),
	}
}

// Add verifies and tallies the vote. Duplicates are ignored; a second
// vote from the same signer for a different block is equivocation and is
// rejected.
func (vs *voteSet) Add(vote *block.Vote) (added bool, err error) {
	if vote.ChainID() != vs.chainID || vote.Height() != vs.height ||
		vote.Round() != vs.round || vote.Type() != vs.voteType {
		return false, consensusError("vote does not match tally")
	}

	signer, err := vote.Signer()
	if err != nil {
		return false, consensusError(fmt.Sprintf("invalid vote signature: %v", err))
	}
	weight := vs.valSet.WeightOf(signer)
	if weight == 0 {
		return false, consensusError(fmt.Sprintf("vote from non-validator %v", signer))
	}

	if existing, ok := vs.votes[signer]; ok {
		if existing.BlockID() == vote.BlockID() {
			return false, nil
		}
		return false, consensusError(fmt.Sprintf("equivocating vote from %v", signer))
	}

	vs.votes[signer] = vote
	vs.totalWeight += weight
	id := vote.BlockID()
	vs.weightByBlock[id] += weight
	if vs.quorumBlock == nil && vs.weightByBlock[id] >= vs.valSet.QuorumWeight() {
		quorum := id
		vs.quorumBlock = &quorum
	}
	return true, nil
}

// Quorum returns the block id that gathered quorum weight, if any. A zero
// id means a nil-vote quorum.
func (vs *voteSet) Quorum() (kaon.Bytes32, bool) {
	if vs.quorumBlock == nil {
		return kaon.Bytes32{}, false
	}
	return *vs.quorumBlock, true
}

// HasQuorumAny reports whether total tallied weight reached quorum,
// regardless of agreement. It signals that waiting longer cannot change
// the absence of a decision.
func (vs *voteSet) HasQuorumAny() bool {
	return vs.totalWeight >= vs.valSet.QuorumWeight()
}

// VotesFor returns the votes cast for the given block id.
func (vs *voteSet) VotesFor(id kaon.Bytes32) []*block.Vote {
	votes := make([]*block.Vote, 0, len(vs.votes))
	for _, vote := range vs.votes {
		if vote.BlockID() == id {
			votes = append(votes, vote)
		}
	}
	return votes
}

// roundVoteSet groups the two tallies of one round.
type roundVoteSet struct {
	prevotes   *voteSet
	precommits *voteSet
}

// heightVoteSet lazily materializes per-round tallies for one height.
type heightVoteSet struct {
	chainID uint64
	height  uint64
	valSet  *validator.Set
	rounds  map[uint32]*roundVoteSet
}

func newHeightVoteSet(chainID uint64, height uint64, valSet *validator.Set) *heightVoteSet {
	return &heightVoteSet{
		chainID: chainID,
		height:  height,
		valSet:  valSet,
		rounds:  make(map[uint32]*roundVoteSet),
	}
}

func (hvs *heightVoteSet) round(round uint32) *roundVoteSet {
	if rvs, ok := hvs.rounds[round]; ok {
		return rvs
	}
	rvs := &roundVoteSet{
		prevotes:   newVoteSet(hvs.chainID, hvs.height, round, block.VoteTypePrevote, hvs.valSet),
		precommits: newVoteSet(hvs.chainID, hvs.height, round, block.VoteTypePrecommit, hvs.valSet),
	}
	hvs.rounds[round] = rvs
	return rvs
}

func (hvs *heightVoteSet) Prevotes(round uint32) *voteSet {
	return hvs.round(round).prevotes
}

func (hvs *heightVoteSet) Precommits(round uint32) *voteSet {
	return hvs.round(round).precommits
}

// Add routes the vote to its tally.
func (hvs *heightVoteSet) Add(vote *block.Vote) (bool, error) {
	if vote.Height() != hvs.height {
		return false, consensusError("vote height out of range")
	}
	switch vote.Type() {
	case block.VoteTypePrevote:
		return hvs.Prevotes(vote.Round()).Add(vote)
	case block.VoteTypePrecommit:
		return hvs.Precommits(vote.Round()).Add(vote)
	default:
		return false, consensusError("unknown vote type")
	}
}

// POLRound returns the highest round at or after the given one whose
// prevotes reached quorum for the given block, proving the network moved
// past older locks.
func (hvs *heightVoteSet) POLRound(blockID kaon.Bytes32, after uint32) (uint32, bool) {
	var best uint32
	found := false
	for round, rvs := range hvs.rounds {
		if round < after {
			continue
		}
		if id, ok := rvs.prevotes.Quorum(); ok && id == blockID {
			if !found || round > best {
				best = round
				found = true
			}
		}
	}
	return best, found
}
