// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/lvldb"
	"github.com/kaonchain/kaon/state"
)

// Builder helper to build genesis block.
type Builder struct {
	chainID   uint64
	timestamp uint64
	gasLimit  uint64

	stateProcs []func(st *state.State) error
}

// ChainID sets the chain id committed into the genesis header.
func (b *Builder) ChainID(id uint64) *Builder {
	b.chainID = id
	return b
}

// Timestamp sets the launch timestamp.
func (b *Builder) Timestamp(t uint64) *Builder {
	b.timestamp = t
	return b
}

// GasLimit sets the initial gas limit.
func (b *Builder) GasLimit(limit uint64) *Builder {
	b.gasLimit = limit
	return b
}

// State adds a state process applied to the empty state, in order.
func (b *Builder) State(proc func(st *state.State) error) *Builder {
	b.stateProcs = append(b.stateProcs, proc)
	return b
}

// ComputeID computes the genesis block id against a throwaway store.
func (b *Builder) ComputeID() (kaon.Bytes32, error) {
	db, err := lvldb.NewMem()
	if err != nil {
		return kaon.Bytes32{}, err
	}
	defer db.Close()
	blk, err := b.Build(state.NewStater(db))
	if err != nil {
		return kaon.Bytes32{}, err
	}
	return blk.Header().ID(), nil
}

// Build builds the genesis block, committing the initial state trie to
// the stater's underlying store.
func (b *Builder) Build(stater *state.Stater) (*block.Block, error) {
	st := stater.NewState(kaon.Bytes32{})

	for _, proc := range b.stateProcs {
		if err := proc(st); err != nil {
			return nil, errors.Wrap(err, "genesis state process")
		}
	}

	stage, err := st.Stage()
	if err != nil {
		return nil, errors.Wrap(err, "stage genesis state")
	}
	root, err := stage.Commit()
	if err != nil {
		return nil, errors.Wrap(err, "commit genesis state")
	}

	return new(block.Builder).
		ChainID(b.chainID).
		Timestamp(b.timestamp).
		GasLimit(b.gasLimit).
		StateRoot(root).
		Build(), nil
}
