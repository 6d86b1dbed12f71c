// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis builds deterministic genesis blocks: the initial
// state trie, the chain id and the validator set a network launches
// with. Two networks with identical configs produce identical genesis
// ids.
package genesis

import (
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/validator"
)

var errNonDeterministic = errors.New("genesis build diverged from computed id")

// Genesis describes a network launch config with a precomputed id.
type Genesis struct {
	builder    *Builder
	id         kaon.Bytes32
	name       string
	validators []validator.Validator
}

func newGenesis(builder *Builder, name string, validators []validator.Validator) (*Genesis, error) {
	id, err := builder.ComputeID()
	if err != nil {
		return nil, err
	}
	return &Genesis{builder, id, name, validators}, nil
}

// Build builds the genesis block against the given stater. The initial
// state trie is committed to the stater's store as a side effect.
func (g *Genesis) Build(stater *state.Stater) (*block.Block, error) {
	blk, err := g.builder.Build(stater)
	if err != nil {
		return nil, err
	}
	if blk.Header().ID() != g.id {
		return nil, errNonDeterministic
	}
	return blk, nil
}

// ID returns the genesis block id, computed at construction time.
func (g *Genesis) ID() kaon.Bytes32 {
	return g.id
}

// Name returns the network name.
func (g *Genesis) Name() string {
	return g.name
}

// ChainID returns the chain id committed into the genesis header.
func (g *Genesis) ChainID() uint64 {
	return g.builder.chainID
}

// ValidatorSet returns the launch validator set.
func (g *Genesis) ValidatorSet() (*validator.Set, error) {
	return validator.NewSet(g.validators)
}
