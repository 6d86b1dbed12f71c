// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package packer assembles block proposals from pooled transactions.
package packer

import (
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/runtime"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/vm"
	"github.com/kaonchain/kaon/xenv"
)

// Packer to pack txs and build new blocks.
type Packer struct {
	repo           *chain.Repository
	stater         *state.Stater
	proposer       kaon.Address
	beneficiary    kaon.Address
	targetGasLimit uint64
	vmConfig       vm.Config
}

// New creates a new Packer instance.
// The beneficiary is the account that receives block fees.
func New(
	repo *chain.Repository,
	stater *state.Stater,
	proposer kaon.Address,
	beneficiary kaon.Address,
) *Packer {
	return &Packer{
		repo:        repo,
		stater:      stater,
		proposer:    proposer,
		beneficiary: beneficiary,
	}
}

// Schedule opens a packing flow on top of the given parent, for the given
// consensus round and proposal timestamp.
func (p *Packer) Schedule(parent *chain.BlockSummary, round uint32, timestamp uint64) (*Flow, error) {
	if timestamp <= parent.Header.Timestamp() {
		return nil, errors.New("proposal timestamp not after parent")
	}

	st := p.stater.NewState(parent.Header.StateRoot())

	var gasLimit uint64
	if p.targetGasLimit != 0 {
		gasLimit = kaon.GasLimit(p.targetGasLimit).Qualify(parent.Header.GasLimit())
	} else {
		gasLimit = parent.Header.GasLimit()
	}

	rt := runtime.New(st, &xenv.BlockContext{
		ChainID:     p.repo.ChainID(),
		Number:      parent.Header.Number() + 1,
		ParentID:    parent.Header.ID(),
		Beneficiary: p.beneficiary,
		Time:        timestamp,
		GasLimit:    gasLimit,
		GetBlockID: func(num uint64) kaon.Bytes32 {
			id, err := p.repo.GetBlockIDByNumber(num)
			if err != nil {
				return kaon.Bytes32{}
			}
			return id
		},
	})
	rt.SetVMConfig(p.vmConfig)

	return newFlow(p, parent.Header, rt, round), nil
}

// SetTargetGasLimit sets the target gas limit. The packer will move block
// gas limits toward it within the per-block adjustment bound. Zero means
// inherit the parent's limit.
func (p *Packer) SetTargetGasLimit(gl uint64) {
	p.targetGasLimit = gl
}

// SetVMConfig applies the VM config to subsequently scheduled flows.
func (p *Packer) SetVMConfig(config vm.Config) {
	p.vmConfig = config
}
