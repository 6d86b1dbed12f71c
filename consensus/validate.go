// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import (
	"fmt"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/runtime"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/xenv"
)

// executionResult is the replay outcome of a verified proposal, kept
// until the block either commits or the height moves on.
type executionResult struct {
	stage    *state.Stage
	receipts tx.Receipts
}

// validateBlock checks a proposed block against the parent and replays
// its transactions, verifying every claimed root. Disagreements come back
// as consensusError; anything else is a local fault.
func (e *Engine) validateBlock(blk *block.Block, parent *chain.BlockSummary) (*executionResult, error) {
	header := blk.Header()

	if header.ChainID() != e.repo.ChainID() {
		return nil, consensusError("block chain id mismatch")
	}
	if header.ParentID() != parent.Header.ID() {
		return nil, consensusError("block parent mismatch")
	}
	if header.Number() != parent.Header.Number()+1 {
		return nil, consensusError(fmt.Sprintf("block number invalid: parent %v, block %v",
			parent.Header.Number(), header.Number()))
	}
	if header.Timestamp() <= parent.Header.Timestamp() {
		return nil, consensusError("block timestamp not after parent")
	}
	if !kaon.GasLimit(header.GasLimit()).IsValid(parent.Header.GasLimit()) {
		return nil, consensusError(fmt.Sprintf("block gas limit invalid: parent %v, block %v",
			parent.Header.GasLimit(), header.GasLimit()))
	}
	if header.GasUsed() > header.GasLimit() {
		return nil, consensusError("block gas used exceeds limit")
	}
	if header.TxsRoot() != blk.Transactions().RootHash() {
		return nil, consensusError("block txs root mismatch")
	}
	if err := e.validateParentQC(header, parent); err != nil {
		return nil, err
	}

	signer, err := header.Signer()
	if err != nil {
		return nil, consensusError(fmt.Sprintf("block signer unrecoverable: %v", err))
	}
	if expected := e.valSet.Proposer(header.Number(), header.Round()); signer != expected.Address {
		return nil, consensusError(fmt.Sprintf("block signer invalid: expected %v, got %v",
			expected.Address, signer))
	}

	return e.replay(blk, parent)
}

// validateParentQC checks that the header carries a quorum certificate
// finalizing its parent, signed by quorum weight of the set that was
// active at the parent's height. At an epoch boundary that set differs
// from the one voting on this block.
func (e *Engine) validateParentQC(header *block.Header, parent *chain.BlockSummary) error {
	qc := header.ParentQC()
	if parent.Header.Number() == 0 {
		if qc != nil {
			return consensusError("genesis child must not carry a parent quorum cert")
		}
		return nil
	}
	if qc == nil {
		return consensusError("missing parent quorum cert")
	}
	if qc.ChainID() != header.ChainID() || qc.BlockID() != parent.Header.ID() || qc.Height() != parent.Header.Number() {
		return consensusError("parent quorum cert mismatch")
	}

	parentSet, err := e.sched.Active(parent.Header.Number())
	if err != nil {
		return consensusError(fmt.Sprintf("no validator set for height %v", parent.Header.Number()))
	}

	signers, err := qc.Signers()
	if err != nil {
		return consensusError(fmt.Sprintf("parent quorum cert signatures invalid: %v", err))
	}
	var weight uint64
	for _, signer := range signers {
		w := parentSet.WeightOf(signer)
		if w == 0 {
			return consensusError(fmt.Sprintf("parent quorum cert signed by non-validator %v", signer))
		}
		weight += w
	}
	if weight < parentSet.QuorumWeight() {
		return consensusError(fmt.Sprintf("parent quorum cert below quorum: %v of %v",
			weight, parentSet.QuorumWeight()))
	}
	return nil
}

// replay executes the block's transactions on the parent state and
// compares the outcome with the claimed header roots.
func (e *Engine) replay(blk *block.Block, parent *chain.BlockSummary) (*executionResult, error) {
	header := blk.Header()
	st := e.stater.NewState(parent.Header.StateRoot())
	rt := runtime.New(st, &xenv.BlockContext{
		ChainID:     header.ChainID(),
		Number:      header.Number(),
		ParentID:    header.ParentID(),
		Beneficiary: header.Beneficiary(),
		Time:        header.Timestamp(),
		GasLimit:    header.GasLimit(),
		GetBlockID: func(num uint64) kaon.Bytes32 {
			id, err := e.repo.GetBlockIDByNumber(num)
			if err != nil {
				return kaon.Bytes32{}
			}
			return id
		},
	})
	rt.SetVMConfig(e.vmConfig)

	var (
		receipts tx.Receipts
		gasUsed  uint64
		seen     = make(map[kaon.Bytes32]struct{}, len(blk.Transactions()))
	)
	for _, trx := range blk.Transactions() {
		id := trx.Hash()
		if _, ok := seen[id]; ok {
			return nil, consensusError(fmt.Sprintf("tx duplicated in block: %v", id))
		}
		seen[id] = struct{}{}

		receipt, err := rt.ExecuteTransaction(trx)
		if err != nil {
			return nil, consensusError(fmt.Sprintf("tx not executable: %v", err))
		}
		receipts = append(receipts, receipt)
		gasUsed += receipt.GasUsed
	}
	if gasUsed != header.GasUsed() {
		return nil, consensusError(fmt.Sprintf("block gas used mismatch: claimed %v, replayed %v",
			header.GasUsed(), gasUsed))
	}
	if root := receipts.RootHash(); root != header.ReceiptsRoot() {
		return nil, consensusError("block receipts root mismatch")
	}

	stage, err := st.Stage()
	if err != nil {
		return nil, err
	}
	if root := stage.Hash(); root != header.StateRoot() {
		return nil, consensusError(fmt.Sprintf("block state root mismatch: claimed %v, replayed %v",
			header.StateRoot(), root))
	}
	return &executionResult{stage: stage, receipts: receipts}, nil
}
