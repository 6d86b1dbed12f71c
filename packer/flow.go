// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package packer

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/runtime"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
)

// Flow the flow of packing a new block.
type Flow struct {
	packer       *Packer
	parentHeader *block.Header
	runtime      *runtime.Runtime
	round        uint32
	processedTxs map[kaon.Bytes32]bool // tx hash -> reverted
	gasUsed      uint64
	txs          tx.Transactions
	receipts     tx.Receipts
}

func newFlow(packer *Packer, parentHeader *block.Header, rt *runtime.Runtime, round uint32) *Flow {
	return &Flow{
		packer:       packer,
		parentHeader: parentHeader,
		runtime:      rt,
		round:        round,
		processedTxs: make(map[kaon.Bytes32]bool),
	}
}

// ParentHeader returns the parent block header.
func (f *Flow) ParentHeader() *block.Header {
	return f.parentHeader
}

// Number returns the number of the block being packed.
func (f *Flow) Number() uint64 {
	return f.runtime.Context().Number
}

// TotalGasUsed returns the gas used by adopted txs so far.
func (f *Flow) TotalGasUsed() uint64 {
	return f.gasUsed
}

func (f *Flow) findTx(txHash kaon.Bytes32) (found bool, err error) {
	if _, ok := f.processedTxs[txHash]; ok {
		return true, nil
	}
	has, err := f.packer.repo.HasTransaction(txHash)
	if err != nil {
		return false, err
	}
	return has, nil
}

// Adopt tries to execute the given transaction.
// If the tx is valid and executable on the current state (regardless of
// VM error), it joins the new block.
func (f *Flow) Adopt(trx *tx.Transaction) error {
	switch {
	case trx.ChainID() != f.packer.repo.ChainID():
		return badTxError{"chain id mismatch"}
	case trx.Gas() > kaon.MaxTxGas:
		return badTxError{"gas exceeds tx gas ceiling"}
	case f.gasUsed+trx.Gas() > f.runtime.Context().GasLimit:
		return errGasLimitReached
	}

	if found, err := f.findTx(trx.Hash()); err != nil {
		return err
	} else if found {
		return errKnownTx
	}

	checkpoint := f.runtime.State().NewCheckpoint()
	receipt, err := f.runtime.ExecuteTransaction(trx)
	if err != nil {
		// skip and revert state
		f.runtime.State().RevertTo(checkpoint)
		return badTxError{err.Error()}
	}
	f.processedTxs[trx.Hash()] = receipt.Reverted
	f.gasUsed += receipt.GasUsed
	f.receipts = append(f.receipts, receipt)
	f.txs = append(f.txs, trx)
	return nil
}

// Pack builds and signs the new block. The returned stage carries the
// post-execution state and gets committed once the block is finalized.
func (f *Flow) Pack(privateKey *ecdsa.PrivateKey, parentQC *block.QuorumCert) (*block.Block, *state.Stage, tx.Receipts, error) {
	if f.packer.proposer != kaon.Address(crypto.PubkeyToAddress(privateKey.PublicKey)) {
		return nil, nil, nil, errors.New("private key mismatch")
	}
	if f.parentHeader.Number() > 0 {
		if parentQC == nil {
			return nil, nil, nil, errors.New("parent quorum cert required")
		}
		if parentQC.BlockID() != f.parentHeader.ID() {
			return nil, nil, nil, errors.New("parent quorum cert mismatch")
		}
	}
	if err := f.runtime.State().Err(); err != nil {
		return nil, nil, nil, err
	}

	stage, err := f.runtime.State().Stage()
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := f.runtime.Context()
	builder := new(block.Builder).
		ChainID(ctx.ChainID).
		ParentID(f.parentHeader.ID()).
		Number(ctx.Number).
		Round(f.round).
		Timestamp(ctx.Time).
		GasLimit(ctx.GasLimit).
		GasUsed(f.gasUsed).
		Beneficiary(ctx.Beneficiary).
		StateRoot(stage.Hash()).
		ReceiptsRoot(f.receipts.RootHash()).
		ParentQC(parentQC)
	for _, trx := range f.txs {
		builder.Transaction(trx)
	}
	newBlock := builder.Build()

	sig, err := crypto.Sign(newBlock.Header().SigningHash().Bytes(), privateKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return newBlock.WithSignature(sig), stage, f.receipts, nil
}
