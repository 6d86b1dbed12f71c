// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// Builder makes it easy to build a block object.
type Builder struct {
	headerBody headerBody
	txs        tx.Transactions
}

// ChainID sets the chain id.
func (b *Builder) ChainID(id uint64) *Builder {
	b.headerBody.ChainID = id
	return b
}

// ParentID sets the parent block id.
func (b *Builder) ParentID(id kaon.Bytes32) *Builder {
	b.headerBody.ParentID = id
	return b
}

// Number sets the block number.
func (b *Builder) Number(num uint64) *Builder {
	b.headerBody.Number = num
	return b
}

// Round sets the consensus round.
func (b *Builder) Round(round uint32) *Builder {
	b.headerBody.Round = round
	return b
}

// Timestamp sets the timestamp.
func (b *Builder) Timestamp(ts uint64) *Builder {
	b.headerBody.Timestamp = ts
	return b
}

// GasLimit sets the gas limit.
func (b *Builder) GasLimit(limit uint64) *Builder {
	b.headerBody.GasLimit = limit
	return b
}

// GasUsed sets the gas used.
func (b *Builder) GasUsed(used uint64) *Builder {
	b.headerBody.GasUsed = used
	return b
}

// Beneficiary sets the reward recipient.
func (b *Builder) Beneficiary(addr kaon.Address) *Builder {
	b.headerBody.Beneficiary = addr
	return b
}

// StateRoot sets the state root.
func (b *Builder) StateRoot(root kaon.Bytes32) *Builder {
	b.headerBody.StateRoot = root
	return b
}

// ReceiptsRoot sets the receipts root.
func (b *Builder) ReceiptsRoot(root kaon.Bytes32) *Builder {
	b.headerBody.ReceiptsRoot = root
	return b
}

// ParentQC sets the quorum certificate of the parent block.
func (b *Builder) ParentQC(qc *QuorumCert) *Builder {
	b.headerBody.ParentQC = qc
	return b
}

// Transaction adds a transaction.
func (b *Builder) Transaction(trx *tx.Transaction) *Builder {
	b.txs = append(b.txs, trx)
	return b
}

// Build builds the block object, deriving the txs root from the added
// transactions.
func (b *Builder) Build() *Block {
	header := Header{body: b.headerBody}
	header.body.TxsRoot = b.txs.RootHash()

	return &Block{
		header: &header,
		txs:    b.txs,
	}
}
