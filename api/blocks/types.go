// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// JSONBlockSummary is the JSON rendering of a block header.
type JSONBlockSummary struct {
	Number       uint64       `json:"number"`
	ID           kaon.Bytes32 `json:"id"`
	ParentID     kaon.Bytes32 `json:"parentID"`
	Round        uint32       `json:"round"`
	Timestamp    uint64       `json:"timestamp"`
	GasLimit     uint64       `json:"gasLimit"`
	GasUsed      uint64       `json:"gasUsed"`
	Beneficiary  kaon.Address `json:"beneficiary"`
	Signer       kaon.Address `json:"signer"`
	Size         uint64       `json:"size"`
	StateRoot    kaon.Bytes32 `json:"stateRoot"`
	ReceiptsRoot kaon.Bytes32 `json:"receiptsRoot"`
	TxsRoot      kaon.Bytes32 `json:"txsRoot"`
}

// JSONCollapsedBlock carries tx ids only.
type JSONCollapsedBlock struct {
	*JSONBlockSummary
	Transactions []kaon.Bytes32 `json:"transactions"`
}

// JSONEmbeddedTx is a transaction expanded in place.
type JSONEmbeddedTx struct {
	ID       kaon.Bytes32  `json:"id"`
	Origin   kaon.Address  `json:"origin"`
	To       *kaon.Address `json:"to"`
	Value    string        `json:"value"`
	Nonce    uint64        `json:"nonce"`
	Gas      uint64        `json:"gas"`
	GasPrice string        `json:"gasPrice"`
	Data     hexutil.Bytes `json:"data"`
}

// JSONExpandedBlock carries full transactions.
type JSONExpandedBlock struct {
	*JSONBlockSummary
	Transactions []*JSONEmbeddedTx `json:"transactions"`
}

func buildJSONBlockSummary(summary *chain.BlockSummary) (*JSONBlockSummary, error) {
	header := summary.Header
	signer := kaon.Address{}
	// the genesis block is unsigned
	if header.Number() > 0 {
		recovered, err := header.Signer()
		if err != nil {
			return nil, err
		}
		signer = recovered
	}
	return &JSONBlockSummary{
		Number:       header.Number(),
		ID:           header.ID(),
		ParentID:     header.ParentID(),
		Round:        header.Round(),
		Timestamp:    header.Timestamp(),
		GasLimit:     header.GasLimit(),
		GasUsed:      header.GasUsed(),
		Beneficiary:  header.Beneficiary(),
		Signer:       signer,
		Size:         summary.Size,
		StateRoot:    header.StateRoot(),
		ReceiptsRoot: header.ReceiptsRoot(),
		TxsRoot:      header.TxsRoot(),
	}, nil
}

func buildJSONEmbeddedTx(trx *tx.Transaction) (*JSONEmbeddedTx, error) {
	origin, err := trx.Origin()
	if err != nil {
		return nil, err
	}
	return &JSONEmbeddedTx{
		ID:       trx.Hash(),
		Origin:   origin,
		To:       trx.To(),
		Value:    trx.Value().String(),
		Nonce:    trx.Nonce(),
		Gas:      trx.Gas(),
		GasPrice: trx.GasPrice().String(),
		Data:     trx.Data(),
	}, nil
}
