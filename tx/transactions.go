// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/trie"
)

// Transactions a slice of transactions.
type Transactions []*Transaction

// RootHash computes the merkle root hash of the transactions.
func (txs Transactions) RootHash() kaon.Bytes32 {
	return trie.DeriveRoot(derivableTxs(txs))
}

// Receipts a slice of receipts.
type Receipts []*Receipt

// RootHash computes the merkle root hash of the receipts.
func (rs Receipts) RootHash() kaon.Bytes32 {
	return trie.DeriveRoot(derivableReceipts(rs))
}

// implements trie.DerivableList
type derivableTxs Transactions

func (txs derivableTxs) Len() int { return len(txs) }
func (txs derivableTxs) GetRlp(i int) []byte {
	data, err := rlp.EncodeToBytes(txs[i])
	if err != nil {
		panic(err)
	}
	return data
}

// implements trie.DerivableList
type derivableReceipts Receipts

func (rs derivableReceipts) Len() int { return len(rs) }
func (rs derivableReceipts) GetRlp(i int) []byte {
	data, err := rlp.EncodeToBytes(rs[i])
	if err != nil {
		panic(err)
	}
	return data
}
