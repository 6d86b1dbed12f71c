// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"github.com/qianbin/drlp"

	"github.com/kaonchain/kaon/kaon"
)

// DerivableList is the list type for deriving merkle roots of ordered
// collections such as transactions and receipts.
type DerivableList interface {
	Len() int
	GetRlp(i int) []byte
}

// DeriveRoot computes the merkle root of the given list, keyed by RLP
// encoded index.
func DeriveRoot(list DerivableList) kaon.Bytes32 {
	var (
		trie Trie
		key  []byte
	)

	for i := 0; i < list.Len(); i++ {
		key = drlp.AppendUint(key[:0], uint64(i))
		trie.Update(key, list.GetRlp(i))
	}

	return trie.Hash()
}
