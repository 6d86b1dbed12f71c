// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
)

// BlockSummary is the light-weight index entry of a stored block.
type BlockSummary struct {
	Header *block.Header
	Txs    []kaon.Bytes32
	Size   uint64
}

// TxMeta locates a transaction within a stored block.
type TxMeta struct {
	BlockID  kaon.Bytes32
	Index    uint64
	Reverted bool
}

func saveRLP(p kv.Putter, key []byte, val interface{}) error {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return err
	}
	return p.Put(key, data)
}

func loadRLP(g kv.Getter, key []byte, val interface{}) error {
	data, err := g.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, val)
}

func saveBlockSummary(p kv.Putter, summary *BlockSummary) error {
	id := summary.Header.ID()
	return saveRLP(p, id[:], summary)
}

func loadBlockSummary(g kv.Getter, id kaon.Bytes32) (*BlockSummary, error) {
	var summary BlockSummary
	if err := loadRLP(g, id[:], &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func numberKey(num uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, num)
}
