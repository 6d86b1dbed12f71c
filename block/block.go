// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/tx"
)

// Block is an immutable block type.
type Block struct {
	header *Header
	txs    tx.Transactions

	cache struct {
		size atomic.Value
	}
}

// Compose composes a block instance from its portions.
// Note: the TxsRoot is not verified. To build up a block, use a Builder.
func Compose(header *Header, txs tx.Transactions) *Block {
	return &Block{
		header: header,
		txs:    append(tx.Transactions(nil), txs...),
	}
}

// WithSignature creates a new block object with the proposer signature set.
func (b *Block) WithSignature(sig []byte) *Block {
	return &Block{
		header: b.header.withSignature(sig),
		txs:    b.txs,
	}
}

// Header returns the block header.
func (b *Block) Header() *Header {
	return b.header
}

// Transactions returns a copy of transactions.
func (b *Block) Transactions() tx.Transactions {
	return append(tx.Transactions(nil), b.txs...)
}

// Size returns the size of the RLP encoded block in bytes.
func (b *Block) Size() uint64 {
	if cached := b.cache.size.Load(); cached != nil {
		return cached.(uint64)
	}
	data, err := rlp.EncodeToBytes(b)
	if err != nil {
		panic(err)
	}
	size := uint64(len(data))
	b.cache.size.Store(size)
	return size
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []interface{}{
		b.header,
		b.txs,
	})
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	payload := struct {
		Header Header
		Txs    tx.Transactions
	}{}

	if err := s.Decode(&payload); err != nil {
		return err
	}

	*b = Block{
		header: &payload.Header,
		txs:    payload.Txs,
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf(`Block(%v bytes)
%v
Transactions: %v`, b.Size(), b.header, b.txs)
}
