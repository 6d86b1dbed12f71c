// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"math/big"

	"github.com/kaonchain/kaon/kaon"
)

// Builder to make it easy to build a transaction.
type Builder struct {
	body body
}

// NewBuilder creates a builder for a tx bound to the given chain.
func NewBuilder(chainID uint64) *Builder {
	return &Builder{body: body{ChainID: chainID}}
}

// ChainID sets the chain id.
func (b *Builder) ChainID(id uint64) *Builder {
	b.body.ChainID = id
	return b
}

// Nonce sets the account nonce.
func (b *Builder) Nonce(nonce uint64) *Builder {
	b.body.Nonce = nonce
	return b
}

// GasPrice sets the gas price.
func (b *Builder) GasPrice(price *big.Int) *Builder {
	b.body.GasPrice = new(big.Int).Set(price)
	return b
}

// Gas sets the gas provision for the tx.
func (b *Builder) Gas(gas uint64) *Builder {
	b.body.Gas = gas
	return b
}

// To sets the recipient. A nil recipient makes the tx a contract creation.
func (b *Builder) To(to *kaon.Address) *Builder {
	if to == nil {
		b.body.To = nil
	} else {
		cpy := *to
		b.body.To = &cpy
	}
	return b
}

// Value sets the amount transferred.
func (b *Builder) Value(value *big.Int) *Builder {
	b.body.Value = new(big.Int).Set(value)
	return b
}

// Data sets the input data.
func (b *Builder) Data(data []byte) *Builder {
	b.body.Data = append([]byte(nil), data...)
	return b
}

// Build builds the tx object.
func (b *Builder) Build() *Transaction {
	tx := Transaction{body: b.body}
	if tx.body.GasPrice == nil {
		tx.body.GasPrice = new(big.Int)
	}
	if tx.body.Value == nil {
		tx.body.Value = new(big.Int)
	}
	return &tx
}
