// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package xenv provides the execution environment shared by the VM and the
// transaction runtime.
package xenv

import (
	"math/big"

	"github.com/kaonchain/kaon/kaon"
)

// BlockContext is the block environment transactions execute in.
type BlockContext struct {
	ChainID     uint64
	Number      uint64
	ParentID    kaon.Bytes32
	Beneficiary kaon.Address
	Time        uint64
	GasLimit    uint64

	// GetBlockID resolves a past block number to its id, for the
	// BLOCKHASH instruction. May be nil when history is unavailable.
	GetBlockID func(num uint64) kaon.Bytes32
}

// TransactionContext is the transaction environment.
type TransactionContext struct {
	Hash     kaon.Bytes32
	Origin   kaon.Address
	GasPrice *big.Int
	Nonce    uint64
}
