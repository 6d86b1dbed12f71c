// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"math/big"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// StateDB is the world state interface the VM executes against.
//
// Implementations absorb storage errors by panicking with a recoverable
// error value; the transaction runtime converts such panics back into
// errors at its boundary.
type StateDB interface {
	GetBalance(kaon.Address) *big.Int
	SetBalance(kaon.Address, *big.Int)

	GetNonce(kaon.Address) uint64
	SetNonce(kaon.Address, uint64)

	GetCode(kaon.Address) []byte
	GetCodeHash(kaon.Address) kaon.Bytes32
	GetCodeSize(kaon.Address) int
	SetCode(kaon.Address, []byte)

	GetState(kaon.Address, kaon.Bytes32) kaon.Bytes32
	SetState(kaon.Address, kaon.Bytes32, kaon.Bytes32)

	Exists(kaon.Address) bool
	Delete(kaon.Address)

	AddLog(*tx.Log)

	AddRefund(uint64)
	SubRefund(uint64)
	GetRefund() uint64

	Snapshot() int
	RevertToSnapshot(int)
}
