// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"math/big"

	"github.com/kaonchain/kaon/kaon"
)

// Receipt represents the result of a transaction execution.
type Receipt struct {
	// whether the execution reverted
	Reverted bool
	// gas used by this tx
	GasUsed uint64
	// aggregated gas used in the block up to and including this tx
	CumulativeGasUsed uint64
	// amount paid for gas, in wei
	Paid *big.Int
	// address of the created contract, if the tx was a creation
	ContractAddress *kaon.Address `rlp:"nil"`
	// logs produced during execution
	Logs []*Log
}

// Log is an event log emitted by contract code.
type Log struct {
	// address of the contract that emitted the log
	Address kaon.Address
	// indexed topics
	Topics []kaon.Bytes32
	// non-indexed payload
	Data []byte
}
