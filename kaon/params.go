// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kaon

// Constants of block chain.
const (
	TxGas                 uint64 = 21000 // gas cost of a bare transaction.
	TxGasContractCreation uint64 = 53000 // gas cost of a contract creating transaction.
	TxDataZeroGas         uint64 = 4     // gas cost per zero byte of tx data.
	TxDataNonZeroGas      uint64 = 68    // gas cost per non-zero byte of tx data.

	GasLimitBoundDivisor uint64 = 1024 // divisor limiting gas limit change between adjacent blocks.

	MinGasLimit     uint64 = 1000 * 1000
	InitialGasLimit uint64 = 10 * 1000 * 1000 // gas limit value in genesis block.

	MaxTxGas uint64 = 5 * 1000 * 1000 // default ceiling of gas provided by a single tx.

	MaxStateHistory = 65535 // max number of history state versions kept reachable.
)

// EpochLength is the number of blocks a validator set stays active.
// Validator set changes only take effect at multiples of EpochLength.
const EpochLength uint64 = 1024

// EpochNumber returns the epoch the given block height belongs to.
// The genesis block is in epoch 0.
func EpochNumber(height uint64) uint64 {
	return height / EpochLength
}

// EpochStart returns the first height of the given epoch.
func EpochStart(epoch uint64) uint64 {
	return epoch * EpochLength
}
