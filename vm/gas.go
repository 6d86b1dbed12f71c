// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/holiman/uint256"
)

// Gas costs of the instruction set.
const (
	GasQuickStep   uint64 = 2
	GasFastestStep uint64 = 3
	GasFastStep    uint64 = 5
	GasMidStep     uint64 = 8
	GasSlowStep    uint64 = 10
	GasExtStep     uint64 = 20

	GasBalance     uint64 = 400
	GasSload       uint64 = 200
	GasExtCode     uint64 = 700
	GasExtCodeHash uint64 = 400
	GasCall        uint64 = 700
	GasCallValue   uint64 = 9000
	GasCallStipend uint64 = 2300
	GasNewAccount  uint64 = 25000
	GasCreate      uint64 = 32000
	GasSelfdestruct uint64 = 5000

	GasSstoreSet    uint64 = 20000
	GasSstoreReset  uint64 = 5000
	GasSstoreClearRefund uint64 = 15000

	GasJumpdest uint64 = 1
	GasKeccak256     uint64 = 30
	GasKeccak256Word uint64 = 6
	GasCopyWord      uint64 = 3
	GasExpByte       uint64 = 50
	GasLog           uint64 = 375
	GasLogTopic      uint64 = 375
	GasLogData       uint64 = 8
	GasMemoryWord    uint64 = 3
	GasCodeDepositByte uint64 = 200

	// MaxCodeSize is the ceiling on deployed contract code.
	MaxCodeSize = 24576
)

// constGasTable holds the static gas cost per opcode. Dynamic parts
// (memory expansion, copy sizes, storage semantics) are charged in the
// interpreter's dispatch.
var constGasTable = [256]uint64{
	STOP:       0,
	ADD:        GasFastestStep,
	MUL:        GasFastStep,
	SUB:        GasFastestStep,
	DIV:        GasFastStep,
	SDIV:       GasFastStep,
	MOD:        GasFastStep,
	SMOD:       GasFastStep,
	ADDMOD:     GasMidStep,
	MULMOD:     GasMidStep,
	EXP:        GasSlowStep,
	SIGNEXTEND: GasFastStep,

	LT: GasFastestStep, GT: GasFastestStep, SLT: GasFastestStep, SGT: GasFastestStep,
	EQ: GasFastestStep, ISZERO: GasFastestStep,
	AND: GasFastestStep, OR: GasFastestStep, XOR: GasFastestStep, NOT: GasFastestStep,
	BYTE: GasFastestStep, SHL: GasFastestStep, SHR: GasFastestStep, SAR: GasFastestStep,

	KECCAK256: GasKeccak256,

	ADDRESS:        GasQuickStep,
	BALANCE:        GasBalance,
	ORIGIN:         GasQuickStep,
	CALLER:         GasQuickStep,
	CALLVALUE:      GasQuickStep,
	CALLDATALOAD:   GasFastestStep,
	CALLDATASIZE:   GasQuickStep,
	CALLDATACOPY:   GasFastestStep,
	CODESIZE:       GasQuickStep,
	CODECOPY:       GasFastestStep,
	GASPRICE:       GasQuickStep,
	EXTCODESIZE:    GasExtCode,
	EXTCODECOPY:    GasExtCode,
	RETURNDATASIZE: GasQuickStep,
	RETURNDATACOPY: GasFastestStep,
	EXTCODEHASH:    GasExtCodeHash,

	BLOCKHASH:   GasExtStep,
	COINBASE:    GasQuickStep,
	TIMESTAMP:   GasQuickStep,
	NUMBER:      GasQuickStep,
	PREVRANDAO:  GasQuickStep,
	GASLIMIT:    GasQuickStep,
	CHAINID:     GasQuickStep,
	SELFBALANCE: GasFastStep,
	BASEFEE:     GasQuickStep,

	POP:      GasQuickStep,
	MLOAD:    GasFastestStep,
	MSTORE:   GasFastestStep,
	MSTORE8:  GasFastestStep,
	SLOAD:    GasSload,
	SSTORE:   0, // fully dynamic
	JUMP:     GasMidStep,
	JUMPI:    GasSlowStep,
	PC:       GasQuickStep,
	MSIZE:    GasQuickStep,
	GAS:      GasQuickStep,
	JUMPDEST: GasJumpdest,

	PUSH0: GasQuickStep,

	LOG0: GasLog, LOG1: GasLog, LOG2: GasLog, LOG3: GasLog, LOG4: GasLog,

	CREATE:       GasCreate,
	CALL:         GasCall,
	RETURN:       0,
	DELEGATECALL: GasCall,
	CREATE2:      GasCreate,
	STATICCALL:   GasCall,
	REVERT:       0,
	SELFDESTRUCT: GasSelfdestruct,
}

func init() {
	for op := PUSH1; op <= PUSH32; op++ {
		constGasTable[op] = GasFastestStep
	}
	for op := DUP1; op <= DUP16; op++ {
		constGasTable[op] = GasFastestStep
	}
	for op := SWAP1; op <= SWAP16; op++ {
		constGasTable[op] = GasFastestStep
	}
}

// memoryGasCost computes the quadratic cost of growing memory to newSize
// bytes, given the already paid-for size.
func memoryGasCost(mem *Memory, newSize uint64) (uint64, error) {
	if newSize == 0 {
		return 0, nil
	}
	// memory size in words, overflow checked
	if newSize > 0x1FFFFFFFE0 {
		return 0, ErrGasUintOverflow
	}
	newWords := toWordSize(newSize)
	newSize = newWords * 32

	if newSize <= uint64(mem.len()) {
		return 0, nil
	}
	square := newWords * newWords
	newCost := newWords*GasMemoryWord + square/512

	oldWords := uint64(mem.len()) / 32
	oldCost := oldWords*GasMemoryWord + oldWords*oldWords/512

	return newCost - oldCost, nil
}

// toWordSize returns the number of 32-byte words required for size bytes.
func toWordSize(size uint64) uint64 {
	if size > 0xFFFFFFFFFFFFFFE0 {
		return 0x7FFFFFFFFFFFFFFF
	}
	return (size + 31) / 32
}

// callGas applies the all-but-one-64th rule: a frame can forward at most
// 63/64 of its remaining gas.
func callGas(availableGas, baseCost uint64, requested *uint256.Int) (uint64, error) {
	if availableGas < baseCost {
		return 0, ErrOutOfGas
	}
	availableGas -= baseCost
	gas := availableGas - availableGas/64
	if !requested.IsUint64() || gas < requested.Uint64() {
		return gas, nil
	}
	return requested.Uint64(), nil
}
