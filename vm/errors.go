// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Execution errors. They abort the current frame, consume its remaining gas
// (except revert) and roll its state changes back. They are expected
// outcomes, recorded in receipts, never fatal.
var (
	ErrOutOfGas            = errors.New("out of gas")
	ErrDepth               = errors.New("max call depth exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrContractCollision   = errors.New("contract address collision")
	ErrExecutionReverted   = errors.New("execution reverted")
	ErrCodeSizeExceeded    = errors.New("max code size exceeded")
	ErrGasUintOverflow     = errors.New("gas uint64 overflow")
	ErrWriteProtection     = errors.New("write protection")
	ErrReturnDataOutOfBounds = errors.New("return data out of bounds")
	ErrStackOverflow       = errors.New("stack overflow")
	ErrStackUnderflow      = errors.New("stack underflow")
	ErrInvalidJump         = errors.New("invalid jump destination")
)

// invalidOpCodeError is returned when the interpreter hits an undefined or
// explicitly invalid instruction.
type invalidOpCodeError struct {
	op OpCode
}

func (e *invalidOpCodeError) Error() string {
	return fmt.Sprintf("invalid opcode: %v", e.op)
}
