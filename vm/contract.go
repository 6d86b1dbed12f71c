// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/holiman/uint256"

	"github.com/kaonchain/kaon/kaon"
)

// Contract is a call frame: an address with code being executed, the
// caller, attached value and a gas allowance.
type Contract struct {
	CallerAddress kaon.Address
	Address       kaon.Address
	Code          []byte
	Input         []byte

	value *uint256.Int
	Gas   uint64

	jumpdests map[uint64]bool // lazily built valid jump destinations
}

func newContract(caller, address kaon.Address, value *uint256.Int, gas uint64) *Contract {
	return &Contract{
		CallerAddress: caller,
		Address:       address,
		value:         value,
		Gas:           gas,
	}
}

// Value returns the value attached to the frame.
func (c *Contract) Value() *uint256.Int {
	return new(uint256.Int).Set(c.value)
}

// UseGas deducts gas from the allowance, returning false when exhausted.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// GetOp returns the opcode at pc.
func (c *Contract) GetOp(pc uint64) OpCode {
	if pc < uint64(len(c.Code)) {
		return OpCode(c.Code[pc])
	}
	return STOP
}

// validJumpdest reports whether dest is a JUMPDEST outside push data.
func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	if !dest.IsUint64() {
		return false
	}
	udest := dest.Uint64()
	if udest >= uint64(len(c.Code)) {
		return false
	}
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	if c.jumpdests == nil {
		c.jumpdests = analyzeJumpdests(c.Code)
	}
	return c.jumpdests[udest]
}

// analyzeJumpdests scans code for JUMPDEST positions, skipping push data.
func analyzeJumpdests(code []byte) map[uint64]bool {
	dests := make(map[uint64]bool)
	for pc := uint64(0); pc < uint64(len(code)); pc++ {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests[pc] = true
		} else if op.IsPush() {
			pc += uint64(op - PUSH0)
		}
	}
	return dests
}
