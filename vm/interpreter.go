// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/holiman/uint256"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// getData returns a size-long slice of data starting at offset, zero padded
// past the end.
func getData(data []byte, offset, size uint64) []byte {
	length := uint64(len(data))
	if offset > length {
		offset = length
	}
	end := offset + size
	if end < offset || end > length {
		end = length
	}
	return append(make([]byte, 0, size), data[offset:end]...)[:size:size]
}

// chargeMemory expands memory to cover [offset, offset+size), charging the
// quadratic growth cost. Returns offset and size as concrete integers.
func chargeMemory(contract *Contract, mem *Memory, offset, size *uint256.Int) (uint64, uint64, error) {
	if size.IsZero() {
		return 0, 0, nil
	}
	if !offset.IsUint64() || !size.IsUint64() {
		return 0, 0, ErrGasUintOverflow
	}
	off, sz := offset.Uint64(), size.Uint64()
	newSize := off + sz
	if newSize < off {
		return 0, 0, ErrGasUintOverflow
	}
	cost, err := memoryGasCost(mem, newSize)
	if err != nil {
		return 0, 0, err
	}
	if !contract.UseGas(cost) {
		return 0, 0, ErrOutOfGas
	}
	mem.resize(toWordSize(newSize) * 32)
	return off, sz, nil
}

// chargeCopy charges the per-word cost of copying size bytes.
func chargeCopy(contract *Contract, size uint64) error {
	words := toWordSize(size)
	cost := words * GasCopyWord
	if words > 0 && cost/words != GasCopyWord {
		return ErrGasUintOverflow
	}
	if !contract.UseGas(cost) {
		return ErrOutOfGas
	}
	return nil
}

func u256ToAddress(v *uint256.Int) kaon.Address {
	return kaon.Address(v.Bytes20())
}

// run executes the frame's code until it halts. The returned error is nil
// on normal halt, ErrExecutionReverted on REVERT, and any other error
// consumes the frame's remaining gas.
//
// Dispatch is a single closed switch over the instruction set: every
// defined opcode has a case, everything else falls through to the invalid
// instruction error.
func (evm *EVM) run(contract *Contract, input []byte, readOnly bool) ([]byte, error) {
	evm.depth++
	defer func() { evm.depth-- }()

	if readOnly && !evm.readOnly {
		evm.readOnly = true
		defer func() { evm.readOnly = false }()
	}

	if len(contract.Code) == 0 {
		return nil, nil
	}
	contract.Input = input

	var (
		mem        = newMemory()
		stack      = newStack()
		pc         uint64
		returnData []byte
	)

	for {
		op := contract.GetOp(pc)
		if !contract.UseGas(constGasTable[op]) {
			return nil, ErrOutOfGas
		}

		switch op {
		case STOP:
			return nil, nil

		case ADD:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Add(&x, y)

		case MUL:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Mul(&x, y)

		case SUB:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Sub(&x, y)

		case DIV:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Div(&x, y)

		case SDIV:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.SDiv(&x, y)

		case MOD:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Mod(&x, y)

		case SMOD:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.SMod(&x, y)

		case ADDMOD:
			if err := stack.require(3, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.pop()
			z := stack.peek(0)
			z.AddMod(&x, &y, z)

		case MULMOD:
			if err := stack.require(3, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.pop()
			z := stack.peek(0)
			z.MulMod(&x, &y, z)

		case EXP:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			base := stack.pop()
			exponent := stack.peek(0)
			expBytes := uint64((exponent.BitLen() + 7) / 8)
			if !contract.UseGas(expBytes * GasExpByte) {
				return nil, ErrOutOfGas
			}
			exponent.Exp(&base, exponent)

		case SIGNEXTEND:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			back := stack.pop()
			num := stack.peek(0)
			num.ExtendSign(num, &back)

		case LT:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			if x.Lt(y) {
				y.SetOne()
			} else {
				y.Clear()
			}

		case GT:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			if x.Gt(y) {
				y.SetOne()
			} else {
				y.Clear()
			}

		case SLT:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			if x.Slt(y) {
				y.SetOne()
			} else {
				y.Clear()
			}

		case SGT:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			if x.Sgt(y) {
				y.SetOne()
			} else {
				y.Clear()
			}

		case EQ:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			if x.Eq(y) {
				y.SetOne()
			} else {
				y.Clear()
			}

		case ISZERO:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			x := stack.peek(0)
			if x.IsZero() {
				x.SetOne()
			} else {
				x.Clear()
			}

		case AND:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.And(&x, y)

		case OR:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Or(&x, y)

		case XOR:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			x := stack.pop()
			y := stack.peek(0)
			y.Xor(&x, y)

		case NOT:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			x := stack.peek(0)
			x.Not(x)

		case BYTE:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			th := stack.pop()
			val := stack.peek(0)
			val.Byte(&th)

		case SHL:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			shift := stack.pop()
			value := stack.peek(0)
			if shift.LtUint64(256) {
				value.Lsh(value, uint(shift.Uint64()))
			} else {
				value.Clear()
			}

		case SHR:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			shift := stack.pop()
			value := stack.peek(0)
			if shift.LtUint64(256) {
				value.Rsh(value, uint(shift.Uint64()))
			} else {
				value.Clear()
			}

		case SAR:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			shift := stack.pop()
			value := stack.peek(0)
			if shift.GtUint64(256) {
				if value.Sign() >= 0 {
					value.Clear()
				} else {
					value.SetAllOne()
				}
			} else {
				value.SRsh(value, uint(shift.Uint64()))
			}

		case KECCAK256:
			if err := stack.require(2, 1); err != nil {
				return nil, err
			}
			offset := stack.pop()
			size := stack.peek(0)
			off, sz, err := chargeMemory(contract, mem, &offset, size)
			if err != nil {
				return nil, err
			}
			if !contract.UseGas(toWordSize(sz) * GasKeccak256Word) {
				return nil, ErrOutOfGas
			}
			hash := kaon.Keccak256(mem.getPtr(off, sz))
			size.SetBytes32(hash[:])

		case ADDRESS:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetBytes20(contract.Address[:]))

		case BALANCE:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			slot := stack.peek(0)
			balance, _ := uint256.FromBig(evm.StateDB.GetBalance(u256ToAddress(slot)))
			slot.Set(balance)

		case ORIGIN:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetBytes20(evm.txCtx.Origin[:]))

		case CALLER:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetBytes20(contract.CallerAddress[:]))

		case CALLVALUE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(contract.Value())

		case CALLDATALOAD:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			offset := stack.peek(0)
			if offset.IsUint64() {
				offset.SetBytes(getData(contract.Input, offset.Uint64(), 32))
			} else {
				offset.Clear()
			}

		case CALLDATASIZE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(uint64(len(contract.Input))))

		case CALLDATACOPY:
			if err := stack.require(3, 0); err != nil {
				return nil, err
			}
			memOffset := stack.pop()
			dataOffset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &memOffset, &size)
			if err != nil {
				return nil, err
			}
			if err := chargeCopy(contract, sz); err != nil {
				return nil, err
			}
			var src uint64
			if dataOffset.IsUint64() {
				src = dataOffset.Uint64()
			} else {
				src = uint64(len(contract.Input))
			}
			mem.set(off, sz, getData(contract.Input, src, sz))

		case CODESIZE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(uint64(len(contract.Code))))

		case CODECOPY:
			if err := stack.require(3, 0); err != nil {
				return nil, err
			}
			memOffset := stack.pop()
			codeOffset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &memOffset, &size)
			if err != nil {
				return nil, err
			}
			if err := chargeCopy(contract, sz); err != nil {
				return nil, err
			}
			var src uint64
			if codeOffset.IsUint64() {
				src = codeOffset.Uint64()
			} else {
				src = uint64(len(contract.Code))
			}
			mem.set(off, sz, getData(contract.Code, src, sz))

		case GASPRICE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			price, _ := uint256.FromBig(evm.txCtx.GasPrice)
			stack.push(price)

		case EXTCODESIZE:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			slot := stack.peek(0)
			slot.SetUint64(uint64(evm.StateDB.GetCodeSize(u256ToAddress(slot))))

		case EXTCODECOPY:
			if err := stack.require(4, 0); err != nil {
				return nil, err
			}
			addrWord := stack.pop()
			memOffset := stack.pop()
			codeOffset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &memOffset, &size)
			if err != nil {
				return nil, err
			}
			if err := chargeCopy(contract, sz); err != nil {
				return nil, err
			}
			code := evm.StateDB.GetCode(u256ToAddress(&addrWord))
			var src uint64
			if codeOffset.IsUint64() {
				src = codeOffset.Uint64()
			} else {
				src = uint64(len(code))
			}
			mem.set(off, sz, getData(code, src, sz))

		case RETURNDATASIZE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(uint64(len(returnData))))

		case RETURNDATACOPY:
			if err := stack.require(3, 0); err != nil {
				return nil, err
			}
			memOffset := stack.pop()
			dataOffset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &memOffset, &size)
			if err != nil {
				return nil, err
			}
			if err := chargeCopy(contract, sz); err != nil {
				return nil, err
			}
			if !dataOffset.IsUint64() {
				return nil, ErrReturnDataOutOfBounds
			}
			src := dataOffset.Uint64()
			if src+sz < src || src+sz > uint64(len(returnData)) {
				return nil, ErrReturnDataOutOfBounds
			}
			mem.set(off, sz, returnData[src:src+sz])

		case EXTCODEHASH:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			slot := stack.peek(0)
			addr := u256ToAddress(slot)
			if !evm.StateDB.Exists(addr) {
				slot.Clear()
			} else {
				hash := evm.StateDB.GetCodeHash(addr)
				slot.SetBytes32(hash[:])
			}

		case BLOCKHASH:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			num := stack.peek(0)
			num64, overflow := num.Uint64WithOverflow()
			if overflow || evm.blockCtx.GetBlockID == nil ||
				num64 >= evm.blockCtx.Number || evm.blockCtx.Number-num64 > 256 {
				num.Clear()
			} else {
				id := evm.blockCtx.GetBlockID(num64)
				num.SetBytes32(id[:])
			}

		case COINBASE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetBytes20(evm.blockCtx.Beneficiary[:]))

		case TIMESTAMP:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(evm.blockCtx.Time))

		case NUMBER:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(evm.blockCtx.Number))

		case PREVRANDAO:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			// no randomness beacon; fixed zero keeps execution deterministic
			stack.push(new(uint256.Int))

		case GASLIMIT:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(evm.blockCtx.GasLimit))

		case CHAINID:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(evm.blockCtx.ChainID))

		case SELFBALANCE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			balance, _ := uint256.FromBig(evm.StateDB.GetBalance(contract.Address))
			stack.push(balance)

		case BASEFEE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			// no fee market
			stack.push(new(uint256.Int))

		case POP:
			if err := stack.require(1, 0); err != nil {
				return nil, err
			}
			stack.pop()

		case MLOAD:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			offset := stack.peek(0)
			off, _, err := chargeMemory(contract, mem, offset, uint256.NewInt(32))
			if err != nil {
				return nil, err
			}
			offset.SetBytes(mem.getPtr(off, 32))

		case MSTORE:
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			offset := stack.pop()
			value := stack.pop()
			off, _, err := chargeMemory(contract, mem, &offset, uint256.NewInt(32))
			if err != nil {
				return nil, err
			}
			mem.set32(off, &value)

		case MSTORE8:
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			offset := stack.pop()
			value := stack.pop()
			off, _, err := chargeMemory(contract, mem, &offset, uint256.NewInt(1))
			if err != nil {
				return nil, err
			}
			mem.set(off, 1, []byte{byte(value.Uint64())})

		case SLOAD:
			if err := stack.require(1, 1); err != nil {
				return nil, err
			}
			loc := stack.peek(0)
			val := evm.StateDB.GetState(contract.Address, loc.Bytes32())
			loc.SetBytes32(val[:])

		case SSTORE:
			if evm.readOnly {
				return nil, ErrWriteProtection
			}
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			loc := stack.pop()
			val := stack.pop()

			key := kaon.Bytes32(loc.Bytes32())
			current := evm.StateDB.GetState(contract.Address, key)
			newVal := kaon.Bytes32(val.Bytes32())
			switch {
			case current.IsZero() && !newVal.IsZero():
				if !contract.UseGas(GasSstoreSet) {
					return nil, ErrOutOfGas
				}
			case !current.IsZero() && newVal.IsZero():
				evm.StateDB.AddRefund(GasSstoreClearRefund)
				if !contract.UseGas(GasSstoreReset) {
					return nil, ErrOutOfGas
				}
			default:
				if !contract.UseGas(GasSstoreReset) {
					return nil, ErrOutOfGas
				}
			}
			evm.StateDB.SetState(contract.Address, key, newVal)

		case JUMP:
			if err := stack.require(1, 0); err != nil {
				return nil, err
			}
			dest := stack.pop()
			if !contract.validJumpdest(&dest) {
				return nil, ErrInvalidJump
			}
			pc = dest.Uint64()
			continue

		case JUMPI:
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			dest := stack.pop()
			cond := stack.pop()
			if !cond.IsZero() {
				if !contract.validJumpdest(&dest) {
					return nil, ErrInvalidJump
				}
				pc = dest.Uint64()
				continue
			}

		case PC:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(pc))

		case MSIZE:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(uint64(mem.len())))

		case GAS:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int).SetUint64(contract.Gas))

		case JUMPDEST:
			// no-op

		case PUSH0:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			stack.push(new(uint256.Int))

		case PUSH1, PUSH2, PUSH3, PUSH4, PUSH5, PUSH6, PUSH7, PUSH8,
			PUSH9, PUSH10, PUSH11, PUSH12, PUSH13, PUSH14, PUSH15, PUSH16,
			PUSH17, PUSH18, PUSH19, PUSH20, PUSH21, PUSH22, PUSH23, PUSH24,
			PUSH25, PUSH26, PUSH27, PUSH28, PUSH29, PUSH30, PUSH31, PUSH32:
			if err := stack.require(0, 1); err != nil {
				return nil, err
			}
			pushSize := uint64(op - PUSH0)
			stack.push(new(uint256.Int).SetBytes(getData(contract.Code, pc+1, pushSize)))
			pc += pushSize

		case DUP1, DUP2, DUP3, DUP4, DUP5, DUP6, DUP7, DUP8,
			DUP9, DUP10, DUP11, DUP12, DUP13, DUP14, DUP15, DUP16:
			n := int(op-DUP1) + 1
			if err := stack.require(n, n+1); err != nil {
				return nil, err
			}
			stack.dup(n)

		case SWAP1, SWAP2, SWAP3, SWAP4, SWAP5, SWAP6, SWAP7, SWAP8,
			SWAP9, SWAP10, SWAP11, SWAP12, SWAP13, SWAP14, SWAP15, SWAP16:
			n := int(op-SWAP1) + 1
			if err := stack.require(n+1, n+1); err != nil {
				return nil, err
			}
			stack.swap(n)

		case LOG0, LOG1, LOG2, LOG3, LOG4:
			if evm.readOnly {
				return nil, ErrWriteProtection
			}
			numTopics := int(op - LOG0)
			if err := stack.require(numTopics+2, 0); err != nil {
				return nil, err
			}
			offset := stack.pop()
			size := stack.pop()
			topics := make([]kaon.Bytes32, numTopics)
			for i := range topics {
				t := stack.pop()
				topics[i] = t.Bytes32()
			}
			off, sz, err := chargeMemory(contract, mem, &offset, &size)
			if err != nil {
				return nil, err
			}
			dataCost := sz * GasLogData
			if sz > 0 && dataCost/sz != GasLogData {
				return nil, ErrGasUintOverflow
			}
			if !contract.UseGas(uint64(numTopics)*GasLogTopic + dataCost) {
				return nil, ErrOutOfGas
			}
			evm.StateDB.AddLog(&tx.Log{
				Address: contract.Address,
				Topics:  topics,
				Data:    mem.getCopy(off, sz),
			})

		case CREATE, CREATE2:
			if evm.readOnly {
				return nil, ErrWriteProtection
			}
			nPop := 3
			if op == CREATE2 {
				nPop = 4
			}
			if err := stack.require(nPop, 1); err != nil {
				return nil, err
			}
			value := stack.pop()
			offset := stack.pop()
			size := stack.pop()
			var salt uint256.Int
			if op == CREATE2 {
				salt = stack.pop()
			}
			off, sz, err := chargeMemory(contract, mem, &offset, &size)
			if err != nil {
				return nil, err
			}
			if op == CREATE2 {
				// hashing the init code for the address derivation
				if !contract.UseGas(toWordSize(sz) * GasKeccak256Word) {
					return nil, ErrOutOfGas
				}
			}
			initCode := mem.getCopy(off, sz)

			gas := contract.Gas - contract.Gas/64
			contract.UseGas(gas)

			var (
				ret    []byte
				addr   kaon.Address
				retGas uint64
				subErr error
			)
			if op == CREATE2 {
				ret, addr, retGas, subErr = evm.Create2(contract.Address, initCode, gas, &value, &salt)
			} else {
				ret, addr, retGas, subErr = evm.Create(contract.Address, initCode, gas, &value)
			}
			if subErr != nil {
				stack.push(new(uint256.Int))
			} else {
				stack.push(new(uint256.Int).SetBytes20(addr[:]))
			}
			contract.Gas += retGas
			if subErr == ErrExecutionReverted {
				returnData = ret
			} else {
				returnData = nil
			}

		case CALL:
			if err := stack.require(7, 1); err != nil {
				return nil, err
			}
			gasReq := stack.pop()
			addrWord := stack.pop()
			value := stack.pop()
			inOffset := stack.pop()
			inSize := stack.pop()
			retOffset := stack.pop()
			retSize := stack.pop()

			if evm.readOnly && !value.IsZero() {
				return nil, ErrWriteProtection
			}
			toAddr := u256ToAddress(&addrWord)

			inOff, inSz, err := chargeMemory(contract, mem, &inOffset, &inSize)
			if err != nil {
				return nil, err
			}
			retOff, retSz, err := chargeMemory(contract, mem, &retOffset, &retSize)
			if err != nil {
				return nil, err
			}

			if !value.IsZero() {
				if !contract.UseGas(GasCallValue) {
					return nil, ErrOutOfGas
				}
				if !evm.StateDB.Exists(toAddr) {
					if !contract.UseGas(GasNewAccount) {
						return nil, ErrOutOfGas
					}
				}
			}

			gas, err := callGas(contract.Gas, 0, &gasReq)
			if err != nil {
				return nil, err
			}
			contract.UseGas(gas)
			if !value.IsZero() {
				gas += GasCallStipend
			}

			args := mem.getCopy(inOff, inSz)
			ret, retGas, callErr := evm.Call(contract.Address, toAddr, args, gas, &value)
			if callErr != nil {
				stack.push(new(uint256.Int))
			} else {
				stack.push(new(uint256.Int).SetOne())
			}
			if callErr == nil || callErr == ErrExecutionReverted {
				if n := uint64(len(ret)); n > 0 {
					if n > retSz {
						n = retSz
					}
					mem.set(retOff, n, ret)
				}
			}
			contract.Gas += retGas
			returnData = ret

		case DELEGATECALL, STATICCALL:
			if err := stack.require(6, 1); err != nil {
				return nil, err
			}
			gasReq := stack.pop()
			addrWord := stack.pop()
			inOffset := stack.pop()
			inSize := stack.pop()
			retOffset := stack.pop()
			retSize := stack.pop()

			toAddr := u256ToAddress(&addrWord)

			inOff, inSz, err := chargeMemory(contract, mem, &inOffset, &inSize)
			if err != nil {
				return nil, err
			}
			retOff, retSz, err := chargeMemory(contract, mem, &retOffset, &retSize)
			if err != nil {
				return nil, err
			}

			gas, err := callGas(contract.Gas, 0, &gasReq)
			if err != nil {
				return nil, err
			}
			contract.UseGas(gas)

			args := mem.getCopy(inOff, inSz)
			var (
				ret     []byte
				retGas uint64
				callErr error
			)
			if op == DELEGATECALL {
				ret, retGas, callErr = evm.DelegateCall(contract, toAddr, args, gas)
			} else {
				ret, retGas, callErr = evm.StaticCall(contract.Address, toAddr, args, gas)
			}
			if callErr != nil {
				stack.push(new(uint256.Int))
			} else {
				stack.push(new(uint256.Int).SetOne())
			}
			if callErr == nil || callErr == ErrExecutionReverted {
				if n := uint64(len(ret)); n > 0 {
					if n > retSz {
						n = retSz
					}
					mem.set(retOff, n, ret)
				}
			}
			contract.Gas += retGas
			returnData = ret

		case RETURN:
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			offset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &offset, &size)
			if err != nil {
				return nil, err
			}
			return mem.getCopy(off, sz), nil

		case REVERT:
			if err := stack.require(2, 0); err != nil {
				return nil, err
			}
			offset := stack.pop()
			size := stack.pop()
			off, sz, err := chargeMemory(contract, mem, &offset, &size)
			if err != nil {
				return nil, err
			}
			return mem.getCopy(off, sz), ErrExecutionReverted

		case SELFDESTRUCT:
			if evm.readOnly {
				return nil, ErrWriteProtection
			}
			if err := stack.require(1, 0); err != nil {
				return nil, err
			}
			beneficiaryWord := stack.pop()
			beneficiary := u256ToAddress(&beneficiaryWord)
			balance := evm.StateDB.GetBalance(contract.Address)
			if balance.Sign() > 0 && !evm.StateDB.Exists(beneficiary) {
				if !contract.UseGas(GasNewAccount) {
					return nil, ErrOutOfGas
				}
			}
			amount, _ := uint256.FromBig(balance)
			evm.transfer(contract.Address, beneficiary, amount)
			evm.StateDB.Delete(contract.Address)
			return nil, nil

		default:
			return nil, &invalidOpCodeError{op: op}
		}
		pc++
	}
}
