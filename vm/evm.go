// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package vm implements the EVM-compatible virtual machine driving contract
// execution. Opcode dispatch is a closed switch over the finite instruction
// set, so an unhandled instruction is a compile-time visible gap rather
// than a runtime surprise.
package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/xenv"
)

// MaxCallDepth is the maximum nesting of call frames.
const MaxCallDepth = 1024

// Config are the tunables of a VM instance.
type Config struct {
	// ExtraPrecompiles are chain-specific precompiled contracts merged
	// over the builtin set. Builtins win on address clashes.
	ExtraPrecompiles map[kaon.Address]PrecompiledContract
}

// EVM executes call frames against a StateDB within a block and
// transaction context. An EVM instance is single-use per transaction and
// never used concurrently.
type EVM struct {
	StateDB StateDB

	blockCtx *xenv.BlockContext
	txCtx    *xenv.TransactionContext
	cfg      Config

	depth    int
	readOnly bool
}

// New creates an EVM instance.
func New(blockCtx *xenv.BlockContext, txCtx *xenv.TransactionContext, statedb StateDB, cfg Config) *EVM {
	return &EVM{
		StateDB:  statedb,
		blockCtx: blockCtx,
		txCtx:    txCtx,
		cfg:      cfg,
	}
}

// BlockContext returns the block context.
func (evm *EVM) BlockContext() *xenv.BlockContext { return evm.blockCtx }

// TransactionContext returns the transaction context.
func (evm *EVM) TransactionContext() *xenv.TransactionContext { return evm.txCtx }

func (evm *EVM) precompile(addr kaon.Address) (PrecompiledContract, bool) {
	if p, ok := builtinPrecompiles[addr]; ok {
		return p, true
	}
	p, ok := evm.cfg.ExtraPrecompiles[addr]
	return p, ok
}

// canTransfer checks whether the account holds at least amount.
func (evm *EVM) canTransfer(addr kaon.Address, amount *uint256.Int) bool {
	balance, overflow := uint256.FromBig(evm.StateDB.GetBalance(addr))
	if overflow {
		return true
	}
	return balance.Cmp(amount) >= 0
}

// transfer moves amount between accounts. Callers must have checked
// canTransfer.
func (evm *EVM) transfer(sender, recipient kaon.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	amt := amount.ToBig()
	evm.StateDB.SetBalance(sender, new(big.Int).Sub(evm.StateDB.GetBalance(sender), amt))
	evm.StateDB.SetBalance(recipient, new(big.Int).Add(evm.StateDB.GetBalance(recipient), amt))
}

// Call executes the code at addr with the given input, transferring value
// from caller to addr first.
func (evm *EVM) Call(caller, addr kaon.Address, input []byte, gas uint64, value *uint256.Int) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > MaxCallDepth {
		return nil, gas, ErrDepth
	}
	if !evm.canTransfer(caller, value) {
		return nil, gas, ErrInsufficientBalance
	}

	snapshot := evm.StateDB.Snapshot()
	evm.transfer(caller, addr, value)

	if p, ok := evm.precompile(addr); ok {
		ret, gas, err = runPrecompile(p, input, gas)
	} else {
		code := evm.StateDB.GetCode(addr)
		if len(code) == 0 {
			return nil, gas, nil
		}
		contract := newContract(caller, addr, value, gas)
		contract.Code = code
		ret, err = evm.run(contract, input, false)
		gas = contract.Gas
	}

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// DelegateCall executes the code at addr in the storage context of the
// calling contract, keeping the parent frame's caller and value.
func (evm *EVM) DelegateCall(parent *Contract, addr kaon.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > MaxCallDepth {
		return nil, gas, ErrDepth
	}

	snapshot := evm.StateDB.Snapshot()

	contract := newContract(parent.CallerAddress, parent.Address, parent.value, gas)
	contract.Code = evm.StateDB.GetCode(addr)
	ret, err = evm.run(contract, input, false)
	gas = contract.Gas

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// StaticCall executes the code at addr with state mutation disallowed.
func (evm *EVM) StaticCall(caller, addr kaon.Address, input []byte, gas uint64) (ret []byte, leftOverGas uint64, err error) {
	if evm.depth > MaxCallDepth {
		return nil, gas, ErrDepth
	}

	snapshot := evm.StateDB.Snapshot()

	if p, ok := evm.precompile(addr); ok {
		ret, gas, err = runPrecompile(p, input, gas)
	} else {
		contract := newContract(caller, addr, new(uint256.Int), gas)
		contract.Code = evm.StateDB.GetCode(addr)
		ret, err = evm.run(contract, input, true)
		gas = contract.Gas
	}

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			gas = 0
		}
	}
	return ret, gas, err
}

// Create deploys a contract with the given init code, at the address
// derived from the creator and its nonce.
func (evm *EVM) Create(caller kaon.Address, code []byte, gas uint64, value *uint256.Int) (ret []byte, contractAddr kaon.Address, leftOverGas uint64, err error) {
	nonce := evm.StateDB.GetNonce(caller)
	contractAddr = kaon.Address(crypto.CreateAddress(common.Address(caller), nonce))
	return evm.create(caller, code, gas, value, contractAddr)
}

// Create2 deploys a contract at the address derived from the creator, a
// salt and the init code hash, independent of the creator's nonce.
func (evm *EVM) Create2(caller kaon.Address, code []byte, gas uint64, value, salt *uint256.Int) (ret []byte, contractAddr kaon.Address, leftOverGas uint64, err error) {
	codeHash := kaon.Keccak256(code)
	saltBytes := salt.Bytes32()
	contractAddr = kaon.Address(crypto.CreateAddress2(common.Address(caller), saltBytes, codeHash[:]))
	return evm.create(caller, code, gas, value, contractAddr)
}

func (evm *EVM) create(caller kaon.Address, code []byte, gas uint64, value *uint256.Int, contractAddr kaon.Address) ([]byte, kaon.Address, uint64, error) {
	if evm.depth > MaxCallDepth {
		return nil, kaon.Address{}, gas, ErrDepth
	}
	if !evm.canTransfer(caller, value) {
		return nil, kaon.Address{}, gas, ErrInsufficientBalance
	}

	evm.StateDB.SetNonce(caller, evm.StateDB.GetNonce(caller)+1)

	// fail on address collision
	if evm.StateDB.GetNonce(contractAddr) != 0 || evm.StateDB.GetCodeSize(contractAddr) != 0 {
		return nil, kaon.Address{}, 0, ErrContractCollision
	}

	snapshot := evm.StateDB.Snapshot()
	evm.StateDB.SetNonce(contractAddr, 1)
	evm.transfer(caller, contractAddr, value)

	contract := newContract(caller, contractAddr, value, gas)
	contract.Code = code

	ret, err := evm.run(contract, nil, false)

	if err == nil {
		if len(ret) > MaxCodeSize {
			err = ErrCodeSizeExceeded
		} else if depositGas := uint64(len(ret)) * GasCodeDepositByte; !contract.UseGas(depositGas) {
			err = ErrOutOfGas
		} else {
			evm.StateDB.SetCode(contractAddr, ret)
		}
	}

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if err != ErrExecutionReverted {
			contract.Gas = 0
		}
		return ret, kaon.Address{}, contract.Gas, err
	}
	return ret, contractAddr, contract.Gas, nil
}
