// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package runtime executes transactions against the world state, producing
// receipts and the state changes to be staged into a block.
package runtime

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/vm"
	"github.com/kaonchain/kaon/xenv"
)

// Runtime executes transactions within a block context.
type Runtime struct {
	state    *state.State
	ctx      *xenv.BlockContext
	vmConfig vm.Config
}

// New creates a Runtime bound to the given state and block context.
func New(st *state.State, ctx *xenv.BlockContext) *Runtime {
	return &Runtime{
		state: st,
		ctx:   ctx,
	}
}

// State returns the state the runtime operates on.
func (rt *Runtime) State() *state.State { return rt.state }

// Context returns the block context.
func (rt *Runtime) Context() *xenv.BlockContext { return rt.ctx }

// SetVMConfig configures the VM. Returns this runtime.
func (rt *Runtime) SetVMConfig(config vm.Config) *Runtime {
	rt.vmConfig = config
	return rt
}

// ExecuteTransaction executes the transaction and returns its receipt.
//
// A returned error means the transaction is invalid in this state (wrong
// chain, bad nonce, unaffordable) and produced no state change at all.
// VM-level failures are not errors: they yield a receipt with Reverted set,
// the gas consumed and the sender's nonce advanced.
func (rt *Runtime) ExecuteTransaction(trx *tx.Transaction) (receipt *tx.Receipt, err error) {
	defer func() {
		if e := recover(); e != nil {
			if se, ok := e.(*stateError); ok {
				receipt, err = nil, se.err
				return
			}
			panic(e)
		}
	}()

	if trx.ChainID() != rt.ctx.ChainID {
		return nil, errors.Errorf("chain id mismatch: tx %d, chain %d", trx.ChainID(), rt.ctx.ChainID)
	}
	if trx.Gas() > rt.ctx.GasLimit {
		return nil, errors.New("gas exceeds block gas limit")
	}

	resolved, err := ResolveTransaction(trx)
	if err != nil {
		return nil, err
	}
	if err := resolved.CheckNonce(rt.state); err != nil {
		return nil, err
	}
	returnGas, err := resolved.BuyGas(rt.state)
	if err != nil {
		return nil, err
	}

	value, overflow := uint256.FromBig(trx.Value())
	if overflow {
		return nil, errors.New("tx value out of range")
	}

	sdb := newStateDB(rt.state)
	evm := vm.New(rt.ctx, &xenv.TransactionContext{
		Hash:     trx.Hash(),
		Origin:   resolved.Origin,
		GasPrice: trx.GasPrice(),
		Nonce:    trx.Nonce(),
	}, sdb, rt.vmConfig)

	leftOverGas := trx.Gas() - resolved.IntrinsicGas

	var (
		vmErr        error
		contractAddr *kaon.Address
	)
	if to := trx.To(); to == nil {
		var created kaon.Address
		_, created, leftOverGas, vmErr = evm.Create(resolved.Origin, trx.Data(), leftOverGas, value)
		if vmErr == nil {
			contractAddr = &created
		}
	} else {
		// the nonce advances before execution, so it is consumed even
		// when the call reverts
		sdb.SetNonce(resolved.Origin, trx.Nonce()+1)
		_, leftOverGas, vmErr = evm.Call(resolved.Origin, *to, trx.Data(), leftOverGas, value)
	}

	// refund counter, capped to half of the used gas
	gasUsed := trx.Gas() - leftOverGas
	refund := gasUsed / 2
	if refund > sdb.GetRefund() {
		refund = sdb.GetRefund()
	}
	leftOverGas += refund
	gasUsed = trx.Gas() - leftOverGas

	if err := returnGas(leftOverGas); err != nil {
		return nil, err
	}

	// fee to the block beneficiary
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), trx.GasPrice())
	beneficiaryBalance, err := rt.state.GetBalance(rt.ctx.Beneficiary)
	if err != nil {
		return nil, err
	}
	if err := rt.state.SetBalance(rt.ctx.Beneficiary, new(big.Int).Add(beneficiaryBalance, fee)); err != nil {
		return nil, err
	}

	receipt = &tx.Receipt{
		GasUsed:         gasUsed,
		Paid:            fee,
		ContractAddress: contractAddr,
	}
	if vmErr != nil {
		receipt.Reverted = true
	} else {
		receipt.Logs = sdb.Logs()
	}
	return receipt, nil
}

// CallResult is the outcome of a read-only or simulated call.
type CallResult struct {
	Data     []byte
	GasUsed  uint64
	Reverted bool
	VMErr    error
}

// ExecuteCall runs a call against the current state without nonce, balance
// or signature checks. It mutates the runtime's state; callers wanting a
// pure simulation should operate on a throwaway state.
func (rt *Runtime) ExecuteCall(
	to *kaon.Address,
	input []byte,
	gas uint64,
	valueBig *big.Int,
	origin kaon.Address,
) (result *CallResult, err error) {
	defer func() {
		if e := recover(); e != nil {
			if se, ok := e.(*stateError); ok {
				result, err = nil, se.err
				return
			}
			panic(e)
		}
	}()

	if valueBig == nil {
		valueBig = new(big.Int)
	}
	value, overflow := uint256.FromBig(valueBig)
	if overflow {
		return nil, errors.New("value out of range")
	}

	sdb := newStateDB(rt.state)
	evm := vm.New(rt.ctx, &xenv.TransactionContext{
		Origin:   origin,
		GasPrice: new(big.Int),
	}, sdb, rt.vmConfig)

	var (
		data        []byte
		leftOverGas uint64
		vmErr       error
	)
	if to == nil {
		data, _, leftOverGas, vmErr = evm.Create(origin, input, gas, value)
	} else {
		data, leftOverGas, vmErr = evm.Call(origin, *to, input, gas, value)
	}

	result = &CallResult{
		Data:    data,
		GasUsed: gas - leftOverGas,
	}
	if vmErr != nil {
		result.Reverted = true
		result.VMErr = vmErr
	}
	return result, nil
}
