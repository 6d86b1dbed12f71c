// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/xenv"
)

type mockState struct {
	balances map[kaon.Address]*big.Int
	nonces   map[kaon.Address]uint64
	codes    map[kaon.Address][]byte
	storage  map[kaon.Address]map[kaon.Bytes32]kaon.Bytes32
	logs     []*tx.Log
	refund   uint64

	snapshots []*mockState
}

func newMockState() *mockState {
	return &mockState{
		balances: make(map[kaon.Address]*big.Int),
		nonces:   make(map[kaon.Address]uint64),
		codes:    make(map[kaon.Address][]byte),
		storage:  make(map[kaon.Address]map[kaon.Bytes32]kaon.Bytes32),
	}
}

func (m *mockState) copy() *mockState {
	cpy := newMockState()
	for a, b := range m.balances {
		cpy.balances[a] = new(big.Int).Set(b)
	}
	for a, n := range m.nonces {
		cpy.nonces[a] = n
	}
	for a, c := range m.codes {
		cpy.codes[a] = c
	}
	for a, s := range m.storage {
		ss := make(map[kaon.Bytes32]kaon.Bytes32, len(s))
		for k, v := range s {
			ss[k] = v
		}
		cpy.storage[a] = ss
	}
	cpy.logs = append([]*tx.Log(nil), m.logs...)
	cpy.refund = m.refund
	return cpy
}

func (m *mockState) GetBalance(addr kaon.Address) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}
func (m *mockState) SetBalance(addr kaon.Address, b *big.Int) {
	m.balances[addr] = new(big.Int).Set(b)
}
func (m *mockState) GetNonce(addr kaon.Address) uint64         { return m.nonces[addr] }
func (m *mockState) SetNonce(addr kaon.Address, nonce uint64)  { m.nonces[addr] = nonce }
func (m *mockState) GetCode(addr kaon.Address) []byte          { return m.codes[addr] }
func (m *mockState) GetCodeSize(addr kaon.Address) int         { return len(m.codes[addr]) }
func (m *mockState) SetCode(addr kaon.Address, code []byte)    { m.codes[addr] = code }
func (m *mockState) GetCodeHash(addr kaon.Address) kaon.Bytes32 {
	if code, ok := m.codes[addr]; ok {
		return kaon.Keccak256(code)
	}
	return kaon.Bytes32{}
}
func (m *mockState) GetState(addr kaon.Address, key kaon.Bytes32) kaon.Bytes32 {
	return m.storage[addr][key]
}
func (m *mockState) SetState(addr kaon.Address, key, val kaon.Bytes32) {
	s, ok := m.storage[addr]
	if !ok {
		s = make(map[kaon.Bytes32]kaon.Bytes32)
		m.storage[addr] = s
	}
	s[key] = val
}
func (m *mockState) Exists(addr kaon.Address) bool {
	if b, ok := m.balances[addr]; ok && b.Sign() > 0 {
		return true
	}
	return m.nonces[addr] != 0 || len(m.codes[addr]) != 0
}
func (m *mockState) Delete(addr kaon.Address) {
	delete(m.balances, addr)
	delete(m.nonces, addr)
	delete(m.codes, addr)
	delete(m.storage, addr)
}
func (m *mockState) AddLog(log *tx.Log) { m.logs = append(m.logs, log) }
func (m *mockState) AddRefund(v uint64) { m.refund += v }
func (m *mockState) SubRefund(v uint64) { m.refund -= v }
func (m *mockState) GetRefund() uint64  { return m.refund }

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copy())
	return len(m.snapshots) - 1
}
func (m *mockState) RevertToSnapshot(rev int) {
	saved := m.snapshots[rev]
	m.balances = saved.balances
	m.nonces = saved.nonces
	m.codes = saved.codes
	m.storage = saved.storage
	m.logs = saved.logs
	m.refund = saved.refund
	m.snapshots = m.snapshots[:rev]
}

func newTestEVM(state StateDB) *EVM {
	blockCtx := &xenv.BlockContext{
		ChainID:     99,
		Number:      10,
		Beneficiary: kaon.BytesToAddress([]byte("beneficiary")),
		Time:        1700000000,
		GasLimit:    10_000_000,
	}
	txCtx := &xenv.TransactionContext{
		Origin:   kaon.BytesToAddress([]byte("origin")),
		GasPrice: big.NewInt(1),
	}
	return New(blockCtx, txCtx, state, Config{})
}

func TestArithmetic(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	// 3 + 2, returned as a 32-byte word
	state.SetCode(target, []byte{
		0x60, 0x03, 0x60, 0x02, 0x01, // PUSH1 3 PUSH1 2 ADD
		0x60, 0x00, 0x52, // PUSH1 0 MSTORE
		0x60, 0x20, 0x60, 0x00, 0xf3, // PUSH1 32 PUSH1 0 RETURN
	})

	evm := newTestEVM(state)
	ret, leftGas, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), new(uint256.Int).SetBytes(ret).Uint64())
	assert.True(t, leftGas > 0)
}

func TestRevert(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{
		0x60, 0x2a, 0x60, 0x00, 0x52, // PUSH1 42 PUSH1 0 MSTORE
		0x60, 0x20, 0x60, 0x00, 0xfd, // PUSH1 32 PUSH1 0 REVERT
	})

	evm := newTestEVM(state)
	ret, leftGas, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	assert.Equal(t, ErrExecutionReverted, err)
	assert.Equal(t, uint64(42), new(uint256.Int).SetBytes(ret).Uint64())
	// revert refunds remaining gas
	assert.True(t, leftGas > 0)
}

func TestInvalidOpcodeConsumesGas(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{0xfe})

	evm := newTestEVM(state)
	_, leftGas, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	assert.Error(t, err)
	assert.Equal(t, uint64(0), leftGas)
}

func TestOutOfGas(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00})

	evm := newTestEVM(state)
	_, leftGas, err := evm.Call(kaon.Address{}, target, nil, 5, new(uint256.Int))
	assert.Equal(t, ErrOutOfGas, err)
	assert.Equal(t, uint64(0), leftGas)
}

func TestStorageSetAndClearRefund(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{
		0x60, 0x01, 0x60, 0x00, 0x55, // SSTORE slot0 = 1
		0x60, 0x00, 0x60, 0x00, 0x55, // SSTORE slot0 = 0
		0x00,
	})

	evm := newTestEVM(state)
	_, _, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.True(t, state.GetState(target, kaon.Bytes32{}).IsZero())
	assert.Equal(t, GasSstoreClearRefund, state.GetRefund())
}

func TestValueTransfer(t *testing.T) {
	state := newMockState()
	sender := kaon.BytesToAddress([]byte("sender"))
	recipient := kaon.BytesToAddress([]byte("recipient"))
	state.SetBalance(sender, big.NewInt(1000))

	evm := newTestEVM(state)
	_, _, err := evm.Call(sender, recipient, nil, 100_000, uint256.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), state.GetBalance(sender))
	assert.Equal(t, big.NewInt(400), state.GetBalance(recipient))

	_, _, err = evm.Call(sender, recipient, nil, 100_000, uint256.NewInt(601))
	assert.Equal(t, ErrInsufficientBalance, err)
}

func TestCreate(t *testing.T) {
	state := newMockState()
	creator := kaon.BytesToAddress([]byte("creator"))
	state.SetBalance(creator, big.NewInt(1))

	// init code returning a single STOP byte as the deployed code
	initCode := []byte{0x60, 0x01, 0x60, 0x00, 0xf3}

	evm := newTestEVM(state)
	_, addr, _, err := evm.Create(creator, initCode, 100_000, new(uint256.Int))
	require.NoError(t, err)

	expected := kaon.Address(crypto.CreateAddress(common.Address(creator), 0))
	assert.Equal(t, expected, addr)
	assert.Equal(t, []byte{0x00}, state.GetCode(addr))
	assert.Equal(t, uint64(1), state.GetNonce(creator))
	assert.Equal(t, uint64(1), state.GetNonce(addr))

	// second create from the same account lands on a different address
	_, addr2, _, err := evm.Create(creator, initCode, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.NotEqual(t, addr, addr2)
}

func TestCreate2Deterministic(t *testing.T) {
	state := newMockState()
	creator := kaon.BytesToAddress([]byte("creator"))

	initCode := []byte{0x60, 0x01, 0x60, 0x00, 0xf3}
	salt := uint256.NewInt(7)

	evm := newTestEVM(state)
	_, addr, _, err := evm.Create2(creator, initCode, 100_000, new(uint256.Int), salt)
	require.NoError(t, err)

	// redeploying at the same address collides
	_, _, _, err = evm.Create2(creator, initCode, 100_000, new(uint256.Int), salt)
	assert.Equal(t, ErrContractCollision, err)

	codeHash := kaon.Keccak256(initCode)
	saltBytes := salt.Bytes32()
	expected := kaon.Address(crypto.CreateAddress2(common.Address(creator), saltBytes, codeHash[:]))
	assert.Equal(t, expected, addr)
}

func TestStaticCallWriteProtection(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00})

	evm := newTestEVM(state)
	_, leftGas, err := evm.StaticCall(kaon.Address{}, target, nil, 100_000)
	assert.Equal(t, ErrWriteProtection, err)
	assert.Equal(t, uint64(0), leftGas)
	assert.True(t, state.GetState(target, kaon.Bytes32{}).IsZero())
}

func TestRevertRollsBackState(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{
		0x60, 0x01, 0x60, 0x00, 0x55, // SSTORE slot0 = 1
		0x60, 0x00, 0x60, 0x00, 0xfd, // REVERT
	})

	evm := newTestEVM(state)
	_, _, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	assert.Equal(t, ErrExecutionReverted, err)
	assert.True(t, state.GetState(target, kaon.Bytes32{}).IsZero())
}

func TestLog(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))
	state.SetCode(target, []byte{
		0x60, 0x2a, 0x60, 0x00, 0x52, // MSTORE 42 at 0
		0x60, 0x07, // topic
		0x60, 0x20, 0x60, 0x00, 0xa1, // LOG1 data [0,32)
		0x00,
	})

	evm := newTestEVM(state)
	_, _, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	require.NoError(t, err)
	require.Len(t, state.logs, 1)
	log := state.logs[0]
	assert.Equal(t, target, log.Address)
	require.Len(t, log.Topics, 1)
	assert.Equal(t, uint64(7), new(uint256.Int).SetBytes(log.Topics[0][:]).Uint64())
	assert.Equal(t, uint64(42), new(uint256.Int).SetBytes(log.Data).Uint64())
}

func TestJumpValidation(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte("target"))

	// jump into push data is invalid
	state.SetCode(target, []byte{0x60, 0x5b, 0x60, 0x01, 0x56})
	evm := newTestEVM(state)
	_, _, err := evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	assert.Equal(t, ErrInvalidJump, err)

	// jump to a real JUMPDEST works
	state.SetCode(target, []byte{0x60, 0x03, 0x56, 0x5b, 0x00})
	_, _, err = evm.Call(kaon.Address{}, target, nil, 100_000, new(uint256.Int))
	assert.NoError(t, err)
}

func TestPrecompileSha256(t *testing.T) {
	state := newMockState()
	evm := newTestEVM(state)

	input := []byte("hello kaon")
	ret, _, err := evm.Call(kaon.Address{}, kaon.BytesToAddress([]byte{0x02}), input, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Len(t, ret, 32)
}

func TestPrecompileRipemd160(t *testing.T) {
	state := newMockState()
	evm := newTestEVM(state)

	ret, _, err := evm.Call(kaon.Address{}, kaon.BytesToAddress([]byte{0x03}), []byte("hello kaon"), 100_000, new(uint256.Int))
	require.NoError(t, err)
	require.Len(t, ret, 32)
	assert.Equal(t, make([]byte, 12), ret[:12])
	assert.NotEqual(t, make([]byte, 20), ret[12:])
}

func TestPrecompileIdentity(t *testing.T) {
	state := newMockState()
	evm := newTestEVM(state)

	input := []byte{1, 2, 3, 4}
	ret, _, err := evm.Call(kaon.Address{}, kaon.BytesToAddress([]byte{0x04}), input, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, input, ret)
}

func TestPrecompileEcrecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg := kaon.Blake2b([]byte("signed message"))
	sig, err := crypto.Sign(msg.Bytes(), key)
	require.NoError(t, err)

	input := make([]byte, 128)
	copy(input[:32], msg.Bytes())
	input[63] = sig[64] + 27
	copy(input[64:], sig[:64])

	state := newMockState()
	evm := newTestEVM(state)
	ret, _, err := evm.Call(kaon.Address{}, kaon.BytesToAddress([]byte{0x01}), input, 100_000, new(uint256.Int))
	require.NoError(t, err)
	require.Len(t, ret, 32)

	expected := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, expected.Bytes(), ret[12:])
}

func TestPrecompileBlake2b(t *testing.T) {
	state := newMockState()
	evm := newTestEVM(state)

	input := []byte("hash me")
	ret, _, err := evm.Call(kaon.Address{}, kaon.BytesToAddress([]byte{0x01, 0x00}), input, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, kaon.Blake2b(input).Bytes(), ret)
}

func TestExtraPrecompile(t *testing.T) {
	addr := kaon.BytesToAddress([]byte{0x02, 0x00})
	state := newMockState()
	evm := New(
		&xenv.BlockContext{Number: 1, GasLimit: 10_000_000},
		&xenv.TransactionContext{GasPrice: big.NewInt(1)},
		state,
		Config{ExtraPrecompiles: map[kaon.Address]PrecompiledContract{
			addr: identityContract{},
		}},
	)

	input := []byte("custom")
	ret, _, err := evm.Call(kaon.Address{}, addr, input, 100_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, input, ret)
}

func TestNestedCall(t *testing.T) {
	state := newMockState()
	inner := kaon.BytesToAddress([]byte{0xaa})
	outer := kaon.BytesToAddress([]byte{0xbb})

	// inner returns 7
	state.SetCode(inner, []byte{
		0x60, 0x07, 0x60, 0x00, 0x52,
		0x60, 0x20, 0x60, 0x00, 0xf3,
	})
	// outer calls inner and forwards its return data
	state.SetCode(outer, []byte{
		0x60, 0x20, // retSize
		0x60, 0x00, // retOffset
		0x60, 0x00, // inSize
		0x60, 0x00, // inOffset
		0x60, 0x00, // value
		0x60, byte(inner[19]), // addr
		0x61, 0xff, 0xff, // gas
		0xf1,                         // CALL
		0x50,                         // POP success flag
		0x60, 0x20, 0x60, 0x00, 0xf3, // RETURN memory [0,32)
	})

	evm := newTestEVM(state)
	ret, _, err := evm.Call(kaon.Address{}, outer, nil, 200_000, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), new(uint256.Int).SetBytes(ret).Uint64())
}

func TestCallDepthLimit(t *testing.T) {
	state := newMockState()
	target := kaon.BytesToAddress([]byte{0xcc})
	// calls itself forever; depth limit must stop it
	state.SetCode(target, []byte{
		0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00, // ret/in/value
		0x60, byte(target[19]), // addr
		0x5a,       // GAS
		0xf1, 0x00, // CALL STOP
	})

	evm := newTestEVM(state)
	_, _, err := evm.Call(kaon.Address{}, target, nil, 10_000_000, new(uint256.Int))
	// outer frames succeed; the chain bottoms out without an error surfacing
	assert.NoError(t, err)
}
