// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"math/big"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/vm"
)

// stateError wraps a state access failure thrown across VM frames.
// The runtime recovers it at its boundary and surfaces it as an error.
type stateError struct {
	err error
}

// statedb adapts state.State to vm.StateDB. State access errors abort
// execution via panic, since the VM cannot make progress on a broken state.
// Logs and the refund counter live here because they follow VM frame
// snapshots, not state checkpoints alone.
type statedb struct {
	state  *state.State
	logs   []*tx.Log
	refund uint64

	snapshots []snapshotRecord
}

type snapshotRecord struct {
	checkpoint int
	logCount   int
	refund     uint64
}

var _ vm.StateDB = (*statedb)(nil)

func newStateDB(st *state.State) *statedb {
	return &statedb{state: st}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(&stateError{err})
	}
	return v
}

func check(err error) {
	if err != nil {
		panic(&stateError{err})
	}
}

func (s *statedb) GetBalance(addr kaon.Address) *big.Int {
	return must(s.state.GetBalance(addr))
}

func (s *statedb) SetBalance(addr kaon.Address, balance *big.Int) {
	check(s.state.SetBalance(addr, balance))
}

func (s *statedb) GetNonce(addr kaon.Address) uint64 {
	return must(s.state.GetNonce(addr))
}

func (s *statedb) SetNonce(addr kaon.Address, nonce uint64) {
	check(s.state.SetNonce(addr, nonce))
}

func (s *statedb) GetCode(addr kaon.Address) []byte {
	return must(s.state.GetCode(addr))
}

func (s *statedb) GetCodeHash(addr kaon.Address) kaon.Bytes32 {
	return must(s.state.GetCodeHash(addr))
}

func (s *statedb) GetCodeSize(addr kaon.Address) int {
	return len(must(s.state.GetCode(addr)))
}

func (s *statedb) SetCode(addr kaon.Address, code []byte) {
	check(s.state.SetCode(addr, code))
}

func (s *statedb) GetState(addr kaon.Address, key kaon.Bytes32) kaon.Bytes32 {
	return must(s.state.GetStorage(addr, key))
}

func (s *statedb) SetState(addr kaon.Address, key, value kaon.Bytes32) {
	s.state.SetStorage(addr, key, value)
}

func (s *statedb) Exists(addr kaon.Address) bool {
	return must(s.state.Exists(addr))
}

func (s *statedb) Delete(addr kaon.Address) {
	s.state.Delete(addr)
}

func (s *statedb) AddLog(log *tx.Log) {
	s.logs = append(s.logs, log)
}

func (s *statedb) Logs() []*tx.Log {
	return s.logs
}

func (s *statedb) AddRefund(v uint64) {
	s.refund += v
}

func (s *statedb) SubRefund(v uint64) {
	s.refund -= v
}

func (s *statedb) GetRefund() uint64 {
	return s.refund
}

func (s *statedb) Snapshot() int {
	s.snapshots = append(s.snapshots, snapshotRecord{
		checkpoint: s.state.NewCheckpoint(),
		logCount:   len(s.logs),
		refund:     s.refund,
	})
	return len(s.snapshots) - 1
}

func (s *statedb) RevertToSnapshot(rev int) {
	record := s.snapshots[rev]
	s.state.RevertTo(record.checkpoint)
	s.logs = s.logs[:record.logCount]
	s.refund = record.refund
	s.snapshots = s.snapshots[:rev]
}
