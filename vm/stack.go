// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/holiman/uint256"
)

// StackLimit is the maximum number of items on the operand stack.
const StackLimit = 1024

// Stack is the EVM operand stack of 256-bit words.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

func (st *Stack) push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *Stack) pop() (ret uint256.Int) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

// peek returns the n'th item from the top without removing it.
// peek(0) is the top of the stack.
func (st *Stack) peek(n int) *uint256.Int {
	return &st.data[len(st.data)-1-n]
}

func (st *Stack) swap(n int) {
	st.data[len(st.data)-1], st.data[len(st.data)-1-n] = st.data[len(st.data)-1-n], st.data[len(st.data)-1]
}

func (st *Stack) dup(n int) {
	st.push(st.peek(n - 1))
}

func (st *Stack) len() int {
	return len(st.data)
}

// require checks that the stack holds at least n items and has room for
// grow more.
func (st *Stack) require(n, grow int) error {
	if st.len() < n {
		return ErrStackUnderflow
	}
	if st.len()-n+grow > StackLimit {
		return ErrStackOverflow
	}
	return nil
}
