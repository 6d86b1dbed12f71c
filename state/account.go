// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/trie"
)

// Account is the consensus representation of an account.
// RLP encoded objects are stored in the main account trie.
type Account struct {
	Balance     *big.Int
	Nonce       uint64
	CodeHash    []byte // hash of code
	StorageRoot []byte // merkle root of the storage trie
}

// IsEmpty returns if an account is empty.
// An empty account has zero balance, zero nonce and no code.
func (a *Account) IsEmpty() bool {
	return a.Balance.Sign() == 0 &&
		a.Nonce == 0 &&
		len(a.CodeHash) == 0
}

func emptyAccount() *Account {
	return &Account{Balance: &big.Int{}}
}

// loadAccount loads an account object at the given address from the trie.
// It returns an empty account if no account found at the address.
func loadAccount(tr *trie.Trie, addr kaon.Address) (*Account, error) {
	data, err := tr.Get(hashKey(addr[:]))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return emptyAccount(), nil
	}
	var a Account
	if err := rlp.DecodeBytes(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// saveAccount saves the account into the trie at the given address.
// If the given account is empty, the value for the given address is deleted.
func saveAccount(tr *trie.Trie, addr kaon.Address, a *Account) error {
	if a.IsEmpty() {
		// delete if account is empty
		return tr.Update(hashKey(addr[:]), nil)
	}

	data, err := rlp.EncodeToBytes(a)
	if err != nil {
		return err
	}
	return tr.Update(hashKey(addr[:]), data)
}

// loadStorage loads the storage value for the given key.
func loadStorage(tr *trie.Trie, key kaon.Bytes32) (rlp.RawValue, error) {
	return tr.Get(hashKey(key[:]))
}

// saveStorage saves the value for the given key.
// If the data is zero length, the key is deleted.
func saveStorage(tr *trie.Trie, key kaon.Bytes32, data rlp.RawValue) error {
	return tr.Update(hashKey(key[:]), data)
}

// hashKey secures trie keys. Hashing keeps the trie balanced against
// adversarially chosen addresses and storage slots.
func hashKey(key []byte) []byte {
	h := kaon.Blake2b(key)
	return h[:]
}
