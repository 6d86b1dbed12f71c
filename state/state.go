// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
	"github.com/kaonchain/kaon/stackedmap"
	"github.com/kaonchain/kaon/trie"
)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// State manages the world state.
type State struct {
	nodes kv.GetPutter
	codes kv.GetPutter
	trie  *trie.Trie                     // the accounts trie reader
	cache map[kaon.Address]*cachedObject // cache of accounts trie
	sm    *stackedmap.StackedMap         // keeps revisions of accounts state
	err   error
}

// New creates a state object bound to the given state root.
func New(root kaon.Bytes32, nodes, codes kv.GetPutter) *State {
	state := State{
		nodes: nodes,
		codes: codes,
		cache: make(map[kaon.Address]*cachedObject),
	}

	tr, err := trie.New(root, nodes)
	if err != nil {
		state.err = err
	} else {
		state.trie = tr
	}

	state.sm = stackedmap.New(func(key interface{}) (interface{}, bool, error) {
		return state.cacheGetter(key)
	})
	return &state
}

// Err returns the error that broke the state, if any. A broken state fails
// every operation with the same error.
func (s *State) Err() error {
	return s.err
}

// cacheGetter implements stackedmap.MapGetter.
func (s *State) cacheGetter(key interface{}) (value interface{}, exist bool, err error) {
	switch k := key.(type) {
	case kaon.Address: // get account
		obj, err := s.getCachedObject(k)
		if err != nil {
			return nil, false, err
		}
		return &obj.data, true, nil
	case codeKey: // get code
		obj, err := s.getCachedObject(kaon.Address(k))
		if err != nil {
			return nil, false, err
		}
		code, err := obj.GetCode()
		if err != nil {
			return nil, false, err
		}
		return code, true, nil
	case storageKey: // get storage
		// the address was ever deleted in the life-cycle of this state
		// instance. treat its storage as an empty set.
		if k.barrier != 0 {
			return rlp.RawValue(nil), true, nil
		}

		obj, err := s.getCachedObject(k.addr)
		if err != nil {
			return nil, false, err
		}
		v, err := obj.GetStorage(k.key)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case storageBarrierKey: // get barrier, 0 as initial value
		return 0, true, nil
	}
	panic(fmt.Errorf("unexpected key type %+v", key))
}

func (s *State) getCachedObject(addr kaon.Address) (*cachedObject, error) {
	if s.err != nil {
		return nil, s.err
	}
	if co, ok := s.cache[addr]; ok {
		return co, nil
	}
	a, err := loadAccount(s.trie, addr)
	if err != nil {
		return nil, err
	}
	co := newCachedObject(s.nodes, s.codes, addr, a)
	s.cache[addr] = co
	return co, nil
}

// getAccount gets the account at the address. The returned account must not
// be modified.
func (s *State) getAccount(addr kaon.Address) (*Account, error) {
	v, _, err := s.sm.Get(addr)
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// getAccountCopy gets a copy of the account at the address.
func (s *State) getAccountCopy(addr kaon.Address) (Account, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return Account{}, err
	}
	return *acc, nil
}

func (s *State) updateAccount(addr kaon.Address, acc *Account) {
	s.sm.Put(addr, acc)
}

func (s *State) getStorageBarrier(addr kaon.Address) int {
	b, _, _ := s.sm.Get(storageBarrierKey(addr))
	return b.(int)
}

func (s *State) setStorageBarrier(addr kaon.Address, barrier int) {
	s.sm.Put(storageBarrierKey(addr), barrier)
}

// GetBalance returns the balance of the given address.
func (s *State) GetBalance(addr kaon.Address) (*big.Int, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, &Error{err}
	}
	return acc.Balance, nil
}

// SetBalance sets the balance of the given address.
func (s *State) SetBalance(addr kaon.Address, balance *big.Int) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Balance = balance
	s.updateAccount(addr, &cpy)
	return nil
}

// GetNonce returns the nonce of the given address.
func (s *State) GetNonce(addr kaon.Address) (uint64, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return 0, &Error{err}
	}
	return acc.Nonce, nil
}

// SetNonce sets the nonce of the given address.
func (s *State) SetNonce(addr kaon.Address, nonce uint64) error {
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.Nonce = nonce
	s.updateAccount(addr, &cpy)
	return nil
}

// GetStorage returns the storage value of the given address and key.
func (s *State) GetStorage(addr kaon.Address, key kaon.Bytes32) (kaon.Bytes32, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return kaon.Bytes32{}, &Error{err}
	}
	if len(raw) == 0 {
		return kaon.Bytes32{}, nil
	}
	kind, content, _, err := rlp.Split(raw)
	if err != nil {
		return kaon.Bytes32{}, &Error{err}
	}
	if kind == rlp.List {
		// special case for rlp list, it should be a customized storage
		// value. return hash of the raw data.
		return kaon.Blake2b(raw), nil
	}
	return kaon.BytesToBytes32(content), nil
}

// SetStorage sets the storage value of the given address and key.
func (s *State) SetStorage(addr kaon.Address, key, value kaon.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	v, _ := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
	s.SetRawStorage(addr, key, v)
}

// GetRawStorage returns the storage value in rlp raw of the given address and key.
func (s *State) GetRawStorage(addr kaon.Address, key kaon.Bytes32) (rlp.RawValue, error) {
	data, _, err := s.sm.Get(storageKey{addr, s.getStorageBarrier(addr), key})
	if err != nil {
		return nil, &Error{err}
	}
	return data.(rlp.RawValue), nil
}

// SetRawStorage sets the storage value in rlp raw.
func (s *State) SetRawStorage(addr kaon.Address, key kaon.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{addr, s.getStorageBarrier(addr), key}, raw)
}

// EncodeStorage sets a storage value encoded by the given enc method.
func (s *State) EncodeStorage(addr kaon.Address, key kaon.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return &Error{err}
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// DecodeStorage gets and decodes a storage value.
func (s *State) DecodeStorage(addr kaon.Address, key kaon.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return &Error{err}
	}
	if err := dec(raw); err != nil {
		return &Error{err}
	}
	return nil
}

// GetCode returns the code of the given address.
func (s *State) GetCode(addr kaon.Address) ([]byte, error) {
	v, _, err := s.sm.Get(codeKey(addr))
	if err != nil {
		return nil, &Error{err}
	}
	return v.([]byte), nil
}

// GetCodeHash returns the code hash of the given address.
func (s *State) GetCodeHash(addr kaon.Address) (kaon.Bytes32, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return kaon.Bytes32{}, &Error{err}
	}
	return kaon.BytesToBytes32(acc.CodeHash), nil
}

// SetCode sets code of the given address.
func (s *State) SetCode(addr kaon.Address, code []byte) error {
	var codeHash []byte
	if len(code) > 0 {
		s.sm.Put(codeKey(addr), code)
		codeHash = crypto.Keccak256(code)
		codeCache.Add(string(codeHash), code)
	} else {
		s.sm.Put(codeKey(addr), []byte(nil))
	}
	cpy, err := s.getAccountCopy(addr)
	if err != nil {
		return &Error{err}
	}
	cpy.CodeHash = codeHash
	s.updateAccount(addr, &cpy)
	return nil
}

// Exists returns whether an account exists at the given address.
// See Account.IsEmpty()
func (s *State) Exists(addr kaon.Address) (bool, error) {
	acc, err := s.getAccount(addr)
	if err != nil {
		return false, &Error{err}
	}
	return !acc.IsEmpty(), nil
}

// Delete deletes the account at the given address.
// That's setting balance, nonce and code to zero values, and discarding all
// of its storage.
func (s *State) Delete(addr kaon.Address) {
	s.sm.Put(codeKey(addr), []byte(nil))
	s.updateAccount(addr, emptyAccount())
	// increase the barrier value
	s.setStorageBarrier(addr, s.getStorageBarrier(addr)+1)
}

// NewCheckpoint makes a checkpoint of the current state.
// It returns the revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo reverts to the checkpoint of the given revision.
func (s *State) RevertTo(revision int) {
	s.sm.PopTo(revision)
}

// Stage makes a stage object to compute the hash of the trie or commit all
// changes.
func (s *State) Stage() (*Stage, error) {
	if s.err != nil {
		return nil, &Error{s.err}
	}

	type changed struct {
		data            Account
		storage         map[kaon.Bytes32]rlp.RawValue
		baseStorageTrie *trie.Trie
	}

	var (
		changes = make(map[kaon.Address]*changed)
		codes   = make(map[kaon.Bytes32][]byte)
	)

	// get or create changed account
	getChanged := func(addr kaon.Address) (*changed, error) {
		if obj, ok := changes[addr]; ok {
			return obj, nil
		}
		co, err := s.getCachedObject(addr)
		if err != nil {
			return nil, &Error{err}
		}

		c := &changed{data: co.data, baseStorageTrie: co.cache.storageTrie}
		changes[addr] = c
		return c, nil
	}

	var jerr error
	// traverse journal to build changes
	s.sm.Journal(func(k, v interface{}) bool {
		var c *changed
		switch key := k.(type) {
		case kaon.Address:
			if c, jerr = getChanged(key); jerr != nil {
				return false
			}
			c.data = *(v.(*Account))
		case codeKey:
			code := v.([]byte)
			if len(code) > 0 {
				codes[kaon.Bytes32(crypto.Keccak256Hash(code))] = code
			}
		case storageKey:
			if c, jerr = getChanged(key.addr); jerr != nil {
				return false
			}
			if c.storage == nil {
				c.storage = make(map[kaon.Bytes32]rlp.RawValue)
			}
			c.storage[key.key] = v.(rlp.RawValue)
		case storageBarrierKey:
			if c, jerr = getChanged(kaon.Address(key)); jerr != nil {
				return false
			}
			// discard all storage updates and the base storage trie when
			// meeting the barrier.
			c.storage = nil
			c.baseStorageTrie = nil
			c.data.StorageRoot = nil
		}
		return true
	})
	if jerr != nil {
		return nil, &Error{jerr}
	}

	trieCpy := s.trie.Copy()
	tries := make([]*trie.Trie, 0, len(changes)+1)

	for addr, c := range changes {
		// skip storage changes if account is empty
		if !c.data.IsEmpty() && len(c.storage) > 0 {
			var sTrie *trie.Trie
			if c.baseStorageTrie != nil {
				sTrie = c.baseStorageTrie.Copy()
			} else {
				var err error
				sTrie, err = trie.New(kaon.BytesToBytes32(c.data.StorageRoot), s.nodes)
				if err != nil {
					return nil, &Error{err}
				}
			}
			for k, v := range c.storage {
				if err := saveStorage(sTrie, k, v); err != nil {
					return nil, &Error{err}
				}
			}
			sRoot := sTrie.Hash()
			if sRoot == trie.EmptyRoot() {
				c.data.StorageRoot = nil
			} else {
				c.data.StorageRoot = sRoot[:]
			}
			tries = append(tries, sTrie)
		}
		if err := saveAccount(trieCpy, addr, &c.data); err != nil {
			return nil, &Error{err}
		}
	}
	tries = append(tries, trieCpy)

	return &Stage{
		root:  trieCpy.Hash(),
		tries: tries,
		codes: codes,
		store: s.codes,
	}, nil
}

type (
	storageKey struct {
		addr    kaon.Address
		barrier int
		key     kaon.Bytes32
	}
	codeKey           kaon.Address
	storageBarrierKey kaon.Address
)
