// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import (
	"math/big"
	"sync"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// nonceKey identifies the slot a transaction occupies: one tx per
// (origin, nonce), contested by replace-by-fee.
type nonceKey struct {
	origin kaon.Address
	nonce  uint64
}

// txObjectMap maintains the mapping of tx hash to tx object, the
// per-account slot index and account quotas.
type txObjectMap struct {
	lock   sync.RWMutex
	byHash map[kaon.Bytes32]*txObject
	bySlot map[nonceKey]*txObject
	quota  map[kaon.Address]int
}

func newTxObjectMap() *txObjectMap {
	return &txObjectMap{
		byHash: make(map[kaon.Bytes32]*txObject),
		bySlot: make(map[nonceKey]*txObject),
		quota:  make(map[kaon.Address]int),
	}
}

func (m *txObjectMap) ContainsHash(txHash kaon.Bytes32) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, found := m.byHash[txHash]
	return found
}

func (m *txObjectMap) GetByHash(txHash kaon.Bytes32) *txObject {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.byHash[txHash]
}

// Add inserts the object, enforcing the per-account quota and the
// replace-by-fee rule: a tx claiming an occupied (origin, nonce) slot must
// raise the gas price by at least priceBump percent.
func (m *txObjectMap) Add(txObj *txObject, limitPerAccount int, priceBump uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	hash := txObj.Hash()
	if _, found := m.byHash[hash]; found {
		return errKnownTx
	}

	slot := nonceKey{txObj.Origin(), txObj.Nonce()}
	if prev, occupied := m.bySlot[slot]; occupied {
		// gasPrice >= prevPrice * (100 + priceBump) / 100
		threshold := new(big.Int).Mul(prev.GasPrice(), big.NewInt(int64(100+priceBump)))
		offered := new(big.Int).Mul(txObj.GasPrice(), big.NewInt(100))
		if offered.Cmp(threshold) < 0 {
			return errUnderpriced
		}
		delete(m.byHash, prev.Hash())
		delete(m.bySlot, slot)
		m.quota[slot.origin]--
	}

	if m.quota[slot.origin] >= limitPerAccount {
		return errQuotaExceeded
	}

	m.byHash[hash] = txObj
	m.bySlot[slot] = txObj
	m.quota[slot.origin]++
	return nil
}

func (m *txObjectMap) RemoveByHash(txHash kaon.Bytes32) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	txObj, found := m.byHash[txHash]
	if !found {
		return false
	}
	delete(m.byHash, txHash)
	delete(m.bySlot, nonceKey{txObj.Origin(), txObj.Nonce()})
	if m.quota[txObj.Origin()] > 1 {
		m.quota[txObj.Origin()]--
	} else {
		delete(m.quota, txObj.Origin())
	}
	return true
}

// LowestPriced returns the cheapest remote object, the eviction candidate
// when the pool is full.
func (m *txObjectMap) LowestPriced() *txObject {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var lowest *txObject
	for _, txObj := range m.byHash {
		if txObj.localSubmitted {
			continue
		}
		if lowest == nil ||
			txObj.GasPrice().Cmp(lowest.GasPrice()) < 0 ||
			(txObj.GasPrice().Cmp(lowest.GasPrice()) == 0 && txObj.seq > lowest.seq) {
			lowest = txObj
		}
	}
	return lowest
}

func (m *txObjectMap) ToTxObjects() []*txObject {
	m.lock.RLock()
	defer m.lock.RUnlock()

	objs := make([]*txObject, 0, len(m.byHash))
	for _, txObj := range m.byHash {
		objs = append(objs, txObj)
	}
	return objs
}

func (m *txObjectMap) ToTxs() tx.Transactions {
	m.lock.RLock()
	defer m.lock.RUnlock()

	txs := make(tx.Transactions, 0, len(m.byHash))
	for _, txObj := range m.byHash {
		txs = append(txs, txObj.Transaction)
	}
	return txs
}

func (m *txObjectMap) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.byHash)
}
