// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/kaonchain/kaon/cache"
	"github.com/kaonchain/kaon/kv"
)

// cachedStore is a read-through cache over a kv store. Trie nodes are
// content-addressed and immutable, so cached entries never go stale.
type cachedStore struct {
	kv.Store
	cache *cache.BlobCache
}

func newCachedStore(store kv.Store, sizeMB int) *cachedStore {
	return &cachedStore{
		Store: store,
		cache: cache.NewBlobCache(sizeMB),
	}
}

func (c *cachedStore) Get(key []byte) ([]byte, error) {
	if blob := c.cache.Get(key); blob != nil {
		return blob, nil
	}
	blob, err := c.Store.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, blob)
	return blob, nil
}

func (c *cachedStore) Has(key []byte) (bool, error) {
	if blob := c.cache.Get(key); blob != nil {
		return true, nil
	}
	return c.Store.Has(key)
}

func (c *cachedStore) Put(key, val []byte) error {
	if err := c.Store.Put(key, val); err != nil {
		return err
	}
	c.cache.Set(key, val)
	return nil
}
