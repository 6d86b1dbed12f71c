// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"github.com/qianbin/directcache"
)

// BlobCache caches byte blobs keyed by byte keys, with bounded memory.
// It's safe for concurrent use.
type BlobCache struct {
	cache *directcache.Cache
	stats Stats
}

// NewBlobCache creates a blob cache capped to sizeMB megabytes.
func NewBlobCache(sizeMB int) *BlobCache {
	return &BlobCache{
		cache: directcache.New(sizeMB * 1024 * 1024),
	}
}

// Set adds or overwrites the blob for the given key.
func (c *BlobCache) Set(key, blob []byte) {
	_ = c.cache.Set(key, blob)
}

// Get returns the cached blob for the key, or nil if absent.
func (c *BlobCache) Get(key []byte) []byte {
	var blob []byte
	if ok := c.cache.AdvGet(key, func(val []byte) {
		blob = append([]byte(nil), val...)
	}, false); !ok {
		c.stats.Miss()
		return nil
	}
	c.stats.Hit()
	return blob
}

// Stats returns hit/miss counters and whether the hit rate changed
// since the last call.
func (c *BlobCache) Stats() (bool, int64, int64) {
	return c.stats.Stats()
}
