// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package lvldb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaonchain/kaon/kv"
)

func TestMemDB(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	key, value := []byte("key"), []byte("value")

	assert.Nil(t, db.Put(key, value))

	got, err := db.Get(key)
	assert.Nil(t, err)
	assert.Equal(t, value, got)

	has, err := db.Has(key)
	assert.Nil(t, err)
	assert.True(t, has)

	_, err = db.Get([]byte("missing"))
	assert.True(t, db.IsNotFound(err))

	assert.Nil(t, db.Delete(key))
	has, err = db.Has(key)
	assert.Nil(t, err)
	assert.False(t, has)
}

func TestBatchAndIterate(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	batch := db.NewBatch()
	assert.Nil(t, batch.Put([]byte("a1"), []byte("1")))
	assert.Nil(t, batch.Put([]byte("a2"), []byte("2")))
	assert.Nil(t, batch.Put([]byte("b1"), []byte("3")))
	assert.Equal(t, 3, batch.Len())
	assert.Nil(t, batch.Write())

	iter := db.NewIterator(kv.Range{Start: []byte("a"), Limit: []byte("b")})
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	assert.Nil(t, iter.Error())
	assert.Equal(t, []string{"a1", "a2"}, keys)
}

func TestBucket(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	b1 := kv.Bucket("b1-").NewStore(db)
	b2 := kv.Bucket("b2-").NewStore(db)

	assert.Nil(t, b1.Put([]byte("k"), []byte("v1")))
	assert.Nil(t, b2.Put([]byte("k"), []byte("v2")))

	v1, err := b1.Get([]byte("k"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1"), v1)

	v2, err := b2.Get([]byte("k"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("v2"), v2)

	iter := b1.NewIterator(kv.Range{})
	defer iter.Release()
	assert.True(t, iter.Next())
	assert.Equal(t, []byte("k"), iter.Key())
	assert.False(t, iter.Next())
}
