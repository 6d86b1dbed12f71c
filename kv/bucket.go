// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Bucket provides logical bucket for kv store, by prefixing all keys.
type Bucket string

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &bucketGetter{b, src}
}

// NewPutter creates a bucket putter from the source putter.
func (b Bucket) NewPutter(src Putter) Putter {
	return &bucketPutter{b, src}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{b, src}
}

type bucketGetter struct {
	b   Bucket
	src Getter
}

func (g *bucketGetter) Get(key []byte) ([]byte, error) {
	return g.src.Get(g.b.makeKey(key))
}

func (g *bucketGetter) Has(key []byte) (bool, error) {
	return g.src.Has(g.b.makeKey(key))
}

func (g *bucketGetter) IsNotFound(err error) bool {
	return g.src.IsNotFound(err)
}

type bucketPutter struct {
	b   Bucket
	src Putter
}

func (p *bucketPutter) Put(key, val []byte) error {
	return p.src.Put(p.b.makeKey(key), val)
}

func (p *bucketPutter) Delete(key []byte) error {
	return p.src.Delete(p.b.makeKey(key))
}

type bucketStore struct {
	b   Bucket
	src Store
}

func (s *bucketStore) Get(key []byte) ([]byte, error) { return s.src.Get(s.b.makeKey(key)) }
func (s *bucketStore) Has(key []byte) (bool, error)   { return s.src.Has(s.b.makeKey(key)) }
func (s *bucketStore) IsNotFound(err error) bool      { return s.src.IsNotFound(err) }
func (s *bucketStore) Put(key, val []byte) error      { return s.src.Put(s.b.makeKey(key), val) }
func (s *bucketStore) Delete(key []byte) error        { return s.src.Delete(s.b.makeKey(key)) }

func (s *bucketStore) NewBatch() Batch {
	batch := s.src.NewBatch()
	return &struct {
		Putter
		lenFunc
		writeFunc
	}{
		s.b.NewPutter(batch),
		batch.Len,
		batch.Write,
	}
}

func (s *bucketStore) NewIterator(r Range) Iterator {
	r.Start = s.b.makeKey(r.Start)
	if len(r.Limit) == 0 {
		r.Limit = util.BytesPrefix([]byte(s.b)).Limit
	} else {
		r.Limit = s.b.makeKey(r.Limit)
	}

	iter := s.src.NewIterator(r)
	return &bucketIterator{s.b, iter}
}

func (b Bucket) makeKey(key []byte) []byte {
	return append(append([]byte(nil), b...), key...)
}

type bucketIterator struct {
	b    Bucket
	iter Iterator
}

func (i *bucketIterator) Next() bool    { return i.iter.Next() }
func (i *bucketIterator) Key() []byte   { return i.iter.Key()[len(i.b):] } // strip the bucket
func (i *bucketIterator) Value() []byte { return i.iter.Value() }
func (i *bucketIterator) Release()      { i.iter.Release() }
func (i *bucketIterator) Error() error  { return i.iter.Error() }

type (
	lenFunc   func() int
	writeFunc func() error
)

func (f lenFunc) Len() int     { return f() }
func (f writeFunc) Write() error { return f() }
