// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"hash"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
)

type hasher struct {
	tmp sliceBuffer
	sha hash.Hash
}

type sliceBuffer []byte

func (b *sliceBuffer) Write(data []byte) (n int, err error) {
	*b = append(*b, data...)
	return len(data), nil
}

func (b *sliceBuffer) Reset() {
	*b = (*b)[:0]
}

// hashers live in a global pool.
var hasherPool = sync.Pool{
	New: func() interface{} {
		return &hasher{
			tmp: make(sliceBuffer, 0, 550), // cap is as large as a full fullNode.
			sha: kaon.NewBlake2b(),
		}
	},
}

func newHasher() *hasher {
	return hasherPool.Get().(*hasher)
}

func returnHasherToPool(h *hasher) {
	hasherPool.Put(h)
}

// hash collapses a node down into a hash node, hashing children bottom-up.
// Every node is referenced by the blake2b hash of its RLP encoding; when db
// is non-nil the encoding is stored under that hash.
func (h *hasher) hash(n node, db kv.Putter) (hashNode, error) {
	if n == nil {
		return nil, nil
	}
	if hash, dirty := n.cache(); hash != nil {
		// a dirty cached hash is still valid, but committing requires a
		// walk down to persist dirty subtrees.
		if db == nil || !dirty {
			return hash, nil
		}
	}
	switch n := n.(type) {
	case *shortNode:
		collapsed := []interface{}{hexToCompact(n.Key), nil}
		if v, ok := n.Val.(valueNode); ok {
			collapsed[1] = []byte(v)
		} else {
			childHash, err := h.hash(n.Val, db)
			if err != nil {
				return nil, err
			}
			collapsed[1] = []byte(childHash)
		}
		hash, err := h.store(collapsed, db)
		if err != nil {
			return nil, err
		}
		n.flags.hash = hash
		if db != nil {
			n.flags.dirty = false
		}
		return hash, nil
	case *fullNode:
		collapsed := make([]interface{}, 17)
		for i := 0; i < 16; i++ {
			if n.Children[i] == nil {
				collapsed[i] = []byte(nil)
				continue
			}
			childHash, err := h.hash(n.Children[i], db)
			if err != nil {
				return nil, err
			}
			collapsed[i] = []byte(childHash)
		}
		if v, ok := n.Children[16].(valueNode); ok {
			collapsed[16] = []byte(v)
		} else {
			collapsed[16] = []byte(nil)
		}
		hash, err := h.store(collapsed, db)
		if err != nil {
			return nil, err
		}
		n.flags.hash = hash
		if db != nil {
			n.flags.dirty = false
		}
		return hash, nil
	case hashNode:
		return n, nil
	default:
		panic("unexpected node type")
	}
}

// store RLP-encodes the collapsed node, hashes the encoding and optionally
// writes it into db keyed by the hash.
func (h *hasher) store(collapsed []interface{}, db kv.Putter) (hashNode, error) {
	h.tmp.Reset()
	if err := rlp.Encode(&h.tmp, collapsed); err != nil {
		panic("encode error: " + err.Error())
	}
	h.sha.Reset()
	h.sha.Write(h.tmp)
	hash := hashNode(h.sha.Sum(nil))

	if db != nil {
		if err := db.Put(hash, h.tmp); err != nil {
			return nil, err
		}
	}
	return hash, nil
}
