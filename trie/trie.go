// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package trie implements the Merkle Patricia Trie used as the versioned
// state arena. Nodes are content-addressed: every node is stored under the
// blake2b hash of its RLP encoding and children are always referenced by
// hash, so any historical root remains readable as long as its nodes are
// retained.
package trie

import (
	"bytes"
	"fmt"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
)

// emptyRoot is the hash of an empty trie, the blake2b hash of the RLP
// encoding of the empty string.
var emptyRoot = kaon.Blake2b([]byte{0x80})

// MissingNodeError is returned when a trie node referenced by a root is not
// present in the node arena.
type MissingNodeError struct {
	NodeHash kaon.Bytes32
	Path     []byte
}

func (err *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %v (path %x)", err.NodeHash, err.Path)
}

// Trie is a Merkle Patricia Trie over a content-addressed node arena.
// Trie is not safe for concurrent use.
type Trie struct {
	root node
	db   kv.GetPutter
}

// New creates a trie with an existing root node from db.
//
// If root is the zero or empty-trie hash, the trie is initially empty.
// Otherwise New will panic-free lazily resolve nodes from db and fail with
// MissingNodeError if the root node cannot be found.
func New(root kaon.Bytes32, db kv.GetPutter) (*Trie, error) {
	trie := &Trie{db: db}
	if root.IsZero() || root == emptyRoot {
		return trie, nil
	}
	if db == nil {
		return nil, fmt.Errorf("trie.New: cannot resolve root %v without a database", root)
	}
	rootnode, err := trie.resolveHash(root[:], nil)
	if err != nil {
		return nil, err
	}
	trie.root = rootnode
	return trie, nil
}

// EmptyRoot returns the root hash of an empty trie.
func EmptyRoot() kaon.Bytes32 {
	return emptyRoot
}

// Copy returns a copy of the trie sharing the same database. Updates to
// one copy are invisible to the other.
func (t *Trie) Copy() *Trie {
	return &Trie{root: t.root, db: t.db}
}

// Get returns the value for key stored in the trie. The returned value is
// nil if key is absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	k := keybytesToHex(key)
	value, newroot, didResolve, err := t.tryGet(t.root, k, 0)
	if err != nil {
		return nil, err
	}
	if didResolve {
		t.root = newroot
	}
	return value, nil
}

func (t *Trie) tryGet(origNode node, key []byte, pos int) (value []byte, newnode node, didResolve bool, err error) {
	switch n := origNode.(type) {
	case nil:
		return nil, nil, false, nil
	case valueNode:
		return n, n, false, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || prefixLen(n.Key, key[pos:]) != len(n.Key) {
			// key not found in trie
			return nil, n, false, nil
		}
		value, newnode, didResolve, err = t.tryGet(n.Val, key, pos+len(n.Key))
		if err == nil && didResolve {
			n = n.copy()
			n.Val = newnode
		}
		return value, n, didResolve, err
	case *fullNode:
		value, newnode, didResolve, err = t.tryGet(n.Children[key[pos]], key, pos+1)
		if err == nil && didResolve {
			n = n.copy()
			n.Children[key[pos]] = newnode
		}
		return value, n, didResolve, err
	case hashNode:
		child, err := t.resolveHash(n, key[:pos])
		if err != nil {
			return nil, n, true, err
		}
		value, newnode, _, err := t.tryGet(child, key, pos)
		return value, newnode, true, err
	default:
		panic(fmt.Sprintf("invalid node: %v", origNode))
	}
}

// Update associates key with value in the trie. Subsequent calls to Get will
// return value. If value has length zero, any existing value is deleted.
//
// The value bytes must not be modified by the caller while they are stored
// in the trie.
func (t *Trie) Update(key, value []byte) error {
	k := keybytesToHex(key)
	if len(value) != 0 {
		_, n, err := t.insert(t.root, nil, k, valueNode(value))
		if err != nil {
			return err
		}
		t.root = n
	} else {
		_, n, err := t.delete(t.root, nil, k)
		if err != nil {
			return err
		}
		t.root = n
	}
	return nil
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (bool, node, error) {
	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			return !bytes.Equal(v, value.(valueNode)), value, nil
		}
		return true, value, nil
	}
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		// If the whole key matches, keep this short node as is
		// and only update the value.
		if matchlen == len(n.Key) {
			dirty, nn, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if !dirty || err != nil {
				return false, n, err
			}
			return true, &shortNode{n.Key, nn, newFlag()}, nil
		}
		// Otherwise branch out at the index where they differ.
		branch := &fullNode{flags: newFlag()}
		var err error
		_, branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return false, nil, err
		}
		_, branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return false, nil, err
		}
		// Replace this shortNode with the branch if it occurs at index 0.
		if matchlen == 0 {
			return true, branch, nil
		}
		// Otherwise, replace it with a short node leading up to the branch.
		return true, &shortNode{key[:matchlen], branch, newFlag()}, nil

	case *fullNode:
		dirty, nn, err := t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = newFlag()
		n.Children[key[0]] = nn
		return true, n, nil

	case nil:
		return true, &shortNode{key, value, newFlag()}, nil

	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load
		// the node and insert into it.
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.insert(rn, prefix, key, value)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("invalid node: %v", n))
	}
}

func (t *Trie) delete(n node, prefix, key []byte) (bool, node, error) {
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return false, n, nil // don't replace n on mismatch
		}
		if matchlen == len(key) {
			return true, nil, nil // remove n entirely for whole matches
		}
		// The key is longer than n.Key. Remove the remaining suffix
		// from the subtrie. Child can never be nil here since the
		// subtrie must contain at least two other values with keys
		// longer than n.Key.
		dirty, child, err := t.delete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if !dirty || err != nil {
			return false, n, err
		}
		switch child := child.(type) {
		case *shortNode:
			// The child shortNode is merged into its parent, avoiding
			// a shortNode{..., shortNode{...}}.
			return true, &shortNode{concat(n.Key, child.Key...), child.Val, newFlag()}, nil
		default:
			return true, &shortNode{n.Key, child, newFlag()}, nil
		}

	case *fullNode:
		dirty, nn, err := t.delete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = newFlag()
		n.Children[key[0]] = nn

		// Check how many non-nil entries are left after deleting and
		// reduce the full node to a short node if only one entry is
		// left. Since n must've contained at least two children
		// before deletion (otherwise it would not be a full node) n
		// can never be reduced to nil.
		pos := -1
		for i, cld := range &n.Children {
			if cld != nil {
				if pos == -1 {
					pos = i
				} else {
					pos = -2
					break
				}
			}
		}
		if pos >= 0 {
			if pos != 16 {
				// If the remaining entry is a short node, it replaces
				// n and its key gets the missing nibble tacked to the
				// front.
				cnode, err := t.resolve(n.Children[pos], prefix)
				if err != nil {
					return false, nil, err
				}
				if cnode, ok := cnode.(*shortNode); ok {
					k := append([]byte{byte(pos)}, cnode.Key...)
					return true, &shortNode{k, cnode.Val, newFlag()}, nil
				}
			}
			// Otherwise, n is replaced by a one-nibble short node
			// containing the child.
			return true, &shortNode{[]byte{byte(pos)}, n.Children[pos], newFlag()}, nil
		}
		// n still contains at least two values and cannot be reduced.
		return true, n, nil

	case valueNode:
		return true, nil, nil

	case nil:
		return false, nil, nil

	case hashNode:
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.delete(rn, prefix, key)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("invalid node: %v (%v)", n, key))
	}
}

func (t *Trie) resolve(n node, prefix []byte) (node, error) {
	if n, ok := n.(hashNode); ok {
		return t.resolveHash(n, prefix)
	}
	return n, nil
}

func (t *Trie) resolveHash(n hashNode, prefix []byte) (node, error) {
	blob, err := t.db.Get(n)
	if err != nil {
		if t.db.IsNotFound(err) {
			return nil, &MissingNodeError{NodeHash: kaon.BytesToBytes32(n), Path: prefix}
		}
		return nil, err
	}
	return decodeNode(append(hashNode{}, n...), blob)
}

// Hash returns the root hash of the trie. It does not write to the database
// and can be used even if the trie has no database at all.
func (t *Trie) Hash() kaon.Bytes32 {
	if t.root == nil {
		return emptyRoot
	}
	h := newHasher()
	defer returnHasherToPool(h)
	hash, err := h.hash(t.root, nil)
	if err != nil {
		// hashing without a database cannot fail
		panic(err)
	}
	return kaon.BytesToBytes32(hash)
}

// Commit writes all dirty nodes into the trie's database and returns the
// root hash. Committed tries can be re-opened via New with the returned
// root.
func (t *Trie) Commit() (kaon.Bytes32, error) {
	if t.db == nil {
		return kaon.Bytes32{}, fmt.Errorf("trie.Commit: database is nil")
	}
	return t.CommitTo(t.db)
}

// CommitTo writes all dirty nodes into the given database, which may differ
// from the trie's own (e.g. a batch).
func (t *Trie) CommitTo(db kv.Putter) (kaon.Bytes32, error) {
	if t.root == nil {
		return emptyRoot, nil
	}
	h := newHasher()
	defer returnHasherToPool(h)
	hash, err := h.hash(t.root, db)
	if err != nil {
		return kaon.Bytes32{}, err
	}
	return kaon.BytesToBytes32(hash), nil
}

func newFlag() nodeFlag {
	return nodeFlag{dirty: true}
}

func concat(s1 []byte, s2 ...byte) []byte {
	r := make([]byte, len(s1)+len(s2))
	copy(r, s1)
	copy(r[len(s1):], s2)
	return r
}
