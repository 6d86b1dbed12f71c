// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
)

const (
	trieStoreName = "state.trie"
	codeStoreName = "state.code"

	// trie node cache size; nodes are immutable so the cache never
	// invalidates
	nodeCacheMB = 64
)

// Stater is the state creator. All states created by the same stater share
// the same node arena, so any committed state root stays reachable.
type Stater struct {
	nodes kv.Store
	codes kv.Store
}

// NewStater creates a new stater backed by the given database.
func NewStater(db kv.Store) *Stater {
	return &Stater{
		nodes: newCachedStore(kv.Bucket(trieStoreName).NewStore(db), nodeCacheMB),
		codes: kv.Bucket(codeStoreName).NewStore(db),
	}
}

// NewState creates a state object bound to the given state root.
func (s *Stater) NewState(root kaon.Bytes32) *State {
	return New(root, s.nodes, s.codes)
}
