// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
	"github.com/kaonchain/kaon/trie"
)

// Stage abstracts the changes on top of the state trie. The new state root
// is known as soon as the stage is built, while persisting the changes is
// deferred until Commit.
type Stage struct {
	root  kaon.Bytes32
	tries []*trie.Trie
	codes map[kaon.Bytes32][]byte
	store kv.GetPutter
}

// Hash returns the hash of the account trie with all changes applied.
func (s *Stage) Hash() kaon.Bytes32 {
	return s.root
}

// Commit commits all changes into the account trie, storage tries and the
// code store, and returns the new state root.
func (s *Stage) Commit() (kaon.Bytes32, error) {
	// write codes
	for hash, code := range s.codes {
		if err := s.store.Put(hash[:], code); err != nil {
			return kaon.Bytes32{}, &Error{err}
		}
	}

	// commit storage tries and the account trie
	for _, tr := range s.tries {
		if _, err := tr.Commit(); err != nil {
			return kaon.Bytes32{}, &Error{err}
		}
	}

	return s.root, nil
}
