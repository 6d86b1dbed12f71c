// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
)

const revBest = "best"

// Revision addresses a block: "best", a block number or a block id.
type Revision struct {
	val interface{}
}

// ParseRevision parses a revision string.
func ParseRevision(revision string) (*Revision, error) {
	if revision == "" || revision == revBest {
		return &Revision{revBest}, nil
	}
	if len(revision) == 66 || len(revision) == 64 {
		blockID, err := kaon.ParseBytes32(revision)
		if err != nil {
			return nil, err
		}
		return &Revision{blockID}, nil
	}
	n, err := strconv.ParseUint(revision, 0, 64)
	if err != nil {
		return nil, err
	}
	return &Revision{n}, nil
}

// GetSummary resolves a revision to a block summary.
func GetSummary(rev *Revision, repo *chain.Repository) (*chain.BlockSummary, error) {
	switch val := rev.val.(type) {
	case kaon.Bytes32:
		return repo.GetBlockSummary(val)
	case uint64:
		id, err := repo.GetBlockIDByNumber(val)
		if err != nil {
			return nil, err
		}
		return repo.GetBlockSummary(id)
	case string:
		return repo.BestBlockSummary(), nil
	default:
		return nil, errors.New("invalid revision")
	}
}
