// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package crosschain

import (
	"context"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/tx"
)

var logger = log.WithContext("pkg", "crosschain")

// Watcher follows the chain head and relays every newly finalized
// block to the foreign chain client. Relays are at-most-once: a failed
// relay is logged and skipped, the foreign chain catches up from the
// next checkpoint.
type Watcher struct {
	repo   *chain.Repository
	client Client
}

func NewWatcher(repo *chain.Repository, client Client) *Watcher {
	return &Watcher{repo, client}
}

// Run relays new heads until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.repo.NewTicker()
	relayed := w.repo.BestBlockSummary().Header.Number()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		best := w.repo.BestBlockSummary().Header.Number()
		for num := relayed + 1; num <= best; num++ {
			if err := w.relay(ctx, num, best); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("checkpoint relay failed", "number", num, "err", err)
			}
		}
		relayed = best
	}
}

func (w *Watcher) relay(ctx context.Context, num, best uint64) error {
	blk, err := w.repo.GetBlockByNumber(num)
	if err != nil {
		return err
	}
	header := blk.Header()

	qc, err := w.quorumCertOf(header, num, best)
	if err != nil {
		return err
	}
	if err := w.client.SetCheckpoint(ctx, header, qc); err != nil {
		return err
	}

	receipts, err := w.repo.GetBlockReceipts(header.ID())
	if err != nil {
		return err
	}
	var logs []*tx.Log
	for _, receipt := range receipts {
		logs = append(logs, receipt.Logs...)
	}
	if len(logs) == 0 {
		return nil
	}
	return w.client.SetLogs(ctx, header.ID(), logs)
}

// quorumCertOf looks up the certificate finalizing the given block:
// the best block's is tracked by the repository, an ancestor's is
// embedded in its child's header.
func (w *Watcher) quorumCertOf(header *block.Header, num, best uint64) (*block.QuorumCert, error) {
	if num == best {
		if qc := w.repo.BestQC(); qc != nil && qc.BlockID() == header.ID() {
			return qc, nil
		}
	}
	child, err := w.repo.GetBlockByNumber(num + 1)
	if err != nil {
		return nil, err
	}
	return child.Header().ParentQC(), nil
}
