// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package txpool maintains the set of transactions waiting to be packed
// into blocks.
package txpool

import (
	"container/heap"
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/co"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
)

// MaxTxSize is the admission ceiling on the encoded transaction size.
const MaxTxSize = 64 * 1024

var logger = log.WithContext("pkg", "txpool")

// Options options for tx pool.
type Options struct {
	Limit           int
	LimitPerAccount int
	MaxLifetime     time.Duration
	// PriceBump is the minimum gas price raise, in percent, for a
	// transaction to replace a pooled one with the same origin and nonce.
	PriceBump uint64
}

// TxEvent is posted when a tx is added to the pool. Executable is nil when
// the executability has not been evaluated yet.
type TxEvent struct {
	Tx         *tx.Transaction
	Executable *bool
}

// TxPool maintains unprocessed transactions.
type TxPool struct {
	options Options
	repo    *chain.Repository
	stater  *state.Stater

	all            *txObjectMap
	executables    atomic.Value
	seq            atomic.Uint64
	addedAfterWash uint32

	ctx    context.Context
	cancel func()
	txFeed event.Feed
	scope  event.SubscriptionScope
	goes   co.Goes
}

// New creates a new TxPool instance.
// Close is required to be called at the end.
func New(repo *chain.Repository, stater *state.Stater, options Options) *TxPool {
	if options.PriceBump == 0 {
		options.PriceBump = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &TxPool{
		options: options,
		repo:    repo,
		stater:  stater,
		all:     newTxObjectMap(),
		ctx:     ctx,
		cancel:  cancel,
	}
	pool.goes.Go(pool.housekeeping)
	return pool
}

// Close stops the housekeeping goroutine and waits for it.
func (p *TxPool) Close() {
	p.cancel()
	p.scope.Close()
	p.goes.Wait()
	logger.Debug("closed")
}

// SubscribeTxEvent registers a receiver of pool admission events.
func (p *TxPool) SubscribeTxEvent(ch chan *TxEvent) event.Subscription {
	return p.scope.Track(p.txFeed.Subscribe(ch))
}

func (p *TxPool) housekeeping() {
	logger.Debug("enter housekeeping")
	defer logger.Debug("leave housekeeping")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	headTick := p.repo.NewTicker()
	headID := p.repo.BestBlockSummary().Header.ID()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-headTick.C():
		case <-ticker.C:
		}

		headChanged := false
		if newHead := p.repo.BestBlockSummary(); newHead.Header.ID() != headID {
			headID = newHead.Header.ID()
			headChanged = true
		}
		if headChanged || atomic.SwapUint32(&p.addedAfterWash, 0) > 0 || p.all.Len() > p.options.Limit {
			started := time.Now()
			executables, removed, err := p.wash()
			if err != nil {
				logger.Warn("wash failed", "err", err)
				continue
			}
			p.executables.Store(executables)
			logger.Trace("wash done",
				"len", p.all.Len(),
				"removed", removed,
				"elapsed", time.Since(started),
			)
		}
	}
}

// Add adds a new tx into the pool. A tx already pooled is not an error.
func (p *TxPool) Add(newTx *tx.Transaction) error {
	return p.add(newTx, false)
}

// AddLocal adds a locally submitted tx, which is exempt from lifetime
// expiry and eviction.
func (p *TxPool) AddLocal(newTx *tx.Transaction) error {
	return p.add(newTx, true)
}

func (p *TxPool) add(newTx *tx.Transaction, localSubmitted bool) error {
	if p.all.ContainsHash(newTx.Hash()) {
		return errKnownTx
	}
	if newTx.Size() > MaxTxSize {
		return errTooLarge
	}
	if newTx.ChainID() != p.repo.ChainID() {
		return errWrongChain
	}
	if newTx.Gas() > kaon.MaxTxGas {
		return errGasLimitExceeded
	}

	txObj, err := resolveTx(newTx, localSubmitted)
	if err != nil {
		return err
	}

	committed, err := p.repo.HasTransaction(newTx.Hash())
	if err != nil {
		return err
	}
	if committed {
		return errKnownTx
	}

	head := p.repo.BestBlockSummary()
	st := p.stater.NewState(head.Header.StateRoot())

	if stale, err := txObj.Stale(st); err != nil {
		return err
	} else if stale {
		return errNonceTooLow
	}
	if ok, err := txObj.Affordable(st); err != nil {
		return err
	} else if !ok {
		return errInsufficientBalance
	}

	nonce, err := st.GetNonce(txObj.Origin())
	if err != nil {
		return err
	}
	// provisional; the wash loop re-evaluates contiguity
	txObj.executable = txObj.Nonce() == nonce
	txObj.seq = p.seq.Add(1)

	if !localSubmitted && p.all.Len() >= p.options.Limit {
		lowest := p.all.LowestPriced()
		if lowest == nil || newTx.GasPrice().Cmp(lowest.GasPrice()) <= 0 {
			return errPoolFull
		}
		p.all.RemoveByHash(lowest.Hash())
		logger.Trace("tx evicted", "hash", lowest.Hash())
	}

	if err := p.all.Add(txObj, p.options.LimitPerAccount, p.options.PriceBump); err != nil {
		return err
	}

	executable := txObj.executable
	p.goes.Go(func() {
		p.txFeed.Send(&TxEvent{newTx, &executable})
	})
	atomic.AddUint32(&p.addedAfterWash, 1)
	source := "remote"
	if localSubmitted {
		source = "local"
	}
	metricTxAdded().AddWithLabel(1, map[string]string{"source": source})
	metricPoolGauge().Set(int64(p.all.Len()))
	logger.Trace("tx added", "hash", newTx.Hash(), "executable", executable)
	return nil
}

// Get returns a pooled tx by its hash, or nil.
func (p *TxPool) Get(txHash kaon.Bytes32) *tx.Transaction {
	if txObj := p.all.GetByHash(txHash); txObj != nil {
		return txObj.Transaction
	}
	return nil
}

// Remove removes a tx from the pool by its hash.
func (p *TxPool) Remove(txHash kaon.Bytes32) bool {
	return p.all.RemoveByHash(txHash)
}

// Len returns the pool size.
func (p *TxPool) Len() int {
	return p.all.Len()
}

// Dump dumps all txs in the pool.
func (p *TxPool) Dump() tx.Transactions {
	return p.all.ToTxs()
}

// Fill fills txs into the pool, skipping invalid ones silently. It is
// meant for restoring the pool from a previous session.
func (p *TxPool) Fill(txs tx.Transactions) {
	for _, newTx := range txs {
		if txObj, err := resolveTx(newTx, false); err == nil {
			txObj.seq = p.seq.Add(1)
			_ = p.all.Add(txObj, p.options.LimitPerAccount, p.options.PriceBump)
		}
	}
	atomic.AddUint32(&p.addedAfterWash, 1)
}

// Executables returns up to maxCount executable transactions whose gas
// sums to at most maxGas, ordered by gas price descending with
// insertion-order tie-break, preserving per-origin nonce order.
func (p *TxPool) Executables(maxCount int, maxGas uint64) tx.Transactions {
	var sorted tx.Transactions
	if cached := p.executables.Load(); cached != nil {
		sorted = cached.(tx.Transactions)
	}

	picked := make(tx.Transactions, 0, maxCount)
	var gasSum uint64
	for _, trx := range sorted {
		if len(picked) >= maxCount {
			break
		}
		if gasSum+trx.Gas() > maxGas {
			continue
		}
		gasSum += trx.Gas()
		picked = append(picked, trx)
	}
	return picked
}

// Wash re-validates the whole pool against the current best state and
// refreshes the executable set. It is called by the housekeeping loop and
// exposed for deterministic testing.
func (p *TxPool) Wash() error {
	executables, _, err := p.wash()
	if err != nil {
		return err
	}
	p.executables.Store(executables)
	return nil
}

// wash evicts txs that are settled, stale, unaffordable or out of
// lifetime, and rebuilds the price-ordered executable list.
func (p *TxPool) wash() (executables tx.Transactions, removed int, err error) {
	head := p.repo.BestBlockSummary()
	st := p.stater.NewState(head.Header.StateRoot())

	all := p.all.ToTxObjects()
	var toRemove []kaon.Bytes32
	defer func() {
		for _, hash := range toRemove {
			p.all.RemoveByHash(hash)
			removed++
		}
		metricTxWashed().Add(int64(removed))
		metricPoolGauge().Set(int64(p.all.Len()))
	}()

	now := time.Now().UnixNano()
	byOrigin := make(map[kaon.Address][]*txObject)

	for _, txObj := range all {
		if !txObj.localSubmitted && p.options.MaxLifetime > 0 &&
			now > txObj.timeAdded+int64(p.options.MaxLifetime) {
			toRemove = append(toRemove, txObj.Hash())
			logger.Trace("tx washed out", "hash", txObj.Hash(), "err", "out of lifetime")
			continue
		}
		committed, err := p.repo.HasTransaction(txObj.Hash())
		if err != nil {
			return nil, 0, err
		}
		if committed {
			toRemove = append(toRemove, txObj.Hash())
			continue
		}
		if stale, err := txObj.Stale(st); err != nil {
			return nil, 0, err
		} else if stale {
			toRemove = append(toRemove, txObj.Hash())
			logger.Trace("tx washed out", "hash", txObj.Hash(), "err", "nonce too low")
			continue
		}
		if ok, err := txObj.Affordable(st); err != nil {
			return nil, 0, err
		} else if !ok {
			toRemove = append(toRemove, txObj.Hash())
			logger.Trace("tx washed out", "hash", txObj.Hash(), "err", "unaffordable")
			continue
		}
		byOrigin[txObj.Origin()] = append(byOrigin[txObj.Origin()], txObj)
	}

	// per origin, executables are the nonce-contiguous run starting at
	// the account nonce; the rest stay queued
	queues := make(originQueues, 0, len(byOrigin))
	for origin, objs := range byOrigin {
		sort.Slice(objs, func(i, j int) bool { return objs[i].Nonce() < objs[j].Nonce() })

		nonce, err := st.GetNonce(origin)
		if err != nil {
			return nil, 0, err
		}
		run := objs[:0]
		next := nonce
		for _, txObj := range objs {
			if txObj.Nonce() != next {
				break
			}
			txObj.executable = true
			run = append(run, txObj)
			next++
		}
		if len(run) > 0 {
			queues = append(queues, run)
		}
	}

	// merge queues by price priority, keeping per-origin nonce order
	heap.Init(&queues)
	executables = make(tx.Transactions, 0, len(all))
	for queues.Len() > 0 {
		best := queues[0]
		executables = append(executables, best[0].Transaction)
		if len(best) > 1 {
			queues[0] = best[1:]
			heap.Fix(&queues, 0)
		} else {
			heap.Pop(&queues)
		}
	}
	return executables, 0, nil
}

// originQueues is a heap of per-origin nonce-ordered tx runs, prioritized
// by the head tx's gas price, insertion order breaking ties.
type originQueues [][]*txObject

func (q originQueues) Len() int { return len(q) }

func (q originQueues) Less(i, j int) bool {
	a, b := q[i][0], q[j][0]
	switch a.GasPrice().Cmp(b.GasPrice()) {
	case 1:
		return true
	case -1:
		return false
	default:
		return a.seq < b.seq
	}
}

func (q originQueues) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *originQueues) Push(x any) { *q = append(*q, x.([]*txObject)) }

func (q *originQueues) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
