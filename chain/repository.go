// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chain stores the finalized block chain. Consensus commits blocks
// in order, so the chain is strictly linear: every committed block extends
// the previous best and is never reorganized.
package chain

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/co"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
	"github.com/kaonchain/kaon/tx"
)

const (
	summaryStoreName = "chain.summary" // block summaries keyed by block id
	blockStoreName   = "chain.block"   // full block blobs keyed by block id
	receiptStoreName = "chain.receipt" // receipt lists keyed by block id
	indexStoreName   = "chain.index"   // block ids keyed by block number
	txIndexStoreName = "chain.txi"     // tx metadata keyed by tx hash
	propStoreName    = "chain.props"   // named chain properties
)

var (
	bestIDKey = []byte("best-block-id")
	bestQCKey = []byte("best-qc")
)

// Repository stores committed blocks with their receipts and the quorum
// certificate that finalized the head.
//
// It's thread-safe.
type Repository struct {
	db        kv.Store
	summaries kv.Store
	blocks    kv.Store
	receipts  kv.Store
	numIndex  kv.Store
	txIndex   kv.Store
	props     kv.Store
	genesis   *block.Block

	bestSummary atomic.Value
	bestQC      atomic.Value
	commitLock  sync.Mutex
	tick        co.Signal

	caches struct {
		summaries *lru.ARCCache
		receipts  *lru.ARCCache
	}
}

// NewRepository opens the repository over the given store, bootstrapping it
// with the genesis block on first use.
func NewRepository(db kv.Store, genesis *block.Block) (*Repository, error) {
	if genesis.Header().Number() != 0 {
		return nil, errors.New("genesis number != 0")
	}
	if len(genesis.Transactions()) != 0 {
		return nil, errors.New("genesis block must not have transactions")
	}
	if genesis.Header().ParentQC() != nil {
		return nil, errors.New("genesis block must not carry a quorum certificate")
	}

	repo := &Repository{
		db:        db,
		summaries: kv.Bucket(summaryStoreName).NewStore(db),
		blocks:    kv.Bucket(blockStoreName).NewStore(db),
		receipts:  kv.Bucket(receiptStoreName).NewStore(db),
		numIndex:  kv.Bucket(indexStoreName).NewStore(db),
		txIndex:   kv.Bucket(txIndexStoreName).NewStore(db),
		props:     kv.Bucket(propStoreName).NewStore(db),
		genesis:   genesis,
	}
	repo.caches.summaries, _ = lru.NewARC(512)
	repo.caches.receipts, _ = lru.NewARC(512)

	genesisID := genesis.Header().ID()
	if val, err := repo.props.Get(bestIDKey); err != nil {
		if !repo.props.IsNotFound(err) {
			return nil, err
		}
		if err := repo.commit(genesis, nil, nil); err != nil {
			return nil, errors.Wrap(err, "bootstrap genesis")
		}
	} else {
		bestID := kaon.Bytes32{}
		copy(bestID[:], val)

		existingGenesisID, err := repo.GetBlockIDByNumber(0)
		if err != nil {
			return nil, errors.Wrap(err, "get existing genesis id")
		}
		if existingGenesisID != genesisID {
			return nil, errors.New("genesis mismatch")
		}

		summary, err := repo.GetBlockSummary(bestID)
		if err != nil {
			return nil, errors.Wrap(err, "get best block")
		}
		repo.bestSummary.Store(summary)

		var qc block.QuorumCert
		if err := loadRLP(repo.props, bestQCKey, &qc); err != nil {
			if !repo.props.IsNotFound(err) {
				return nil, errors.Wrap(err, "load best qc")
			}
		} else {
			repo.bestQC.Store(&qc)
		}
	}
	return repo, nil
}

// GenesisBlock returns the genesis block.
func (r *Repository) GenesisBlock() *block.Block {
	return r.genesis
}

// ChainID returns the chain id the repository belongs to.
func (r *Repository) ChainID() uint64 {
	return r.genesis.Header().ChainID()
}

// BestBlockSummary returns the summary of the newest committed block.
func (r *Repository) BestBlockSummary() *BlockSummary {
	return r.bestSummary.Load().(*BlockSummary)
}

// BestQC returns the quorum certificate finalizing the best block, or nil
// when the best block is genesis.
func (r *Repository) BestQC() *block.QuorumCert {
	if qc := r.bestQC.Load(); qc != nil {
		return qc.(*block.QuorumCert)
	}
	return nil
}

// AddBlock atomically commits a block, its receipts and the quorum
// certificate that finalized it. The block must directly extend the
// current best block.
func (r *Repository) AddBlock(newBlock *block.Block, receipts tx.Receipts, qc *block.QuorumCert) error {
	r.commitLock.Lock()
	defer r.commitLock.Unlock()

	header := newBlock.Header()
	best := r.BestBlockSummary()
	if header.ParentID() != best.Header.ID() {
		return errors.New("block does not extend the best block")
	}
	if header.Number() != best.Header.Number()+1 {
		return errors.New("block number out of sequence")
	}
	if len(receipts) != len(newBlock.Transactions()) {
		return errors.New("receipt count mismatch")
	}
	if qc == nil {
		return errors.New("missing quorum certificate")
	}
	if qc.BlockID() != header.ID() || qc.Height() != header.Number() {
		return errors.New("quorum certificate does not match block")
	}
	return r.commit(newBlock, receipts, qc)
}

// commit writes everything in one batch. Callers hold commitLock, except
// the genesis bootstrap which runs before the repository is shared.
func (r *Repository) commit(newBlock *block.Block, receipts tx.Receipts, qc *block.QuorumCert) error {
	var (
		header = newBlock.Header()
		id     = header.ID()
		num    = header.Number()
		txs    = newBlock.Transactions()

		batch         = r.db.NewBatch()
		summaryPutter = kv.Bucket(summaryStoreName).NewPutter(batch)
		blockPutter   = kv.Bucket(blockStoreName).NewPutter(batch)
		receiptPutter = kv.Bucket(receiptStoreName).NewPutter(batch)
		indexPutter   = kv.Bucket(indexStoreName).NewPutter(batch)
		txIndexPutter = kv.Bucket(txIndexStoreName).NewPutter(batch)
		propPutter    = kv.Bucket(propStoreName).NewPutter(batch)
	)

	txIDs := make([]kaon.Bytes32, 0, len(txs))
	for i, trx := range txs {
		txHash := trx.Hash()
		txIDs = append(txIDs, txHash)
		if err := saveRLP(txIndexPutter, txHash[:], &TxMeta{
			BlockID:  id,
			Index:    uint64(i),
			Reverted: receipts[i].Reverted,
		}); err != nil {
			return err
		}
	}

	if err := saveRLP(blockPutter, id[:], newBlock); err != nil {
		return err
	}
	if len(receipts) > 0 {
		if err := saveRLP(receiptPutter, id[:], receipts); err != nil {
			return err
		}
	}
	if err := indexPutter.Put(numberKey(num), id[:]); err != nil {
		return err
	}

	summary := &BlockSummary{Header: header, Txs: txIDs, Size: newBlock.Size()}
	if err := saveBlockSummary(summaryPutter, summary); err != nil {
		return err
	}

	if err := propPutter.Put(bestIDKey, id[:]); err != nil {
		return err
	}
	if qc != nil {
		if err := saveRLP(propPutter, bestQCKey, qc); err != nil {
			return err
		}
	}

	if err := batch.Write(); err != nil {
		return err
	}

	r.caches.summaries.Add(id, summary)
	if len(receipts) > 0 {
		r.caches.receipts.Add(id, receipts)
	}
	r.bestSummary.Store(summary)
	if qc != nil {
		r.bestQC.Store(qc)
	}
	metricBlockCommitted().Add(1)
	metricBestNumber().Set(int64(num))
	r.tick.Broadcast()
	return nil
}

// GetBlockSummary returns the block summary by block id.
func (r *Repository) GetBlockSummary(id kaon.Bytes32) (*BlockSummary, error) {
	if cached, ok := r.caches.summaries.Get(id); ok {
		return cached.(*BlockSummary), nil
	}
	summary, err := loadBlockSummary(r.summaries, id)
	if err != nil {
		return nil, err
	}
	r.caches.summaries.Add(id, summary)
	return summary, nil
}

// GetBlock returns the full block by block id.
func (r *Repository) GetBlock(id kaon.Bytes32) (*block.Block, error) {
	var blk block.Block
	if err := loadRLP(r.blocks, id[:], &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// GetBlockIDByNumber returns the id of the committed block at the given
// height.
func (r *Repository) GetBlockIDByNumber(num uint64) (kaon.Bytes32, error) {
	val, err := r.numIndex.Get(numberKey(num))
	if err != nil {
		return kaon.Bytes32{}, err
	}
	var id kaon.Bytes32
	copy(id[:], val)
	return id, nil
}

// GetBlockByNumber returns the committed block at the given height.
func (r *Repository) GetBlockByNumber(num uint64) (*block.Block, error) {
	id, err := r.GetBlockIDByNumber(num)
	if err != nil {
		return nil, err
	}
	return r.GetBlock(id)
}

// GetBlockReceipts returns all receipts of the block.
func (r *Repository) GetBlockReceipts(id kaon.Bytes32) (tx.Receipts, error) {
	if cached, ok := r.caches.receipts.Get(id); ok {
		return cached.(tx.Receipts), nil
	}
	var receipts tx.Receipts
	if err := loadRLP(r.receipts, id[:], &receipts); err != nil {
		return nil, err
	}
	r.caches.receipts.Add(id, receipts)
	return receipts, nil
}

// GetTxMeta locates a committed transaction by its hash.
func (r *Repository) GetTxMeta(txHash kaon.Bytes32) (*TxMeta, error) {
	var meta TxMeta
	if err := loadRLP(r.txIndex, txHash[:], &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetTransaction returns a committed transaction with its location.
func (r *Repository) GetTransaction(txHash kaon.Bytes32) (*tx.Transaction, *TxMeta, error) {
	meta, err := r.GetTxMeta(txHash)
	if err != nil {
		return nil, nil, err
	}
	blk, err := r.GetBlock(meta.BlockID)
	if err != nil {
		return nil, nil, err
	}
	return blk.Transactions()[meta.Index], meta, nil
}

// GetReceipt returns the receipt of a committed transaction.
func (r *Repository) GetReceipt(txHash kaon.Bytes32) (*tx.Receipt, *TxMeta, error) {
	meta, err := r.GetTxMeta(txHash)
	if err != nil {
		return nil, nil, err
	}
	receipts, err := r.GetBlockReceipts(meta.BlockID)
	if err != nil {
		return nil, nil, err
	}
	return receipts[meta.Index], meta, nil
}

// HasTransaction reports whether the transaction has been committed.
func (r *Repository) HasTransaction(txHash kaon.Bytes32) (bool, error) {
	has, err := r.txIndex.Has(txHash[:])
	if err != nil {
		return false, err
	}
	return has, nil
}

// IsNotFound reports whether the error means a missing entry.
func (r *Repository) IsNotFound(err error) bool {
	return r.db.IsNotFound(err)
}

// NewTicker creates a waiter signaled on each committed block.
func (r *Repository) NewTicker() co.Waiter {
	return r.tick.NewWaiter()
}
