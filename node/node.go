// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node assembles a running validator: chain store, state,
// mempool, consensus engine, cross-chain relay and the http api, with
// ordered startup and graceful shutdown.
package node

import (
	"context"
	"crypto/ecdsa"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/api"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/co"
	"github.com/kaonchain/kaon/consensus"
	"github.com/kaonchain/kaon/crosschain"
	"github.com/kaonchain/kaon/genesis"
	"github.com/kaonchain/kaon/health"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/kv"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/txpool"
	"github.com/kaonchain/kaon/validator"
	"github.com/kaonchain/kaon/vm"
)

var logger = log.WithContext("pkg", "node")

// Options configures a node.
type Options struct {
	APIAddr         string
	APICallGasLimit uint64
	APIReqLogger    bool

	TxPool    txpool.Options
	Consensus consensus.Config
}

// Node wires the services of a validator together.
type Node struct {
	repo    *chain.Repository
	stater  *state.Stater
	pool    *txpool.TxPool
	engine  *consensus.Engine
	watcher *crosschain.Watcher
	health  *health.Health
	valSet  *validator.Set
	apiAddr string
	apiSrv  *http.Server
	goes    co.Goes
}

// New opens the chain on db, building the genesis block on first run,
// and assembles all services. comm carries consensus messages to the
// other validators; cross relays checkpoints (use
// crosschain.NoopClient without a bridge).
func New(
	db kv.Store,
	gene *genesis.Genesis,
	privKey *ecdsa.PrivateKey,
	comm consensus.Communicator,
	cross crosschain.Client,
	opts Options,
) (*Node, error) {
	stater := state.NewStater(db)
	geneBlock, err := gene.Build(stater)
	if err != nil {
		return nil, errors.Wrap(err, "build genesis")
	}
	repo, err := chain.NewRepository(db, geneBlock)
	if err != nil {
		return nil, errors.Wrap(err, "open chain")
	}

	valSet, err := gene.ValidatorSet()
	if err != nil {
		return nil, err
	}

	pool := txpool.New(repo, stater, opts.TxPool)
	engine := consensus.NewEngine(repo, stater, pool, validator.SingleEpoch(valSet), privKey, comm, opts.Consensus)
	engine.SetVMConfig(vm.Config{
		ExtraPrecompiles: map[kaon.Address]vm.PrecompiledContract{
			crosschain.CheckpointVerifierAddress: crosschain.NewCheckpointVerifier(gene.ChainID(), valSet),
		},
	})

	node := &Node{
		repo:    repo,
		stater:  stater,
		pool:    pool,
		engine:  engine,
		watcher: crosschain.NewWatcher(repo, cross),
		health:  health.New(repo, 0),
		valSet:  valSet,
		apiAddr: opts.APIAddr,
	}
	if opts.APIAddr != "" {
		callGasLimit := opts.APICallGasLimit
		if callGasLimit == 0 {
			callGasLimit = kaon.MaxTxGas
		}
		node.apiSrv = &http.Server{
			Handler: api.New(repo, stater, pool, node.health, api.Options{
				AllowedOrigins:  "*",
				CallGasLimit:    callGasLimit,
				EnableReqLogger: opts.APIReqLogger,
			}),
		}
	}
	return node, nil
}

// Repo exposes the chain repository.
func (n *Node) Repo() *chain.Repository { return n.repo }

// Pool exposes the mempool.
func (n *Node) Pool() *txpool.TxPool { return n.pool }

// Engine exposes the consensus engine, for feeding gossiped proposals
// and votes into it.
func (n *Node) Engine() *consensus.Engine { return n.engine }

// Run starts all services and blocks until ctx is canceled or the
// consensus engine fails. Shutdown is graceful: the engine parks its
// in-flight round before the stores close.
func (n *Node) Run(ctx context.Context) error {
	logger.Info("starting node",
		"chainID", n.repo.ChainID(),
		"best", n.repo.BestBlockSummary().Header.Number(),
		"validators", n.valSet.Size(),
	)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	n.goes.Go(func() {
		if err := n.watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("crosschain watcher stopped", "err", err)
		}
	})
	n.goes.Go(func() {
		ticker := n.repo.NewTicker()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C():
				n.health.Touch()
			}
		}
	})

	if n.apiSrv != nil {
		listener, err := net.Listen("tcp", n.apiAddr)
		if err != nil {
			cancelWatch()
			n.goes.Wait()
			return errors.Wrap(err, "listen api")
		}
		logger.Info("api served", "addr", listener.Addr())
		n.goes.Go(func() {
			if err := n.apiSrv.Serve(listener); err != http.ErrServerClosed {
				logger.Warn("api server stopped", "err", err)
			}
		})
	}

	n.engine.Start()

	select {
	case <-ctx.Done():
	case <-n.engine.Done():
	}

	logger.Info("shutting down")
	n.engine.Stop()
	engineErr := n.engine.Err()

	if n.apiSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.apiSrv.Shutdown(shutdownCtx)
		cancel()
	}
	cancelWatch()
	n.pool.Close()
	n.goes.Wait()

	return engineErr
}
