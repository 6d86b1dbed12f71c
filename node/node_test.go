// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/consensus"
	"github.com/kaonchain/kaon/crosschain"
	"github.com/kaonchain/kaon/genesis"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/lvldb"
)

func TestSoloNodeCommitsBlocks(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := kaon.Address(crypto.PubkeyToAddress(key.PublicKey))

	gene, err := genesis.NewCustomNet(&genesis.CustomGenesis{
		Name:       "solo",
		ChainID:    7,
		LaunchTime: 1700000000,
		GasLimit:   kaon.InitialGasLimit,
		Validators: []genesis.Authority{{Address: addr.String(), Weight: 1}},
	})
	require.NoError(t, err)

	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	config := consensus.DefaultConfig()
	config.Timeouts.Commit = 20 * time.Millisecond

	n, err := New(db, gene, key, SoloComm{}, crosschain.NoopClient{}, Options{
		APIAddr:   "127.0.0.1:0",
		Consensus: config,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for n.Repo().BestBlockSummary().Header.Number() < 3 {
		select {
		case <-deadline:
			t.Fatal("no blocks committed")
		case err := <-runErr:
			t.Fatalf("node stopped early: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not shut down")
	}

	// chain survives a restart on the same db
	reopened, err := New(db, gene, key, SoloComm{}, crosschain.NoopClient{}, Options{
		Consensus: config,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reopened.Repo().BestBlockSummary().Header.Number(), uint64(3))
	reopened.Pool().Close()
}
