// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package packer

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/lvldb"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
)

const testChainID uint64 = 99

type testEnv struct {
	repo      *chain.Repository
	stater    *state.Stater
	packer    *Packer
	proposer  *ecdsa.PrivateKey
	senders   []*ecdsa.PrivateKey
	benefAddr kaon.Address
}

func newTestEnv(t *testing.T, nSenders int) *testEnv {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	stater := state.NewStater(db)
	st := stater.NewState(kaon.Bytes32{})

	senders := make([]*ecdsa.PrivateKey, 0, nSenders)
	for i := 0; i < nSenders; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		addr := kaon.Address(crypto.PubkeyToAddress(key.PublicKey))
		require.NoError(t, st.SetBalance(addr, big.NewInt(1_000_000_000)))
		senders = append(senders, key)
	}

	stage, err := st.Stage()
	require.NoError(t, err)
	root, err := stage.Commit()
	require.NoError(t, err)

	genesis := new(block.Builder).
		ChainID(testChainID).
		Timestamp(1700000000).
		GasLimit(kaon.InitialGasLimit).
		StateRoot(root).
		Build()

	repo, err := chain.NewRepository(db, genesis)
	require.NoError(t, err)

	proposer, err := crypto.GenerateKey()
	require.NoError(t, err)
	proposerAddr := kaon.Address(crypto.PubkeyToAddress(proposer.PublicKey))
	benefAddr := kaon.BytesToAddress([]byte("beneficiary"))

	return &testEnv{
		repo:      repo,
		stater:    stater,
		packer:    New(repo, stater, proposerAddr, benefAddr),
		proposer:  proposer,
		senders:   senders,
		benefAddr: benefAddr,
	}
}

func (env *testEnv) newTransfer(t *testing.T, key *ecdsa.PrivateKey, nonce uint64) *tx.Transaction {
	to := kaon.BytesToAddress([]byte("recipient"))
	return tx.MustSign(tx.NewBuilder(testChainID).
		To(&to).
		Nonce(nonce).
		Value(big.NewInt(100)).
		Gas(kaon.TxGas).
		GasPrice(big.NewInt(1)).
		Build(), key)
}

func (env *testEnv) newQC(t *testing.T, blk *block.Block) *block.QuorumCert {
	header := blk.Header()
	vote := block.NewVote(header.ChainID(), block.VoteTypePrecommit, header.Number(), header.Round(), header.ID())
	sig, err := crypto.Sign(vote.SigningHash().Bytes(), env.proposer)
	require.NoError(t, err)
	qc, err := block.NewQuorumCert([]*block.Vote{vote.WithSignature(sig)})
	require.NoError(t, err)
	return qc
}

func TestPackEmptyBlock(t *testing.T) {
	env := newTestEnv(t, 0)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)

	blk, stage, receipts, err := flow.Pack(env.proposer, nil)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	header := blk.Header()
	assert.Equal(t, parent.Header.ID(), header.ParentID())
	assert.Equal(t, uint64(1), header.Number())
	assert.Equal(t, uint32(1), header.Round())
	assert.Equal(t, uint64(0), header.GasUsed())
	assert.Equal(t, env.benefAddr, header.Beneficiary())
	// no writes, root unchanged
	assert.Equal(t, parent.Header.StateRoot(), header.StateRoot())

	signer, err := header.Signer()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(env.proposer.PublicKey)), signer)

	_, err = stage.Commit()
	require.NoError(t, err)
}

func TestPackWithTransactions(t *testing.T) {
	env := newTestEnv(t, 2)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)

	require.NoError(t, flow.Adopt(env.newTransfer(t, env.senders[0], 0)))
	require.NoError(t, flow.Adopt(env.newTransfer(t, env.senders[1], 0)))
	assert.Equal(t, 2*kaon.TxGas, flow.TotalGasUsed())

	blk, stage, receipts, err := flow.Pack(env.proposer, nil)
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	header := blk.Header()
	assert.Equal(t, 2*kaon.TxGas, header.GasUsed())
	assert.Equal(t, receipts.RootHash(), header.ReceiptsRoot())
	assert.Equal(t, blk.Transactions().RootHash(), header.TxsRoot())

	root, err := stage.Commit()
	require.NoError(t, err)
	assert.Equal(t, header.StateRoot(), root)

	// the committed state reflects the transfers
	st := env.stater.NewState(root)
	balance, err := st.GetBalance(kaon.BytesToAddress([]byte("recipient")))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), balance)
}

func TestAdoptRejections(t *testing.T) {
	env := newTestEnv(t, 1)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)

	wrongChain := tx.MustSign(tx.NewBuilder(testChainID+1).
		Gas(kaon.TxGas).
		GasPrice(big.NewInt(1)).
		Build(), env.senders[0])
	assert.True(t, IsBadTx(flow.Adopt(wrongChain)))

	trx := env.newTransfer(t, env.senders[0], 0)
	require.NoError(t, flow.Adopt(trx))
	assert.True(t, IsKnownTx(flow.Adopt(trx)))

	// bad nonce fails execution and leaves the flow untouched
	stale := env.newTransfer(t, env.senders[0], 0)
	assert.True(t, IsKnownTx(flow.Adopt(stale)))
	future := env.newTransfer(t, env.senders[0], 5)
	assert.True(t, IsBadTx(flow.Adopt(future)))
	assert.Equal(t, kaon.TxGas, flow.TotalGasUsed())
}

func TestAdoptGasLimit(t *testing.T) {
	env := newTestEnv(t, 1)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)
	flow.gasUsed = parent.Header.GasLimit() - kaon.TxGas + 1

	err = flow.Adopt(env.newTransfer(t, env.senders[0], 0))
	assert.True(t, IsGasLimitReached(err))
}

func TestPackRequiresProposerKey(t *testing.T) {
	env := newTestEnv(t, 0)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, _, _, err = flow.Pack(stranger, nil)
	assert.EqualError(t, err, "private key mismatch")
}

func TestPackChainedBlocks(t *testing.T) {
	env := newTestEnv(t, 1)
	parent := env.repo.BestBlockSummary()

	flow, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp()+10)
	require.NoError(t, err)
	require.NoError(t, flow.Adopt(env.newTransfer(t, env.senders[0], 0)))

	blk1, stage, receipts, err := flow.Pack(env.proposer, nil)
	require.NoError(t, err)
	_, err = stage.Commit()
	require.NoError(t, err)

	qc1 := env.newQC(t, blk1)
	require.NoError(t, env.repo.AddBlock(blk1, receipts, qc1))

	// the next flow extends the new best and must carry its QC
	best := env.repo.BestBlockSummary()
	flow2, err := env.packer.Schedule(best, 2, best.Header.Timestamp()+10)
	require.NoError(t, err)

	_, _, _, err = flow2.Pack(env.proposer, nil)
	assert.EqualError(t, err, "parent quorum cert required")

	blk2, stage2, receipts2, err := flow2.Pack(env.proposer, qc1)
	require.NoError(t, err)
	_, err = stage2.Commit()
	require.NoError(t, err)
	assert.Equal(t, blk1.Header().ID(), blk2.Header().ParentID())

	require.NoError(t, env.repo.AddBlock(blk2, receipts2, env.newQC(t, blk2)))
	assert.Equal(t, blk2.Header().ID(), env.repo.BestBlockSummary().Header.ID())
}

func TestScheduleRejectsStaleTimestamp(t *testing.T) {
	env := newTestEnv(t, 0)
	parent := env.repo.BestBlockSummary()

	_, err := env.packer.Schedule(parent, 1, parent.Header.Timestamp())
	assert.Error(t, err)
}
