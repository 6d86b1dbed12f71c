// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/api/accounts"
	"github.com/kaonchain/kaon/api/blocks"
	"github.com/kaonchain/kaon/api/transactions"
	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/health"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/lvldb"
	"github.com/kaonchain/kaon/packer"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/txpool"
)

const testChainID uint64 = 99

type testEnv struct {
	repo     *chain.Repository
	stater   *state.Stater
	pool     *txpool.TxPool
	server   *httptest.Server
	sender   *ecdsa.PrivateKey
	proposer *ecdsa.PrivateKey
	block1   *block.Block
	tx1      *tx.Transaction
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	stater := state.NewStater(db)
	st := stater.NewState(kaon.Bytes32{})

	sender, err := crypto.GenerateKey()
	require.NoError(t, err)
	senderAddr := kaon.Address(crypto.PubkeyToAddress(sender.PublicKey))
	require.NoError(t, st.SetBalance(senderAddr, big.NewInt(1_000_000_000)))

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

	// commit one block carrying a transfer
	proposer, err := crypto.GenerateKey()
	require.NoError(t, err)
	proposerAddr := kaon.Address(crypto.PubkeyToAddress(proposer.PublicKey))

	pkr := packer.New(repo, stater, proposerAddr, proposerAddr)
	flow, err := pkr.Schedule(repo.BestBlockSummary(), 0, genesis.Header().Timestamp()+1)
	require.NoError(t, err)

	to := kaon.BytesToAddress([]byte("recipient"))
	tx1 := tx.MustSign(tx.NewBuilder(testChainID).
		To(&to).
		Nonce(0).
		Value(big.NewInt(100)).
		Gas(kaon.TxGas).
		GasPrice(big.NewInt(1)).
		Build(), sender)
	require.NoError(t, flow.Adopt(tx1))

	blk, stage2, receipts, err := flow.Pack(proposer, nil)
	require.NoError(t, err)
	_, err = stage2.Commit()
	require.NoError(t, err)

	vote := block.NewVote(testChainID, block.VoteTypePrecommit, 1, 0, blk.Header().ID())
	sig, err := crypto.Sign(vote.SigningHash().Bytes(), proposer)
	require.NoError(t, err)
	qc, err := block.NewQuorumCert([]*block.Vote{vote.WithSignature(sig)})
	require.NoError(t, err)
	require.NoError(t, repo.AddBlock(blk, receipts, qc))

	pool := txpool.New(repo, stater, txpool.Options{Limit: 16, LimitPerAccount: 16})
	t.Cleanup(pool.Close)

	healthStatus := health.New(repo, 0)
	handler := New(repo, stater, pool, healthStatus, Options{
		AllowedOrigins: "*",
		CallGasLimit:   kaon.MaxTxGas,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{
		repo:     repo,
		stater:   stater,
		pool:     pool,
		server:   server,
		sender:   sender,
		proposer: proposer,
		block1:   blk,
		tx1:      tx1,
	}
}

func (env *testEnv) getJSON(t *testing.T, path string, obj interface{}) int {
	res, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(obj))
	}
	return res.StatusCode
}

func (env *testEnv) postJSON(t *testing.T, path string, body, obj interface{}) int {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(obj))
	}
	return res.StatusCode
}

func TestGetBlock(t *testing.T) {
	env := newTestEnv(t)

	var collapsed blocks.JSONCollapsedBlock
	require.Equal(t, http.StatusOK, env.getJSON(t, "/blocks/best", &collapsed))
	assert.Equal(t, uint64(1), collapsed.Number)
	assert.Equal(t, env.block1.Header().ID(), collapsed.ID)
	require.Len(t, collapsed.Transactions, 1)
	assert.Equal(t, env.tx1.Hash(), collapsed.Transactions[0])

	var genesis blocks.JSONCollapsedBlock
	require.Equal(t, http.StatusOK, env.getJSON(t, "/blocks/0", &genesis))
	assert.Equal(t, uint64(0), genesis.Number)
	assert.Empty(t, genesis.Transactions)

	var expanded blocks.JSONExpandedBlock
	path := fmt.Sprintf("/blocks/%s?expanded=true", env.block1.Header().ID())
	require.Equal(t, http.StatusOK, env.getJSON(t, path, &expanded))
	require.Len(t, expanded.Transactions, 1)
	assert.Equal(t, env.tx1.Hash(), expanded.Transactions[0].ID)
	assert.Equal(t, "100", expanded.Transactions[0].Value)

	assert.Equal(t, http.StatusBadRequest, env.getJSON(t, "/blocks/not-a-revision", nil))

	var missing json.RawMessage
	require.Equal(t, http.StatusOK, env.getJSON(t, "/blocks/42", &missing))
	assert.Equal(t, "null", string(bytes.TrimSpace(missing)))
}

func TestGetAccount(t *testing.T) {
	env := newTestEnv(t)
	senderAddr := kaon.Address(crypto.PubkeyToAddress(env.sender.PublicKey))

	var acc accounts.Account
	require.Equal(t, http.StatusOK, env.getJSON(t, "/accounts/"+senderAddr.String(), &acc))
	want := new(big.Int).Sub(big.NewInt(1_000_000_000-100), new(big.Int).SetUint64(kaon.TxGas))
	assert.Equal(t, want.String(), acc.Balance)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.False(t, acc.HasCode)

	// historical revision: the genesis state has the full balance
	var at0 accounts.Account
	require.Equal(t, http.StatusOK, env.getJSON(t, "/accounts/"+senderAddr.String()+"?revision=0", &at0))
	assert.Equal(t, "1000000000", at0.Balance)
	assert.Equal(t, uint64(0), at0.Nonce)

	assert.Equal(t, http.StatusBadRequest, env.getJSON(t, "/accounts/bogus", nil))
}

func TestCallContract(t *testing.T) {
	env := newTestEnv(t)
	senderAddr := kaon.Address(crypto.PubkeyToAddress(env.sender.PublicKey))
	to := kaon.BytesToAddress([]byte("recipient"))

	var result accounts.CallResult
	status := env.postJSON(t, "/accounts/"+to.String(), accounts.CallData{
		Caller: &senderAddr,
	}, &result)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, result.Reverted)
}

func TestSendAndGetTransaction(t *testing.T) {
	env := newTestEnv(t)

	to := kaon.BytesToAddress([]byte("recipient"))
	trx := tx.MustSign(tx.NewBuilder(testChainID).
		To(&to).
		Nonce(1).
		Value(big.NewInt(7)).
		Gas(kaon.TxGas).
		GasPrice(big.NewInt(1)).
		Build(), env.sender)
	raw, err := rlp.EncodeToBytes(trx)
	require.NoError(t, err)

	var sent map[string]string
	status := env.postJSON(t, "/transactions", transactions.RawTx{Raw: raw}, &sent)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, trx.Hash().String(), sent["id"])
	assert.Equal(t, 1, env.pool.Len())

	// resubmission is rejected
	assert.Equal(t, http.StatusBadRequest,
		env.postJSON(t, "/transactions", transactions.RawTx{Raw: raw}, nil))

	// pending tx is served from the pool, without meta
	var pending transactions.JSONTransaction
	require.Equal(t, http.StatusOK, env.getJSON(t, "/transactions/"+trx.Hash().String(), &pending))
	assert.Equal(t, trx.Hash(), pending.ID)
	assert.Nil(t, pending.Meta)

	// committed tx carries meta
	var committed transactions.JSONTransaction
	require.Equal(t, http.StatusOK, env.getJSON(t, "/transactions/"+env.tx1.Hash().String(), &committed))
	require.NotNil(t, committed.Meta)
	assert.Equal(t, env.block1.Header().ID(), committed.Meta.BlockID)
	assert.Equal(t, uint64(1), committed.Meta.BlockNumber)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var status health.Status
	require.Equal(t, http.StatusOK, env.getJSON(t, "/health", &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, env.block1.Header().ID(), status.BestBlock)
	assert.Equal(t, uint64(1), status.BestNumber)
}

func TestGetReceipt(t *testing.T) {
	env := newTestEnv(t)

	var receipt transactions.JSONReceipt
	path := "/transactions/" + env.tx1.Hash().String() + "/receipt"
	require.Equal(t, http.StatusOK, env.getJSON(t, path, &receipt))
	assert.Equal(t, kaon.TxGas, receipt.GasUsed)
	assert.False(t, receipt.Reverted)
	require.NotNil(t, receipt.Meta)
	assert.Equal(t, env.block1.Header().ID(), receipt.Meta.BlockID)

	var missing json.RawMessage
	unknown := kaon.MustParseBytes32("0x00000000000000000000000000000000000000000000000000000000000000aa")
	require.Equal(t, http.StatusOK, env.getJSON(t, "/transactions/"+unknown.String()+"/receipt", &missing))
	assert.Equal(t, "null", string(bytes.TrimSpace(missing)))
}
