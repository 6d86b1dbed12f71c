// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

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
	"github.com/kaonchain/kaon/packer"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/txpool"
	"github.com/kaonchain/kaon/validator"
)

// recorder captures broadcast messages.
type recorder struct {
	proposals []*block.Proposal
	votes     []*block.Vote
}

func (r *recorder) BroadcastProposal(p *block.Proposal) { r.proposals = append(r.proposals, p) }
func (r *recorder) BroadcastVote(v *block.Vote)         { r.votes = append(r.votes, v) }

func (r *recorder) lastVote() *block.Vote {
	if len(r.votes) == 0 {
		return nil
	}
	return r.votes[len(r.votes)-1]
}

type engineEnv struct {
	repo   *chain.Repository
	stater *state.Stater
	pool   *txpool.TxPool
	valSet *validator.Set
	keys   []*ecdsa.PrivateKey
	engine *Engine
	comm   *recorder
	sender *ecdsa.PrivateKey
}

// newEngineEnv builds an engine whose validator set holds nValidators
// keys; keys[0] is the engine's own. The loop is not started: tests
// drive the step functions directly.
func newEngineEnv(t *testing.T, nValidators int) *engineEnv {
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

	valSet, keys := newTestValSet(t, nValidators)
	pool := txpool.New(repo, stater, txpool.Options{Limit: 100, LimitPerAccount: 16})
	t.Cleanup(pool.Close)

	comm := &recorder{}
	engine := NewEngine(repo, stater, pool, validator.SingleEpoch(valSet), keys[0], comm, DefaultConfig())
	engine.height = 1
	engine.votes = newHeightVoteSet(repo.ChainID(), 1, valSet)
	engine.ticker = newTimeoutTicker(DefaultTimeoutConfig())
	t.Cleanup(engine.ticker.Stop)

	return &engineEnv{
		repo:   repo,
		stater: stater,
		pool:   pool,
		valSet: valSet,
		keys:   keys,
		engine: engine,
		comm:   comm,
		sender: sender,
	}
}


// newFollowerEnv builds an env where the engine is not the round-0
// proposer, so tests can feed external proposals deterministically.
func newFollowerEnv(t *testing.T, nValidators int) *engineEnv {
	for i := 0; i < 100; i++ {
		env := newEngineEnv(t, nValidators)
		if env.valSet.Proposer(1, 0).Address != env.engine.addr {
			return env
		}
	}
	t.Fatal("could not draw a follower engine")
	return nil
}

// proposerKey returns the private key of the designated proposer.
func (env *engineEnv) proposerKey(height uint64, round uint32) *ecdsa.PrivateKey {
	addr := env.valSet.Proposer(height, round).Address
	for _, key := range env.keys {
		if kaon.Address(crypto.PubkeyToAddress(key.PublicKey)) == addr {
			return key
		}
	}
	return nil
}

// buildProposal packs a block with the designated proposer's key and
// wraps it into a signed proposal.
func (env *engineEnv) buildProposal(t *testing.T, round uint32, txs tx.Transactions) *block.Proposal {
	key := env.proposerKey(env.engine.height, round)
	require.NotNil(t, key)
	addr := kaon.Address(crypto.PubkeyToAddress(key.PublicKey))

	best := env.repo.BestBlockSummary()
	pk := packer.New(env.repo, env.stater, addr, addr)
	flow, err := pk.Schedule(best, round, best.Header.Timestamp()+10)
	require.NoError(t, err)
	for _, trx := range txs {
		require.NoError(t, flow.Adopt(trx))
	}
	blk, _, _, err := flow.Pack(key, env.repo.BestQC())
	require.NoError(t, err)

	proposal := block.NewProposal(blk, 0, false)
	sig, err := crypto.Sign(proposal.SigningHash().Bytes(), key)
	require.NoError(t, err)
	return proposal.WithSignature(sig)
}

func (env *engineEnv) castPrevotes(t *testing.T, round uint32, id kaon.Bytes32, keys []*ecdsa.PrivateKey) {
	for _, key := range keys {
		require.NoError(t, env.engine.handleVote(
			signedVote(t, key, block.VoteTypePrevote, env.engine.height, round, id)))
	}
}

func (env *engineEnv) castPrecommits(t *testing.T, round uint32, id kaon.Bytes32, keys []*ecdsa.PrivateKey) {
	for _, key := range keys {
		require.NoError(t, env.engine.handleVote(
			signedVote(t, key, block.VoteTypePrecommit, env.engine.height, round, id)))
	}
}

func TestSoloValidatorCommits(t *testing.T) {
	env := newEngineEnv(t, 1)

	// one validator: its own votes are quorum, the height commits in a
	// single synchronous pass
	require.NoError(t, env.engine.enterNewRound(1, 0))

	assert.Equal(t, uint64(2), env.engine.height)
	assert.Equal(t, stepNewRound, env.engine.step)
	best := env.repo.BestBlockSummary()
	assert.Equal(t, uint64(1), best.Header.Number())
	require.NotEmpty(t, env.comm.proposals)
	assert.Equal(t, best.Header.ID(), env.comm.proposals[0].Block().Header().ID())
	require.NotNil(t, env.repo.BestQC())
	assert.Equal(t, best.Header.ID(), env.repo.BestQC().BlockID())
}

func TestSoloValidatorCommitsTransactions(t *testing.T) {
	env := newEngineEnv(t, 1)

	to := kaon.BytesToAddress([]byte("recipient"))
	trx := tx.MustSign(tx.NewBuilder(testChainID).
		To(&to).
		Value(big.NewInt(50)).
		Gas(kaon.TxGas).
		GasPrice(big.NewInt(1)).
		Build(), env.sender)
	require.NoError(t, env.pool.Add(trx))
	require.NoError(t, env.pool.Wash())

	require.NoError(t, env.engine.enterNewRound(1, 0))

	best := env.repo.BestBlockSummary()
	require.Equal(t, uint64(1), best.Header.Number())
	require.Len(t, best.Txs, 1)
	assert.Equal(t, trx.Hash(), best.Txs[0])

	st := env.stater.NewState(best.Header.StateRoot())
	balance, err := st.GetBalance(to)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), balance)
}

func TestProposalGathersQuorumAndCommits(t *testing.T) {
	env := newEngineEnv(t, 3)

	require.NoError(t, env.engine.enterNewRound(1, 0))
	if env.engine.proposal == nil {
		p := env.buildProposal(t, 0, nil)
		require.NoError(t, env.engine.handleProposal(p))
	}
	require.NotNil(t, env.engine.proposalBlock)
	id := env.engine.proposalBlock.Header().ID()

	// the engine prevoted the proposal already
	prevote := env.comm.lastVote()
	require.NotNil(t, prevote)
	assert.Equal(t, block.VoteTypePrevote, prevote.Type())
	assert.Equal(t, id, prevote.BlockID())

	env.castPrevotes(t, 0, id, env.keys[1:])
	assert.True(t, env.engine.locked)
	assert.Equal(t, uint32(0), env.engine.lockedRound)
	precommit := env.comm.lastVote()
	assert.Equal(t, block.VoteTypePrecommit, precommit.Type())
	assert.Equal(t, id, precommit.BlockID())

	env.castPrecommits(t, 0, id, env.keys[1:])
	assert.Equal(t, uint64(2), env.engine.height)
	assert.Equal(t, id, env.repo.BestBlockSummary().Header.ID())

	// the persisted QC carries quorum weight
	signers, err := env.repo.BestQC().Signers()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, uint64(len(signers)), env.valSet.QuorumWeight())
}

func TestBadStateRootDrawsNilPrevote(t *testing.T) {
	env := newFollowerEnv(t, 3)

	require.NoError(t, env.engine.enterNewRound(1, 0))

	good := env.buildProposal(t, 0, nil)
	header := good.Block().Header()
	key := env.proposerKey(1, 0)

	bad := new(block.Builder).
		ChainID(header.ChainID()).
		ParentID(header.ParentID()).
		Number(header.Number()).
		Round(header.Round()).
		Timestamp(header.Timestamp()).
		GasLimit(header.GasLimit()).
		Beneficiary(header.Beneficiary()).
		StateRoot(kaon.Blake2b([]byte("forged"))).
		ReceiptsRoot(header.ReceiptsRoot()).
		Build()
	sig, err := crypto.Sign(bad.Header().SigningHash().Bytes(), key)
	require.NoError(t, err)
	bad = bad.WithSignature(sig)

	proposal := block.NewProposal(bad, 0, false)
	psig, err := crypto.Sign(proposal.SigningHash().Bytes(), key)
	require.NoError(t, err)
	require.NoError(t, env.engine.handleProposal(proposal.WithSignature(psig)))

	vote := env.comm.lastVote()
	require.NotNil(t, vote)
	assert.Equal(t, block.VoteTypePrevote, vote.Type())
	assert.True(t, vote.IsNil())
	assert.Nil(t, env.engine.proposalBlock)
}

func TestNilPrevoteQuorumAdvancesRound(t *testing.T) {
	env := newFollowerEnv(t, 3)

	require.NoError(t, env.engine.enterNewRound(1, 0))
	// no proposal arrives: the timeout forces a nil prevote
	require.NoError(t, env.engine.handleTimeout(timeoutInfo{Height: 1, Round: 0, Step: stepPropose}))

	env.castPrevotes(t, 0, kaon.Bytes32{}, env.keys[1:])
	env.castPrecommits(t, 0, kaon.Bytes32{}, env.keys[1:])

	assert.Equal(t, uint64(1), env.engine.height)
	assert.Equal(t, uint32(1), env.engine.round)
	assert.Equal(t, uint64(0), env.repo.BestBlockSummary().Header.Number())
}

func TestLockedEnginePrevotesItsLock(t *testing.T) {
	env := newEngineEnv(t, 3)

	require.NoError(t, env.engine.enterNewRound(1, 0))
	if env.engine.proposal == nil {
		require.NoError(t, env.engine.handleProposal(env.buildProposal(t, 0, nil)))
	}
	require.NotNil(t, env.engine.proposalBlock)
	id := env.engine.proposalBlock.Header().ID()

	// prevote quorum locks the engine on the proposal
	env.castPrevotes(t, 0, id, env.keys[1:])
	require.True(t, env.engine.locked)

	// precommits never reach quorum, the round times out
	require.NoError(t, env.engine.handleVote(
		signedVote(t, env.keys[1], block.VoteTypePrecommit, 1, 0, kaon.Bytes32{})))
	require.NoError(t, env.engine.handleVote(
		signedVote(t, env.keys[2], block.VoteTypePrecommit, 1, 0, id)))
	require.NoError(t, env.engine.handleTimeout(timeoutInfo{Height: 1, Round: 0, Step: stepPrecommitWait}))
	require.Equal(t, uint32(1), env.engine.round)

	// in the new round, with no proposal, the lock still binds the prevote
	require.NoError(t, env.engine.handleTimeout(timeoutInfo{Height: 1, Round: 1, Step: stepPropose}))
	vote := env.comm.lastVote()
	require.NotNil(t, vote)
	assert.Equal(t, block.VoteTypePrevote, vote.Type())
	assert.Equal(t, uint32(1), vote.Round())
	assert.Equal(t, id, vote.BlockID())
}

func TestProposalFromWrongProposerIgnored(t *testing.T) {
	env := newFollowerEnv(t, 3)

	require.NoError(t, env.engine.enterNewRound(1, 0))

	good := env.buildProposal(t, 0, nil)
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	forged := block.NewProposal(good.Block(), 0, false)
	sig, err := crypto.Sign(forged.SigningHash().Bytes(), stranger)
	require.NoError(t, err)

	require.NoError(t, env.engine.handleProposal(forged.WithSignature(sig)))
	assert.Nil(t, env.engine.proposal)
	assert.Empty(t, env.comm.votes)
}
