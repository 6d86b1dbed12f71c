// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package consensus implements the BFT round state machine that drives
// block finalization: propose, prevote, precommit, commit, with locking
// across rounds so conflicting blocks can never both gather quorum.
package consensus

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/co"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/packer"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/txpool"
	"github.com/kaonchain/kaon/validator"
	"github.com/kaonchain/kaon/vm"
)

var logger = log.WithContext("pkg", "consensus")

// Communicator broadcasts consensus messages to the other validators.
type Communicator interface {
	BroadcastProposal(*block.Proposal)
	BroadcastVote(*block.Vote)
}

// Config tunes the engine.
type Config struct {
	Timeouts TimeoutConfig
	// MaxBlockTxs caps the number of transactions pulled from the pool
	// per proposal.
	MaxBlockTxs int
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Timeouts:    DefaultTimeoutConfig(),
		MaxBlockTxs: 200,
	}
}

// Engine is the per-node consensus state machine. All round state is
// confined to the single event-loop goroutine; inbound messages arrive
// through buffered channels.
type Engine struct {
	repo     *chain.Repository
	stater   *state.Stater
	pool     *txpool.TxPool
	sched    *validator.Schedule
	valSet   *validator.Set // active at height, refreshed on height change
	privKey  *ecdsa.PrivateKey
	addr     kaon.Address
	comm     Communicator
	config   Config
	vmConfig vm.Config
	packer   *packer.Packer

	// round state, event-loop confined
	height        uint64
	round         uint32
	step          step
	proposal      *block.Proposal
	proposalBlock *block.Block
	locked        bool
	lockedRound   uint32
	lockedBlock   *block.Block
	hasValid      bool
	validRound    uint32
	validBlock    *block.Block
	votes         *heightVoteSet
	executed      map[kaon.Bytes32]*executionResult
	heightStart   time.Time

	ticker     *timeoutTicker
	proposalCh chan *block.Proposal
	voteCh     chan *block.Vote
	stopCh     chan struct{}
	doneCh     chan struct{}
	goes       co.Goes
	fatalErr   error
}

// NewEngine creates an engine for the given validator key. The local
// validator must be a member of the active set to vote; a non-member
// engine still follows the protocol as an observer.
func NewEngine(
	repo *chain.Repository,
	stater *state.Stater,
	pool *txpool.TxPool,
	sched *validator.Schedule,
	privKey *ecdsa.PrivateKey,
	comm Communicator,
	config Config,
) *Engine {
	addr := kaon.Address(crypto.PubkeyToAddress(privKey.PublicKey))
	return &Engine{
		repo:       repo,
		stater:     stater,
		pool:       pool,
		sched:      sched,
		privKey:    privKey,
		addr:       addr,
		comm:       comm,
		config:     config,
		packer:     packer.New(repo, stater, addr, addr),
		executed:   make(map[kaon.Bytes32]*executionResult),
		proposalCh: make(chan *block.Proposal, 16),
		voteCh:     make(chan *block.Vote, 1024),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// SetVMConfig applies the VM config used for proposal replay and packing.
func (e *Engine) SetVMConfig(config vm.Config) {
	e.vmConfig = config
	e.packer.SetVMConfig(config)
}

// Start begins the event loop at the height above the current best block.
func (e *Engine) Start() {
	best := e.repo.BestBlockSummary()
	e.height = best.Header.Number() + 1
	// the first epoch starts at 1, so Active cannot fail for e.height >= 1
	e.valSet, _ = e.sched.Active(e.height)
	e.votes = newHeightVoteSet(e.repo.ChainID(), e.height, e.valSet)
	e.heightStart = time.Now()
	e.ticker = newTimeoutTicker(e.config.Timeouts)
	e.goes.Go(e.loop)
}

// Stop terminates the event loop. The in-flight round parks safely: a
// commit in progress finishes before the loop exits.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.goes.Wait()
	e.ticker.Stop()
}

// Done is closed when the loop exits, regularly or fatally.
func (e *Engine) Done() <-chan struct{} {
	return e.doneCh
}

// Err reports the fatal error that stopped the loop, if any.
func (e *Engine) Err() error {
	select {
	case <-e.doneCh:
		return e.fatalErr
	default:
		return nil
	}
}

// AddProposal queues an inbound proposal. Drops when saturated; the
// round timeout covers the loss.
func (e *Engine) AddProposal(p *block.Proposal) {
	select {
	case e.proposalCh <- p:
	default:
	}
}

// AddVote queues an inbound vote.
func (e *Engine) AddVote(v *block.Vote) {
	select {
	case e.voteCh <- v:
	default:
	}
}

func (e *Engine) loop() {
	defer close(e.doneCh)

	if err := e.enterNewRound(e.height, 0); err != nil {
		e.fatalErr = err
		logger.Error("fatal: starting round", "err", err)
		return
	}

	for {
		select {
		case <-e.stopCh:
			return
		case p := <-e.proposalCh:
			if err := e.handleProposal(p); err != nil {
				e.fatalErr = err
				logger.Error("fatal: proposal handling", "err", err)
				return
			}
		case v := <-e.voteCh:
			if err := e.handleVote(v); err != nil {
				e.fatalErr = err
				logger.Error("fatal: vote handling", "err", err)
				return
			}
		case ti := <-e.ticker.C():
			if err := e.handleTimeout(ti); err != nil {
				e.fatalErr = err
				logger.Error("fatal: timeout handling", "err", err)
				return
			}
		}
	}
}

func (e *Engine) enterNewRound(height uint64, round uint32) error {
	if e.height != height || (round > 0 && round < e.round) {
		return nil
	}
	e.round = round
	e.step = stepPropose
	e.proposal = nil
	e.proposalBlock = nil
	metricRoundGauge().Set(int64(round))
	logger.Debug("entering round", "height", height, "round", round)

	e.ticker.Schedule(timeoutInfo{Height: height, Round: round, Step: stepPropose})

	if e.valSet.Proposer(height, round).Address == e.addr {
		return e.createProposal()
	}
	return nil
}

// createProposal assembles (or re-proposes) a block and broadcasts it,
// then treats it as the round's proposal locally.
func (e *Engine) createProposal() error {
	var (
		blk      *block.Block
		polRound uint32
		hasPOL   bool
	)
	switch {
	case e.hasValid:
		blk, polRound, hasPOL = e.validBlock, e.validRound, true
	case e.locked:
		blk, polRound, hasPOL = e.lockedBlock, e.lockedRound, true
	default:
		packed, err := e.packBlock()
		if err != nil {
			logger.Warn("packing proposal failed", "err", err)
			return nil
		}
		blk = packed
	}

	proposal := block.NewProposal(blk, polRound, hasPOL)
	sig, err := crypto.Sign(proposal.SigningHash().Bytes(), e.privKey)
	if err != nil {
		logger.Warn("signing proposal failed", "err", err)
		return nil
	}
	proposal = proposal.WithSignature(sig)

	e.proposal = proposal
	e.proposalBlock = blk
	e.comm.BroadcastProposal(proposal)
	logger.Info("proposed block", "height", e.height, "round", e.round, "id", blk.Header().ID())

	return e.enterPrevote(e.height, e.round)
}

// packBlock pulls executables from the pool and seals a fresh block on
// the current best.
func (e *Engine) packBlock() (*block.Block, error) {
	best := e.repo.BestBlockSummary()
	now := uint64(time.Now().Unix())
	if now <= best.Header.Timestamp() {
		now = best.Header.Timestamp() + 1
	}

	flow, err := e.packer.Schedule(best, e.round, now)
	if err != nil {
		return nil, err
	}
	for _, trx := range e.pool.Executables(e.config.MaxBlockTxs, best.Header.GasLimit()) {
		if err := flow.Adopt(trx); err != nil {
			if packer.IsGasLimitReached(err) {
				break
			}
			logger.Debug("tx not adopted", "hash", trx.Hash(), "err", err)
		}
	}
	blk, stage, receipts, err := flow.Pack(e.privKey, e.repo.BestQC())
	if err != nil {
		return nil, err
	}
	e.executed[blk.Header().ID()] = &executionResult{stage: stage, receipts: receipts}
	return blk, nil
}

func (e *Engine) handleProposal(p *block.Proposal) error {
	if p.Height() != e.height {
		return nil
	}
	if e.proposal != nil {
		return nil
	}

	signer, err := p.Signer()
	if err != nil {
		logger.Debug("proposal dropped", "err", err)
		return nil
	}
	if expected := e.valSet.Proposer(e.height, e.round).Address; signer != expected {
		logger.Debug("proposal dropped", "err", "not from round proposer", "signer", signer)
		return nil
	}

	// a block minted in an earlier round may only be re-proposed with a
	// proof-of-lock the local prevote record confirms
	if p.Round() != e.round {
		polRound, hasPOL := p.POLRound()
		if p.Round() > e.round || !hasPOL {
			return nil
		}
		if id, ok := e.votes.Prevotes(polRound).Quorum(); !ok || id != p.Block().Header().ID() {
			logger.Debug("proposal dropped", "err", "unverifiable proof-of-lock")
			return nil
		}
	}

	e.proposal = p
	best := e.repo.BestBlockSummary()
	result, err := e.validateBlock(p.Block(), best)
	if err != nil {
		if !IsCritical(err) {
			// disagreement: keep the proposal slot filled, prevote nil
			logger.Warn("invalid proposal", "height", e.height, "round", e.round, "err", err)
			return e.enterPrevote(e.height, e.round)
		}
		return err
	}

	e.proposalBlock = p.Block()
	e.executed[p.Block().Header().ID()] = result
	return e.enterPrevote(e.height, e.round)
}

func (e *Engine) enterPrevote(height uint64, round uint32) error {
	if e.height != height || e.round != round || e.step >= stepPrevote {
		return nil
	}
	e.step = stepPrevote

	var voteID kaon.Bytes32 // zero = nil vote
	switch {
	case !e.locked:
		if e.proposalBlock != nil {
			voteID = e.proposalBlock.Header().ID()
		}
	case e.proposalBlock != nil && e.proposalBlock.Header().ID() == e.lockedBlock.Header().ID():
		voteID = e.lockedBlock.Header().ID()
	case e.proposalBlock != nil && e.unlockProven():
		// the network demonstrably moved past our lock
		e.locked = false
		e.lockedBlock = nil
		voteID = e.proposalBlock.Header().ID()
	default:
		voteID = e.lockedBlock.Header().ID()
	}

	return e.signAndSendVote(block.VoteTypePrevote, voteID)
}

// unlockProven reports whether the current proposal carries a
// proof-of-lock round later than our lock, confirmed by the local
// prevote record.
func (e *Engine) unlockProven() bool {
	polRound, hasPOL := e.proposal.POLRound()
	if !hasPOL || polRound <= e.lockedRound {
		return false
	}
	id, ok := e.votes.Prevotes(polRound).Quorum()
	return ok && id == e.proposalBlock.Header().ID()
}

func (e *Engine) enterPrecommit(height uint64, round uint32) error {
	if e.height != height || e.round != round || e.step >= stepPrecommit {
		return nil
	}
	e.step = stepPrecommit

	id, ok := e.votes.Prevotes(round).Quorum()
	if !ok {
		return e.signAndSendVote(block.VoteTypePrecommit, kaon.Bytes32{})
	}
	if id.IsZero() {
		// quorum agreed on nothing this round
		e.locked = false
		e.lockedBlock = nil
		return e.signAndSendVote(block.VoteTypePrecommit, kaon.Bytes32{})
	}

	if e.proposalBlock != nil && e.proposalBlock.Header().ID() == id {
		e.locked = true
		e.lockedRound = round
		e.lockedBlock = e.proposalBlock
		e.hasValid = true
		e.validRound = round
		e.validBlock = e.proposalBlock
		return e.signAndSendVote(block.VoteTypePrecommit, id)
	}
	if e.locked && e.lockedBlock.Header().ID() == id {
		e.lockedRound = round
		return e.signAndSendVote(block.VoteTypePrecommit, id)
	}

	// quorum on a block we do not hold
	return e.signAndSendVote(block.VoteTypePrecommit, kaon.Bytes32{})
}

func (e *Engine) handleVote(v *block.Vote) error {
	if v.Height() != e.height {
		return nil
	}
	added, err := e.votes.Add(v)
	if err != nil {
		if !IsCritical(err) {
			logger.Debug("vote dropped", "err", err)
			return nil
		}
		return err
	}
	if !added {
		return nil
	}

	switch v.Type() {
	case block.VoteTypePrevote:
		return e.onPrevoteTallied(v.Round())
	case block.VoteTypePrecommit:
		return e.onPrecommitTallied(v.Round())
	}
	return nil
}

func (e *Engine) onPrevoteTallied(round uint32) error {
	prevotes := e.votes.Prevotes(round)
	if id, ok := prevotes.Quorum(); ok {
		if !id.IsZero() && e.proposalBlock != nil && e.proposalBlock.Header().ID() == id {
			e.hasValid = true
			e.validRound = round
			e.validBlock = e.proposalBlock
		}
		if round == e.round {
			switch {
			case e.step == stepPrevote || e.step == stepPrevoteWait:
				return e.enterPrecommit(e.height, round)
			case id.IsZero() && e.step == stepPrecommitWait:
				// nothing to wait for anymore
				return e.enterNewRound(e.height, e.round+1)
			}
		}
		return nil
	}
	if round == e.round && e.step == stepPrevote && prevotes.HasQuorumAny() {
		e.step = stepPrevoteWait
		e.ticker.Schedule(timeoutInfo{Height: e.height, Round: round, Step: stepPrevoteWait})
	}
	return nil
}

func (e *Engine) onPrecommitTallied(round uint32) error {
	precommits := e.votes.Precommits(round)
	if id, ok := precommits.Quorum(); ok {
		if !id.IsZero() {
			return e.commit(round, id)
		}
		if round == e.round && e.step >= stepPrecommit {
			return e.enterNewRound(e.height, e.round+1)
		}
		return nil
	}
	if round == e.round && e.step == stepPrecommit && precommits.HasQuorumAny() {
		e.step = stepPrecommitWait
		e.ticker.Schedule(timeoutInfo{Height: e.height, Round: round, Step: stepPrecommitWait})
	}
	return nil
}

func (e *Engine) handleTimeout(ti timeoutInfo) error {
	if ti.Height != e.height || ti.Round < e.round {
		return nil
	}
	switch ti.Step {
	case stepNewRound:
		if e.step == stepNewRound {
			return e.enterNewRound(e.height, 0)
		}
	case stepPropose:
		if e.step == stepPropose {
			logger.Debug("proposal timed out", "height", e.height, "round", e.round)
			return e.enterPrevote(e.height, e.round)
		}
	case stepPrevoteWait:
		if e.step == stepPrevoteWait {
			return e.enterPrecommit(e.height, e.round)
		}
	case stepPrecommitWait:
		if e.step == stepPrecommitWait {
			return e.enterNewRound(e.height, e.round+1)
		}
	}
	return nil
}

// commit persists the block finalized by the precommit quorum at the
// given round, then moves to the next height. A storage failure here is
// fatal: consistency cannot be guaranteed past a torn commit.
func (e *Engine) commit(round uint32, id kaon.Bytes32) error {
	e.step = stepCommit

	blk := e.blockByID(id)
	if blk == nil {
		// finalized a block we never received; stay parked until the
		// chain syncs it from peers
		logger.Warn("quorum on unknown block", "height", e.height, "id", id)
		return nil
	}

	result, ok := e.executed[id]
	if !ok {
		best := e.repo.BestBlockSummary()
		replayed, err := e.replay(blk, best)
		if err != nil {
			if !IsCritical(err) {
				// quorum finalized a block our replay rejects: the
				// state trie or executor diverged, unsafe to continue
				return errors.Errorf("finalized block fails local replay: %v", err)
			}
			return err
		}
		result = replayed
	}

	qc, err := block.NewQuorumCert(e.votes.Precommits(round).VotesFor(id))
	if err != nil {
		return errors.Wrap(err, "assemble quorum cert")
	}
	if _, err := result.stage.Commit(); err != nil {
		return errors.Wrap(err, "commit state")
	}
	if err := e.repo.AddBlock(blk, result.receipts, qc); err != nil {
		return errors.Wrap(err, "commit block")
	}
	metricCommitCount().Add(1)
	metricCommitDuration().Observe(time.Since(e.heightStart).Milliseconds())
	logger.Info("block committed", "height", e.height, "round", round,
		"id", id, "txs", len(blk.Transactions()))

	// next height
	e.height++
	e.round = 0
	e.step = stepNewRound
	e.proposal = nil
	e.proposalBlock = nil
	e.locked = false
	e.lockedBlock = nil
	e.hasValid = false
	e.validBlock = nil
	e.valSet, _ = e.sched.Active(e.height)
	e.votes = newHeightVoteSet(e.repo.ChainID(), e.height, e.valSet)
	e.executed = make(map[kaon.Bytes32]*executionResult)
	e.heightStart = time.Now()

	// pause before the next height instead of entering it inline, which
	// would otherwise recurse height after height on a solo validator
	e.ticker.Schedule(timeoutInfo{Height: e.height, Round: 0, Step: stepNewRound})
	return nil
}

func (e *Engine) blockByID(id kaon.Bytes32) *block.Block {
	if e.proposalBlock != nil && e.proposalBlock.Header().ID() == id {
		return e.proposalBlock
	}
	if e.locked && e.lockedBlock.Header().ID() == id {
		return e.lockedBlock
	}
	if e.hasValid && e.validBlock.Header().ID() == id {
		return e.validBlock
	}
	return nil
}

// signAndSendVote signs a vote for the current (height, round), feeds it
// to the local tally and broadcasts it. Non-members observe silently.
func (e *Engine) signAndSendVote(voteType block.VoteType, id kaon.Bytes32) error {
	if !e.valSet.Contains(e.addr) {
		return nil
	}
	vote := block.NewVote(e.repo.ChainID(), voteType, e.height, e.round, id)
	sig, err := crypto.Sign(vote.SigningHash().Bytes(), e.privKey)
	if err != nil {
		logger.Warn("signing vote failed", "err", err)
		return nil
	}
	vote = vote.WithSignature(sig)

	round := e.round
	if added, err := e.votes.Add(vote); err != nil || !added {
		return nil
	}
	e.comm.BroadcastVote(vote)

	// our own vote may complete a quorum
	switch voteType {
	case block.VoteTypePrevote:
		return e.onPrevoteTallied(round)
	case block.VoteTypePrecommit:
		return e.onPrecommitTallied(round)
	}
	return nil
}
