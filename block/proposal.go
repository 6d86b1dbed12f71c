// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/kaon"
)

// Proposal is the consensus message carrying a proposed block for a round.
//
// When the proposer re-proposes a block it is locked on, the proposal also
// names the round whose prevote quorum justifies the lock (the POL round),
// letting other validators unlock safely. The proposal signature covers the
// POL fields, so they cannot be altered in transit.
type Proposal struct {
	body proposalBody

	cache struct {
		signingHash atomic.Value
		signer      atomic.Value
	}
}

type proposalBody struct {
	Block     *Block
	HasPOL    bool
	POLRound  uint32
	Signature []byte
}

// NewProposal creates an unsigned proposal for the given block.
// polRound is the round of the justifying prevote quorum; pass hasPOL=false
// when the block is proposed fresh.
func NewProposal(b *Block, polRound uint32, hasPOL bool) *Proposal {
	return &Proposal{body: proposalBody{
		Block:    b,
		HasPOL:   hasPOL,
		POLRound: polRound,
	}}
}

// Block returns the proposed block.
func (p *Proposal) Block() *Block {
	return p.body.Block
}

// Height returns the height of the proposed block.
func (p *Proposal) Height() uint64 {
	return p.body.Block.Header().Number()
}

// Round returns the round the block is proposed in.
func (p *Proposal) Round() uint32 {
	return p.body.Block.Header().Round()
}

// POLRound returns the proof-of-lock round and whether one is present.
func (p *Proposal) POLRound() (uint32, bool) {
	return p.body.POLRound, p.body.HasPOL
}

// Signature returns the proposal signature.
func (p *Proposal) Signature() []byte {
	return append([]byte(nil), p.body.Signature...)
}

// SigningHash computes the hash of the proposal content excluding signature.
func (p *Proposal) SigningHash() (hash kaon.Bytes32) {
	if cached := p.cache.signingHash.Load(); cached != nil {
		return cached.(kaon.Bytes32)
	}
	defer func() { p.cache.signingHash.Store(hash) }()

	header := p.body.Block.Header()
	return kaon.Blake2bFn(func(w io.Writer) {
		err := rlp.Encode(w, []interface{}{
			header.ChainID(),
			header.Number(),
			header.Round(),
			header.ID(),
			p.body.HasPOL,
			p.body.POLRound,
		})
		if err != nil {
			panic(err)
		}
	})
}

// WithSignature creates a new proposal with signature set.
func (p *Proposal) WithSignature(sig []byte) *Proposal {
	cpy := Proposal{body: p.body}
	cpy.body.Signature = append([]byte(nil), sig...)
	return &cpy
}

// Signer extracts the proposer address from the signature.
func (p *Proposal) Signer() (signer kaon.Address, err error) {
	if len(p.body.Signature) != 65 {
		return kaon.Address{}, errors.Errorf("invalid signature length %d", len(p.body.Signature))
	}

	if cached := p.cache.signer.Load(); cached != nil {
		return cached.(kaon.Address), nil
	}
	defer func() {
		if err == nil {
			p.cache.signer.Store(signer)
		}
	}()

	pub, err := crypto.SigToPub(p.SigningHash().Bytes(), p.body.Signature)
	if err != nil {
		return kaon.Address{}, err
	}
	signer = kaon.Address(crypto.PubkeyToAddress(*pub))
	return
}

// EncodeRLP implements rlp.Encoder.
func (p *Proposal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &p.body)
}

// DecodeRLP implements rlp.Decoder.
func (p *Proposal) DecodeRLP(s *rlp.Stream) error {
	var body proposalBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*p = Proposal{body: body}
	return nil
}

func (p *Proposal) String() string {
	pol := "none"
	if p.body.HasPOL {
		pol = fmt.Sprintf("%d", p.body.POLRound)
	}
	return fmt.Sprintf("Proposal(%v/%v %v, pol: %v)", p.Height(), p.Round(), p.body.Block.Header().ID().AbbrevString(), pol)
}
