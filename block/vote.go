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

// VoteType distinguishes the two voting steps of a round.
type VoteType uint8

const (
	// VoteTypePrevote is cast after validating a proposal.
	VoteTypePrevote VoteType = 1
	// VoteTypePrecommit is cast after observing a prevote quorum.
	VoteTypePrecommit VoteType = 2
)

func (vt VoteType) String() string {
	switch vt {
	case VoteTypePrevote:
		return "prevote"
	case VoteTypePrecommit:
		return "precommit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(vt))
	}
}

// IsValid returns whether vt is a known vote type.
func (vt VoteType) IsValid() bool {
	return vt == VoteTypePrevote || vt == VoteTypePrecommit
}

// Vote is a signed consensus vote for a block id at (height, round).
// A zero block id votes nil, i.e. against any proposal of the round.
// Vote is immutable.
type Vote struct {
	body voteBody

	cache struct {
		signingHash atomic.Value
		signer      atomic.Value
	}
}

type voteBody struct {
	ChainID   uint64
	Type      VoteType
	Height    uint64
	Round     uint32
	BlockID   kaon.Bytes32
	Signature []byte
}

// NewVote creates an unsigned vote.
func NewVote(chainID uint64, voteType VoteType, height uint64, round uint32, blockID kaon.Bytes32) *Vote {
	return &Vote{body: voteBody{
		ChainID: chainID,
		Type:    voteType,
		Height:  height,
		Round:   round,
		BlockID: blockID,
	}}
}

// ChainID returns the id of the chain the vote applies to.
func (v *Vote) ChainID() uint64 { return v.body.ChainID }

// Type returns the vote type.
func (v *Vote) Type() VoteType { return v.body.Type }

// Height returns the block height voted on.
func (v *Vote) Height() uint64 { return v.body.Height }

// Round returns the consensus round voted in.
func (v *Vote) Round() uint32 { return v.body.Round }

// BlockID returns the id of the block voted for, or zero for a nil vote.
func (v *Vote) BlockID() kaon.Bytes32 { return v.body.BlockID }

// IsNil returns whether the vote is a nil vote.
func (v *Vote) IsNil() bool { return v.body.BlockID.IsZero() }

// Signature returns the signature.
func (v *Vote) Signature() []byte {
	return append([]byte(nil), v.body.Signature...)
}

// SigningHash computes the hash of all vote fields excluding signature.
func (v *Vote) SigningHash() kaon.Bytes32 {
	if cached := v.cache.signingHash.Load(); cached != nil {
		return cached.(kaon.Bytes32)
	}
	hash := VoteSigningHash(v.body.ChainID, v.body.Type, v.body.Height, v.body.Round, v.body.BlockID)
	v.cache.signingHash.Store(hash)
	return hash
}

// WithSignature creates a new vote with signature set.
func (v *Vote) WithSignature(sig []byte) *Vote {
	cpy := Vote{body: v.body}
	cpy.body.Signature = append([]byte(nil), sig...)
	return &cpy
}

// Signer extracts the voter address from the signature.
func (v *Vote) Signer() (signer kaon.Address, err error) {
	if len(v.body.Signature) != 65 {
		return kaon.Address{}, errors.Errorf("invalid signature length %d", len(v.body.Signature))
	}

	if cached := v.cache.signer.Load(); cached != nil {
		return cached.(kaon.Address), nil
	}
	defer func() {
		if err == nil {
			v.cache.signer.Store(signer)
		}
	}()

	pub, err := crypto.SigToPub(v.SigningHash().Bytes(), v.body.Signature)
	if err != nil {
		return kaon.Address{}, err
	}
	signer = kaon.Address(crypto.PubkeyToAddress(*pub))
	return
}

// EncodeRLP implements rlp.Encoder.
func (v *Vote) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &v.body)
}

// DecodeRLP implements rlp.Decoder.
func (v *Vote) DecodeRLP(s *rlp.Stream) error {
	var body voteBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*v = Vote{body: body}
	return nil
}

func (v *Vote) String() string {
	target := "nil"
	if !v.IsNil() {
		target = v.body.BlockID.AbbrevString()
	}
	return fmt.Sprintf("Vote(%v %v/%v %v)", v.body.Type, v.body.Height, v.body.Round, target)
}

// VoteSigningHash computes the canonical signing hash of a vote. Quorum
// certificates verify aggregated signatures against this hash.
func VoteSigningHash(chainID uint64, voteType VoteType, height uint64, round uint32, blockID kaon.Bytes32) kaon.Bytes32 {
	return kaon.Blake2bFn(func(w io.Writer) {
		err := rlp.Encode(w, []interface{}{
			chainID,
			voteType,
			height,
			round,
			blockID,
		})
		if err != nil {
			panic(err)
		}
	})
}
