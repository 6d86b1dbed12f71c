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

// QuorumCert certifies that a supermajority of validators precommitted a
// block id at (height, round). It is carried by the child block to justify
// its parent, and stored alongside the committed block.
type QuorumCert struct {
	body qcBody

	cache struct {
		signers atomic.Value
	}
}

type qcBody struct {
	ChainID    uint64
	Height     uint64
	Round      uint32
	BlockID    kaon.Bytes32
	Signatures [][]byte
}

// NewQuorumCert aggregates precommit votes into a quorum certificate.
// All votes must target the same non-nil block id at the same height and
// round. The caller is responsible for checking that the votes actually
// reach quorum weight.
func NewQuorumCert(votes []*Vote) (*QuorumCert, error) {
	if len(votes) == 0 {
		return nil, errors.New("empty vote set")
	}
	first := votes[0]
	if first.Type() != VoteTypePrecommit {
		return nil, errors.New("quorum cert requires precommit votes")
	}
	if first.IsNil() {
		return nil, errors.New("cannot certify a nil vote")
	}

	sigs := make([][]byte, 0, len(votes))
	for _, v := range votes {
		if v.Type() != VoteTypePrecommit ||
			v.ChainID() != first.ChainID() ||
			v.Height() != first.Height() ||
			v.Round() != first.Round() ||
			v.BlockID() != first.BlockID() {
			return nil, errors.New("mismatched vote in set")
		}
		sigs = append(sigs, v.Signature())
	}

	return &QuorumCert{body: qcBody{
		ChainID:    first.ChainID(),
		Height:     first.Height(),
		Round:      first.Round(),
		BlockID:    first.BlockID(),
		Signatures: sigs,
	}}, nil
}

// ChainID returns the id of the chain the certificate applies to.
func (qc *QuorumCert) ChainID() uint64 { return qc.body.ChainID }

// Height returns the certified block height.
func (qc *QuorumCert) Height() uint64 { return qc.body.Height }

// Round returns the round the precommits were cast in.
func (qc *QuorumCert) Round() uint32 { return qc.body.Round }

// BlockID returns the certified block id.
func (qc *QuorumCert) BlockID() kaon.Bytes32 { return qc.body.BlockID }

// Signatures returns the aggregated precommit signatures.
func (qc *QuorumCert) Signatures() [][]byte {
	sigs := make([][]byte, len(qc.body.Signatures))
	for i, sig := range qc.body.Signatures {
		sigs[i] = append([]byte(nil), sig...)
	}
	return sigs
}

// Signers recovers the addresses of all validators whose precommits are
// aggregated in the certificate. Duplicated signers are rejected.
func (qc *QuorumCert) Signers() ([]kaon.Address, error) {
	if cached := qc.cache.signers.Load(); cached != nil {
		return cached.([]kaon.Address), nil
	}

	hash := VoteSigningHash(qc.body.ChainID, VoteTypePrecommit, qc.body.Height, qc.body.Round, qc.body.BlockID)

	signers := make([]kaon.Address, 0, len(qc.body.Signatures))
	seen := make(map[kaon.Address]bool, len(qc.body.Signatures))
	for _, sig := range qc.body.Signatures {
		if len(sig) != 65 {
			return nil, errors.Errorf("invalid signature length %d", len(sig))
		}
		pub, err := crypto.SigToPub(hash.Bytes(), sig)
		if err != nil {
			return nil, err
		}
		signer := kaon.Address(crypto.PubkeyToAddress(*pub))
		if seen[signer] {
			return nil, errors.Errorf("duplicate signer %v", signer)
		}
		seen[signer] = true
		signers = append(signers, signer)
	}
	qc.cache.signers.Store(signers)
	return signers, nil
}

// EncodeRLP implements rlp.Encoder.
func (qc *QuorumCert) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &qc.body)
}

// DecodeRLP implements rlp.Decoder.
func (qc *QuorumCert) DecodeRLP(s *rlp.Stream) error {
	var body qcBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*qc = QuorumCert{body: body}
	return nil
}

func (qc *QuorumCert) String() string {
	return fmt.Sprintf("QC(%v/%v %v, %d sigs)", qc.body.Height, qc.body.Round, qc.body.BlockID.AbbrevString(), len(qc.body.Signatures))
}
