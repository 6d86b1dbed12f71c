// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

func newTestBlock(t *testing.T, qc *QuorumCert) (*Block, *ecdsa.PrivateKey) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	trx := tx.MustSign(
		tx.NewBuilder(1).GasPrice(big.NewInt(1)).Gas(21000).Value(big.NewInt(5)).Build(),
		priv,
	)

	b := new(Builder).
		ChainID(1).
		ParentID(kaon.Blake2b([]byte("parent"))).
		Number(10).
		Round(2).
		Timestamp(1700000000).
		GasLimit(kaon.InitialGasLimit).
		GasUsed(21000).
		Beneficiary(kaon.MustParseAddress("0x7567d83b7b8d80addcb281a71d54fc7b3364ffed")).
		StateRoot(kaon.Blake2b([]byte("state"))).
		ReceiptsRoot(kaon.Blake2b([]byte("receipts"))).
		ParentQC(qc).
		Transaction(trx).
		Build()

	sig, err := crypto.Sign(b.Header().SigningHash().Bytes(), priv)
	require.NoError(t, err)
	return b.WithSignature(sig), priv
}

func newTestQC(t *testing.T, height uint64, round uint32, blockID kaon.Bytes32, keys []*ecdsa.PrivateKey) *QuorumCert {
	var votes []*Vote
	for _, key := range keys {
		v := NewVote(1, VoteTypePrecommit, height, round, blockID)
		sig, err := crypto.Sign(v.SigningHash().Bytes(), key)
		require.NoError(t, err)
		votes = append(votes, v.WithSignature(sig))
	}
	qc, err := NewQuorumCert(votes)
	require.NoError(t, err)
	return qc
}

func TestBlockFields(t *testing.T) {
	b, priv := newTestBlock(t, nil)
	h := b.Header()

	assert.Equal(t, uint64(1), h.ChainID())
	assert.Equal(t, uint64(10), h.Number())
	assert.Equal(t, uint32(2), h.Round())
	assert.Equal(t, uint64(1700000000), h.Timestamp())
	assert.Equal(t, kaon.InitialGasLimit, h.GasLimit())
	assert.Equal(t, b.Transactions().RootHash(), h.TxsRoot())

	signer, err := h.Signer()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(priv.PublicKey)), signer)

	// id excludes the signature
	assert.Equal(t, h.SigningHash(), h.ID())
}

func TestBlockEncoding(t *testing.T) {
	keys := make([]*ecdsa.PrivateKey, 3)
	for i := range keys {
		var err error
		keys[i], err = crypto.GenerateKey()
		require.NoError(t, err)
	}
	qc := newTestQC(t, 9, 1, kaon.Blake2b([]byte("parent")), keys)

	b, _ := newTestBlock(t, qc)

	data, err := rlp.EncodeToBytes(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), b.Size())

	var decoded Block
	require.NoError(t, rlp.DecodeBytes(data, &decoded))

	assert.Equal(t, b.Header().ID(), decoded.Header().ID())
	assert.Equal(t, b.Header().TxsRoot(), decoded.Header().TxsRoot())
	require.NotNil(t, decoded.Header().ParentQC())
	assert.Equal(t, qc.BlockID(), decoded.Header().ParentQC().BlockID())
	require.Len(t, decoded.Transactions(), 1)
	assert.Equal(t, b.Transactions()[0].Hash(), decoded.Transactions()[0].Hash())
}

func TestVoteSignRecover(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := NewVote(1, VoteTypePrevote, 10, 0, kaon.Blake2b([]byte("block")))
	sig, err := crypto.Sign(v.SigningHash().Bytes(), priv)
	require.NoError(t, err)
	signed := v.WithSignature(sig)

	signer, err := signed.Signer()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(priv.PublicKey)), signer)
	assert.False(t, signed.IsNil())

	nilVote := NewVote(1, VoteTypePrecommit, 10, 0, kaon.Bytes32{})
	assert.True(t, nilVote.IsNil())

	// votes of different types have different signing hashes
	prevote := NewVote(1, VoteTypePrevote, 10, 0, kaon.Blake2b([]byte("block")))
	precommit := NewVote(1, VoteTypePrecommit, 10, 0, kaon.Blake2b([]byte("block")))
	assert.NotEqual(t, prevote.SigningHash(), precommit.SigningHash())
}

func TestQuorumCert(t *testing.T) {
	keys := make([]*ecdsa.PrivateKey, 4)
	for i := range keys {
		var err error
		keys[i], err = crypto.GenerateKey()
		require.NoError(t, err)
	}
	blockID := kaon.Blake2b([]byte("certified"))
	qc := newTestQC(t, 7, 3, blockID, keys)

	assert.Equal(t, uint64(7), qc.Height())
	assert.Equal(t, uint32(3), qc.Round())
	assert.Equal(t, blockID, qc.BlockID())

	signers, err := qc.Signers()
	require.NoError(t, err)
	require.Len(t, signers, 4)
	for i, key := range keys {
		assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(key.PublicKey)), signers[i])
	}

	// rlp roundtrip
	data, err := rlp.EncodeToBytes(qc)
	require.NoError(t, err)
	var decoded QuorumCert
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	decodedSigners, err := decoded.Signers()
	require.NoError(t, err)
	assert.Equal(t, signers, decodedSigners)
}

func TestQuorumCertRejectsMismatches(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	sign := func(v *Vote) *Vote {
		sig, err := crypto.Sign(v.SigningHash().Bytes(), priv)
		require.NoError(t, err)
		return v.WithSignature(sig)
	}

	blockID := kaon.Blake2b([]byte("x"))

	// prevotes cannot form a qc
	_, err = NewQuorumCert([]*Vote{sign(NewVote(1, VoteTypePrevote, 5, 0, blockID))})
	assert.Error(t, err)

	// nil votes cannot be certified
	_, err = NewQuorumCert([]*Vote{sign(NewVote(1, VoteTypePrecommit, 5, 0, kaon.Bytes32{}))})
	assert.Error(t, err)

	// mixed rounds are rejected
	_, err = NewQuorumCert([]*Vote{
		sign(NewVote(1, VoteTypePrecommit, 5, 0, blockID)),
		sign(NewVote(1, VoteTypePrecommit, 5, 1, blockID)),
	})
	assert.Error(t, err)
}

func TestProposalSignRecover(t *testing.T) {
	b, priv := newTestBlock(t, nil)

	p := NewProposal(b, 1, true)
	sig, err := crypto.Sign(p.SigningHash().Bytes(), priv)
	require.NoError(t, err)
	signed := p.WithSignature(sig)

	signer, err := signed.Signer()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(priv.PublicKey)), signer)

	polRound, hasPOL := signed.POLRound()
	assert.True(t, hasPOL)
	assert.Equal(t, uint32(1), polRound)

	// rlp roundtrip
	data, err := rlp.EncodeToBytes(signed)
	require.NoError(t, err)
	var decoded Proposal
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	assert.Equal(t, signed.SigningHash(), decoded.SigningHash())
	decodedSigner, err := decoded.Signer()
	require.NoError(t, err)
	assert.Equal(t, signer, decodedSigner)
}
