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

	"github.com/kaonchain/kaon/kaon"
)

// Header contains almost all information about a block, except the block
// body. It's immutable.
type Header struct {
	body headerBody

	cache struct {
		signingHash atomic.Value
		signer      atomic.Value
	}
}

// headerBody body of header
type headerBody struct {
	ChainID   uint64
	ParentID  kaon.Bytes32
	Number    uint64
	Round     uint32
	Timestamp uint64

	GasLimit    uint64
	GasUsed     uint64
	Beneficiary kaon.Address

	TxsRoot      kaon.Bytes32
	StateRoot    kaon.Bytes32
	ReceiptsRoot kaon.Bytes32

	// quorum certificate justifying the parent block; nil only for genesis.
	ParentQC *QuorumCert `rlp:"nil"`

	Signature []byte
}

// ChainID returns the id of the chain this block belongs to.
func (h *Header) ChainID() uint64 {
	return h.body.ChainID
}

// ParentID returns the id of the parent block.
func (h *Header) ParentID() kaon.Bytes32 {
	return h.body.ParentID
}

// Number returns the sequential number of this block.
func (h *Header) Number() uint64 {
	return h.body.Number
}

// Round returns the consensus round the block was proposed in.
func (h *Header) Round() uint32 {
	return h.body.Round
}

// Timestamp returns the timestamp of this block, in unix seconds.
func (h *Header) Timestamp() uint64 {
	return h.body.Timestamp
}

// GasLimit returns the gas limit of this block.
func (h *Header) GasLimit() uint64 {
	return h.body.GasLimit
}

// GasUsed returns gas used by txs.
func (h *Header) GasUsed() uint64 {
	return h.body.GasUsed
}

// Beneficiary returns the reward recipient.
func (h *Header) Beneficiary() kaon.Address {
	return h.body.Beneficiary
}

// TxsRoot returns the merkle root of txs contained in this block.
func (h *Header) TxsRoot() kaon.Bytes32 {
	return h.body.TxsRoot
}

// StateRoot returns the account state merkle root just after this block
// being applied.
func (h *Header) StateRoot() kaon.Bytes32 {
	return h.body.StateRoot
}

// ReceiptsRoot returns the merkle root of tx receipts.
func (h *Header) ReceiptsRoot() kaon.Bytes32 {
	return h.body.ReceiptsRoot
}

// ParentQC returns the quorum certificate justifying the parent block.
// It is nil only for the genesis block.
func (h *Header) ParentQC() *QuorumCert {
	return h.body.ParentQC
}

// ID computes the id of the block.
//
// The id is the hash of all header fields excluding the signature, so votes
// cast for a block id commit to its full content regardless of how the
// proposer signed it.
func (h *Header) ID() kaon.Bytes32 {
	return h.SigningHash()
}

// SigningHash computes the hash of all header fields excluding signature.
func (h *Header) SigningHash() (hash kaon.Bytes32) {
	if cached := h.cache.signingHash.Load(); cached != nil {
		return cached.(kaon.Bytes32)
	}
	defer func() { h.cache.signingHash.Store(hash) }()

	return kaon.Blake2bFn(func(w io.Writer) {
		err := rlp.Encode(w, []interface{}{
			h.body.ChainID,
			h.body.ParentID,
			h.body.Number,
			h.body.Round,
			h.body.Timestamp,

			h.body.GasLimit,
			h.body.GasUsed,
			h.body.Beneficiary,

			h.body.TxsRoot,
			h.body.StateRoot,
			h.body.ReceiptsRoot,

			h.body.ParentQC,
		})
		if err != nil {
			panic(err)
		}
	})
}

// Signature returns the proposer signature.
func (h *Header) Signature() []byte {
	return append([]byte(nil), h.body.Signature...)
}

// withSignature creates a new Header object with signature set.
func (h *Header) withSignature(sig []byte) *Header {
	cpy := Header{body: h.body}
	cpy.body.Signature = append([]byte(nil), sig...)
	return &cpy
}

// Signer extracts the proposer address from the signature.
func (h *Header) Signer() (signer kaon.Address, err error) {
	if h.body.Number == 0 {
		// special case for genesis block
		return kaon.Address{}, nil
	}

	if cached := h.cache.signer.Load(); cached != nil {
		return cached.(kaon.Address), nil
	}
	defer func() {
		if err == nil {
			h.cache.signer.Store(signer)
		}
	}()

	pub, err := crypto.SigToPub(h.SigningHash().Bytes(), h.body.Signature)
	if err != nil {
		return kaon.Address{}, err
	}

	signer = kaon.Address(crypto.PubkeyToAddress(*pub))
	return
}

// EncodeRLP implements rlp.Encoder.
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &h.body)
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	var body headerBody

	if err := s.Decode(&body); err != nil {
		return err
	}
	*h = Header{body: body}
	return nil
}

func (h *Header) String() string {
	signerStr := "N/A"
	if signer, err := h.Signer(); err == nil {
		signerStr = signer.String()
	}

	return fmt.Sprintf(`Header(%v):
	ChainID:        %v
	Number:         %v
	Round:          %v
	ParentID:       %v
	Timestamp:      %v
	Signer:         %v
	Beneficiary:    %v
	GasLimit:       %v
	GasUsed:        %v
	TxsRoot:        %v
	StateRoot:      %v
	ReceiptsRoot:   %v`, h.ID(), h.body.ChainID, h.body.Number, h.body.Round, h.body.ParentID, h.body.Timestamp,
		signerStr, h.body.Beneficiary, h.body.GasLimit, h.body.GasUsed, h.body.TxsRoot, h.body.StateRoot, h.body.ReceiptsRoot)
}
