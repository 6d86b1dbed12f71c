// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package crosschain

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/validator"
	"github.com/kaonchain/kaon/vm"
)

// CheckpointVerifierAddress is the reserved address of the checkpoint
// proof precompile, next to the chain-native hash precompile.
var CheckpointVerifierAddress = kaon.BytesToAddress([]byte{0x01, 0x01})

const (
	gasCheckpointBase   uint64 = 3000
	gasCheckpointPerSig uint64 = 3000 // one signature recovery each
)

// checkpointContract verifies a foreign checkpoint proof: an
// RLP-encoded quorum certificate checked against this chain's id and
// validator set. Output is one 32-byte word, 1 when a weighted quorum
// signed, 0 otherwise. Malformed proofs yield 0 rather than an error
// so contracts can branch on the result.
type checkpointContract struct {
	chainID uint64
	valSet  *validator.Set
}

// NewCheckpointVerifier creates the checkpoint proof precompile for
// injection into the execution runtime.
func NewCheckpointVerifier(chainID uint64, valSet *validator.Set) vm.PrecompiledContract {
	return &checkpointContract{chainID, valSet}
}

func (c *checkpointContract) RequiredGas(input []byte) uint64 {
	var qc block.QuorumCert
	if err := rlp.DecodeBytes(input, &qc); err != nil {
		return gasCheckpointBase
	}
	return gasCheckpointBase + uint64(len(qc.Signatures()))*gasCheckpointPerSig
}

func (c *checkpointContract) Run(input []byte) ([]byte, error) {
	var out [32]byte
	if c.verify(input) {
		out[31] = 1
	}
	return out[:], nil
}

func (c *checkpointContract) verify(input []byte) bool {
	var qc block.QuorumCert
	if err := rlp.DecodeBytes(input, &qc); err != nil {
		return false
	}
	if qc.ChainID() != c.chainID {
		return false
	}
	// recovery rejects duplicated signers
	signers, err := qc.Signers()
	if err != nil {
		return false
	}

	var weight uint64
	for _, signer := range signers {
		weight += c.valSet.WeightOf(signer)
	}
	return weight >= c.valSet.QuorumWeight()
}
