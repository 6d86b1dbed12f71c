// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"github.com/kaonchain/kaon/kaon"
)

// PrecompiledContract is a native contract bound to a fixed address.
type PrecompiledContract interface {
	// RequiredGas returns the gas to charge for the given input.
	RequiredGas(input []byte) uint64
	// Run executes the contract. A returned error consumes all gas of the
	// calling frame.
	Run(input []byte) ([]byte, error)
}

// Gas schedule of the builtin precompiles.
const (
	gasEcrecover      uint64 = 3000
	gasSha256Base     uint64 = 60
	gasSha256Word     uint64 = 12
	gasRipemd160Base  uint64 = 600
	gasRipemd160Word  uint64 = 120
	gasIdentityBase   uint64 = 15
	gasIdentityWord   uint64 = 3
	gasBlake2b256Base uint64 = 60
	gasBlake2b256Word uint64 = 12
)

var builtinPrecompiles = map[kaon.Address]PrecompiledContract{
	kaon.BytesToAddress([]byte{0x01}): ecrecoverContract{},
	kaon.BytesToAddress([]byte{0x02}): sha256Contract{},
	kaon.BytesToAddress([]byte{0x03}): ripemd160Contract{},
	kaon.BytesToAddress([]byte{0x04}): identityContract{},
	// chain-native hash, outside the range reserved by upstream EVM chains
	kaon.BytesToAddress([]byte{0x01, 0x00}): blake2b256Contract{},
}

func runPrecompile(p PrecompiledContract, input []byte, gas uint64) ([]byte, uint64, error) {
	cost := p.RequiredGas(input)
	if gas < cost {
		return nil, 0, ErrOutOfGas
	}
	gas -= cost
	ret, err := p.Run(input)
	if err != nil {
		return nil, 0, err
	}
	return ret, gas, nil
}

// ecrecoverContract recovers the signer address of a 32-byte message hash
// from a 65-byte secp256k1 signature. Input is hash, v (as a 32-byte
// word), r and s, each 32 bytes.
// Malformed input yields empty output, not an error.
type ecrecoverContract struct{}

func (ecrecoverContract) RequiredGas(_ []byte) uint64 { return gasEcrecover }

func (ecrecoverContract) Run(input []byte) ([]byte, error) {
	input = getData(input, 0, 128)

	// v is a 32-byte word holding 27 or 28
	for _, b := range input[32:63] {
		if b != 0 {
			return nil, nil
		}
	}
	v := input[63]
	if v != 27 && v != 28 {
		return nil, nil
	}

	sig := make([]byte, 65)
	copy(sig, input[64:128])
	sig[64] = v - 27

	pub, err := crypto.SigToPub(input[:32], sig)
	if err != nil {
		return nil, nil
	}
	addr := crypto.PubkeyToAddress(*pub)

	out := make([]byte, 32)
	copy(out[12:], addr[:])
	return out, nil
}

type sha256Contract struct{}

func (sha256Contract) RequiredGas(input []byte) uint64 {
	return gasSha256Base + toWordSize(uint64(len(input)))*gasSha256Word
}

func (sha256Contract) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

type ripemd160Contract struct{}

func (ripemd160Contract) RequiredGas(input []byte) uint64 {
	return gasRipemd160Base + toWordSize(uint64(len(input)))*gasRipemd160Word
}

func (ripemd160Contract) Run(input []byte) ([]byte, error) {
	h := ripemd160.New()
	h.Write(input)
	// 20-byte digest left-padded to a word
	return h.Sum(make([]byte, 12)), nil
}

type identityContract struct{}

func (identityContract) RequiredGas(input []byte) uint64 {
	return gasIdentityBase + toWordSize(uint64(len(input)))*gasIdentityWord
}

func (identityContract) Run(input []byte) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

type blake2b256Contract struct{}

func (blake2b256Contract) RequiredGas(input []byte) uint64 {
	return gasBlake2b256Base + toWordSize(uint64(len(input)))*gasBlake2b256Word
}

func (blake2b256Contract) Run(input []byte) ([]byte, error) {
	h := kaon.Blake2b(input)
	return h.Bytes(), nil
}
