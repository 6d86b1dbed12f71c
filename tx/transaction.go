// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"fmt"
	"io"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/kaon"
)

var errIntrinsicGasOverflow = errors.New("intrinsic gas too large")

// Transaction is an immutable transaction type.
type Transaction struct {
	body body

	cache struct {
		signingHash atomic.Value
		hash        atomic.Value
		origin      atomic.Value
		size        atomic.Value
	}
}

// body describes details of a tx.
type body struct {
	ChainID   uint64
	Nonce     uint64
	GasPrice  *big.Int
	Gas       uint64
	To        *kaon.Address `rlp:"nil"`
	Value     *big.Int
	Data      []byte
	Signature []byte
}

// ChainID returns the id of the chain the tx is bound to.
// A tx can be packed only into blocks of the chain with matching id.
func (t *Transaction) ChainID() uint64 {
	return t.body.ChainID
}

// Nonce returns the account nonce of the tx.
func (t *Transaction) Nonce() uint64 {
	return t.body.Nonce
}

// GasPrice returns gas price.
func (t *Transaction) GasPrice() *big.Int {
	return new(big.Int).Set(t.body.GasPrice)
}

// Gas returns gas provision for this tx.
func (t *Transaction) Gas() uint64 {
	return t.body.Gas
}

// To returns the recipient, or nil for a contract creation tx.
func (t *Transaction) To() *kaon.Address {
	if t.body.To == nil {
		return nil
	}
	cpy := *t.body.To
	return &cpy
}

// Value returns the amount transferred.
func (t *Transaction) Value() *big.Int {
	return new(big.Int).Set(t.body.Value)
}

// Data returns the input data.
func (t *Transaction) Data() []byte {
	return append([]byte(nil), t.body.Data...)
}

// Signature returns the signature.
func (t *Transaction) Signature() []byte {
	return append([]byte(nil), t.body.Signature...)
}

// SigningHash returns the hash of the tx excluding signature.
func (t *Transaction) SigningHash() (hash kaon.Bytes32) {
	if cached := t.cache.signingHash.Load(); cached != nil {
		return cached.(kaon.Bytes32)
	}
	defer func() { t.cache.signingHash.Store(hash) }()

	return kaon.Blake2bFn(func(w io.Writer) {
		err := rlp.Encode(w, []interface{}{
			t.body.ChainID,
			t.body.Nonce,
			t.body.GasPrice,
			t.body.Gas,
			t.body.To,
			t.body.Value,
			t.body.Data,
		})
		if err != nil {
			panic(err)
		}
	})
}

// Hash returns the hash of the tx, which uniquely identifies it.
// It covers the signature, so the same content signed twice with
// different random nonces yields different hashes.
func (t *Transaction) Hash() (hash kaon.Bytes32) {
	if cached := t.cache.hash.Load(); cached != nil {
		return cached.(kaon.Bytes32)
	}
	defer func() { t.cache.hash.Store(hash) }()

	return kaon.Blake2bFn(func(w io.Writer) {
		if err := rlp.Encode(w, t); err != nil {
			panic(err)
		}
	})
}

// Origin extracts the address of the tx sender from the signature.
func (t *Transaction) Origin() (kaon.Address, error) {
	if err := t.validateSignatureLength(); err != nil {
		return kaon.Address{}, err
	}

	if cached := t.cache.origin.Load(); cached != nil {
		return cached.(kaon.Address), nil
	}

	pub, err := crypto.SigToPub(t.SigningHash().Bytes(), t.body.Signature)
	if err != nil {
		return kaon.Address{}, err
	}
	origin := kaon.Address(crypto.PubkeyToAddress(*pub))
	t.cache.origin.Store(origin)
	return origin, nil
}

// WithSignature creates a new tx with signature set.
func (t *Transaction) WithSignature(sig []byte) *Transaction {
	newTx := Transaction{
		body: t.body,
	}
	// copy sig
	newTx.body.Signature = append([]byte(nil), sig...)
	return &newTx
}

// Size returns the size of the RLP encoded tx in bytes.
func (t *Transaction) Size() uint64 {
	if cached := t.cache.size.Load(); cached != nil {
		return cached.(uint64)
	}
	data, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic(err)
	}
	size := uint64(len(data))
	t.cache.size.Store(size)
	return size
}

// EncodeRLP implements rlp.Encoder.
func (t *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &t.body)
}

// DecodeRLP implements rlp.Decoder.
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var body body
	if err := s.Decode(&body); err != nil {
		return err
	}
	*t = Transaction{body: body}
	return nil
}

// IntrinsicGas returns the intrinsic gas of the tx, the base cost charged
// before any code execution.
func (t *Transaction) IntrinsicGas() (uint64, error) {
	return IntrinsicGas(t.body.Data, t.body.To == nil)
}

// IntrinsicGas calculates the intrinsic gas for a tx carrying the given
// data payload.
func IntrinsicGas(data []byte, contractCreation bool) (uint64, error) {
	var gas uint64
	if contractCreation {
		gas = kaon.TxGasContractCreation
	} else {
		gas = kaon.TxGas
	}

	if len(data) > 0 {
		var nz uint64
		for _, b := range data {
			if b != 0 {
				nz++
			}
		}
		if (kaon.MaxTxGas-gas)/kaon.TxDataNonZeroGas < nz {
			return 0, errIntrinsicGasOverflow
		}
		gas += nz * kaon.TxDataNonZeroGas

		z := uint64(len(data)) - nz
		if (kaon.MaxTxGas-gas)/kaon.TxDataZeroGas < z {
			return 0, errIntrinsicGasOverflow
		}
		gas += z * kaon.TxDataZeroGas
	}
	return gas, nil
}

func (t *Transaction) validateSignatureLength() error {
	if len(t.body.Signature) != 65 {
		return errors.Errorf("invalid signature length %d", len(t.body.Signature))
	}
	return nil
}

func (t *Transaction) String() string {
	origin := "N/A"
	if o, err := t.Origin(); err == nil {
		origin = o.String()
	}
	to := "nil (create)"
	if t.body.To != nil {
		to = t.body.To.String()
	}
	return fmt.Sprintf(`
	Tx(%v, %v bytes)
	ChainID:    %v
	Origin:     %v
	Nonce:      %v
	To:         %v
	Value:      %v
	GasPrice:   %v
	Gas:        %v
	Data:       0x%x
	Signature:  0x%x
`, t.Hash(), t.Size(), t.body.ChainID, origin, t.body.Nonce, to, t.body.Value, t.body.GasPrice, t.body.Gas, t.body.Data, t.body.Signature)
}
