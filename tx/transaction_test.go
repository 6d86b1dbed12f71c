// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaonchain/kaon/kaon"
)

func newTx(t *testing.T) *Transaction {
	to := kaon.MustParseAddress("0x7567d83b7b8d80addcb281a71d54fc7b3364ffed")
	return NewBuilder(1).
		Nonce(12345678).
		GasPrice(big.NewInt(128)).
		Gas(21000).
		To(&to).
		Value(big.NewInt(10)).
		Data([]byte{0, 0, 0, 0x60, 0x60, 0x60}).
		Build()
}

func TestTransactionFields(t *testing.T) {
	trx := newTx(t)

	assert.Equal(t, uint64(1), trx.ChainID())
	assert.Equal(t, uint64(12345678), trx.Nonce())
	assert.Equal(t, big.NewInt(128), trx.GasPrice())
	assert.Equal(t, uint64(21000), trx.Gas())
	assert.Equal(t, big.NewInt(10), trx.Value())
	assert.Equal(t, []byte{0, 0, 0, 0x60, 0x60, 0x60}, trx.Data())
	assert.Equal(t, kaon.MustParseAddress("0x7567d83b7b8d80addcb281a71d54fc7b3364ffed"), *trx.To())
}

func TestIntrinsicGas(t *testing.T) {
	gas, err := IntrinsicGas(nil, false)
	require.NoError(t, err)
	assert.Equal(t, kaon.TxGas, gas)

	gas, err = IntrinsicGas(nil, true)
	require.NoError(t, err)
	assert.Equal(t, kaon.TxGasContractCreation, gas)

	gas, err = IntrinsicGas([]byte{0, 0, 1, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, kaon.TxGas+2*kaon.TxDataZeroGas+2*kaon.TxDataNonZeroGas, gas)
}

func TestSignAndRecover(t *testing.T) {
	trx := newTx(t)

	_, err := trx.Origin()
	assert.Error(t, err, "unsigned tx must not recover an origin")

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	signed := MustSign(trx, priv)

	origin, err := signed.Origin()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(priv.PublicKey)), origin)

	// signing does not change the signing hash
	assert.Equal(t, trx.SigningHash(), signed.SigningHash())
	// but it does change the tx hash
	assert.NotEqual(t, trx.Hash(), signed.Hash())
}

func TestEncodeDecode(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	trx := MustSign(newTx(t), priv)

	data, err := rlp.EncodeToBytes(trx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), trx.Size())

	var decoded Transaction
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	assert.Equal(t, trx.Hash(), decoded.Hash())
	assert.Equal(t, trx.SigningHash(), decoded.SigningHash())

	origin, err := decoded.Origin()
	require.NoError(t, err)
	assert.Equal(t, kaon.Address(crypto.PubkeyToAddress(priv.PublicKey)), origin)
}

func TestCreationTx(t *testing.T) {
	trx := NewBuilder(1).
		GasPrice(big.NewInt(1)).
		Gas(100000).
		Value(new(big.Int)).
		Data([]byte{0x60, 0x60}).
		Build()

	assert.Nil(t, trx.To())

	gas, err := trx.IntrinsicGas()
	require.NoError(t, err)
	assert.Equal(t, kaon.TxGasContractCreation+2*kaon.TxDataNonZeroGas, gas)

	data, err := rlp.EncodeToBytes(trx)
	require.NoError(t, err)
	var decoded Transaction
	require.NoError(t, rlp.DecodeBytes(data, &decoded))
	assert.Nil(t, decoded.To())
}

func TestRootHash(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	var txs Transactions
	emptyTxsRoot := txs.RootHash()
	for i := 0; i < 3; i++ {
		txs = append(txs, MustSign(newTx(t), priv))
	}
	assert.NotEqual(t, emptyTxsRoot, txs.RootHash())
	assert.Equal(t, txs.RootHash(), txs.RootHash())

	var receipts Receipts
	emptyReceiptsRoot := receipts.RootHash()
	receipts = append(receipts, &Receipt{
		GasUsed:           21000,
		CumulativeGasUsed: 21000,
		Paid:              big.NewInt(21000),
	})
	assert.NotEqual(t, emptyReceiptsRoot, receipts.RootHash())
}
