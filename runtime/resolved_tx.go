// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
)

// ResolvedTransaction is a transaction with its signer recovered and its
// intrinsic cost validated, ready for execution against a state.
type ResolvedTransaction struct {
	tx           *tx.Transaction
	Origin       kaon.Address
	IntrinsicGas uint64
}

// ResolveTransaction recovers the transaction signer and performs the
// stateless validation.
func ResolveTransaction(trx *tx.Transaction) (*ResolvedTransaction, error) {
	origin, err := trx.Origin()
	if err != nil {
		return nil, err
	}
	intrinsicGas, err := trx.IntrinsicGas()
	if err != nil {
		return nil, err
	}
	if trx.Gas() < intrinsicGas {
		return nil, errors.New("intrinsic gas exceeds provided gas")
	}
	if trx.Value().Sign() < 0 {
		return nil, errors.New("tx value must not be negative")
	}
	return &ResolvedTransaction{
		tx:           trx,
		Origin:       origin,
		IntrinsicGas: intrinsicGas,
	}, nil
}

// CheckNonce verifies that the transaction nonce equals the origin's
// current account nonce.
func (r *ResolvedTransaction) CheckNonce(st *state.State) error {
	nonce, err := st.GetNonce(r.Origin)
	if err != nil {
		return err
	}
	if r.tx.Nonce() != nonce {
		return errors.Errorf("invalid nonce: got %d, want %d", r.tx.Nonce(), nonce)
	}
	return nil
}

// BuyGas deducts the full gas prepayment from the origin's balance. The
// returned function refunds the unused portion after execution.
func (r *ResolvedTransaction) BuyGas(st *state.State) (returnGas func(uint64) error, err error) {
	prepaid := new(big.Int).Mul(new(big.Int).SetUint64(r.tx.Gas()), r.tx.GasPrice())

	balance, err := st.GetBalance(r.Origin)
	if err != nil {
		return nil, err
	}
	cost := new(big.Int).Add(prepaid, r.tx.Value())
	if balance.Cmp(cost) < 0 {
		return nil, errors.New("insufficient balance to cover gas and value")
	}
	if err := st.SetBalance(r.Origin, new(big.Int).Sub(balance, prepaid)); err != nil {
		return nil, err
	}

	return func(leftOver uint64) error {
		refund := new(big.Int).Mul(new(big.Int).SetUint64(leftOver), r.tx.GasPrice())
		balance, err := st.GetBalance(r.Origin)
		if err != nil {
			return err
		}
		return st.SetBalance(r.Origin, new(big.Int).Add(balance, refund))
	}, nil
}
