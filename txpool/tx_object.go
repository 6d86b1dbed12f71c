// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import (
	"math/big"
	"time"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/tx"
)

// txObject wraps a pooled transaction with its resolved origin and pool
// bookkeeping.
type txObject struct {
	*tx.Transaction

	origin         kaon.Address
	cost           *big.Int // value + gas * gasPrice, the worst-case balance draw
	timeAdded      int64
	seq            uint64 // insertion order, the priority tie-break
	localSubmitted bool
	executable     bool
}

// resolveTx recovers the origin and computes the pending cost.
func resolveTx(newTx *tx.Transaction, localSubmitted bool) (*txObject, error) {
	origin, err := newTx.Origin()
	if err != nil {
		return nil, err
	}
	intrinsic, err := newTx.IntrinsicGas()
	if err != nil {
		return nil, err
	}
	if newTx.Gas() < intrinsic {
		return nil, errIntrinsicGasExceeds
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(newTx.Gas()), newTx.GasPrice())
	cost.Add(cost, newTx.Value())

	return &txObject{
		Transaction:    newTx,
		origin:         origin,
		cost:           cost,
		timeAdded:      time.Now().UnixNano(),
		localSubmitted: localSubmitted,
	}, nil
}

func (o *txObject) Origin() kaon.Address { return o.origin }

func (o *txObject) Cost() *big.Int { return o.cost }

// Affordable reports whether the origin's balance covers the worst-case
// cost of the transaction.
func (o *txObject) Affordable(st *state.State) (bool, error) {
	balance, err := st.GetBalance(o.origin)
	if err != nil {
		return false, err
	}
	return balance.Cmp(o.cost) >= 0, nil
}

// Stale reports whether the transaction can never execute on the given
// state because its nonce is already consumed.
func (o *txObject) Stale(st *state.State) (bool, error) {
	nonce, err := st.GetNonce(o.origin)
	if err != nil {
		return false, err
	}
	return o.Nonce() < nonce, nil
}
