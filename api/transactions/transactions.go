// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transactions

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/api/utils"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
	"github.com/kaonchain/kaon/txpool"
)

type Transactions struct {
	repo *chain.Repository
	pool *txpool.TxPool
}

func New(repo *chain.Repository, pool *txpool.TxPool) *Transactions {
	return &Transactions{repo, pool}
}

// RawTx carries an RLP-encoded signed transaction.
type RawTx struct {
	Raw hexutil.Bytes `json:"raw"`
}

func (r *RawTx) decode() (*tx.Transaction, error) {
	var trx tx.Transaction
	if err := rlp.DecodeBytes(r.Raw, &trx); err != nil {
		return nil, err
	}
	return &trx, nil
}

// JSONTransaction is the JSON rendering of a committed or pending tx.
type JSONTransaction struct {
	ID       kaon.Bytes32  `json:"id"`
	Origin   kaon.Address  `json:"origin"`
	To       *kaon.Address `json:"to"`
	Value    string        `json:"value"`
	Nonce    uint64        `json:"nonce"`
	Gas      uint64        `json:"gas"`
	GasPrice string        `json:"gasPrice"`
	Data     hexutil.Bytes `json:"data"`
	Meta     *TxMeta       `json:"meta"`
}

// TxMeta locates a tx inside a committed block; nil while pending.
type TxMeta struct {
	BlockID     kaon.Bytes32 `json:"blockID"`
	BlockNumber uint64       `json:"blockNumber"`
	Index       uint64       `json:"index"`
}

// JSONReceipt is the JSON rendering of a tx receipt.
type JSONReceipt struct {
	GasUsed         uint64        `json:"gasUsed"`
	Paid            string        `json:"paid"`
	Reverted        bool          `json:"reverted"`
	ContractAddress *kaon.Address `json:"contractAddress"`
	Logs            []*JSONLog    `json:"logs"`
	Meta            *TxMeta       `json:"meta"`
}

// JSONLog is the JSON rendering of an event log.
type JSONLog struct {
	Address kaon.Address   `json:"address"`
	Topics  []kaon.Bytes32 `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

func (t *Transactions) handleSendTransaction(w http.ResponseWriter, req *http.Request) error {
	var raw RawTx
	if err := utils.ParseJSON(req.Body, &raw); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	trx, err := raw.decode()
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "raw"))
	}

	if err := t.pool.Add(trx); err != nil {
		if txpool.IsErrPoolFull(err) {
			return utils.HTTPError(err, http.StatusServiceUnavailable)
		}
		return utils.BadRequest(err)
	}
	return utils.WriteJSON(w, map[string]string{
		"id": trx.Hash().String(),
	})
}

func (t *Transactions) handleGetTransactionByID(w http.ResponseWriter, req *http.Request) error {
	txID, err := kaon.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}

	trx, meta, err := t.repo.GetTransaction(txID)
	if err != nil {
		if !t.repo.IsNotFound(err) {
			return err
		}
		// fall back to the pool
		if trx = t.pool.Get(txID); trx == nil {
			return utils.WriteJSON(w, nil)
		}
	}
	jTx, err := t.buildJSONTransaction(trx, meta)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, jTx)
}

func (t *Transactions) handleGetTransactionReceipt(w http.ResponseWriter, req *http.Request) error {
	txID, err := kaon.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}

	receipt, meta, err := t.repo.GetReceipt(txID)
	if err != nil {
		if t.repo.IsNotFound(err) {
			return utils.WriteJSON(w, nil)
		}
		return err
	}

	jMeta, err := t.buildTxMeta(meta)
	if err != nil {
		return err
	}
	logs := make([]*JSONLog, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		logs = append(logs, &JSONLog{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return utils.WriteJSON(w, &JSONReceipt{
		GasUsed:         receipt.GasUsed,
		Paid:            receipt.Paid.String(),
		Reverted:        receipt.Reverted,
		ContractAddress: receipt.ContractAddress,
		Logs:            logs,
		Meta:            jMeta,
	})
}

func (t *Transactions) buildJSONTransaction(trx *tx.Transaction, meta *chain.TxMeta) (*JSONTransaction, error) {
	origin, err := trx.Origin()
	if err != nil {
		return nil, err
	}
	jMeta, err := t.buildTxMeta(meta)
	if err != nil {
		return nil, err
	}
	return &JSONTransaction{
		ID:       trx.Hash(),
		Origin:   origin,
		To:       trx.To(),
		Value:    trx.Value().String(),
		Nonce:    trx.Nonce(),
		Gas:      trx.Gas(),
		GasPrice: trx.GasPrice().String(),
		Data:     trx.Data(),
		Meta:     jMeta,
	}, nil
}

func (t *Transactions) buildTxMeta(meta *chain.TxMeta) (*TxMeta, error) {
	if meta == nil {
		return nil, nil
	}
	summary, err := t.repo.GetBlockSummary(meta.BlockID)
	if err != nil {
		return nil, err
	}
	return &TxMeta{
		BlockID:     meta.BlockID,
		BlockNumber: summary.Header.Number(),
		Index:       meta.Index,
	}, nil
}

// Mount attaches the endpoints to the router.
func (t *Transactions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodPost).
		HandlerFunc(utils.WrapHandlerFunc(t.handleSendTransaction))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetTransactionByID))
	sub.Path("/{id}/receipt").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetTransactionReceipt))
}
