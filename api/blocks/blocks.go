// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/api/utils"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
)

type Blocks struct {
	repo *chain.Repository
}

func New(repo *chain.Repository) *Blocks {
	return &Blocks{repo}
}

func (b *Blocks) handleGetBlock(w http.ResponseWriter, req *http.Request) error {
	revision, err := utils.ParseRevision(mux.Vars(req)["revision"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	expanded := req.URL.Query().Get("expanded")
	if expanded != "" && expanded != "false" && expanded != "true" {
		return utils.BadRequest(errors.WithMessage(errors.New("should be boolean"), "expanded"))
	}

	summary, err := utils.GetSummary(revision, b.repo)
	if err != nil {
		if b.repo.IsNotFound(err) {
			return utils.WriteJSON(w, nil)
		}
		return err
	}
	jSummary, err := buildJSONBlockSummary(summary)
	if err != nil {
		return err
	}

	if expanded == "true" {
		blk, err := b.repo.GetBlock(summary.Header.ID())
		if err != nil {
			return err
		}
		txs := blk.Transactions()
		embedded := make([]*JSONEmbeddedTx, 0, len(txs))
		for _, trx := range txs {
			jTx, err := buildJSONEmbeddedTx(trx)
			if err != nil {
				return err
			}
			embedded = append(embedded, jTx)
		}
		return utils.WriteJSON(w, &JSONExpandedBlock{jSummary, embedded})
	}

	txIDs := summary.Txs
	if txIDs == nil {
		txIDs = []kaon.Bytes32{}
	}
	return utils.WriteJSON(w, &JSONCollapsedBlock{jSummary, txIDs})
}

// Mount attaches the endpoints to the router.
func (b *Blocks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{revision}").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetBlock))
}
