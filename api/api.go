// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the node's read surface over HTTP: blocks,
// transactions, receipts, account state and call simulation, plus raw
// transaction submission into the pool.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kaonchain/kaon/api/accounts"
	"github.com/kaonchain/kaon/api/blocks"
	"github.com/kaonchain/kaon/api/transactions"
	"github.com/kaonchain/kaon/api/utils"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/health"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/txpool"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	CallGasLimit    uint64
	EnableReqLogger bool
}

// New returns the api handler.
func New(
	repo *chain.Repository,
	stater *state.Stater,
	pool *txpool.TxPool,
	healthStatus *health.Health,
	opts Options,
) http.Handler {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	accounts.New(repo, stater, opts.CallGasLimit).
		Mount(router, "/accounts")
	blocks.New(repo).
		Mount(router, "/blocks")
	transactions.New(repo, pool).
		Mount(router, "/transactions")

	router.Path("/health").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(func(w http.ResponseWriter, _ *http.Request) error {
			status := healthStatus.Status()
			w.Header().Set("Content-Type", utils.JSONContentType)
			if !status.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return utils.WriteJSON(w, status)
		}))

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}
	return handler
}
