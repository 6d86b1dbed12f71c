// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package admin exposes a localhost-only control surface for a running
// node, separate from the public API.
package admin

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/api/utils"
	"github.com/kaonchain/kaon/co"
	"github.com/kaonchain/kaon/log"
)

type logLevelRequest struct {
	Level string `json:"level"`
}

type logLevelResponse struct {
	CurrentLevel string `json:"currentLevel"`
}

func handleGetLogLevel(logLevel *slog.LevelVar) utils.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		return utils.WriteJSON(w, logLevelResponse{
			CurrentLevel: logLevel.Level().String(),
		})
	}
}

func handleSetLogLevel(logLevel *slog.LevelVar) utils.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) error {
		var payload logLevelRequest
		if err := utils.ParseJSON(req.Body, &payload); err != nil {
			return utils.BadRequest(errors.WithMessage(err, "body"))
		}

		switch payload.Level {
		case "trace":
			logLevel.Set(log.LevelTrace)
		case "debug":
			logLevel.Set(slog.LevelDebug)
		case "info":
			logLevel.Set(slog.LevelInfo)
		case "warn":
			logLevel.Set(slog.LevelWarn)
		case "error":
			logLevel.Set(slog.LevelError)
		default:
			return utils.BadRequest(errors.New("level: unknown level " + payload.Level))
		}

		return utils.WriteJSON(w, logLevelResponse{
			CurrentLevel: logLevel.Level().String(),
		})
	}
}

// HTTPHandler builds the admin handler over the process log level.
func HTTPHandler(logLevel *slog.LevelVar) http.Handler {
	router := mux.NewRouter()
	sub := router.PathPrefix("/admin").Subrouter()
	sub.Path("/loglevel").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(handleGetLogLevel(logLevel)))
	sub.Path("/loglevel").
		Methods(http.MethodPost).
		HandlerFunc(utils.WrapHandlerFunc(handleSetLogLevel(logLevel)))
	return handlers.CompressHandler(router)
}

// StartServer serves the admin handler on addr. The returned closer
// shuts the server down and waits for it.
func StartServer(addr string, logLevel *slog.LevelVar) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrapf(err, "listen admin addr [%v]", addr)
	}

	srv := &http.Server{
		Handler:           HTTPHandler(logLevel),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
	}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/admin", func() {
		srv.Close()
		goes.Wait()
	}, nil
}
