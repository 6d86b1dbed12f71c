// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kaonchain/kaon/genesis"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/metrics"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kaon")
}

func initLogger(ctx *cli.Context) *slog.LevelVar {
	logLevel := new(slog.LevelVar)
	switch ctx.Int(verbosityFlag.Name) {
	case 0:
		logLevel.Set(slog.LevelError + 4) // silent
	case 1:
		logLevel.Set(slog.LevelError)
	case 2:
		logLevel.Set(slog.LevelWarn)
	case 3:
		logLevel.Set(slog.LevelInfo)
	case 4:
		logLevel.Set(slog.LevelDebug)
	default:
		logLevel.Set(log.LevelTrace)
	}
	log.SetRootHandler(log.NewTerminalHandler(os.Stderr, logLevel))
	return logLevel
}

// selectGenesis resolves the --network flag to a genesis config.
func selectGenesis(ctx *cli.Context) (*genesis.Genesis, error) {
	network := ctx.String(networkFlag.Name)
	if network == "dev" {
		return genesis.NewDevnet()
	}

	file, err := os.Open(network)
	if err != nil {
		return nil, errors.Wrap(err, "open genesis file")
	}
	defer file.Close()

	cfg, err := genesis.LoadCustomGenesis(file)
	if err != nil {
		return nil, err
	}
	return genesis.NewCustomNet(cfg)
}

// makeInstanceDir creates a per-genesis directory under data-dir, so
// different networks never share a database.
func makeInstanceDir(ctx *cli.Context, gene *genesis.Genesis) (string, error) {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		return "", errors.New("data-dir not set")
	}
	instanceDir := filepath.Join(dataDir, fmt.Sprintf("instance-%x", gene.ID().Bytes()[24:]))
	if err := os.MkdirAll(instanceDir, 0o700); err != nil {
		return "", errors.Wrap(err, "create instance dir")
	}
	return instanceDir, nil
}

// loadOrGenerateKey reads the validator key, generating one on first
// run.
func loadOrGenerateKey(ctx *cli.Context, instanceDir string) (*ecdsa.PrivateKey, error) {
	path := ctx.String(keyFileFlag.Name)
	if path == "" {
		path = filepath.Join(instanceDir, "validator.key")
	}

	if key, err := crypto.LoadECDSA(path); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load validator key")
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, errors.Wrap(err, "save validator key")
	}
	return key, nil
}

// startMetricsServer exposes prometheus metrics when an address is
// configured. The returned func stops the server.
func startMetricsServer(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	metrics.InitializePrometheusMetrics()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen metrics")
	}
	router := http.NewServeMux()
	router.Handle("/metrics", metrics.HTTPHandler())
	srv := &http.Server{Handler: router}
	go func() {
		_ = srv.Serve(listener)
	}()
	return func() { _ = srv.Shutdown(context.Background()) }, nil
}

// handleExitSignal returns a context canceled on SIGINT/SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)
		sig := <-exitSignalCh
		log.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}
