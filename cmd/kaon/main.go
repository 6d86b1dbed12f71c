// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kaonchain/kaon/admin"
	"github.com/kaonchain/kaon/consensus"
	"github.com/kaonchain/kaon/crosschain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/log"
	"github.com/kaonchain/kaon/lvldb"
	"github.com/kaonchain/kaon/node"
	"github.com/kaonchain/kaon/txpool"
)

var (
	version   string
	gitCommit string
)

func fullVersion() string {
	if gitCommit == "" {
		return version + "-dev"
	}
	return fmt.Sprintf("%s-%.8s", version, gitCommit)
}

func main() {
	app := cli.App{
		Version: fullVersion(),
		Name:    "Kaon",
		Usage:   "Node of the Kaon network",
		Flags: []cli.Flag{
			networkFlag,
			dataDirFlag,
			keyFileFlag,
			apiAddrFlag,
			apiCallGasLimitFlag,
			enableAPILogsFlag,
			adminAddrFlag,
			metricsAddrFlag,
			verbosityFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer log.Info("exited")

	logLevel := initLogger(ctx)

	gene, err := selectGenesis(ctx)
	if err != nil {
		return err
	}
	instanceDir, err := makeInstanceDir(ctx, gene)
	if err != nil {
		return err
	}

	if addr := ctx.String(adminAddrFlag.Name); addr != "" {
		url, stopAdmin, err := admin.StartServer(addr, logLevel)
		if err != nil {
			return err
		}
		defer stopAdmin()
		log.Info("admin served", "url", url)
	}

	stopMetrics, err := startMetricsServer(ctx.String(metricsAddrFlag.Name))
	if err != nil {
		return err
	}
	defer stopMetrics()

	db, err := lvldb.New(filepath.Join(instanceDir, "main.db"), lvldb.Options{})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing main database...")
		db.Close()
	}()

	key, err := loadOrGenerateKey(ctx, instanceDir)
	if err != nil {
		return err
	}

	n, err := node.New(db, gene, key, node.SoloComm{}, crosschain.NoopClient{}, node.Options{
		APIAddr:         ctx.String(apiAddrFlag.Name),
		APICallGasLimit: ctx.Uint64(apiCallGasLimitFlag.Name),
		APIReqLogger:    ctx.Bool(enableAPILogsFlag.Name),
		TxPool: txpool.Options{
			Limit:           10000,
			LimitPerAccount: 128,
			MaxLifetime:     20 * time.Minute,
		},
		Consensus: consensus.DefaultConfig(),
	})
	if err != nil {
		return err
	}

	log.Info("starting",
		"version", fullVersion(),
		"network", gene.Name(),
		"genesis", gene.ID(),
		"validator", kaon.Address(crypto.PubkeyToAddress(key.PublicKey)),
		"instance", instanceDir,
	)
	return n.Run(handleExitSignal())
}
