package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethshop/shop-indexer/config"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/indexer"
	"github.com/ethshop/shop-indexer/ledger"
	"github.com/ethshop/shop-indexer/logging"
	"github.com/ethshop/shop-indexer/ops"
)

const configFile = "config.yml"

func main() {
	logger := logging.New()

	cfg, err := readConfig()
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.RPC.RPS, cfg.Chain.ChainID)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc client")
	}

	receipts := ledger.New()
	idx, err := indexer.NewIndexer(logger.WithField("service", "indexer"), client, receipts, cfg.Indexer)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize shop indexer")
	}

	srv := ops.NewServer(logger.WithField("service", "ops"), idx, receipts)
	go func() {
		if err2 := srv.Serve(cfg.Ops.Addr); err2 != nil {
			logger.WithError(err2).Fatal("can't serve ops endpoints")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	idx.Start(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	for range c {
		cancel()
		logger.Warn("caught stop signal, gracefully terminating")
		return
	}
}

// readConfig prefers the yaml config file and falls back to environment
// variables when the file is absent.
func readConfig() (*config.Config, error) {
	if _, err := os.Stat(configFile); err == nil {
		return config.ReadConfigFromFile(configFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return config.ReadConfigFromEnv()
}
