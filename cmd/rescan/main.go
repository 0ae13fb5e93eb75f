package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/ethshop/shop-indexer/config"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/indexer"
	"github.com/ethshop/shop-indexer/ledger"
	"github.com/ethshop/shop-indexer/logging"
)

var (
	fromBlock = flag.Uint("fromBlock", 0, "starting block")
	toBlock   = flag.Uint("toBlock", 0, "ending block")
)

// rescan runs a single bounded logs scan and prints the purchase receipts it
// finds. Useful for checking what the indexer would record for a given block
// range without starting the live subscription.
func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if *fromBlock < cfg.Indexer.StartBlock {
		fromBlock = &cfg.Indexer.StartBlock
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock should not be less than fromBlock")
	}

	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.RPC.RPS, cfg.Chain.ChainID)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc client")
	}

	receipts := ledger.New()
	idx, err := indexer.NewIndexer(logger, client, receipts, cfg.Indexer)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize shop indexer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		for range c {
			cancel()
			logger.Warn("caught stop signal, gracefully terminating")
			return
		}
	}()

	if err = idx.ProcessBlockRange(ctx, *fromBlock, *toBlock); err != nil {
		logger.WithError(err).Fatal("can't process block range")
	}
	logger.WithField("count", receipts.Len()).Info("block range scan finished")
}
