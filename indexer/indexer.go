package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ethshop/shop-indexer/config"
	"github.com/ethshop/shop-indexer/contract"
	"github.com/ethshop/shop-indexer/contract/shopabi"
	"github.com/ethshop/shop-indexer/entity"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/logging"
	"github.com/ethshop/shop-indexer/utils"
)

const (
	defaultLogsChanCap      = 200
	defaultEventHandlersCap = 4
)

var (
	defaultRetryPolicy     = retryPolicy{attempts: 5, baseDelay: time.Second, maxDelay: 30 * time.Second}
	defaultResubscribeWait = backoffPolicy{baseDelay: time.Second, maxDelay: time.Minute}
)

// ErrUnexpectedEvent means a received log does not decode into any event the
// indexer subscribed for.
var ErrUnexpectedEvent = errors.New("received an event not matching the logs filter")

type retryPolicy struct {
	attempts  uint
	baseDelay time.Duration
	maxDelay  time.Duration
}

type backoffPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// Indexer keeps the receipts ledger up to date with the shop contract. It
// merges two log producers, a bounded scan of historical blocks and an
// unbounded live subscription, into one processing path.
type Indexer struct {
	cfg           *config.IndexerConfig
	logger        logging.Logger
	client        ethclient.Client
	ledger        entity.ReceiptsLedger
	contract      *contract.ShopContract
	eventHandlers map[string]EventHandler
	filterTopics  []common.Hash
	retry         retryPolicy
	resubscribe   backoffPolicy

	headBlock    atomic.Uint64
	scannedBlock atomic.Uint64
	backfillDone atomic.Bool
	subscribed   atomic.Bool

	syncedMetric       prometheus.Gauge
	headBlockMetric    prometheus.Gauge
	scannedBlockMetric prometheus.Gauge
	subscriptionMetric prometheus.Gauge
}

func NewIndexer(logger logging.Logger, client ethclient.Client, receipts entity.ReceiptsLedger, cfg *config.IndexerConfig) (*Indexer, error) {
	shopContract := contract.NewShopContract(cfg.ContractAddress, shopabi.ShopABI)
	commonLabels := prometheus.Labels{
		"chain_id": client.ChainID(),
		"address":  cfg.ContractAddress.String(),
	}
	idx := &Indexer{
		cfg:                cfg,
		logger:             logger,
		client:             client,
		ledger:             receipts,
		contract:           shopContract,
		eventHandlers:      make(map[string]EventHandler, defaultEventHandlersCap),
		retry:              defaultRetryPolicy,
		resubscribe:        defaultResubscribeWait,
		syncedMetric:       SyncedIndexer.With(commonLabels),
		headBlockMetric:    LatestHeadBlock.With(commonLabels),
		scannedBlockMetric: LatestScannedBlock.With(commonLabels),
		subscriptionMetric: ActiveSubscription.With(commonLabels),
	}

	handlers := NewShopEventHandler(logger, client, receipts)
	idx.RegisterEventHandler(shopabi.ItemPurchased, handlers.HandleItemPurchased)
	if err := idx.VerifyEventHandlersABI(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Indexer) RegisterEventHandler(event string, handler EventHandler) {
	i.eventHandlers[event] = handler
}

// VerifyEventHandlersABI checks that every registered handler corresponds to
// an event of the contract ABI and rebuilds the topic0 filter accordingly.
func (i *Indexer) VerifyEventHandlersABI() error {
	events := i.contract.AllEvents()
	sigs := make([]string, 0, len(i.eventHandlers))
	for event := range i.eventHandlers {
		if !events[event] {
			return fmt.Errorf("contract does not have %s event in its ABI", event)
		}
		sigs = append(sigs, event)
	}
	i.filterTopics = i.contract.EventIDs(sigs...)
	return nil
}

// Start launches the historical scan, the live subscription and the periodic
// reconciler. It returns immediately, ctx cancellation stops all three.
func (i *Indexer) Start(ctx context.Context) {
	i.logger.WithFields(logrus.Fields{
		"address":     i.contract.Address(),
		"start_block": i.cfg.StartBlock,
	}).Info("starting shop indexer")
	go func() {
		if err := i.StartBackfill(ctx); err != nil && ctx.Err() == nil {
			i.logger.WithError(err).Error("historical logs scan failed, live logs are still being indexed")
		}
	}()
	go i.StartLiveSubscriber(ctx)
	go i.StartReconciler(ctx)
}

func (i *Indexer) IsSynced() bool {
	return i.backfillDone.Load() && i.subscribed.Load()
}

func (i *Indexer) HeadBlock() uint {
	return uint(i.headBlock.Load())
}

func (i *Indexer) ScannedBlock() uint {
	return uint(i.scannedBlock.Load())
}

// ProcessBlockRange fetches all filtered logs of the inclusive block range
// [fromBlock, toBlock] and processes them in (block, log index) order.
// Fetching is retried, a range that still fails is reported as an error.
// A failure of an individual log is logged and does not stop the others.
func (i *Indexer) ProcessBlockRange(ctx context.Context, fromBlock, toBlock uint) error {
	q := i.contract.FilterQuery(big.NewInt(int64(fromBlock)), big.NewInt(int64(toBlock)), i.filterTopics)
	var logs []types.Log
	err := utils.Retry(ctx, i.retry.attempts, i.retry.baseDelay, i.retry.maxDelay, func() error {
		var ferr error
		logs, ferr = i.fetchLogs(ctx, q)
		if ferr != nil {
			i.logger.WithError(ferr).WithFields(logrus.Fields{
				"from_block": fromBlock,
				"to_block":   toBlock,
			}).Warn("failed logs fetching, retrying")
		}
		return ferr
	})
	if err != nil {
		return fmt.Errorf("can't fetch logs in range [%d, %d]: %w", fromBlock, toBlock, err)
	}

	sort.Slice(logs, func(a, b int) bool {
		return logs[a].BlockNumber < logs[b].BlockNumber ||
			(logs[a].BlockNumber == logs[b].BlockNumber && logs[a].Index < logs[b].Index)
	})
	i.logger.WithFields(logrus.Fields{
		"count":      len(logs),
		"from_block": fromBlock,
		"to_block":   toBlock,
	}).Info("fetched logs in range")

	for n := range logs {
		log := &logs[n]
		if err := i.processLog(ctx, log); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.WithError(err).WithFields(logrus.Fields{
				"block_number": log.BlockNumber,
				"tx_hash":      log.TxHash,
				"log_index":    log.Index,
			}).Error("failed to process log, skipping")
		}
	}
	i.recordScannedBlock(toBlock)
	return nil
}

func (i *Indexer) fetchLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if i.cfg.SafeLogsRequest {
		return i.client.FilterLogsSafe(ctx, q)
	}
	return i.client.FilterLogs(ctx, q)
}

// processLog decodes one log and dispatches it to its event handler. Logs
// that do not decode into a subscribed event are an error, the filter query
// should not have let them through.
func (i *Indexer) processLog(ctx context.Context, log *types.Log) error {
	if log.Removed {
		i.logger.WithFields(logrus.Fields{
			"block_number": log.BlockNumber,
			"tx_hash":      log.TxHash,
			"log_index":    log.Index,
		}).Warn("skipping log removed by chain reorg")
		EventsProcessed.WithLabelValues("unknown", "removed").Inc()
		return nil
	}

	event, data, err := i.contract.ParseLog(log)
	if err != nil {
		EventsProcessed.WithLabelValues("unknown", "decode_error").Inc()
		return fmt.Errorf("can't parse log: %w", err)
	}
	if event == "" {
		EventsProcessed.WithLabelValues("unknown", "decode_error").Inc()
		return fmt.Errorf("%w: unknown event %s", ErrUnexpectedEvent, log.Topics[0])
	}
	handle, ok := i.eventHandlers[event]
	if !ok {
		EventsProcessed.WithLabelValues(event, "decode_error").Inc()
		return fmt.Errorf("%w: no handler registered for %s", ErrUnexpectedEvent, event)
	}

	i.logger.WithFields(logrus.Fields{
		"event":        event,
		"block_number": log.BlockNumber,
		"tx_hash":      log.TxHash,
		"log_index":    log.Index,
	}).Trace("handling event")
	if err := handle(ctx, log, data); err != nil {
		EventsProcessed.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("can't handle %s: %w", event, err)
	}
	EventsProcessed.WithLabelValues(event, "ok").Inc()
	return nil
}

// fetchHeadBlock returns the latest block number lowered by the configured
// number of confirmations.
func (i *Indexer) fetchHeadBlock(ctx context.Context) (uint, error) {
	var head uint
	err := utils.Retry(ctx, i.retry.attempts, i.retry.baseDelay, i.retry.maxDelay, func() error {
		var ferr error
		head, ferr = i.client.BlockNumber(ctx)
		if ferr != nil {
			i.logger.WithError(ferr).Warn("can't fetch latest block number, retrying")
		}
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("can't fetch latest block number: %w", err)
	}
	if head < i.cfg.BlockConfirmations {
		return 0, nil
	}
	return head - i.cfg.BlockConfirmations, nil
}

func (i *Indexer) recordHeadBlock(blockNumber uint) {
	for {
		current := i.headBlock.Load()
		if uint64(blockNumber) <= current {
			return
		}
		if i.headBlock.CompareAndSwap(current, uint64(blockNumber)) {
			i.headBlockMetric.Set(float64(blockNumber))
			return
		}
	}
}

func (i *Indexer) recordScannedBlock(blockNumber uint) {
	for {
		current := i.scannedBlock.Load()
		if uint64(blockNumber) <= current {
			return
		}
		if i.scannedBlock.CompareAndSwap(current, uint64(blockNumber)) {
			i.scannedBlockMetric.Set(float64(blockNumber))
			return
		}
	}
}

func (i *Indexer) markBackfillDone() {
	i.backfillDone.Store(true)
	i.recordSynced()
}

func (i *Indexer) setSubscribed(subscribed bool) {
	i.subscribed.Store(subscribed)
	if subscribed {
		i.subscriptionMetric.Set(1)
	} else {
		i.subscriptionMetric.Set(0)
	}
	i.recordSynced()
}

func (i *Indexer) recordSynced() {
	if i.IsSynced() {
		i.syncedMetric.Set(1)
	} else {
		i.syncedMetric.Set(0)
	}
}
