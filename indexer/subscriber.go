package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethshop/shop-indexer/utils"
)

// StartLiveSubscriber maintains a logs subscription for the lifetime of ctx.
// A terminated subscription is reopened with backoff. Logs missed while
// resubscribing are recovered by the reconciler.
func (i *Indexer) StartLiveSubscriber(ctx context.Context) {
	q := i.contract.FilterQuery(nil, nil, i.filterTopics)
	delay := i.resubscribe.baseDelay

	for {
		logsChan := make(chan types.Log, defaultLogsChanCap)
		sub, err := i.client.SubscribeFilterLogs(ctx, q, logsChan)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.WithError(err).Warn("can't subscribe to contract logs, retrying")
			SubscriptionRestarts.Inc()
			if utils.ContextSleep(ctx, delay) != nil {
				return
			}
			delay = min(delay*2, i.resubscribe.maxDelay)
			continue
		}
		delay = i.resubscribe.baseDelay

		i.setSubscribed(true)
		i.logger.Info("subscribed to contract logs")
		i.consumeSubscription(ctx, sub, logsChan)
		i.setSubscribed(false)

		if ctx.Err() != nil {
			return
		}
		SubscriptionRestarts.Inc()
		if utils.ContextSleep(ctx, delay) != nil {
			return
		}
	}
}

func (i *Indexer) consumeSubscription(ctx context.Context, sub ethereum.Subscription, logsChan <-chan types.Log) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				i.logger.WithError(err).Warn("logs subscription terminated")
			}
			return
		case log := <-logsChan:
			if err := i.processLog(ctx, &log); err != nil {
				if ctx.Err() != nil {
					return
				}
				i.logger.WithError(err).WithFields(logrus.Fields{
					"block_number": log.BlockNumber,
					"tx_hash":      log.TxHash,
					"log_index":    log.Index,
				}).Error("failed to process live log, skipping")
				continue
			}
			i.recordHeadBlock(uint(log.BlockNumber))
		}
	}
}
