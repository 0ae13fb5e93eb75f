package indexer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StartReconciler periodically rescans the most recent blocks to recover
// logs dropped while the subscription was down. Ledger upserts are
// idempotent, so revisiting recorded purchases is harmless.
func (i *Indexer) StartReconciler(ctx context.Context) {
	if i.cfg.Reconcile == nil {
		i.logger.Info("reconciliation is disabled")
		return
	}
	i.logger.WithFields(logrus.Fields{
		"interval":        i.cfg.Reconcile.Interval,
		"lookback_blocks": i.cfg.Reconcile.LookbackBlocks,
	}).Info("starting reconciler")

	ticker := time.NewTicker(i.cfg.Reconcile.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !i.backfillDone.Load() {
			i.logger.Debug("historical scan is still running, skipping reconcile pass")
			continue
		}
		if err := i.reconcileOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.WithError(err).Error("reconcile pass failed")
		}
	}
}

func (i *Indexer) reconcileOnce(ctx context.Context) error {
	head, err := i.fetchHeadBlock(ctx)
	if err != nil {
		return err
	}
	i.recordHeadBlock(head)
	if head == 0 || i.cfg.StartBlock >= head {
		return nil
	}

	from := i.cfg.StartBlock
	if lookback := i.cfg.Reconcile.LookbackBlocks; head > lookback && head-lookback > from {
		from = head - lookback
	}
	i.logger.WithFields(logrus.Fields{
		"from_block": from,
		"to_block":   head - 1,
	}).Debug("starting reconcile pass")

	if err := i.ProcessBlockRange(ctx, from, head-1); err != nil {
		return err
	}
	ReconcilePasses.Inc()
	return nil
}
