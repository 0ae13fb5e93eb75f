package indexer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// StartBackfill scans all historical blocks of the contract in bounded
// windows, oldest first. The upper bound is resolved once at scan start,
// blocks mined later are left to the live subscription. A window that still
// fails after retries aborts the whole scan, it is never skipped.
func (i *Indexer) StartBackfill(ctx context.Context) error {
	head, err := i.fetchHeadBlock(ctx)
	if err != nil {
		return err
	}
	i.recordHeadBlock(head)
	if head == 0 || i.cfg.StartBlock >= head {
		i.logger.Info("no historical blocks to scan")
		i.markBackfillDone()
		return nil
	}

	batches := SplitBlockRange(i.cfg.StartBlock, head-1, i.cfg.MaxBlockRangeSize)
	i.logger.WithFields(logrus.Fields{
		"from_block": i.cfg.StartBlock,
		"to_block":   head - 1,
		"batches":    len(batches),
	}).Info("starting historical logs scan")

	for _, batch := range batches {
		if err := i.ProcessBlockRange(ctx, batch.From, batch.To); err != nil {
			return fmt.Errorf("historical scan aborted: %w", err)
		}
	}

	i.markBackfillDone()
	i.logger.Info("historical logs scan finished")
	return nil
}
