package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethshop/shop-indexer/entity"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/logging"
	"github.com/ethshop/shop-indexer/utils"
)

type EventHandler func(ctx context.Context, log *types.Log, data map[string]interface{}) error

var ErrInvalidEventData = errors.New("unexpected event data layout")

// ShopEventHandler turns decoded shop events into ledger records.
type ShopEventHandler struct {
	logger logging.Logger
	client ethclient.Client
	ledger entity.ReceiptsLedger
	retry  retryPolicy
}

func NewShopEventHandler(logger logging.Logger, client ethclient.Client, receipts entity.ReceiptsLedger) *ShopEventHandler {
	return &ShopEventHandler{
		logger: logger,
		client: client,
		ledger: receipts,
		retry:  defaultRetryPolicy,
	}
}

// HandleItemPurchased enriches the event with the purchase transaction
// details and records the receipt. The receipt line is printed only when the
// transaction hash is recorded for the first time, so a transaction observed
// by both the historical scan and the live subscription yields one line.
func (h *ShopEventHandler) HandleItemPurchased(ctx context.Context, log *types.Log, data map[string]interface{}) error {
	event, err := parsePurchaseEvent(data)
	if err != nil {
		return err
	}
	meta, err := h.resolveTransactionMeta(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("can't resolve transaction %s: %w", log.TxHash, err)
	}

	receipt := &entity.PurchaseReceipt{
		TxHash:   log.TxHash,
		Item:     event.Item,
		Quantity: event.Quantity,
		Value:    meta.Value,
		From:     meta.From,
	}
	if !h.ledger.Upsert(receipt) {
		h.logger.WithField("tx_hash", receipt.TxHash).Debug("receipt is already recorded, skipping")
		return nil
	}
	h.logger.Infof("[%s] %d of %q were purchased by %s for %s wei", receipt.TxHash, receipt.Quantity, receipt.Item, receipt.From, receipt.Value)
	return nil
}

func parsePurchaseEvent(data map[string]interface{}) (*entity.PurchaseEvent, error) {
	item, ok := data["item"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: item is not a string", ErrInvalidEventData)
	}
	quantity, ok := data["quantity"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: quantity is not a uint256", ErrInvalidEventData)
	}
	if !quantity.IsUint64() || uint64(uint(quantity.Uint64())) != quantity.Uint64() {
		return nil, fmt.Errorf("%w: quantity %s does not fit into uint", ErrInvalidEventData, quantity)
	}
	return &entity.PurchaseEvent{
		Item:     item,
		Quantity: uint(quantity.Uint64()),
	}, nil
}

func (h *ShopEventHandler) resolveTransactionMeta(ctx context.Context, txHash common.Hash) (*entity.TransactionMeta, error) {
	var tx *types.Transaction
	err := utils.Retry(ctx, h.retry.attempts, h.retry.baseDelay, h.retry.maxDelay, func() error {
		var ferr error
		tx, ferr = h.client.TransactionByHash(ctx, txHash)
		if errors.Is(ferr, ethclient.ErrTxNotFound) {
			return utils.Permanent(ferr)
		}
		if ferr != nil {
			h.logger.WithError(ferr).WithField("tx_hash", txHash).Warn("can't fetch transaction, retrying")
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	from, err := h.client.TransactionSender(tx)
	if err != nil {
		return nil, fmt.Errorf("can't recover transaction sender: %w", err)
	}
	return &entity.TransactionMeta{
		Hash:  txHash,
		From:  from,
		Value: tx.Value(),
	}, nil
}
