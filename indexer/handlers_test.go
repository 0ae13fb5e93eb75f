package indexer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ethshop/shop-indexer/entity"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/ledger"
)

func newTestEventHandler(client *fakeClient) (*ShopEventHandler, *ledger.Ledger, *logrustest.Hook) {
	logger, hook := newTestLogger()
	receipts := ledger.New()
	handlers := NewShopEventHandler(logger, client, receipts)
	handlers.retry = fastRetry
	return handlers, receipts, hook
}

func purchaseEventData(item string, quantity int64) map[string]interface{} {
	return map[string]interface{}{
		"item":     item,
		"quantity": big.NewInt(quantity),
	}
}

func TestHandleItemPurchasedRecordsReceipt(t *testing.T) {
	t.Parallel()

	client := newFakeClient(1000)
	handlers, receipts, hook := newTestEventHandler(client)
	log := client.newPurchaseLog(t, 12, 0, "apple", 3, buyerAddr, 300)

	err := handlers.HandleItemPurchased(context.Background(), &log, purchaseEventData("apple", 3))
	require.NoError(t, err)
	require.Equal(t, 1, receipts.Len())

	lines := infoMessages(hook, "were purchased")
	require.Len(t, lines, 1)
	want := fmt.Sprintf("[%s] %d of %q were purchased by %s for %s wei", log.TxHash, 3, "apple", buyerAddr, big.NewInt(300))
	require.Equal(t, want, lines[0])
}

func TestHandleItemPurchasedIsIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeClient(1000)
	handlers, receipts, hook := newTestEventHandler(client)
	log := client.newPurchaseLog(t, 12, 0, "apple", 3, buyerAddr, 300)

	for n := 0; n < 3; n++ {
		require.NoError(t, handlers.HandleItemPurchased(context.Background(), &log, purchaseEventData("apple", 3)))
	}
	require.Equal(t, 1, receipts.Len())
	require.Len(t, infoMessages(hook, "were purchased"), 1)
}

func TestHandleItemPurchasedRetriesTransientTxErrors(t *testing.T) {
	t.Parallel()

	client := newFakeClient(1000)
	client.txErrs = 1
	handlers, receipts, _ := newTestEventHandler(client)
	log := client.newPurchaseLog(t, 12, 0, "apple", 3, buyerAddr, 300)

	err := handlers.HandleItemPurchased(context.Background(), &log, purchaseEventData("apple", 3))
	require.NoError(t, err)
	require.Equal(t, 2, client.transactionCalls())
	require.Equal(t, 1, receipts.Len())
}

func TestHandleItemPurchasedMissingTransaction(t *testing.T) {
	t.Parallel()

	client := newFakeClient(1000)
	handlers, receipts, _ := newTestEventHandler(client)
	log := client.newPurchaseLog(t, 12, 0, "apple", 3, buyerAddr, 300)
	client.markTxMissing(log.TxHash)

	err := handlers.HandleItemPurchased(context.Background(), &log, purchaseEventData("apple", 3))
	require.ErrorIs(t, err, ethclient.ErrTxNotFound)
	require.Equal(t, 1, client.transactionCalls(), "missing transaction must not be retried")
	require.Equal(t, 0, receipts.Len())
}

func TestParsePurchaseEvent(t *testing.T) {
	t.Parallel()

	event, err := parsePurchaseEvent(purchaseEventData("apple", 3))
	require.NoError(t, err)
	require.Equal(t, &entity.PurchaseEvent{Item: "apple", Quantity: 3}, event)

	testCases := []struct {
		name string
		data map[string]interface{}
	}{
		{"missing item", map[string]interface{}{"quantity": big.NewInt(3)}},
		{"item of a wrong type", map[string]interface{}{"item": common.Hash{}, "quantity": big.NewInt(3)}},
		{"missing quantity", map[string]interface{}{"item": "apple"}},
		{"quantity of a wrong type", map[string]interface{}{"item": "apple", "quantity": uint64(3)}},
		{"quantity past uint64", map[string]interface{}{"item": "apple", "quantity": new(big.Int).Lsh(big.NewInt(1), 200)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parsePurchaseEvent(tc.data)
			require.ErrorIs(t, err, ErrInvalidEventData)
		})
	}
}
