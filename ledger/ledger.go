package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethshop/shop-indexer/entity"
)

// Ledger is a synchronized in-memory implementation of entity.ReceiptsLedger.
// Receipts live for the lifetime of the process, there are no deletions.
type Ledger struct {
	mu       sync.RWMutex
	receipts map[common.Hash]*entity.PurchaseReceipt
}

func New() *Ledger {
	return &Ledger{
		receipts: make(map[common.Hash]*entity.PurchaseReceipt),
	}
}

// Upsert records the receipt under its TxHash. The first write for a hash
// wins, both producers deliver identical receipts for the same transaction,
// so a repeated upsert only signals a duplicate delivery.
func (l *Ledger) Upsert(receipt *entity.PurchaseReceipt) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.receipts[receipt.TxHash]; ok {
		DuplicateDeliveries.Inc()
		return false
	}
	l.receipts[receipt.TxHash] = receipt
	RecordedReceipts.Set(float64(len(l.receipts)))
	return true
}

func (l *Ledger) Get(txHash common.Hash) *entity.PurchaseReceipt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.receipts[txHash]
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.receipts)
}
