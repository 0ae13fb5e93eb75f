package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PurchaseReceipt is the enriched record of a single ItemPurchased event.
// TxHash doubles as the identity of the receipt, there is at most one
// ItemPurchased event per shop transaction. Value is the wei attached to the
// purchase transaction as mined, it is not recomputed from the item price
// and may differ from price*quantity if the price changed before mining.
type PurchaseReceipt struct {
	TxHash   common.Hash
	Item     string
	Quantity uint
	Value    *big.Int
	From     common.Address
}

// ReceiptsLedger is the in-memory collection of receipts recorded during the
// lifetime of the process. Implementations are safe for concurrent use.
type ReceiptsLedger interface {
	// Upsert records the receipt under its TxHash and reports whether the
	// hash was seen for the first time. Re-upserting an already recorded
	// receipt keeps the existing entry.
	Upsert(receipt *PurchaseReceipt) bool
	Get(txHash common.Hash) *PurchaseReceipt
	Len() int
}
