package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PurchaseEvent holds the decoded arguments of an ItemPurchased log before
// it is enriched with transaction details.
type PurchaseEvent struct {
	Item     string
	Quantity uint
}

// TransactionMeta carries the fields of the purchase transaction that end up
// in the receipt.
type TransactionMeta struct {
	Hash  common.Hash
	From  common.Address
	Value *big.Int
}
