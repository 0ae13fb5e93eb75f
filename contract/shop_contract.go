package contract

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethshop/shop-indexer/contract/abi"
)

// ShopContract associates a deployed contract address with its ABI.
type ShopContract struct {
	address common.Address
	abi     abi.ABI
}

func NewShopContract(addr common.Address, abi abi.ABI) *ShopContract {
	return &ShopContract{addr, abi}
}

func (c *ShopContract) Address() common.Address {
	return c.address
}

func (c *ShopContract) AllEvents() map[string]bool {
	return c.abi.AllEvents()
}

// EventBySignature returns the event whose canonical signature matches sig,
// nil if the ABI has no such event.
func (c *ShopContract) EventBySignature(sig string) *ethabi.Event {
	for _, event := range c.abi.Events {
		if event.String() == sig {
			return &event
		}
	}
	return nil
}

// EventIDs maps canonical event signatures to their topic0 hashes, sorted for
// a stable filter query. Unknown signatures are skipped.
func (c *ShopContract) EventIDs(sigs ...string) []common.Hash {
	ids := make([]common.Hash, 0, len(sigs))
	for _, sig := range sigs {
		if event := c.EventBySignature(sig); event != nil {
			ids = append(ids, event.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Hex() < ids[j].Hex()
	})
	return ids
}

func (c *ShopContract) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	return c.abi.ParseLog(log)
}

// FilterQuery builds a logs query for this contract limited to the given
// topic0 values. Nil block bounds leave the respective side of the range
// open, which is what a live subscription uses.
func (c *ShopContract) FilterQuery(fromBlock, toBlock *big.Int, topics []common.Hash) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{c.address},
	}
	if len(topics) > 0 {
		q.Topics = [][]common.Hash{topics}
	}
	return q
}
