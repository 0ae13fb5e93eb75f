package shopabi

//nolint:golint
import (
	_ "embed"

	"github.com/ethshop/shop-indexer/contract/abi"
)

//go:embed shop.json
var shopJSONABI string

const (
	ItemPurchased = "event ItemPurchased(string item, uint256 quantity)"
	ItemUpdated   = "event ItemUpdated(string item, uint256 price, uint256 stock)"
)

var (
	ShopABI = abi.MustReadABI(shopJSONABI)

	ItemPurchasedEventSignature = ShopABI.Events["ItemPurchased"].ID
	ItemUpdatedEventSignature   = ShopABI.Events["ItemUpdated"].ID
)
