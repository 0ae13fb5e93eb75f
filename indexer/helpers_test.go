package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ethshop/shop-indexer/config"
	"github.com/ethshop/shop-indexer/contract/shopabi"
	"github.com/ethshop/shop-indexer/ethclient"
	"github.com/ethshop/shop-indexer/ledger"
	"github.com/ethshop/shop-indexer/logging"
)

var (
	shopAddr  = common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")
	buyerAddr = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")

	errRPCDown = errors.New("rpc connection lost")
)

type fakeSubscription struct {
	errChan chan error
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errChan: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error { return s.errChan }

func (s *fakeSubscription) Unsubscribe() {}

// fakeClient implements ethclient.Client on top of a static set of logs and
// transactions. Error counters make the next N calls of the corresponding
// method fail, which drives the retry and resubscription paths.
type fakeClient struct {
	mu sync.Mutex

	head     uint
	headBump uint

	headErrs   int
	filterErrs int
	subErrs    int
	txErrs     int

	logs       []types.Log
	txs        map[common.Hash]*types.Transaction
	senders    map[common.Hash]common.Address
	missingTxs map[common.Hash]bool

	headCalls        int
	filterQueries    []ethereum.FilterQuery
	subscribeQueries []ethereum.FilterQuery
	txCalls          int

	logsChans []chan<- types.Log
	subs      []*fakeSubscription
}

func newFakeClient(head uint) *fakeClient {
	return &fakeClient{
		head:       head,
		txs:        make(map[common.Hash]*types.Transaction),
		senders:    make(map[common.Hash]common.Address),
		missingTxs: make(map[common.Hash]bool),
	}
}

func (c *fakeClient) ChainID() string {
	return "1"
}

func (c *fakeClient) BlockNumber(_ context.Context) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headCalls++
	if c.headErrs > 0 {
		c.headErrs--
		return 0, errRPCDown
	}
	head := c.head
	c.head += c.headBump
	return head, nil
}

func (c *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterQueries = append(c.filterQueries, q)
	if c.filterErrs > 0 {
		c.filterErrs--
		return nil, errRPCDown
	}
	var res []types.Log
	for _, log := range c.logs {
		if matchesQuery(&log, q) {
			res = append(res, log)
		}
	}
	return res, nil
}

func (c *fakeClient) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.FilterLogs(ctx, q)
}

func (c *fakeClient) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeQueries = append(c.subscribeQueries, q)
	if c.subErrs > 0 {
		c.subErrs--
		return nil, errRPCDown
	}
	sub := newFakeSubscription()
	c.subs = append(c.subs, sub)
	c.logsChans = append(c.logsChans, ch)
	return sub, nil
}

func (c *fakeClient) TransactionByHash(_ context.Context, txHash common.Hash) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txCalls++
	if c.txErrs > 0 {
		c.txErrs--
		return nil, errRPCDown
	}
	tx, ok := c.txs[txHash]
	if !ok || c.missingTxs[txHash] {
		return nil, fmt.Errorf("transaction %s: %w", txHash, ethclient.ErrTxNotFound)
	}
	return tx, nil
}

func (c *fakeClient) TransactionSender(tx *types.Transaction) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sender, ok := c.senders[tx.Hash()]
	if !ok {
		return common.Address{}, errors.New("unknown transaction sender")
	}
	return sender, nil
}

func matchesQuery(log *types.Log, q ethereum.FilterQuery) bool {
	if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
		return false
	}
	if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
		if len(log.Topics) == 0 || !containsHash(q.Topics[0], log.Topics[0]) {
			return false
		}
	}
	return true
}

func containsAddress(addrs []common.Address, addr common.Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func containsHash(hashes []common.Hash, hash common.Hash) bool {
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}
	return false
}

func (c *fakeClient) addTransaction(txHash common.Hash, from common.Address, value *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(len(c.txs)),
		To:       &shopAddr,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	c.txs[txHash] = tx
	c.senders[tx.Hash()] = from
}

// newPurchaseLog registers the purchase transaction and returns its
// ItemPurchased log without adding it to the historical log set.
func (c *fakeClient) newPurchaseLog(t *testing.T, blockNumber uint64, index uint, item string, quantity int64, from common.Address, value int64) types.Log {
	t.Helper()
	log := types.Log{
		Address:     shopAddr,
		Topics:      []common.Hash{shopabi.ItemPurchasedEventSignature},
		Data:        packPurchaseData(t, item, quantity),
		BlockNumber: blockNumber,
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d-%d", blockNumber, index))),
		Index:       index,
	}
	c.addTransaction(log.TxHash, from, big.NewInt(value))
	return log
}

// addPurchase registers a purchase in the historical log set.
func (c *fakeClient) addPurchase(t *testing.T, blockNumber uint64, index uint, item string, quantity int64, from common.Address, value int64) types.Log {
	t.Helper()
	log := c.newPurchaseLog(t, blockNumber, index, item, quantity, from, value)
	c.addLog(log)
	return log
}

func (c *fakeClient) addLog(log types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
}

func (c *fakeClient) markTxMissing(txHash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missingTxs[txHash] = true
}

func (c *fakeClient) blockNumberCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headCalls
}

func (c *fakeClient) filterCalls() []ethereum.FilterQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), c.filterQueries...)
}

func (c *fakeClient) subscribeCalls() []ethereum.FilterQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), c.subscribeQueries...)
}

func (c *fakeClient) transactionCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCalls
}

func (c *fakeClient) pushLog(t *testing.T, log types.Log) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.logsChans, "no active subscription to push the log to")
	c.logsChans[len(c.logsChans)-1] <- log
}

func (c *fakeClient) failSubscription(t *testing.T, err error) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.subs, "no active subscription to fail")
	c.subs[len(c.subs)-1].errChan <- err
}

func packPurchaseData(t *testing.T, item string, quantity int64) []byte {
	t.Helper()
	data, err := shopabi.ShopABI.Events["ItemPurchased"].Inputs.Pack(item, big.NewInt(quantity))
	require.NoError(t, err)
	return data
}

func testIndexerConfig() *config.IndexerConfig {
	return &config.IndexerConfig{
		ContractAddress:   shopAddr,
		MaxBlockRangeSize: 500_000,
	}
}

var fastRetry = retryPolicy{attempts: 2, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}

func newTestLogger() (*logging.DefaultLogger, *logrustest.Hook) {
	logger := logging.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger, logrustest.NewLocal(logger.Logger)
}

// newTestIndexer builds an indexer over the fake client with retry and
// resubscription delays shrunk to keep the tests fast.
func newTestIndexer(t *testing.T, client *fakeClient, cfg *config.IndexerConfig) (*Indexer, *ledger.Ledger, *logrustest.Hook) {
	t.Helper()
	logger, hook := newTestLogger()
	receipts := ledger.New()

	idx, err := NewIndexer(logger, client, receipts, cfg)
	require.NoError(t, err)
	idx.retry = fastRetry
	idx.resubscribe = backoffPolicy{baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}

	handlers := NewShopEventHandler(logger, client, receipts)
	handlers.retry = fastRetry
	idx.RegisterEventHandler(shopabi.ItemPurchased, handlers.HandleItemPurchased)
	require.NoError(t, idx.VerifyEventHandlersABI())
	return idx, receipts, hook
}

func infoMessages(hook *logrustest.Hook, substr string) []string {
	var res []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.InfoLevel && strings.Contains(entry.Message, substr) {
			res = append(res, entry.Message)
		}
	}
	return res
}
