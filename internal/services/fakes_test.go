package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/contracts"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testChainID         = uint64(56)
	testMarketplaceAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testSeller          = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testBuyer           = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	testToken           = "0x55d398326f99059fF775485246999027B3197955"
	testLP              = "0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Chain{},
		&models.Listing{},
		&models.MarketplaceTransaction{},
	)
	require.NoError(t, err, "Failed to run migrations")

	if testing.Verbose() {
		db = db.Debug()
	}
	return db
}

func testNetworks(t *testing.T) *config.NetworkTable {
	t.Helper()
	networks, err := config.DefaultNetworkTable()
	require.NoError(t, err)
	return networks
}

func wei(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	require.True(t, ok)
	return v
}

// fakeMarketplace answers eth_call for the marketplace ABI from in-memory state
type fakeMarketplace struct {
	abi abi.ABI

	mu       sync.Mutex
	listings map[uint64]onchainListing
	failures map[uint64]error
	expired  map[uint64]bool
	fee      *big.Int
	calls    map[string]int
}

func newFakeMarketplace(t *testing.T) *fakeMarketplace {
	t.Helper()
	parsed, err := contracts.MarketplaceABI()
	require.NoError(t, err)

	return &fakeMarketplace{
		abi:      parsed,
		listings: make(map[uint64]onchainListing),
		failures: make(map[uint64]error),
		expired:  make(map[uint64]bool),
		fee:      big.NewInt(10_000_000_000_000_000), // 0.01
		calls:    make(map[string]int),
	}
}

func emptyOnchainListing() onchainListing {
	return onchainListing{
		Id:                big.NewInt(0),
		Price:             big.NewInt(0),
		PurchaseTimestamp: big.NewInt(0),
		CreatedAt:         big.NewInt(0),
	}
}

func (f *fakeMarketplace) addListing(id uint64, price *big.Int, status models.ListingStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	listing := emptyOnchainListing()
	listing.Id = new(big.Int).SetUint64(id)
	listing.Seller = common.HexToAddress(testSeller)
	listing.Price = price
	listing.TokenAddress = common.HexToAddress(testToken)
	listing.LpAddress = common.HexToAddress(testLP)
	listing.LockUrl = fmt.Sprintf("https://example.com/lock/%d", id)
	listing.ContactMethod = "telegram: @seller"
	listing.Status = uint8(status)
	listing.CreatedAt = big.NewInt(1_700_000_000)
	if status != models.ListingStatusAvailable {
		listing.Buyer = common.HexToAddress(testBuyer)
		listing.PurchaseTimestamp = big.NewInt(1_700_000_500)
	}
	f.listings[id] = listing
}

func (f *fakeMarketplace) failLookup(id uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = err
}

func (f *fakeMarketplace) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeMarketplace) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeMarketplace) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method.Name]++

	switch method.Name {
	case "getListing":
		id := args[0].(*big.Int).Uint64()
		if err, ok := f.failures[id]; ok {
			return nil, err
		}
		listing, ok := f.listings[id]
		if !ok {
			listing = emptyOnchainListing()
		}
		return method.Outputs.Pack(listing)
	case "listingFee":
		return method.Outputs.Pack(f.fee)
	case "isConfirmationExpired":
		return method.Outputs.Pack(f.expired[args[0].(*big.Int).Uint64()])
	}
	return nil, fmt.Errorf("unexpected call to %s", method.Name)
}

// fakeWallet is a connected wallet that records every RPC it would make
type fakeWallet struct {
	caller ethereum.ContractCaller

	mu           sync.Mutex
	account      WalletAccount
	epoch        uint64
	writes       []WriteContractRequest
	writeErr     error
	writeBlock   chan struct{}
	nextHash     common.Hash
	receipts     map[common.Hash]*types.Receipt
	readCalls    int
	writeCalls   int
	receiptCalls int
	broadcasts   int
}

func newFakeWallet(caller ethereum.ContractCaller) *fakeWallet {
	return &fakeWallet{
		caller: caller,
		account: WalletAccount{
			Address:     testSeller,
			IsConnected: true,
			ChainID:     testChainID,
		},
		nextHash: common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (w *fakeWallet) rpcCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readCalls + w.writeCalls + w.receiptCalls
}

func (w *fakeWallet) writeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeCalls
}

func (w *fakeWallet) lastWrite() WriteContractRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[len(w.writes)-1]
}

func (w *fakeWallet) setReceipt(hash common.Hash, receipt *types.Receipt) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receipts[hash] = receipt
}

func (w *fakeWallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	w.mu.Lock()
	w.readCalls++
	w.mu.Unlock()
	return w.caller.CallContract(ctx, msg, blockNumber)
}

func (w *fakeWallet) Account() WalletAccount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

func (w *fakeWallet) NetworkEpoch() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.account.ChainID != chainID {
		w.account.ChainID = chainID
		w.epoch++
	}
	return nil
}

// broadcastCount counts writes that passed the network check and were sent
func (w *fakeWallet) broadcastCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broadcasts
}

func (w *fakeWallet) WriteContract(ctx context.Context, req WriteContractRequest) (common.Hash, error) {
	w.mu.Lock()
	w.writeCalls++
	w.writes = append(w.writes, req)
	if err := req.CheckTarget(w.account.ChainID, w.epoch); err != nil {
		w.mu.Unlock()
		return common.Hash{}, err
	}
	block := w.writeBlock
	err := w.writeErr
	hash := w.nextHash
	w.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return common.Hash{}, err
	}

	w.mu.Lock()
	w.broadcasts++
	w.mu.Unlock()
	return hash, nil
}

func (w *fakeWallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receiptCalls++
	receipt, ok := w.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// fakeRPCError mimics the JSON-RPC errors returned by nodes and wallets
type fakeRPCError struct {
	code int
	msg  string
	data interface{}
}

func (e *fakeRPCError) Error() string          { return e.msg }
func (e *fakeRPCError) ErrorCode() int         { return e.code }
func (e *fakeRPCError) ErrorData() interface{} { return e.data }

// countingHook counts confirmations per action
type countingHook struct {
	mu        sync.Mutex
	confirmed []models.MarketplaceTransaction
}

func (h *countingHook) CanHandle(action models.MarketplaceAction) bool { return true }

func (h *countingHook) OnTransactionConfirmed(tx models.MarketplaceTransaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirmed = append(h.confirmed, tx)
	return nil
}

func (h *countingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.confirmed)
}

type marketplaceEnv struct {
	db       *gorm.DB
	chain    *fakeMarketplace
	wallet   *fakeWallet
	contract *MarketplaceContract
	txs      TransactionService
	hook     *countingHook
	svc      MarketplaceService
}

func newMarketplaceEnv(t *testing.T) *marketplaceEnv {
	t.Helper()

	db := setupTestDB(t)
	chain := newFakeMarketplace(t)
	wallet := newFakeWallet(chain)

	contract, err := NewMarketplaceContract(common.HexToAddress(testMarketplaceAddr), testChainID, chain)
	require.NoError(t, err)

	hook := &countingHook{}
	hooks := NewHookService()
	require.NoError(t, hooks.AddHook(hook))

	chains := NewChainService(db)
	require.NoError(t, chains.SyncNetworks(testNetworks(t).All()))

	txs := NewTransactionService(db)
	svc, err := NewMarketplaceService(MarketplaceServiceConfig{
		Contract:            contract,
		Wallet:              wallet,
		Networks:            testNetworks(t),
		Chains:              chains,
		Transactions:        txs,
		Hooks:               hooks,
		ReceiptPollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &marketplaceEnv{
		db:       db,
		chain:    chain,
		wallet:   wallet,
		contract: contract,
		txs:      txs,
		hook:     hook,
		svc:      svc,
	}
}

// successReceipt builds a mined receipt, optionally carrying a ListingCreated log
func (e *marketplaceEnv) successReceipt(createdID uint64) *types.Receipt {
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(1234),
	}
	if createdID > 0 {
		event := e.contract.ABI().Events["ListingCreated"]
		receipt.Logs = []*types.Log{{
			Address: e.contract.Address(),
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(new(big.Int).SetUint64(createdID)),
				common.BytesToHash(common.HexToAddress(testSeller).Bytes()),
			},
		}}
	}
	return receipt
}
