// Package testutil provides an in-memory marketplace contract and wallet for
// exercising the API, MCP tools and binaries without a node.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/contracts"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

const (
	ChainID            = uint64(56)
	MarketplaceAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	Seller             = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	Buyer              = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	Token              = "0x55d398326f99059fF775485246999027B3197955"
	LP                 = "0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE"
)

// listingTuple mirrors the getListing output tuple
type listingTuple struct {
	Id                *big.Int
	Seller            common.Address
	Buyer             common.Address
	Price             *big.Int
	TokenAddress      common.Address
	LpAddress         common.Address
	LockUrl           string
	TransferProofHash string
	ContactMethod     string
	Status            uint8
	PurchaseTimestamp *big.Int
	CreatedAt         *big.Int
}

func emptyTuple() listingTuple {
	return listingTuple{
		Id:                big.NewInt(0),
		Price:             big.NewInt(0),
		PurchaseTimestamp: big.NewInt(0),
		CreatedAt:         big.NewInt(0),
	}
}

// Marketplace answers eth_call for the marketplace ABI from memory
type Marketplace struct {
	abi abi.ABI

	mu       sync.Mutex
	listings map[uint64]listingTuple
	nextID   uint64
	fee      *big.Int
	calls    int
}

func NewMarketplace() (*Marketplace, error) {
	parsed, err := contracts.MarketplaceABI()
	if err != nil {
		return nil, err
	}
	return &Marketplace{
		abi:      parsed,
		listings: make(map[uint64]listingTuple),
		nextID:   1,
		fee:      big.NewInt(10_000_000_000_000_000),
	}, nil
}

// AddListing stores a listing at the next free id and returns the id
func (m *Marketplace) AddListing(price *big.Int, status models.ListingStatus) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	listing := emptyTuple()
	listing.Id = new(big.Int).SetUint64(id)
	listing.Seller = common.HexToAddress(Seller)
	listing.Price = new(big.Int).Set(price)
	listing.TokenAddress = common.HexToAddress(Token)
	listing.LpAddress = common.HexToAddress(LP)
	listing.LockUrl = fmt.Sprintf("https://example.com/lock/%d", id)
	listing.ContactMethod = "telegram: @seller"
	listing.Status = uint8(status)
	listing.CreatedAt = big.NewInt(1_700_000_000)
	if status != models.ListingStatusAvailable {
		listing.Buyer = common.HexToAddress(Buyer)
		listing.PurchaseTimestamp = big.NewInt(1_700_000_500)
	}
	m.listings[id] = listing
	return id
}

// SkipID leaves a hole in the id sequence
func (m *Marketplace) SkipID() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
}

func (m *Marketplace) SetFee(fee *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fee = fee
}

func (m *Marketplace) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Marketplace) setStatus(id uint64, status models.ListingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if listing, ok := m.listings[id]; ok {
		listing.Status = uint8(status)
		m.listings[id] = listing
	}
}

func (m *Marketplace) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := m.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	switch method.Name {
	case "getListing":
		listing, ok := m.listings[args[0].(*big.Int).Uint64()]
		if !ok {
			listing = emptyTuple()
		}
		return method.Outputs.Pack(listing)
	case "listingFee":
		return method.Outputs.Pack(m.fee)
	case "isConfirmationExpired":
		return method.Outputs.Pack(false)
	}
	return nil, fmt.Errorf("unexpected call to %s", method.Name)
}

// Wallet is a connected wallet whose transactions are mined immediately
// against a Marketplace
type Wallet struct {
	market *Marketplace

	mu       sync.Mutex
	account  services.WalletAccount
	epoch    uint64
	nonce    uint64
	receipts map[common.Hash]*types.Receipt
	writes   []services.WriteContractRequest
	WriteErr error
}

func NewWallet(market *Marketplace) *Wallet {
	return &Wallet{
		market: market,
		account: services.WalletAccount{
			Address:     Seller,
			IsConnected: true,
			ChainID:     ChainID,
		},
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

// Disconnect drops the account so writes fail before any RPC
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.account.IsConnected = false
	w.account.Address = ""
}

func (w *Wallet) Writes() []services.WriteContractRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]services.WriteContractRequest(nil), w.writes...)
}

func (w *Wallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return w.market.CallContract(ctx, msg, blockNumber)
}

func (w *Wallet) Account() services.WalletAccount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

func (w *Wallet) NetworkEpoch() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.account.ChainID != chainID {
		w.account.ChainID = chainID
		w.epoch++
	}
	return nil
}

func (w *Wallet) WriteContract(ctx context.Context, req services.WriteContractRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writes = append(w.writes, req)
	if err := req.CheckTarget(w.account.ChainID, w.epoch); err != nil {
		return common.Hash{}, err
	}
	if w.WriteErr != nil {
		return common.Hash{}, w.WriteErr
	}

	w.nonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", req.Method, w.nonce)))
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: new(big.Int).SetUint64(1000 + w.nonce),
		TxHash:      hash,
	}

	switch req.Method {
	case "createListing":
		price := req.Args[0].(*big.Int)
		id := w.market.AddListing(price, models.ListingStatusAvailable)
		receipt.Logs = []*types.Log{{
			Address: req.To,
			Topics: []common.Hash{
				req.ABI.Events["ListingCreated"].ID,
				common.BigToHash(new(big.Int).SetUint64(id)),
				common.BytesToHash(common.HexToAddress(w.account.Address).Bytes()),
			},
		}}
	case "purchaseListing":
		w.market.setStatus(req.Args[0].(*big.Int).Uint64(), models.ListingStatusInEscrow)
	case "cancelListing":
		w.market.setStatus(req.Args[0].(*big.Int).Uint64(), models.ListingStatusCancelled)
	}

	w.receipts[hash] = receipt
	return hash, nil
}

func (w *Wallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	receipt, ok := w.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// Config returns a configuration for the in-memory chain with fast polling
func Config() (*config.Config, error) {
	networks, err := config.DefaultNetworkTable()
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{
		Settings: config.Settings{
			Port:                            8080,
			MarketplaceChainID:              ChainID,
			MarketplaceAddress:              MarketplaceAddress,
			DiscoveryMaxID:                  20,
			DiscoveryMaxConsecutiveFailures: 3,
			ReceiptPollInterval:             5 * time.Millisecond,
		},
		Networks: networks,
	}
	return cfg, cfg.Validate()
}

// Backend wires a Marketplace and a Wallet over it
func Backend() (*Marketplace, *Wallet, error) {
	market, err := NewMarketplace()
	if err != nil {
		return nil, nil, err
	}
	return market, NewWallet(market), nil
}

// Reader serves a BrowserWallet's reads from a Marketplace. Receipts exist
// only once a test adds them, like a node that has not mined the hash yet.
type Reader struct {
	market *Marketplace

	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
}

func NewReader(market *Marketplace) *Reader {
	return &Reader{market: market, receipts: make(map[common.Hash]*types.Receipt)}
}

// AddReceipt marks hash as mined with the given status
func (r *Reader) AddReceipt(hash common.Hash, status uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[hash] = &types.Receipt{
		Status:      status,
		BlockNumber: big.NewInt(2000),
		TxHash:      hash,
	}
}

func (r *Reader) CallContractOn(ctx context.Context, chainID uint64, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if chainID != ChainID {
		return nil, fmt.Errorf("chain %d is not in the network table", chainID)
	}
	return r.market.CallContract(ctx, msg, blockNumber)
}

func (r *Reader) TransactionReceiptOn(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[hash]
	if !ok || chainID != ChainID {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}
