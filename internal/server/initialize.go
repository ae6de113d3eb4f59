package server

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/hooks"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Backend is how the services reach the chain. Caller serves marketplace
// reads on the marketplace network; Wallet signs and submits writes.
type Backend struct {
	Pool   *services.RPCClientPool
	Caller ethereum.ContractCaller
	Wallet services.WalletSession
}

// Close releases the pooled RPC connections, if any
func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// NewRPCBackend dials lazily through the network table. Writes are signed
// with WALLET_PRIVATE_KEY, or in the user's browser when WALLET_MODE=browser.
func NewRPCBackend(cfg *config.Config) (*Backend, error) {
	pool := services.NewRPCClientPool(cfg.Networks)
	if cfg.BrowserWallet() {
		wallet := services.NewBrowserWallet(pool, cfg.MarketplaceChainID, cfg.SigningTimeout)
		logrus.WithField("signing_timeout", cfg.SigningTimeout).Info("writes will be signed in the browser")
		return &Backend{
			Pool:   pool,
			Caller: pool.Caller(cfg.MarketplaceChainID),
			Wallet: wallet,
		}, nil
	}

	wallet, err := services.NewKeyedWalletSession(pool, cfg.WalletPrivateKey, cfg.MarketplaceChainID)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Pool:   pool,
		Caller: pool.Caller(cfg.MarketplaceChainID),
		Wallet: wallet,
	}, nil
}

// Services is the wired service graph shared by the API server and the MCP server
type Services struct {
	Config       *config.Config
	Chains       services.ChainService
	Transactions services.TransactionService
	Hooks        services.HookService
	Listings     services.ListingService
	Discovery    services.DiscoveryService
	Marketplace  services.MarketplaceService
	Wallet       services.WalletSession
}

// Close stops pending receipt watches
func (s *Services) Close() {
	if s.Marketplace != nil {
		s.Marketplace.Close()
	}
}

func InitializeServices(cfg *config.Config, db *gorm.DB, backend *Backend) (*Services, error) {
	if backend == nil || backend.Caller == nil || backend.Wallet == nil {
		return nil, errors.New("a chain backend with a caller and a wallet is required")
	}

	network := cfg.MarketplaceNetwork()
	address := cfg.MarketplaceContractAddress(network)

	chainService := services.NewChainService(db)
	if err := chainService.SyncNetworks(cfg.Networks.All()); err != nil {
		return nil, fmt.Errorf("failed to sync network table: %w", err)
	}
	// keep a previously selected network, otherwise start on the marketplace network
	if _, err := chainService.GetActiveChain(); err != nil {
		if err := chainService.SetActiveChainByNetworkID(network.ChainID); err != nil {
			return nil, fmt.Errorf("failed to select marketplace network: %w", err)
		}
	}

	contract, err := services.NewMarketplaceContract(common.HexToAddress(address), network.ChainID, backend.Caller)
	if err != nil {
		return nil, fmt.Errorf("failed to bind marketplace contract: %w", err)
	}

	txService := services.NewTransactionService(db)
	hookService := services.NewHookService()
	listingService := services.NewListingService(db, contract)
	discoveryService := services.NewDiscoveryService(listingService, services.DiscoveryOptions{
		StartID:                1,
		MaxID:                  cfg.DiscoveryMaxID,
		MaxConsecutiveFailures: cfg.DiscoveryMaxConsecutiveFailures,
	}, cfg.RPCRateLimit)

	marketplaceService, err := services.NewMarketplaceService(services.MarketplaceServiceConfig{
		Contract:            contract,
		Wallet:              backend.Wallet,
		Networks:            cfg.Networks,
		Chains:              chainService,
		Transactions:        txService,
		Hooks:               hookService,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
	})
	if err != nil {
		return nil, err
	}

	if err := RegisterHooks(hookService, InitializeHooks(listingService)...); err != nil {
		marketplaceService.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"chain_id":    network.ChainID,
		"marketplace": address,
		"wallet":      backend.Wallet.Account().Address,
	}).Info("marketplace services initialized")

	return &Services{
		Config:       cfg,
		Chains:       chainService,
		Transactions: txService,
		Hooks:        hookService,
		Listings:     listingService,
		Discovery:    discoveryService,
		Marketplace:  marketplaceService,
		Wallet:       backend.Wallet,
	}, nil
}

func InitializeHooks(listingService services.ListingService) []services.Hook {
	return []services.Hook{
		hooks.NewListingRefreshHook(listingService),
	}
}

func RegisterHooks(hookService services.HookService, registered ...services.Hook) error {
	for _, hook := range registered {
		if err := hookService.AddHook(hook); err != nil {
			return fmt.Errorf("failed to register hook: %w", err)
		}
	}
	return nil
}
