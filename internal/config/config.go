package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
)

const (
	WalletModeKeyed   = "keyed"
	WalletModeBrowser = "browser"
)

// Settings are the values decoded from the environment
type Settings struct {
	Port        int    `env:"PORT,default=8080"`
	BaseURL     string `env:"BASE_URL"`
	PostgresURL string `env:"POSTGRES_URL"`
	DBPath      string `env:"MARKETPLACE_DB_PATH"`

	NetworksFile       string `env:"NETWORKS_FILE"`
	MarketplaceChainID uint64 `env:"MARKETPLACE_CHAIN_ID,default=56"`
	MarketplaceAddress string `env:"MARKETPLACE_ADDRESS"`

	// WalletMode is "keyed" to sign with WALLET_PRIVATE_KEY or "browser" to
	// hand each write to the user's wallet through the signing page
	WalletMode       string        `env:"WALLET_MODE,default=keyed"`
	WalletPrivateKey string        `env:"WALLET_PRIVATE_KEY"`
	SigningTimeout   time.Duration `env:"SIGNING_TIMEOUT,default=15m"`

	DiscoveryMaxID                  uint64        `env:"DISCOVERY_MAX_ID,default=100"`
	DiscoveryMaxConsecutiveFailures int           `env:"DISCOVERY_MAX_CONSECUTIVE_FAILURES,default=5"`
	RPCRateLimit                    float64       `env:"RPC_RATE_LIMIT,default=10"`
	ReceiptPollInterval             time.Duration `env:"RECEIPT_POLL_INTERVAL,default=2s"`

	JWTSecret   string `env:"JWT_SECRET"`
	JWKSURI     string `env:"JWKS_URI"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	// OAuthAuthorizationServer is advertised in the protected resource metadata
	OAuthAuthorizationServer string `env:"OAUTH_AUTHORIZATION_SERVER"`
}

// Config holds the process configuration. It is loaded once at startup and
// passed explicitly to every service that needs it.
type Config struct {
	Settings

	Networks *NetworkTable
}

// Load decodes the configuration from the environment and loads the network table
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg.Settings); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	networks, err := LoadNetworkTable(cfg.NetworksFile)
	if err != nil {
		return nil, err
	}
	cfg.Networks = networks

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Networks == nil {
		return fmt.Errorf("network table not loaded")
	}
	network, ok := c.Networks.Get(c.MarketplaceChainID)
	if !ok {
		return fmt.Errorf("marketplace chain %d is not in the network table", c.MarketplaceChainID)
	}
	address := c.MarketplaceContractAddress(network)
	if address == "" {
		return fmt.Errorf("marketplace address is not configured for chain %d", c.MarketplaceChainID)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid marketplace address: %s", address)
	}
	if c.DiscoveryMaxID == 0 {
		return fmt.Errorf("DISCOVERY_MAX_ID must be positive")
	}
	if c.DiscoveryMaxConsecutiveFailures <= 0 {
		return fmt.Errorf("DISCOVERY_MAX_CONSECUTIVE_FAILURES must be positive")
	}
	switch c.WalletMode {
	case "", WalletModeKeyed, WalletModeBrowser:
	default:
		return fmt.Errorf("WALLET_MODE must be %q or %q, got %q", WalletModeKeyed, WalletModeBrowser, c.WalletMode)
	}
	if c.WalletMode == WalletModeBrowser && c.SigningTimeout <= 0 {
		return fmt.Errorf("SIGNING_TIMEOUT must be positive")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("RECEIPT_POLL_INTERVAL must be positive")
	}
	return nil
}

// MarketplaceNetwork returns the network the marketplace contract is deployed on
func (c *Config) MarketplaceNetwork() Network {
	network, _ := c.Networks.Get(c.MarketplaceChainID)
	return network
}

// MarketplaceContractAddress resolves the contract address, preferring the
// per-network entry over MARKETPLACE_ADDRESS.
func (c *Config) MarketplaceContractAddress(network Network) string {
	if network.MarketplaceAddress != "" {
		return network.MarketplaceAddress
	}
	return c.MarketplaceAddress
}

// BrowserWallet reports whether writes are signed in the user's browser
func (c *Config) BrowserWallet() bool {
	return c.WalletMode == WalletModeBrowser
}

// AuthEnabled reports whether bearer tokens can be verified
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != "" || c.JWKSURI != ""
}

// SqlitePath returns the sqlite database path, defaulting to ~/lp-marketplace.db
func (c *Config) SqlitePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	homePath, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homePath, "lp-marketplace.db"), nil
}
