package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
)

type walletStatusTool struct {
	marketplaceService services.MarketplaceService
	baseURL            string
	serverPort         int
}

// WalletStatus is the wallet account plus whether it can write to the marketplace
type WalletStatus struct {
	services.WalletAccount
	RequiredChainID   uint64 `json:"required_chain_id"`
	RequiredNetwork   string `json:"required_network"`
	OnRequiredNetwork bool   `json:"on_required_network"`
	// ConnectURL is the page that links the user's browser wallet, when writes are signed there
	ConnectURL string `json:"connect_url,omitempty"`
}

// NewWalletStatus reports the account against the marketplace network
func NewWalletStatus(account services.WalletAccount, marketplaceService services.MarketplaceService) WalletStatus {
	required := marketplaceService.RequiredNetwork()
	return WalletStatus{
		WalletAccount:     account,
		RequiredChainID:   required.ChainID,
		RequiredNetwork:   required.Name,
		OnRequiredNetwork: account.ChainID == required.ChainID,
	}
}

// WithConnectURL adds the connect page link when wallet signs in the browser
func (s WalletStatus) WithConnectURL(wallet services.WalletSession, baseURL string, serverPort int) WalletStatus {
	browser, ok := wallet.(*services.BrowserWallet)
	if !ok {
		return s
	}
	if url, err := utils.GetWalletConnectUrl(baseURL, serverPort, browser.ConnectToken()); err == nil {
		s.ConnectURL = url
	}
	return s
}

func NewWalletStatusTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *walletStatusTool {
	return &walletStatusTool{
		marketplaceService: marketplaceService,
		baseURL:            baseURL,
		serverPort:         serverPort,
	}
}

func (w *walletStatusTool) GetTool() mcp.Tool {
	return mcp.NewTool("wallet_status",
		mcp.WithDescription("Show the connected wallet address, its current network and whether it is on the marketplace network."),
	)
}

func (w *walletStatusTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet := w.marketplaceService.Wallet()
		status := NewWalletStatus(wallet.Account(), w.marketplaceService).WithConnectURL(wallet, w.baseURL, w.serverPort)
		if status.ConnectURL != "" && !status.IsConnected {
			return jsonResult("Wallet not connected. Open connect_url in a browser with your wallet extension: ", status)
		}
		return jsonResult("Wallet status: ", status)
	}
}
