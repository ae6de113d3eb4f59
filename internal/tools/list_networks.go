package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type listNetworksTool struct {
	chainService       services.ChainService
	marketplaceService services.MarketplaceService
}

type NetworkSummary struct {
	ChainID       uint64   `json:"chain_id"`
	Name          string   `json:"name"`
	NativeSymbol  string   `json:"native_symbol"`
	RPCURLs       []string `json:"rpc_urls"`
	WSURLs        []string `json:"ws_urls,omitempty"`
	ExplorerURL   string   `json:"explorer_url"`
	IsActive      bool     `json:"is_active"`
	IsMarketplace bool     `json:"is_marketplace"`
}

type ListNetworksResult struct {
	Networks           []NetworkSummary `json:"networks"`
	Total              int              `json:"total"`
	MarketplaceChainID uint64           `json:"marketplace_chain_id"`
}

func NewListNetworksTool(chainService services.ChainService, marketplaceService services.MarketplaceService) *listNetworksTool {
	return &listNetworksTool{
		chainService:       chainService,
		marketplaceService: marketplaceService,
	}
}

func (l *listNetworksTool) GetTool() mcp.Tool {
	return mcp.NewTool("list_networks",
		mcp.WithDescription("List the supported networks with their RPC endpoints and explorers. Marks the network the wallet is on and the network the marketplace contract lives on."),
	)
}

func (l *listNetworksTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chains, err := l.chainService.ListChains()
		if err != nil {
			return mcp.NewToolResultError("Error listing networks: " + err.Error()), nil
		}

		marketplaceChainID := l.marketplaceService.RequiredNetwork().ChainID
		result := ListNetworksResult{
			Networks:           make([]NetworkSummary, 0, len(chains)),
			MarketplaceChainID: marketplaceChainID,
		}
		for _, chain := range chains {
			result.Networks = append(result.Networks, NetworkSummary{
				ChainID:       chain.NetworkID,
				Name:          chain.Name,
				NativeSymbol:  chain.NativeSymbol,
				RPCURLs:       chain.RPCURLs,
				WSURLs:        chain.WSURLs,
				ExplorerURL:   chain.ExplorerURL,
				IsActive:      chain.IsActive,
				IsMarketplace: chain.NetworkID == marketplaceChainID,
			})
		}
		result.Total = len(result.Networks)

		return jsonResult("Networks listed: ", result)
	}
}
