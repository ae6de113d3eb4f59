package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type switchNetworkTool struct {
	marketplaceService services.MarketplaceService
}

type SwitchNetworkArguments struct {
	ChainID uint64 `json:"chain_id" validate:"required"`
}

func NewSwitchNetworkTool(marketplaceService services.MarketplaceService) *switchNetworkTool {
	return &switchNetworkTool{marketplaceService: marketplaceService}
}

func (s *switchNetworkTool) GetTool() mcp.Tool {
	return mcp.NewTool("switch_network",
		mcp.WithDescription("Switch the wallet to another network from the network table. Writes only succeed on the marketplace network; a transaction still pending when the network changes is reported as stale."),
		mcp.WithNumber("chain_id",
			mcp.Required(),
			mcp.Description("Chain ID to switch to (e.g., 56 for BNB Smart Chain)"),
		),
	)
}

func (s *switchNetworkTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SwitchNetworkArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		account, err := s.marketplaceService.SwitchNetwork(ctx, args.ChainID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to switch network: %v", err)), nil
		}

		return jsonResult("Network switched: ", NewWalletStatus(account, s.marketplaceService))
	}
}
