package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type getListingFeeTool struct {
	listingService     services.ListingService
	marketplaceService services.MarketplaceService
}

func NewGetListingFeeTool(listingService services.ListingService, marketplaceService services.MarketplaceService) *getListingFeeTool {
	return &getListingFeeTool{
		listingService:     listingService,
		marketplaceService: marketplaceService,
	}
}

func (g *getListingFeeTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_listing_fee",
		mcp.WithDescription("Read the current listing fee charged by the marketplace contract when creating a listing."),
	)
}

func (g *getListingFeeTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fee, err := g.listingService.ListingFee(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read listing fee: %v", err)), nil
		}
		return jsonResult("Listing fee: ", services.NewFeeView(fee, g.marketplaceService.RequiredNetwork()))
	}
}
