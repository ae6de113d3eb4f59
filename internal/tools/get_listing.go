package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type getListingTool struct {
	listingService     services.ListingService
	marketplaceService services.MarketplaceService
}

type ListingIDArguments struct {
	ListingID uint64 `json:"listing_id" validate:"gt=0"`
}

func NewGetListingTool(listingService services.ListingService, marketplaceService services.MarketplaceService) *getListingTool {
	return &getListingTool{
		listingService:     listingService,
		marketplaceService: marketplaceService,
	}
}

func (g *getListingTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_listing",
		mcp.WithDescription("Read one listing from the marketplace contract: seller, buyer, price, token and LP addresses, lock URL, contact method and status. Listings that were never created are reported as not found."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID (starts at 1)"),
		),
	)
}

func (g *getListingTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListingIDArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		listing, err := g.listingService.GetListing(ctx, args.ListingID)
		if err != nil {
			return readErrorResult(args.ListingID, err), nil
		}

		return jsonResult("Listing: ", services.NewListingView(*listing, g.marketplaceService.RequiredNetwork()))
	}
}
