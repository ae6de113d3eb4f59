package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type discoverListingsTool struct {
	discoveryService   services.DiscoveryService
	marketplaceService services.MarketplaceService
}

type DiscoverListingsArguments struct {
	StartID                uint64 `json:"start_id,omitempty"`
	MaxID                  uint64 `json:"max_id,omitempty" validate:"omitempty,gtefield=StartID"`
	MaxConsecutiveFailures int    `json:"max_consecutive_failures,omitempty" validate:"gte=0"`
	Status                 string `json:"status,omitempty" validate:"omitempty,oneof=Available InEscrow AwaitingConfirmation Completed Cancelled InDispute"`
}

type DiscoverListingsResult struct {
	Listings   []services.ListingView `json:"listings"`
	Total      int                    `json:"total"`
	ScannedTo  uint64                 `json:"scanned_to"`
	StopReason string                 `json:"stop_reason"`
}

func NewDiscoverListingsTool(discoveryService services.DiscoveryService, marketplaceService services.MarketplaceService) *discoverListingsTool {
	return &discoverListingsTool{
		discoveryService:   discoveryService,
		marketplaceService: marketplaceService,
	}
}

func (d *discoverListingsTool) GetTool() mcp.Tool {
	return mcp.NewTool("discover_listings",
		mcp.WithDescription("Scan listing IDs from start_id upward and return the listings that exist, sorted by ID. The scan stops at max_id or after max_consecutive_failures missing IDs in a row."),
		mcp.WithNumber("start_id",
			mcp.Description("First listing ID to probe. Optional, defaults to 1."),
		),
		mcp.WithNumber("max_id",
			mcp.Description("Last listing ID to probe. Optional, defaults to the configured scan bound."),
		),
		mcp.WithNumber("max_consecutive_failures",
			mcp.Description("Stop after this many missing IDs in a row. Optional, defaults to the configured cutoff."),
		),
		mcp.WithString("status",
			mcp.Description("Only return listings in this status. Optional."),
			mcp.Enum("Available", "InEscrow", "AwaitingConfirmation", "Completed", "Cancelled", "InDispute"),
		),
	)
}

func (d *discoverListingsTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args DiscoverListingsArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		var status *models.ListingStatus
		if args.Status != "" {
			var parsed models.ListingStatus
			if err := parsed.UnmarshalText([]byte(args.Status)); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid status: %v", err)), nil
			}
			status = &parsed
		}

		discovered, err := d.discoveryService.DiscoverListings(ctx, services.DiscoveryOptions{
			StartID:                args.StartID,
			MaxID:                  args.MaxID,
			MaxConsecutiveFailures: args.MaxConsecutiveFailures,
		})
		if errors.Is(err, services.ErrInvalidDiscoveryRange) {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Discovery failed: %v", err)), nil
		}

		listings := discovered.Listings
		if status != nil {
			listings = filterByStatus(listings, *status)
		}

		result := DiscoverListingsResult{
			Listings:   services.NewListingViews(listings, d.marketplaceService.RequiredNetwork()),
			ScannedTo:  discovered.ScannedTo,
			StopReason: discovered.StopReason,
		}
		result.Total = len(result.Listings)
		return jsonResult("Listings discovered: ", result)
	}
}

func filterByStatus(listings []models.Listing, status models.ListingStatus) []models.Listing {
	filtered := make([]models.Listing, 0, len(listings))
	for _, listing := range listings {
		if listing.Status == status {
			filtered = append(filtered, listing)
		}
	}
	return filtered
}
