package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

type isConfirmationExpiredTool struct {
	listingService services.ListingService
}

func NewIsConfirmationExpiredTool(listingService services.ListingService) *isConfirmationExpiredTool {
	return &isConfirmationExpiredTool{listingService: listingService}
}

func (i *isConfirmationExpiredTool) GetTool() mcp.Tool {
	return mcp.NewTool("is_confirmation_expired",
		mcp.WithDescription("Check whether the buyer's confirmation window for a listing has expired."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID (starts at 1)"),
		),
	)
}

func (i *isConfirmationExpiredTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListingIDArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		expired, err := i.listingService.IsConfirmationExpired(ctx, args.ListingID)
		if err != nil {
			return readErrorResult(args.ListingID, err), nil
		}

		return jsonResult("Confirmation window: ", map[string]interface{}{
			"listing_id": args.ListingID,
			"expired":    expired,
		})
	}
}
