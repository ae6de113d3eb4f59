package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

// The write tools bind straight into the service intents; validation happens
// in the service so every entry point reports the same messages.

type createListingTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewCreateListingTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *createListingTool {
	return &createListingTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (c *createListingTool) GetTool() mcp.Tool {
	return mcp.NewTool("create_listing",
		mcp.WithDescription("List an LP position for sale. Sends the current listing fee as the transaction value; the price is what the buyer will pay. Returns the pending transaction with its explorer link."),
		mcp.WithString("price",
			mcp.Required(),
			mcp.Description("Asking price in whole native units (e.g., \"1.5\" for 1.5 BNB)"),
		),
		mcp.WithString("token_address",
			mcp.Required(),
			mcp.Description("Address of the token paired in the LP (0x followed by 40 hex characters)"),
		),
		mcp.WithString("lp_address",
			mcp.Required(),
			mcp.Description("Address of the LP token being sold"),
		),
		mcp.WithString("lock_url",
			mcp.Required(),
			mcp.Description("http(s) URL of the liquidity lock"),
		),
		mcp.WithString("contact_method",
			mcp.Required(),
			mcp.Description("How the buyer reaches the seller (e.g., \"telegram: @handle\")"),
		),
	)
}

func (c *createListingTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.CreateListingIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return c.respond(c.marketplaceService.CreateListing(ctx, intent))
	}
}

type purchaseListingTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewPurchaseListingTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *purchaseListingTool {
	return &purchaseListingTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (p *purchaseListingTool) GetTool() mcp.Tool {
	return mcp.NewTool("purchase_listing",
		mcp.WithDescription("Buy a listing. Sends the listing's current on-chain price as the transaction value and moves the listing into escrow."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID to purchase"),
		),
	)
}

func (p *purchaseListingTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.ListingActionIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return p.respond(p.marketplaceService.PurchaseListing(ctx, intent))
	}
}

type submitTransferProofTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewSubmitTransferProofTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *submitTransferProofTool {
	return &submitTransferProofTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (s *submitTransferProofTool) GetTool() mcp.Tool {
	return mcp.NewTool("submit_transfer_proof",
		mcp.WithDescription("Seller submits the hash of the transaction that transferred the LP to the buyer."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID in escrow"),
		),
		mcp.WithString("transfer_proof_hash",
			mcp.Required(),
			mcp.Description("Hash of the LP transfer transaction"),
		),
	)
}

func (s *submitTransferProofTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.TransferProofIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return s.respond(s.marketplaceService.SubmitTransferProof(ctx, intent))
	}
}

type confirmReceiptTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewConfirmReceiptTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *confirmReceiptTool {
	return &confirmReceiptTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (c *confirmReceiptTool) GetTool() mcp.Tool {
	return mcp.NewTool("confirm_receipt",
		mcp.WithDescription("Buyer confirms the LP arrived, releasing the escrowed payment to the seller."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID awaiting confirmation"),
		),
	)
}

func (c *confirmReceiptTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.ListingActionIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return c.respond(c.marketplaceService.ConfirmReceipt(ctx, intent))
	}
}

type editPriceTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewEditPriceTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *editPriceTool {
	return &editPriceTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (e *editPriceTool) GetTool() mcp.Tool {
	return mcp.NewTool("edit_price",
		mcp.WithDescription("Seller changes the asking price of an available listing."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID to reprice"),
		),
		mcp.WithString("new_price",
			mcp.Required(),
			mcp.Description("New price in whole native units (e.g., \"2\")"),
		),
	)
}

func (e *editPriceTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.EditPriceIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return e.respond(e.marketplaceService.EditPrice(ctx, intent))
	}
}

type cancelListingTool struct {
	marketplaceService services.MarketplaceService
	writeResponder
}

func NewCancelListingTool(marketplaceService services.MarketplaceService, baseURL string, serverPort int) *cancelListingTool {
	return &cancelListingTool{
		marketplaceService: marketplaceService,
		writeResponder:     writeResponder{baseURL: baseURL, serverPort: serverPort},
	}
}

func (c *cancelListingTool) GetTool() mcp.Tool {
	return mcp.NewTool("cancel_listing",
		mcp.WithDescription("Seller withdraws an available listing."),
		mcp.WithNumber("listing_id",
			mcp.Required(),
			mcp.Description("Listing ID to cancel"),
		),
	)
}

func (c *cancelListingTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var intent services.ListingActionIntent
		if err := request.BindArguments(&intent); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}
		return c.respond(c.marketplaceService.CancelListing(ctx, intent))
	}
}
