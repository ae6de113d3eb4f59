package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	app "github.com/rxtech-lab/lp-marketplace-mcp/internal/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/tools"
)

type MCPServer struct {
	server   *server.MCPServer
	services *app.Services
}

type registrable interface {
	GetTool() mcp.Tool
	GetHandler() server.ToolHandlerFunc
}

func NewMCPServer(services *app.Services, serverPort int) *MCPServer {
	mcpServer := &MCPServer{
		services: services,
	}
	mcpServer.InitializeTools(services, serverPort)
	return mcpServer
}

func (s *MCPServer) InitializeTools(services *app.Services, serverPort int) {
	srv := server.NewMCPServer(
		"LP Marketplace MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv.AddPrompt(mcp.NewPrompt("lp-marketplace-usage",
		mcp.WithPromptDescription("Instructions and guidance for using the LP marketplace tools"),
		mcp.WithArgument("tool_category",
			mcp.ArgumentDescription("Category of tools to get instructions for (network, listings, trading, or all)"),
			mcp.RequiredArgument(),
		),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		category := request.Params.Arguments["tool_category"]
		if category == "" {
			return nil, fmt.Errorf("tool_category is required")
		}

		return mcp.NewGetPromptResult(
			fmt.Sprintf("LP Marketplace Tools - %s", category),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleUser,
					mcp.NewTextContent(getToolInstructions(category)),
				),
			},
		), nil
	})

	baseURL := services.Config.BaseURL
	registered := []registrable{
		// Network tools
		tools.NewListNetworksTool(services.Chains, services.Marketplace),
		tools.NewSwitchNetworkTool(services.Marketplace),
		tools.NewWalletStatusTool(services.Marketplace, baseURL, serverPort),

		// Read-only listing tools
		tools.NewGetListingTool(services.Listings, services.Marketplace),
		tools.NewGetListingFeeTool(services.Listings, services.Marketplace),
		tools.NewIsConfirmationExpiredTool(services.Listings),
		tools.NewDiscoverListingsTool(services.Discovery, services.Marketplace),

		// Trading tools
		tools.NewCreateListingTool(services.Marketplace, baseURL, serverPort),
		tools.NewPurchaseListingTool(services.Marketplace, baseURL, serverPort),
		tools.NewSubmitTransferProofTool(services.Marketplace, baseURL, serverPort),
		tools.NewConfirmReceiptTool(services.Marketplace, baseURL, serverPort),
		tools.NewEditPriceTool(services.Marketplace, baseURL, serverPort),
		tools.NewCancelListingTool(services.Marketplace, baseURL, serverPort),
		tools.NewGetTransactionTool(services.Transactions, services.Marketplace),
	}
	for _, tool := range registered {
		srv.AddTool(tool.GetTool(), tool.GetHandler())
	}

	s.server = srv
}

func getToolInstructions(category string) string {
	switch category {
	case "network":
		return `Network Tools:

1. list_networks - List supported networks
   Usage: See which network the wallet is on and which one the marketplace uses

2. switch_network - Switch the wallet to another network
   Usage: Writes only go through on the marketplace network

3. wallet_status - Show the wallet address and network
   Usage: Check the wallet is connected before trading. In browser wallet
   mode it returns a connect_url for the user to open`

	case "listings":
		return `Listing Tools (read-only):

1. get_listing - Read one listing by ID
   Usage: Inspect price, addresses, lock URL, contact method and status

2. get_listing_fee - Read the current listing fee
   Usage: The fee is sent as the value when creating a listing

3. is_confirmation_expired - Check the buyer confirmation window
   Usage: Find listings where the buyer did not confirm in time

4. discover_listings - Scan listing IDs and return the ones that exist
   Usage: Browse the marketplace, optionally filtered by status`

	case "trading":
		return `Trading Tools:

1. create_listing - List an LP position for sale (pays the listing fee)
2. purchase_listing - Buy a listing (pays the listing price into escrow)
3. submit_transfer_proof - Seller submits the LP transfer transaction hash
4. confirm_receipt - Buyer confirms receipt and releases payment
5. edit_price - Seller changes the price of an available listing
6. cancel_listing - Seller withdraws an available listing
7. get_transaction - Follow a submitted transaction by its record_id

Each write sends exactly one transaction and is never retried. Failures are
reported with a kind: user_rejected, insufficient_funds, wrong_network,
gas_failure, contract_revert, invalid_input, wallet_disconnected, stale or unknown.

In browser wallet mode a write returns awaiting_signature with a signing_url.
Give the link to the user, then follow the write with get_transaction.`

	case "all":
		return `LP Marketplace MCP Tools Overview:

NETWORK (3 tools):
- list_networks, switch_network, wallet_status

LISTINGS (4 tools):
- get_listing, get_listing_fee, is_confirmation_expired, discover_listings

TRADING (7 tools):
- create_listing, purchase_listing, submit_transfer_proof, confirm_receipt,
  edit_price, cancel_listing, get_transaction

Listing lifecycle: Available -> InEscrow (purchase) -> AwaitingConfirmation
(transfer proof) -> Completed (confirm receipt). Sellers can edit or cancel
while a listing is Available.`

	default:
		return `Invalid category. Available categories: network, listings, trading, all`
	}
}

// StartStdioServer serves MCP over stdin/stdout until the input closes
func (s *MCPServer) StartStdioServer() error {
	return server.ServeStdio(s.server)
}

// StreamableHTTPServer returns an MCP streamable HTTP handler mounted at endpointPath
func (s *MCPServer) StreamableHTTPServer(endpointPath string) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.server,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
	)
}

func (s *MCPServer) GetServer() *server.MCPServer {
	return s.server
}
