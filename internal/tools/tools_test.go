package tools

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/testutil"
	"github.com/stretchr/testify/suite"
)

const TOOLS_TEST_SERVER_PORT = 9997

type registeredTool interface {
	GetTool() mcp.Tool
	GetHandler() mcpserver.ToolHandlerFunc
}

type MarketplaceToolsTestSuite struct {
	suite.Suite
	db     services.DBService
	market *testutil.Marketplace
	wallet *testutil.Wallet
	svc    *server.Services
}

func (suite *MarketplaceToolsTestSuite) SetupTest() {
	cfg, err := testutil.Config()
	suite.Require().NoError(err)

	db, err := services.NewSqliteDBService(":memory:")
	suite.Require().NoError(err)
	suite.db = db

	suite.market, suite.wallet, err = testutil.Backend()
	suite.Require().NoError(err)

	suite.svc, err = server.InitializeServices(cfg, db.GetDB(), &server.Backend{Caller: suite.market, Wallet: suite.wallet})
	suite.Require().NoError(err)
}

func (suite *MarketplaceToolsTestSuite) TearDownTest() {
	suite.svc.Close()
	suite.db.Close()
}

func (suite *MarketplaceToolsTestSuite) call(tool registeredTool, args map[string]interface{}) *mcp.CallToolResult {
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
	result, err := tool.GetHandler()(context.Background(), request)
	suite.Require().NoError(err)
	suite.Require().NotNil(result)
	return result
}

// decode unmarshals the JSON content of a successful result
func (suite *MarketplaceToolsTestSuite) decode(result *mcp.CallToolResult, v interface{}) {
	suite.Require().False(result.IsError, "unexpected tool error: %v", result.Content)
	suite.Require().Len(result.Content, 2)
	text := result.Content[1].(mcp.TextContent).Text
	suite.Require().NoError(json.Unmarshal([]byte(text), v))
}

func (suite *MarketplaceToolsTestSuite) errorText(result *mcp.CallToolResult) string {
	suite.Require().True(result.IsError)
	suite.Require().NotEmpty(result.Content)
	return result.Content[0].(mcp.TextContent).Text
}

func (suite *MarketplaceToolsTestSuite) TestToolRegistration() {
	mcpServer := mcpserver.NewMCPServer("test", "1.0.0")
	all := []registeredTool{
		NewListNetworksTool(suite.svc.Chains, suite.svc.Marketplace),
		NewSwitchNetworkTool(suite.svc.Marketplace),
		NewWalletStatusTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewGetListingTool(suite.svc.Listings, suite.svc.Marketplace),
		NewGetListingFeeTool(suite.svc.Listings, suite.svc.Marketplace),
		NewIsConfirmationExpiredTool(suite.svc.Listings),
		NewDiscoverListingsTool(suite.svc.Discovery, suite.svc.Marketplace),
		NewCreateListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewPurchaseListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewSubmitTransferProofTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewConfirmReceiptTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewEditPriceTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewCancelListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT),
		NewGetTransactionTool(suite.svc.Transactions, suite.svc.Marketplace),
	}

	names := make(map[string]bool)
	for _, tool := range all {
		definition := tool.GetTool()
		suite.NotEmpty(definition.Description)
		suite.False(names[definition.Name], "duplicate tool %s", definition.Name)
		names[definition.Name] = true
		suite.NotPanics(func() {
			mcpServer.AddTool(definition, tool.GetHandler())
		})
	}
	suite.Len(names, 14)
}

func (suite *MarketplaceToolsTestSuite) TestListNetworks() {
	var result ListNetworksResult
	suite.decode(suite.call(NewListNetworksTool(suite.svc.Chains, suite.svc.Marketplace), nil), &result)

	suite.Equal(testutil.ChainID, result.MarketplaceChainID)
	suite.Equal(len(result.Networks), result.Total)

	var active, marketplace int
	for _, network := range result.Networks {
		if network.IsActive {
			active++
		}
		if network.IsMarketplace {
			marketplace++
			suite.Equal("BNB Smart Chain", network.Name)
		}
	}
	suite.Equal(1, active)
	suite.Equal(1, marketplace)
}

func (suite *MarketplaceToolsTestSuite) TestSwitchNetworkAndWalletStatus() {
	var status WalletStatus
	suite.decode(suite.call(NewWalletStatusTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), nil), &status)
	suite.True(status.IsConnected)
	suite.True(status.OnRequiredNetwork)

	suite.decode(suite.call(NewSwitchNetworkTool(suite.svc.Marketplace), map[string]interface{}{"chain_id": 97}), &status)
	suite.Equal(uint64(97), status.ChainID)
	suite.False(status.OnRequiredNetwork)
	suite.Equal("BNB Smart Chain", status.RequiredNetwork)

	active, err := suite.svc.Chains.GetActiveChain()
	suite.Require().NoError(err)
	suite.Equal(uint64(97), active.NetworkID)

	text := suite.errorText(suite.call(NewSwitchNetworkTool(suite.svc.Marketplace), map[string]interface{}{"chain_id": 424242}))
	suite.Contains(text, "not in the network table")

	text = suite.errorText(suite.call(NewSwitchNetworkTool(suite.svc.Marketplace), map[string]interface{}{}))
	suite.Contains(text, "Invalid arguments")
}

func (suite *MarketplaceToolsTestSuite) TestGetListing() {
	id := suite.market.AddListing(big.NewInt(1_500_000_000_000_000_000), models.ListingStatusAvailable)
	tool := NewGetListingTool(suite.svc.Listings, suite.svc.Marketplace)

	var view services.ListingView
	suite.decode(suite.call(tool, map[string]interface{}{"listing_id": id}), &view)
	suite.Equal(id, view.ListingID)
	suite.Equal("1.5", view.PriceFormatted)
	suite.Equal("BNB", view.Symbol)
	suite.Equal(models.ListingStatusAvailable, view.Status)

	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"listing_id": 42})), "Listing 42 not found")
	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"listing_id": 0})), "Invalid arguments")
}

func (suite *MarketplaceToolsTestSuite) TestGetListingFee() {
	suite.market.SetFee(big.NewInt(25_000_000_000_000_000))

	var fee services.FeeView
	suite.decode(suite.call(NewGetListingFeeTool(suite.svc.Listings, suite.svc.Marketplace), nil), &fee)
	suite.Equal("25000000000000000", fee.FeeWei)
	suite.Equal("0.025", fee.Fee)
	suite.Equal("BNB", fee.Symbol)
}

func (suite *MarketplaceToolsTestSuite) TestIsConfirmationExpired() {
	id := suite.market.AddListing(big.NewInt(1), models.ListingStatusAwaitingConfirmation)

	var result map[string]interface{}
	suite.decode(suite.call(NewIsConfirmationExpiredTool(suite.svc.Listings), map[string]interface{}{"listing_id": id}), &result)
	suite.Equal(false, result["expired"])
}

func (suite *MarketplaceToolsTestSuite) TestDiscoverListings() {
	suite.market.AddListing(big.NewInt(1), models.ListingStatusAvailable)
	suite.market.AddListing(big.NewInt(2), models.ListingStatusInEscrow)
	suite.market.SkipID()
	suite.market.AddListing(big.NewInt(4), models.ListingStatusAvailable)
	tool := NewDiscoverListingsTool(suite.svc.Discovery, suite.svc.Marketplace)

	var result DiscoverListingsResult
	suite.decode(suite.call(tool, map[string]interface{}{}), &result)
	suite.Equal(3, result.Total)
	suite.Equal(services.StopReasonFailures, result.StopReason)
	suite.Equal(uint64(1), result.Listings[0].ListingID)
	suite.Equal(uint64(4), result.Listings[2].ListingID)

	suite.decode(suite.call(tool, map[string]interface{}{"status": "Available", "max_id": 4}), &result)
	suite.Equal(2, result.Total)
	suite.Equal(services.StopReasonRangeEnd, result.StopReason)

	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"status": "Sold"})), "Invalid arguments")
	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"start_id": 21})), "Invalid arguments")
}

func (suite *MarketplaceToolsTestSuite) TestCreateListingFlow() {
	suite.market.SetFee(big.NewInt(10_000_000_000_000_000))
	tool := NewCreateListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT)

	var result WriteResult
	suite.decode(suite.call(tool, map[string]interface{}{
		"price":          "1.5",
		"token_address":  testutil.Token,
		"lp_address":     testutil.LP,
		"lock_url":       "https://example.com/lock/1",
		"contact_method": "telegram: @seller",
	}), &result)

	suite.NotEmpty(result.RecordID)
	suite.NotEmpty(result.Hash)
	suite.Contains(result.ExplorerURL, "https://bscscan.com/tx/")
	suite.Equal("http://localhost:9997/api/transactions/"+result.RecordID, result.RecordURL)
	suite.Nil(result.Error)

	writes := suite.wallet.Writes()
	suite.Require().Len(writes, 1)
	suite.Equal("createListing", writes[0].Method)
	suite.Equal("10000000000000000", writes[0].Value.String())

	getTx := NewGetTransactionTool(suite.svc.Transactions, suite.svc.Marketplace)
	suite.Eventually(func() bool {
		var record TransactionRecordResult
		res := suite.call(getTx, map[string]interface{}{"record_id": result.RecordID})
		if res.IsError {
			return false
		}
		text := res.Content[1].(mcp.TextContent).Text
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return false
		}
		return record.Status == string(models.TransactionStatusConfirmed) && record.ListingID == 1 && record.IsFinal
	}, 5*time.Second, 10*time.Millisecond)
}

func (suite *MarketplaceToolsTestSuite) TestCreateListingValidation() {
	tool := NewCreateListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT)
	text := suite.errorText(suite.call(tool, map[string]interface{}{
		"price":          "1.5",
		"token_address":  "0x123",
		"lp_address":     testutil.LP,
		"lock_url":       "https://example.com/lock/1",
		"contact_method": "telegram: @seller",
	}))

	suite.Contains(text, "invalid_input")
	suite.Contains(text, "Token address must be 0x followed by 40 hexadecimal characters")
	suite.Empty(suite.wallet.Writes())
}

func (suite *MarketplaceToolsTestSuite) TestWriteOnWrongNetwork() {
	suite.Require().NoError(suite.wallet.SwitchChain(context.Background(), 97))
	callsBefore := suite.market.Calls()

	text := suite.errorText(suite.call(NewCancelListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": 1}))
	suite.Contains(text, "wrong_network")
	suite.Contains(text, "BNB Smart Chain")
	suite.Equal(callsBefore, suite.market.Calls())
	suite.Empty(suite.wallet.Writes())
}

func (suite *MarketplaceToolsTestSuite) TestPurchaseSendsListingPrice() {
	id := suite.market.AddListing(big.NewInt(2_000_000_000_000_000_000), models.ListingStatusAvailable)

	var result WriteResult
	suite.decode(suite.call(NewPurchaseListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id}), &result)
	suite.Equal(id, result.ListingID)

	writes := suite.wallet.Writes()
	suite.Require().Len(writes, 1)
	suite.Equal("purchaseListing", writes[0].Method)
	suite.Equal("2000000000000000000", writes[0].Value.String())
}

func (suite *MarketplaceToolsTestSuite) TestZeroValueWrites() {
	id := suite.market.AddListing(big.NewInt(1), models.ListingStatusInEscrow)

	cases := []struct {
		tool   registeredTool
		args   map[string]interface{}
		method string
	}{
		{NewSubmitTransferProofTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id, "transfer_proof_hash": "0xdeadbeef"}, "submitTransferProof"},
		{NewConfirmReceiptTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id}, "confirmReceiptAndRelease"},
		{NewEditPriceTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id, "new_price": "2"}, "editPrice"},
		{NewCancelListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id}, "cancelListing"},
	}

	for i, tc := range cases {
		var result WriteResult
		suite.decode(suite.call(tc.tool, tc.args), &result)

		writes := suite.wallet.Writes()
		suite.Require().Len(writes, i+1)
		suite.Equal(tc.method, writes[i].Method)
		suite.True(writes[i].Value == nil || writes[i].Value.Sign() == 0)
	}
}

func (suite *MarketplaceToolsTestSuite) TestWalletRejection() {
	suite.wallet.WriteErr = &rejectedError{}
	id := suite.market.AddListing(big.NewInt(1), models.ListingStatusAvailable)

	text := suite.errorText(suite.call(NewCancelListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": id}))
	suite.Contains(text, "user_rejected")
	suite.Len(suite.wallet.Writes(), 1)
}

func (suite *MarketplaceToolsTestSuite) TestGetTransactionNotFound() {
	tool := NewGetTransactionTool(suite.svc.Transactions, suite.svc.Marketplace)
	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"record_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7"})), "not found")
	suite.Contains(suite.errorText(suite.call(tool, map[string]interface{}{"record_id": "nope"})), "Invalid arguments")
}

func (suite *MarketplaceToolsTestSuite) TestHandlerInvalidBindArguments() {
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: "invalid",
		},
	}

	_, err := NewGetListingTool(suite.svc.Listings, suite.svc.Marketplace).GetHandler()(context.Background(), request)
	suite.Error(err)
	suite.Contains(err.Error(), "failed to bind arguments")
}

// rejectedError is what a wallet returns when the user declines to sign
type rejectedError struct{}

func (e *rejectedError) Error() string  { return "user rejected the request" }
func (e *rejectedError) ErrorCode() int { return 4001 }

func (suite *MarketplaceToolsTestSuite) TestBrowserWalletLinks() {
	suite.TearDownTest()

	cfg, err := testutil.Config()
	suite.Require().NoError(err)
	db, err := services.NewSqliteDBService(":memory:")
	suite.Require().NoError(err)
	suite.db = db
	suite.market, err = testutil.NewMarketplace()
	suite.Require().NoError(err)
	wallet := services.NewBrowserWallet(testutil.NewReader(suite.market), testutil.ChainID, time.Minute)
	suite.svc, err = server.InitializeServices(cfg, db.GetDB(), &server.Backend{Caller: suite.market, Wallet: wallet})
	suite.Require().NoError(err)

	statusTool := NewWalletStatusTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT)
	result := suite.call(statusTool, nil)
	suite.Contains(result.Content[0].(mcp.TextContent).Text, "Wallet not connected")
	var status WalletStatus
	suite.decode(result, &status)
	suite.False(status.IsConnected)
	suite.Equal("http://localhost:9997/connect/"+wallet.ConnectToken(), status.ConnectURL)

	suite.Require().NoError(wallet.Connect(testutil.Seller, testutil.ChainID))
	suite.market.AddListing(big.NewInt(1000), models.ListingStatusAvailable)

	result = suite.call(NewCancelListingTool(suite.svc.Marketplace, "", TOOLS_TEST_SERVER_PORT), map[string]interface{}{"listing_id": 1})
	suite.Contains(result.Content[0].(mcp.TextContent).Text, "signing_url")
	var write WriteResult
	suite.decode(result, &write)
	suite.True(write.AwaitingSignature)
	suite.Equal("http://localhost:9997/tx/"+write.RecordID, write.SigningURL)

	suite.Require().NoError(wallet.CompleteSigning(write.RecordID, services.SigningResult{ErrorCode: 4001}))
	suite.Eventually(func() bool {
		record, err := suite.svc.Transactions.GetTransaction(write.RecordID)
		return err == nil && record.ErrorKind == string(services.TxErrorUserRejected)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMarketplaceToolsTestSuite(t *testing.T) {
	suite.Run(t, new(MarketplaceToolsTestSuite))
}
