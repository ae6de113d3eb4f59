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
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
	"gorm.io/gorm"
)

type getTransactionTool struct {
	txService          services.TransactionService
	marketplaceService services.MarketplaceService
}

type GetTransactionArguments struct {
	RecordID string `json:"record_id" validate:"required,uuid"`
}

type TransactionRecordResult struct {
	ID              string `json:"id"`
	Action          string `json:"action"`
	ListingID       uint64 `json:"listing_id"`
	ChainID         uint64 `json:"chain_id"`
	From            string `json:"from"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	ExplorerURL     string `json:"explorer_url,omitempty"`
	Value           string `json:"value"`
	Status          string `json:"status"`
	IsFinal         bool   `json:"is_final"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	BlockNumber     uint64 `json:"block_number,omitempty"`
}

func NewGetTransactionTool(txService services.TransactionService, marketplaceService services.MarketplaceService) *getTransactionTool {
	return &getTransactionTool{
		txService:          txService,
		marketplaceService: marketplaceService,
	}
}

func (g *getTransactionTool) GetTool() mcp.Tool {
	return mcp.NewTool("get_transaction",
		mcp.WithDescription("Look up a marketplace transaction record by the record_id returned from a write tool. Use it to follow a pending transaction until it is confirmed, failed or stale."),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("Transaction record ID"),
		),
	)
}

func (g *getTransactionTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetTransactionArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		record, err := g.txService.GetTransaction(args.RecordID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("Transaction record %s not found", args.RecordID)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("Failed to load transaction record: %v", err)), nil
		}

		result := NewTransactionRecordResult(*record, g.marketplaceService.RequiredNetwork().ExplorerURL)
		return jsonResult("Transaction record: ", result)
	}
}

// NewTransactionRecordResult flattens a record and links its hash on the explorer
func NewTransactionRecordResult(record models.MarketplaceTransaction, explorerBase string) TransactionRecordResult {
	result := TransactionRecordResult{
		ID:              record.ID,
		Action:          string(record.Action),
		ListingID:       record.ListingID,
		ChainID:         record.ChainID,
		From:            record.From,
		TransactionHash: record.TransactionHash,
		Value:           record.Value,
		Status:          string(record.Status),
		IsFinal:         record.Status.IsFinal(),
		ErrorKind:       record.ErrorKind,
		ErrorMessage:    record.ErrorMessage,
		BlockNumber:     record.BlockNumber,
	}
	if record.TransactionHash != "" {
		if link, err := utils.ExplorerTxURL(explorerBase, record.TransactionHash); err == nil {
			result.ExplorerURL = link
		}
	}
	return result
}
