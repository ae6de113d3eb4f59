package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/tools"
	"gorm.io/gorm"
)

type TransactionListQuery struct {
	ListingID uint64 `query:"listing_id"`
	ChainID   uint64 `query:"chain_id"`
	Status    string `query:"status"`
	Limit     int    `query:"limit"`
}

type TransactionListResponse struct {
	Transactions []tools.TransactionRecordResult `json:"transactions"`
	Total        int                             `json:"total"`
}

func (s *APIServer) handleGetTransaction(c *fiber.Ctx) error {
	recordID := c.Params("id")
	if _, err := uuid.Parse(recordID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid transaction record id",
		})
	}

	record, err := s.services.Transactions.GetTransaction(recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Transaction record not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load transaction record: " + err.Error(),
		})
	}

	explorer := s.services.Marketplace.RequiredNetwork().ExplorerURL
	return c.JSON(tools.NewTransactionRecordResult(*record, explorer))
}

func (s *APIServer) handleListTransactions(c *fiber.Ctx) error {
	var query TransactionListQuery
	if err := c.QueryParser(&query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query: " + err.Error()})
	}

	status := models.TransactionStatus(query.Status)
	switch status {
	case "", models.TransactionStatusSubmitting, models.TransactionStatusPending,
		models.TransactionStatusConfirmed, models.TransactionStatusFailed, models.TransactionStatusStale:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status: " + query.Status})
	}

	records, err := s.services.Transactions.ListTransactions(services.TransactionFilter{
		ListingID: query.ListingID,
		ChainID:   query.ChainID,
		Status:    status,
		Limit:     query.Limit,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list transactions: " + err.Error(),
		})
	}

	explorer := s.services.Marketplace.RequiredNetwork().ExplorerURL
	response := TransactionListResponse{
		Transactions: make([]tools.TransactionRecordResult, 0, len(records)),
	}
	for _, record := range records {
		response.Transactions = append(response.Transactions, tools.NewTransactionRecordResult(record, explorer))
	}
	response.Total = len(response.Transactions)
	return c.JSON(response)
}
