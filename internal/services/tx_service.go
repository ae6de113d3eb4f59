package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"gorm.io/gorm"
)

// TransactionService persists marketplace transaction lifecycle records
type TransactionService interface {
	CreateTransaction(req CreateTransactionRequest) (*models.MarketplaceTransaction, error)
	GetTransaction(id string) (*models.MarketplaceTransaction, error)
	UpdateTransaction(id string, update TransactionUpdate) error
	ListTransactions(filter TransactionFilter) ([]models.MarketplaceTransaction, error)
}

type CreateTransactionRequest struct {
	Action    models.MarketplaceAction `json:"action"`
	ListingID uint64                   `json:"listing_id"`
	ChainID   uint64                   `json:"chain_id"`
	From      string                   `json:"from"`
	Value     string                   `json:"value"`
}

// TransactionUpdate holds the fields to change; zero values are left untouched
type TransactionUpdate struct {
	Status          models.TransactionStatus
	TransactionHash string
	ListingID       uint64
	BlockNumber     uint64
	ErrorKind       string
	ErrorMessage    string
}

type TransactionFilter struct {
	ListingID uint64
	ChainID   uint64
	Status    models.TransactionStatus
	Limit     int
}

type transactionService struct {
	db *gorm.DB
}

func NewTransactionService(db *gorm.DB) TransactionService {
	return &transactionService{db: db}
}

func (s *transactionService) CreateTransaction(req CreateTransactionRequest) (*models.MarketplaceTransaction, error) {
	record := &models.MarketplaceTransaction{
		ID:        uuid.New().String(),
		Action:    req.Action,
		ListingID: req.ListingID,
		ChainID:   req.ChainID,
		From:      req.From,
		Value:     req.Value,
		Status:    models.TransactionStatusSubmitting,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// GetTransaction returns the record by id
func (s *transactionService) GetTransaction(id string) (*models.MarketplaceTransaction, error) {
	var record models.MarketplaceTransaction
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *transactionService) UpdateTransaction(id string, update TransactionUpdate) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.Status != "" {
		updates["status"] = update.Status
	}
	if update.TransactionHash != "" {
		updates["transaction_hash"] = update.TransactionHash
	}
	if update.ListingID != 0 {
		updates["listing_id"] = update.ListingID
	}
	if update.BlockNumber != 0 {
		updates["block_number"] = update.BlockNumber
	}
	if update.ErrorKind != "" {
		updates["error_kind"] = update.ErrorKind
	}
	if update.ErrorMessage != "" {
		updates["error_message"] = update.ErrorMessage
	}

	result := s.db.Model(&models.MarketplaceTransaction{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListTransactions returns records newest first
func (s *transactionService) ListTransactions(filter TransactionFilter) ([]models.MarketplaceTransaction, error) {
	query := s.db.Model(&models.MarketplaceTransaction{})
	if filter.ListingID != 0 {
		query = query.Where("listing_id = ?", filter.ListingID)
	}
	if filter.ChainID != 0 {
		query = query.Where("chain_id = ?", filter.ChainID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []models.MarketplaceTransaction
	err := query.Order("created_at desc").Find(&records).Error
	return records, err
}
