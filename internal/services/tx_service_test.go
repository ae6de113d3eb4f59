package services

import (
	"testing"
	"time"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewTransactionService(db)

	record, err := service.CreateTransaction(CreateTransactionRequest{
		Action:    models.MarketplaceActionPurchaseListing,
		ListingID: 7,
		ChainID:   testChainID,
		From:      testBuyer,
		Value:     "1500000000000000000",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.TransactionStatusSubmitting, record.Status)
	assert.Empty(t, record.TransactionHash)

	stored, err := service.GetTransaction(record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketplaceActionPurchaseListing, stored.Action)
	assert.Equal(t, uint64(7), stored.ListingID)
	assert.Equal(t, testBuyer, stored.From)
	assert.Equal(t, "1500000000000000000", stored.Value)
}

func TestGetTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewTransactionService(db)

	t.Run("not found", func(t *testing.T) {
		record, err := service.GetTransaction("missing")
		assert.Nil(t, record)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestUpdateTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewTransactionService(db)

	record, err := service.CreateTransaction(CreateTransactionRequest{
		Action:  models.MarketplaceActionCreateListing,
		ChainID: testChainID,
		From:    testSeller,
	})
	require.NoError(t, err)

	t.Run("pending then confirmed", func(t *testing.T) {
		hash := "0xabc0000000000000000000000000000000000000000000000000000000000001"
		require.NoError(t, service.UpdateTransaction(record.ID, TransactionUpdate{
			Status:          models.TransactionStatusPending,
			TransactionHash: hash,
		}))

		require.NoError(t, service.UpdateTransaction(record.ID, TransactionUpdate{
			Status:      models.TransactionStatusConfirmed,
			ListingID:   12,
			BlockNumber: 1234,
		}))

		stored, err := service.GetTransaction(record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusConfirmed, stored.Status)
		// zero-valued fields keep what was already stored
		assert.Equal(t, hash, stored.TransactionHash)
		assert.Equal(t, uint64(12), stored.ListingID)
		assert.Equal(t, uint64(1234), stored.BlockNumber)
		assert.Empty(t, stored.ErrorKind)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := service.UpdateTransaction("missing", TransactionUpdate{Status: models.TransactionStatusFailed})
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestListTransactions(t *testing.T) {
	db := setupTestDB(t)
	service := NewTransactionService(db)

	requests := []CreateTransactionRequest{
		{Action: models.MarketplaceActionPurchaseListing, ListingID: 1, ChainID: testChainID},
		{Action: models.MarketplaceActionSubmitTransferProof, ListingID: 1, ChainID: testChainID},
		{Action: models.MarketplaceActionCancelListing, ListingID: 2, ChainID: 97},
	}
	var ids []string
	for _, req := range requests {
		record, err := service.CreateTransaction(req)
		require.NoError(t, err)
		ids = append(ids, record.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, service.UpdateTransaction(ids[0], TransactionUpdate{Status: models.TransactionStatusConfirmed}))

	t.Run("by listing newest first", func(t *testing.T) {
		records, err := service.ListTransactions(TransactionFilter{ListingID: 1})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, ids[1], records[0].ID)
		assert.Equal(t, ids[0], records[1].ID)
	})

	t.Run("by chain", func(t *testing.T) {
		records, err := service.ListTransactions(TransactionFilter{ChainID: 97})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, models.MarketplaceActionCancelListing, records[0].Action)
	})

	t.Run("by status", func(t *testing.T) {
		records, err := service.ListTransactions(TransactionFilter{Status: models.TransactionStatusSubmitting})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("limit", func(t *testing.T) {
		records, err := service.ListTransactions(TransactionFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, ids[2], records[0].ID)
	})
}
