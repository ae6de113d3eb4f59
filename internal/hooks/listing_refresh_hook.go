package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/sirupsen/logrus"
)

const refreshTimeout = 15 * time.Second

// ListingRefreshHook re-reads a listing after any confirmed write touching it
// so the local mirror follows the contract.
type ListingRefreshHook struct {
	listingService services.ListingService
}

// CanHandle implements Hook.
func (h *ListingRefreshHook) CanHandle(action models.MarketplaceAction) bool {
	switch action {
	case models.MarketplaceActionCreateListing,
		models.MarketplaceActionPurchaseListing,
		models.MarketplaceActionSubmitTransferProof,
		models.MarketplaceActionConfirmReceipt,
		models.MarketplaceActionEditPrice,
		models.MarketplaceActionCancelListing:
		return true
	}
	return false
}

// OnTransactionConfirmed implements Hook.
func (h *ListingRefreshHook) OnTransactionConfirmed(tx models.MarketplaceTransaction) error {
	// a create whose ListingCreated log could not be parsed has no id to refresh
	if tx.ListingID == 0 {
		return nil
	}
	if tx.ChainID != 0 && tx.ChainID != h.listingService.ChainID() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	listing, err := h.listingService.RefreshListing(ctx, tx.ListingID)
	if err != nil {
		return fmt.Errorf("failed to refresh listing %d: %w", tx.ListingID, err)
	}

	logrus.WithFields(logrus.Fields{
		"action":     tx.Action,
		"listing_id": listing.ListingID,
		"status":     listing.Status,
	}).Debug("listing mirror refreshed")
	return nil
}

func NewListingRefreshHook(listingService services.ListingService) services.Hook {
	return &ListingRefreshHook{listingService: listingService}
}
