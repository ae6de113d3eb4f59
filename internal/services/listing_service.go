package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/metrics"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListingService reads listings from the marketplace contract and keeps the local mirror
type ListingService interface {
	// GetListing is a pure read; ErrListingNotFound for ids with a zero seller
	GetListing(ctx context.Context, listingID uint64) (*models.Listing, error)
	// RefreshListing reads the listing and upserts the mirror row
	RefreshListing(ctx context.Context, listingID uint64) (*models.Listing, error)
	ListCachedListings(status *models.ListingStatus) ([]models.Listing, error)
	ListingFee(ctx context.Context) (*big.Int, error)
	IsConfirmationExpired(ctx context.Context, listingID uint64) (bool, error)
	ChainID() uint64
}

type listingService struct {
	db       *gorm.DB
	contract *MarketplaceContract
}

func NewListingService(db *gorm.DB, contract *MarketplaceContract) ListingService {
	return &listingService{db: db, contract: contract}
}

func (s *listingService) ChainID() uint64 {
	return s.contract.ChainID()
}

func (s *listingService) GetListing(ctx context.Context, listingID uint64) (*models.Listing, error) {
	if listingID == 0 {
		return nil, fmt.Errorf("listing 0: %w", ErrListingNotFound)
	}

	start := time.Now()
	listing, err := s.contract.GetListing(ctx, listingID)
	switch {
	case err == nil:
		metrics.Marketplace().ObserveRead("getListing", "ok", time.Since(start))
	case errors.Is(err, ErrListingNotFound):
		metrics.Marketplace().ObserveRead("getListing", "not_found", time.Since(start))
	default:
		metrics.Marketplace().ObserveRead("getListing", "error", time.Since(start))
		logrus.WithField("listing_id", listingID).WithError(err).Warn("listing read failed")
	}
	return listing, err
}

func (s *listingService) RefreshListing(ctx context.Context, listingID uint64) (*models.Listing, error) {
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	listing.SyncedAt = time.Now()
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "listing_id"}},
		UpdateAll: true,
	}).Create(listing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save listing %d: %w", listingID, err)
	}
	return listing, nil
}

// ListCachedListings returns mirror rows for the marketplace chain ordered by id
func (s *listingService) ListCachedListings(status *models.ListingStatus) ([]models.Listing, error) {
	query := s.db.Where("chain_id = ?", s.contract.ChainID())
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var listings []models.Listing
	err := query.Order("listing_id asc").Find(&listings).Error
	return listings, err
}

func (s *listingService) ListingFee(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	fee, err := s.contract.ListingFee(ctx)
	metrics.Marketplace().ObserveRead("listingFee", readOutcome(err), time.Since(start))
	return fee, err
}

func (s *listingService) IsConfirmationExpired(ctx context.Context, listingID uint64) (bool, error) {
	start := time.Now()
	expired, err := s.contract.IsConfirmationExpired(ctx, listingID)
	metrics.Marketplace().ObserveRead("isConfirmationExpired", readOutcome(err), time.Since(start))
	return expired, err
}

func readOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
