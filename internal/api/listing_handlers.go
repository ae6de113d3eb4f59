package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/sirupsen/logrus"
)

// DiscoverQuery bounds a discovery scan; zero values use the configured defaults
type DiscoverQuery struct {
	StartID                uint64 `query:"start_id"`
	MaxID                  uint64 `query:"max_id" validate:"omitempty,gtefield=StartID"`
	MaxConsecutiveFailures int    `query:"max_consecutive_failures" validate:"gte=0"`
	Status                 string `query:"status"`
}

type ListingsResponse struct {
	Listings   []services.ListingView `json:"listings"`
	Total      int                    `json:"total"`
	ScannedTo  uint64                 `json:"scanned_to,omitempty"`
	StopReason string                 `json:"stop_reason,omitempty"`
}

type ExpiredResponse struct {
	ListingID uint64 `json:"listing_id"`
	Expired   bool   `json:"expired"`
}

func listingIDParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid listing id %q", c.Params("id"))
	}
	return id, nil
}

// statusQuery parses an optional ?status= filter
func statusQuery(value string) (*models.ListingStatus, error) {
	if value == "" {
		return nil, nil
	}
	var status models.ListingStatus
	if err := status.UnmarshalText([]byte(value)); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *APIServer) readError(c *fiber.Ctx, listingID uint64, err error) error {
	if errors.Is(err, services.ErrListingNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("Listing %d not found", listingID),
		})
	}
	logrus.WithField("listing_id", listingID).WithError(err).Warn("listing read failed")
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": fmt.Sprintf("Failed to read listing %d: %v", listingID, err),
	})
}

func (s *APIServer) handleGetListing(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	listing, err := s.services.Listings.GetListing(c.UserContext(), listingID)
	if err != nil {
		return s.readError(c, listingID, err)
	}
	return c.JSON(services.NewListingView(*listing, s.services.Marketplace.RequiredNetwork()))
}

func (s *APIServer) handleListingFee(c *fiber.Ctx) error {
	fee, err := s.services.Listings.ListingFee(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to read listing fee: " + err.Error(),
		})
	}
	return c.JSON(services.NewFeeView(fee, s.services.Marketplace.RequiredNetwork()))
}

func (s *APIServer) handleConfirmationExpired(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	expired, err := s.services.Listings.IsConfirmationExpired(c.UserContext(), listingID)
	if err != nil {
		return s.readError(c, listingID, err)
	}
	return c.JSON(ExpiredResponse{ListingID: listingID, Expired: expired})
}

func (s *APIServer) handleDiscoverListings(c *fiber.Ctx) error {
	var query DiscoverQuery
	if err := c.QueryParser(&query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query: " + err.Error()})
	}
	if err := validator.New().Struct(query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query: " + err.Error()})
	}
	status, err := statusQuery(query.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	discovered, err := s.services.Discovery.DiscoverListings(c.UserContext(), services.DiscoveryOptions{
		StartID:                query.StartID,
		MaxID:                  query.MaxID,
		MaxConsecutiveFailures: query.MaxConsecutiveFailures,
	})
	if errors.Is(err, services.ErrInvalidDiscoveryRange) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query: " + err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Discovery failed: " + err.Error()})
	}

	listings := discovered.Listings
	if status != nil {
		filtered := listings[:0:0]
		for _, listing := range listings {
			if listing.Status == *status {
				filtered = append(filtered, listing)
			}
		}
		listings = filtered
	}

	views := services.NewListingViews(listings, s.services.Marketplace.RequiredNetwork())
	return c.JSON(ListingsResponse{
		Listings:   views,
		Total:      len(views),
		ScannedTo:  discovered.ScannedTo,
		StopReason: discovered.StopReason,
	})
}

// handleCachedListings serves the local mirror without touching the chain
func (s *APIServer) handleCachedListings(c *fiber.Ctx) error {
	status, err := statusQuery(c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	listings, err := s.services.Listings.ListCachedListings(status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list cached listings: " + err.Error(),
		})
	}

	views := services.NewListingViews(listings, s.services.Marketplace.RequiredNetwork())
	return c.JSON(ListingsResponse{Listings: views, Total: len(views)})
}
