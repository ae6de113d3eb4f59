package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/metrics"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DiscoveryOptions bounds a scan. The defaults come from configuration; zero
// fields in a request fall back to them, and larger values are clamped to them.
type DiscoveryOptions struct {
	StartID                uint64 `json:"start_id"`
	MaxID                  uint64 `json:"max_id"`
	MaxConsecutiveFailures int    `json:"max_consecutive_failures"`
}

// DiscoveryResult lists the listings found and why the scan stopped
type DiscoveryResult struct {
	Listings   []models.Listing `json:"listings"`
	ScannedTo  uint64           `json:"scanned_to"`
	StopReason string           `json:"stop_reason"`
}

const (
	StopReasonRangeEnd  = "range_end"
	StopReasonFailures  = "consecutive_failures"
	StopReasonCancelled = "cancelled"
)

// DiscoveryService finds listings by probing ids one by one. There is no
// event indexer yet, so the scan bound and failure cutoff are policy, not
// contract facts: a gap of MaxConsecutiveFailures missing ids ends the scan.
type DiscoveryService interface {
	DiscoverListings(ctx context.Context, opts DiscoveryOptions) (*DiscoveryResult, error)
}

type discoveryService struct {
	listings ListingService
	defaults DiscoveryOptions
	limiter  *rate.Limiter
}

// NewDiscoveryService creates a scanner. ratePerSecond <= 0 disables throttling.
func NewDiscoveryService(listings ListingService, defaults DiscoveryOptions, ratePerSecond float64) DiscoveryService {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &discoveryService{
		listings: listings,
		defaults: defaults,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (s *discoveryService) resolve(opts DiscoveryOptions) DiscoveryOptions {
	if opts.StartID == 0 {
		opts.StartID = s.defaults.StartID
	}
	if opts.StartID == 0 {
		opts.StartID = 1
	}
	if opts.MaxID == 0 || (s.defaults.MaxID > 0 && opts.MaxID > s.defaults.MaxID) {
		opts.MaxID = s.defaults.MaxID
	}
	ceiling := s.defaults.MaxConsecutiveFailures
	if opts.MaxConsecutiveFailures <= 0 || (ceiling > 0 && opts.MaxConsecutiveFailures > ceiling) {
		opts.MaxConsecutiveFailures = ceiling
	}
	return opts
}

// DiscoverListings scans ids StartID..MaxID sequentially, since the cutoff
// depends on order. Not-found ids and read errors both count as failures.
func (s *discoveryService) DiscoverListings(ctx context.Context, opts DiscoveryOptions) (*DiscoveryResult, error) {
	opts = s.resolve(opts)
	if opts.MaxID < opts.StartID {
		return nil, fmt.Errorf("%w: max id %d is below start id %d", ErrInvalidDiscoveryRange, opts.MaxID, opts.StartID)
	}
	if opts.MaxConsecutiveFailures <= 0 {
		return nil, fmt.Errorf("%w: max consecutive failures must be positive", ErrInvalidDiscoveryRange)
	}

	log := logrus.WithFields(logrus.Fields{
		"start_id": opts.StartID,
		"max_id":   opts.MaxID,
		"cutoff":   opts.MaxConsecutiveFailures,
	})

	result := &DiscoveryResult{Listings: []models.Listing{}, StopReason: StopReasonRangeEnd}
	failures := 0
	var stopErr error

	// MaxID may be the largest uint64, so the loop ends before incrementing past it
	for id := opts.StartID; ; id++ {
		if err := s.limiter.Wait(ctx); err != nil {
			result.StopReason = StopReasonCancelled
			stopErr = err
			break
		}

		listing, err := s.listings.GetListing(ctx, id)
		result.ScannedTo = id
		switch {
		case err == nil:
			failures = 0
			result.Listings = append(result.Listings, *listing)
		case ctx.Err() != nil:
			result.StopReason = StopReasonCancelled
			stopErr = ctx.Err()
		default:
			if !errors.Is(err, ErrListingNotFound) {
				log.WithField("listing_id", id).WithError(err).Debug("lookup failed during discovery")
			}
			failures++
			if failures >= opts.MaxConsecutiveFailures {
				result.StopReason = StopReasonFailures
			}
		}
		if result.StopReason != StopReasonRangeEnd || id == opts.MaxID {
			break
		}
	}

	sort.Slice(result.Listings, func(i, j int) bool {
		return result.Listings[i].ListingID < result.Listings[j].ListingID
	})

	metrics.Marketplace().ObserveScan(result.StopReason, len(result.Listings))
	log.WithFields(logrus.Fields{
		"found":       len(result.Listings),
		"scanned_to":  result.ScannedTo,
		"stop_reason": result.StopReason,
	}).Info("discovery scan finished")

	return result, stopErr
}
