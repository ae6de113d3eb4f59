package services

import (
	"math/big"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
)

// ListingView is a listing with its price in whole native units, as shown to users
type ListingView struct {
	models.Listing
	PriceFormatted string `json:"price_formatted"`
	Symbol         string `json:"symbol"`
}

func NewListingView(listing models.Listing, network config.Network) ListingView {
	view := ListingView{Listing: listing, Symbol: network.NativeSymbol}
	if price := listing.PriceWei(); price != nil {
		view.PriceFormatted = utils.FormatUnits(price, nativeDecimals)
	}
	return view
}

func NewListingViews(listings []models.Listing, network config.Network) []ListingView {
	views := make([]ListingView, 0, len(listings))
	for _, listing := range listings {
		views = append(views, NewListingView(listing, network))
	}
	return views
}

// FeeView is the listing fee in wei and whole units
type FeeView struct {
	FeeWei  string `json:"fee_wei"`
	Fee     string `json:"fee"`
	Symbol  string `json:"symbol"`
	ChainID uint64 `json:"chain_id"`
}

func NewFeeView(fee *big.Int, network config.Network) FeeView {
	return FeeView{
		FeeWei:  fee.String(),
		Fee:     utils.FormatUnits(fee, nativeDecimals),
		Symbol:  network.NativeSymbol,
		ChainID: network.ChainID,
	}
}
