package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/contracts"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
)

// onchainListing matches the getListing tuple component by component
type onchainListing struct {
	Id                *big.Int
	Seller            common.Address
	Buyer             common.Address
	Price             *big.Int
	TokenAddress      common.Address
	LpAddress         common.Address
	LockUrl           string
	TransferProofHash string
	ContactMethod     string
	Status            uint8
	PurchaseTimestamp *big.Int
	CreatedAt         *big.Int
}

// MarketplaceContract is a read binding for the deployed marketplace. Writes
// go through a WalletSession so they can be signed.
type MarketplaceContract struct {
	address common.Address
	chainID uint64
	abi     abi.ABI
	caller  ethereum.ContractCaller
}

func NewMarketplaceContract(address common.Address, chainID uint64, caller ethereum.ContractCaller) (*MarketplaceContract, error) {
	parsed, err := contracts.MarketplaceABI()
	if err != nil {
		return nil, err
	}
	return &MarketplaceContract{
		address: address,
		chainID: chainID,
		abi:     parsed,
		caller:  caller,
	}, nil
}

// WithCaller returns a copy of the binding that reads through caller
func (c *MarketplaceContract) WithCaller(caller ethereum.ContractCaller) *MarketplaceContract {
	clone := *c
	clone.caller = caller
	return &clone
}

func (c *MarketplaceContract) Address() common.Address { return c.address }

func (c *MarketplaceContract) ChainID() uint64 { return c.chainID }

func (c *MarketplaceContract) ABI() abi.ABI { return c.abi }

// GetListing reads a listing. A zero seller means the id was never created and
// yields ErrListingNotFound.
func (c *MarketplaceContract) GetListing(ctx context.Context, listingID uint64) (*models.Listing, error) {
	out, err := c.call(ctx, "getListing", new(big.Int).SetUint64(listingID))
	if err != nil {
		return nil, err
	}

	raw := *abi.ConvertType(out[0], new(onchainListing)).(*onchainListing)
	if raw.Seller == (common.Address{}) {
		return nil, fmt.Errorf("listing %d: %w", listingID, ErrListingNotFound)
	}

	listing := &models.Listing{
		ChainID:           c.chainID,
		ListingID:         listingID,
		Seller:            raw.Seller.Hex(),
		Buyer:             raw.Buyer.Hex(),
		Price:             bigString(raw.Price),
		TokenAddress:      raw.TokenAddress.Hex(),
		LPAddress:         raw.LpAddress.Hex(),
		LockURL:           raw.LockUrl,
		TransferProofHash: raw.TransferProofHash,
		ContactMethod:     raw.ContactMethod,
		Status:            models.ListingStatus(raw.Status),
		ListedAt:          unixTime(raw.CreatedAt),
	}
	if raw.PurchaseTimestamp != nil && raw.PurchaseTimestamp.Sign() > 0 {
		purchasedAt := unixTime(raw.PurchaseTimestamp)
		listing.PurchasedAt = &purchasedAt
	}
	return listing, nil
}

// ListingFee reads the current creation fee in wei
func (c *MarketplaceContract) ListingFee(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "listingFee")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *MarketplaceContract) IsConfirmationExpired(ctx context.Context, listingID uint64) (bool, error) {
	out, err := c.call(ctx, "isConfirmationExpired", new(big.Int).SetUint64(listingID))
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// ParseListingCreated extracts the new listing id from a createListing receipt
func (c *MarketplaceContract) ParseListingCreated(receipt *types.Receipt) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	event, ok := c.abi.Events["ListingCreated"]
	if !ok {
		return 0, false
	}
	for _, log := range receipt.Logs {
		if log.Address != c.address || len(log.Topics) < 2 || log.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64(), true
	}
	return 0, false
}

func (c *MarketplaceContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	to := c.address
	output, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
