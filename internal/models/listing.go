package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ListingStatus mirrors the status enum of the marketplace contract
type ListingStatus uint8

const (
	ListingStatusAvailable ListingStatus = iota
	ListingStatusInEscrow
	ListingStatusAwaitingConfirmation
	ListingStatusCompleted
	ListingStatusCancelled
	ListingStatusInDispute
)

var listingStatusNames = map[ListingStatus]string{
	ListingStatusAvailable:            "Available",
	ListingStatusInEscrow:             "InEscrow",
	ListingStatusAwaitingConfirmation: "AwaitingConfirmation",
	ListingStatusCompleted:            "Completed",
	ListingStatusCancelled:            "Cancelled",
	ListingStatusInDispute:            "InDispute",
}

func (s ListingStatus) String() string {
	if name, ok := listingStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// IsKnown reports whether the contract returned a status this client understands
func (s ListingStatus) IsKnown() bool {
	_, ok := listingStatusNames[s]
	return ok
}

func (s ListingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ListingStatus) UnmarshalText(text []byte) error {
	for status, name := range listingStatusNames {
		if strings.EqualFold(name, string(text)) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown listing status %q", string(text))
}

// Listing is the local mirror of an on-chain listing. The contract owns the
// record; every field is eventually consistent and refreshed after writes.
type Listing struct {
	ChainID           uint64        `gorm:"primaryKey;autoIncrement:false" json:"chain_id"`
	ListingID         uint64        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Seller            string        `gorm:"index;not null" json:"seller"`
	Buyer             string        `json:"buyer"`
	Price             string        `gorm:"not null" json:"price"` // wei, decimal string
	TokenAddress      string        `json:"token_address"`
	LPAddress         string        `gorm:"column:lp_address" json:"lp_address"`
	LockURL           string        `json:"lock_url"`
	TransferProofHash string        `json:"transfer_proof_hash"`
	ContactMethod     string        `json:"contact_method"`
	Status            ListingStatus `json:"status"`
	PurchasedAt       *time.Time    `json:"purchased_at,omitempty"`
	ListedAt          time.Time     `json:"listed_at"`
	SyncedAt          time.Time     `json:"synced_at"`
}

// PriceWei returns the price as a big integer, or nil when the stored value is malformed
func (l *Listing) PriceWei() *big.Int {
	price, ok := new(big.Int).SetString(l.Price, 10)
	if !ok {
		return nil
	}
	return price
}

// HasBuyer reports whether a buyer has been recorded by the contract
func (l *Listing) HasBuyer() bool {
	return l.Buyer != "" && l.Buyer != ZeroAddress
}

// ZeroAddress is what the contract returns for unset address fields
const ZeroAddress = "0x0000000000000000000000000000000000000000"
