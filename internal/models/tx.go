package models

import "time"

type TransactionStatus string

type MarketplaceAction string

const (
	TransactionStatusSubmitting TransactionStatus = "submitting"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusConfirmed  TransactionStatus = "confirmed"
	TransactionStatusFailed     TransactionStatus = "failed"
	// TransactionStatusStale marks a write whose network changed while it was pending
	TransactionStatusStale TransactionStatus = "stale"
)

const (
	MarketplaceActionCreateListing       MarketplaceAction = "create_listing"
	MarketplaceActionPurchaseListing     MarketplaceAction = "purchase_listing"
	MarketplaceActionSubmitTransferProof MarketplaceAction = "submit_transfer_proof"
	MarketplaceActionConfirmReceipt      MarketplaceAction = "confirm_receipt"
	MarketplaceActionEditPrice           MarketplaceAction = "edit_price"
	MarketplaceActionCancelListing       MarketplaceAction = "cancel_listing"
)

// IsFinal reports whether no further status change is expected
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionStatusConfirmed, TransactionStatusFailed, TransactionStatusStale:
		return true
	}
	return false
}

// MarketplaceTransaction is the persisted copy of a transaction lifecycle record
type MarketplaceTransaction struct {
	ID              string            `gorm:"primaryKey" json:"id"`
	Action          MarketplaceAction `gorm:"not null" json:"action"`
	ListingID       uint64            `gorm:"index" json:"listing_id"` // zero for create until the receipt is parsed
	ChainID         uint64            `gorm:"not null" json:"chain_id"`
	From            string            `gorm:"column:from_address" json:"from"`
	TransactionHash string            `gorm:"index" json:"transaction_hash"`
	Value           string            `json:"value"` // wei, decimal string
	Status          TransactionStatus `gorm:"default:submitting" json:"status"`
	ErrorKind       string            `json:"error_kind,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	BlockNumber     uint64            `json:"block_number,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
