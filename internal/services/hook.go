package services

import "github.com/rxtech-lab/lp-marketplace-mcp/internal/models"

// Hook is used to perform actions when a marketplace transaction is confirmed based on its action
type Hook interface {
	// CanHandle is used to check if the hook can handle the action
	CanHandle(action models.MarketplaceAction) bool
	// OnTransactionConfirmed is called once per confirmed transaction
	OnTransactionConfirmed(tx models.MarketplaceTransaction) error
}
