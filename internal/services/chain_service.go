package services

import (
	"fmt"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChainService handles chain-related operations
type ChainService interface {
	// SyncNetworks upserts the network table, leaving the active selection untouched
	SyncNetworks(networks []config.Network) error
	GetActiveChain() (*models.Chain, error)
	GetChainByNetworkID(networkID uint64) (*models.Chain, error)
	SetActiveChainByNetworkID(networkID uint64) error
	ListChains() ([]models.Chain, error)
}

type chainService struct {
	db *gorm.DB
}

// NewChainService creates a new ChainService
func NewChainService(db *gorm.DB) ChainService {
	return &chainService{db: db}
}

func (s *chainService) SyncNetworks(networks []config.Network) error {
	if len(networks) == 0 {
		return nil
	}

	chains := make([]models.Chain, 0, len(networks))
	for _, network := range networks {
		chain := models.Chain{
			NetworkID:          network.ChainID,
			Name:               network.Name,
			NativeSymbol:       network.NativeSymbol,
			RPCURLs:            network.RPCURLs,
			WSURLs:             network.WSURLs,
			ExplorerURL:        network.ExplorerURL,
			MarketplaceAddress: network.MarketplaceAddress,
		}
		if endpoints := network.Endpoints(); len(endpoints) > 0 {
			chain.RPC = endpoints[0]
		}
		chains = append(chains, chain)
	}

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "native_symbol", "rpc", "rpc_urls", "ws_urls", "explorer_url", "marketplace_address", "updated_at",
		}),
	}).Create(&chains).Error
}

// GetActiveChain returns the currently active chain
func (s *chainService) GetActiveChain() (*models.Chain, error) {
	var chain models.Chain
	err := s.db.Where("is_active = ?", true).First(&chain).Error
	if err != nil {
		return nil, err
	}
	return &chain, nil
}

func (s *chainService) GetChainByNetworkID(networkID uint64) (*models.Chain, error) {
	var chain models.Chain
	err := s.db.Where("chain_id = ?", networkID).First(&chain).Error
	if err != nil {
		return nil, err
	}
	return &chain, nil
}

// SetActiveChainByNetworkID sets a chain as active by its blockchain chain id
func (s *chainService) SetActiveChainByNetworkID(networkID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var chain models.Chain
		if err := tx.Where("chain_id = ?", networkID).First(&chain).Error; err != nil {
			return fmt.Errorf("chain %d: %w", networkID, err)
		}

		// Deactivate all chains
		if err := tx.Model(&models.Chain{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return err
		}

		return tx.Model(&chain).Update("is_active", true).Error
	})
}

// ListChains returns all chains ordered by chain id
func (s *chainService) ListChains() ([]models.Chain, error) {
	var chains []models.Chain
	err := s.db.Order("chain_id asc").Find(&chains).Error
	return chains, err
}
