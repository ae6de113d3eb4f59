package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/tools"
)

type NetworksResponse struct {
	Networks           []models.Chain `json:"networks"`
	MarketplaceChainID uint64         `json:"marketplace_chain_id"`
}

func (s *APIServer) handleListNetworks(c *fiber.Ctx) error {
	chains, err := s.services.Chains.ListChains()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list networks: " + err.Error(),
		})
	}

	return c.JSON(NetworksResponse{
		Networks:           chains,
		MarketplaceChainID: s.services.Marketplace.RequiredNetwork().ChainID,
	})
}

func (s *APIServer) handleSwitchNetwork(c *fiber.Ctx) error {
	chainID, err := strconv.ParseUint(c.Params("chain_id"), 10, 64)
	if err != nil || chainID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid chain_id",
		})
	}

	account, err := s.services.Marketplace.SwitchNetwork(c.UserContext(), chainID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  err.Error(),
			"wallet": tools.NewWalletStatus(account, s.services.Marketplace),
		})
	}
	return c.JSON(tools.NewWalletStatus(account, s.services.Marketplace))
}

func (s *APIServer) handleWalletStatus(c *fiber.Ctx) error {
	return c.JSON(s.walletStatus(s.services.Marketplace.Wallet()))
}

func (s *APIServer) walletStatus(wallet services.WalletSession) tools.WalletStatus {
	status := tools.NewWalletStatus(wallet.Account(), s.services.Marketplace)
	return status.WithConnectURL(wallet, s.services.Config.BaseURL, s.port)
}
