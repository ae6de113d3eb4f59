package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/tools"
)

type TransferProofRequest struct {
	TransferProofHash string `json:"transfer_proof_hash"`
}

type EditPriceRequest struct {
	NewPrice string `json:"new_price"`
}

// writeStatus maps a failed write to an HTTP status
func writeStatus(kind services.TxErrorKind) int {
	switch kind {
	case services.TxErrorInvalidInput:
		return fiber.StatusBadRequest
	case services.TxErrorWrongNetwork, services.TxErrorWalletDisconnected:
		return fiber.StatusPreconditionFailed
	case services.TxErrorUserRejected, services.TxErrorInsufficientFunds,
		services.TxErrorGasFailure, services.TxErrorContractRevert, services.TxErrorStale:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusBadGateway
	}
}

// respondWrite renders a write the same way for every marketplace action
func (s *APIServer) respondWrite(c *fiber.Ctx, state services.TxState, err error) error {
	if err != nil {
		txErr := services.ClassifyTxError(err)
		return c.Status(writeStatus(txErr.Kind)).JSON(fiber.Map{
			"error":       txErr.UserMessage(),
			"kind":        txErr.Kind,
			"transaction": state,
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(tools.NewWriteResult(state, s.services.Config.BaseURL, s.port))
}

func (s *APIServer) badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"kind":  services.TxErrorInvalidInput,
	})
}

func (s *APIServer) handleCreateListing(c *fiber.Ctx) error {
	var intent services.CreateListingIntent
	if err := c.BodyParser(&intent); err != nil {
		return s.badRequest(c, "Invalid request body: "+err.Error())
	}

	state, err := s.services.Marketplace.CreateListing(c.UserContext(), intent)
	return s.respondWrite(c, state, err)
}

func (s *APIServer) handlePurchaseListing(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}

	state, err := s.services.Marketplace.PurchaseListing(c.UserContext(), services.ListingActionIntent{ListingID: listingID})
	return s.respondWrite(c, state, err)
}

func (s *APIServer) handleSubmitTransferProof(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}
	var body TransferProofRequest
	if err := c.BodyParser(&body); err != nil {
		return s.badRequest(c, "Invalid request body: "+err.Error())
	}

	state, err := s.services.Marketplace.SubmitTransferProof(c.UserContext(), services.TransferProofIntent{
		ListingID:         listingID,
		TransferProofHash: body.TransferProofHash,
	})
	return s.respondWrite(c, state, err)
}

func (s *APIServer) handleConfirmReceipt(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}

	state, err := s.services.Marketplace.ConfirmReceipt(c.UserContext(), services.ListingActionIntent{ListingID: listingID})
	return s.respondWrite(c, state, err)
}

func (s *APIServer) handleEditPrice(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}
	var body EditPriceRequest
	if err := c.BodyParser(&body); err != nil {
		return s.badRequest(c, "Invalid request body: "+err.Error())
	}

	state, err := s.services.Marketplace.EditPrice(c.UserContext(), services.EditPriceIntent{
		ListingID: listingID,
		NewPrice:  body.NewPrice,
	})
	return s.respondWrite(c, state, err)
}

func (s *APIServer) handleCancelListing(c *fiber.Ctx) error {
	listingID, err := listingIDParam(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}

	state, err := s.services.Marketplace.CancelListing(c.UserContext(), services.ListingActionIntent{ListingID: listingID})
	return s.respondWrite(c, state, err)
}
