package api

import (
	"bytes"
	"errors"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/assets"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/sirupsen/logrus"
)

// SigningCompleteRequest is what the signing page posts once the wallet
// answered. A non-zero ErrorCode means the wallet refused.
type SigningCompleteRequest struct {
	TransactionHash string `json:"transaction_hash"`
	ChainID         uint64 `json:"chain_id"`
	ErrorCode       int    `json:"error_code"`
	ErrorMessage    string `json:"error_message"`
}

type WalletConnectRequest struct {
	Address string `json:"address"`
	ChainID uint64 `json:"chain_id"`
}

type ErrorPageData struct {
	Title      string
	Message    string
	StatusCode int
}

// browserWallet returns the session's browser wallet, if writes are signed in the browser
func (s *APIServer) browserWallet() (*services.BrowserWallet, bool) {
	wallet, ok := s.services.Wallet.(*services.BrowserWallet)
	return wallet, ok
}

func (s *APIServer) setupSigningRoutes() {
	if _, ok := s.browserWallet(); !ok {
		return
	}
	s.app.Get("/tx/:session_id", s.handleSigningPage)
	s.app.Get("/api/tx/:session_id", s.handleGetSigningRequest)
	s.app.Post("/api/tx/:session_id", s.handleCompleteSigning)
	s.app.Get("/connect/:token", s.handleConnectPage)
	s.app.Post("/api/wallet/connect/:token", s.handleConnectWallet)
}

func (s *APIServer) renderPage(c *fiber.Ctx, name string, page []byte, data interface{}) error {
	tmpl, err := template.New(name).Parse(string(page))
	if err != nil {
		logrus.WithField("template", name).WithError(err).Error("failed to parse page template")
		return c.Status(fiber.StatusInternalServerError).SendString("Error parsing template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logrus.WithField("template", name).WithError(err).Error("failed to render page template")
		return c.Status(fiber.StatusInternalServerError).SendString("Error rendering template")
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// renderErrorPage renders the error HTML template with the provided data
func (s *APIServer) renderErrorPage(c *fiber.Ctx, statusCode int, title, message string) error {
	c.Status(statusCode)
	return s.renderPage(c, "error", assets.ErrorHTML, ErrorPageData{
		Title:      title,
		Message:    message,
		StatusCode: statusCode,
	})
}

// handleSigningPage serves the page that asks the user's wallet to send a pending write
func (s *APIServer) handleSigningPage(c *fiber.Ctx) error {
	wallet, _ := s.browserWallet()
	request, ok := wallet.SigningRequest(c.Params("session_id"))
	if !ok {
		return s.renderErrorPage(c, fiber.StatusNotFound, "Signing Request Not Found",
			"The requested transaction could not be found. It may have expired, or the URL is incorrect.")
	}
	if request.Status != services.SigningStatusPending {
		return s.renderErrorPage(c, fiber.StatusNotAcceptable, "Signing Request Closed",
			"This transaction was already "+string(request.Status)+". No further action is required.")
	}

	networkName := ""
	if network, ok := s.services.Config.Networks.Get(request.ChainID); ok {
		networkName = network.Name
	}
	return s.renderPage(c, "signing", assets.SigningHTML, map[string]interface{}{
		"Request":     request,
		"NetworkName": networkName,
	})
}

func (s *APIServer) handleGetSigningRequest(c *fiber.Ctx) error {
	wallet, _ := s.browserWallet()
	request, ok := wallet.SigningRequest(c.Params("session_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Signing request not found",
		})
	}
	return c.JSON(request)
}

// handleCompleteSigning receives the wallet's answer from the signing page
func (s *APIServer) handleCompleteSigning(c *fiber.Ctx) error {
	wallet, _ := s.browserWallet()
	var body SigningCompleteRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	err := wallet.CompleteSigning(c.Params("session_id"), services.SigningResult{
		TransactionHash: body.TransactionHash,
		ChainID:         body.ChainID,
		ErrorCode:       body.ErrorCode,
		ErrorMessage:    body.ErrorMessage,
	})

	var validationErr *services.ValidationError
	switch {
	case err == nil:
		request, _ := wallet.SigningRequest(c.Params("session_id"))
		return c.JSON(request)
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Message})
	case errors.Is(err, services.ErrSigningRequestNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Signing request not found"})
	case errors.Is(err, services.ErrSigningRequestClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func (s *APIServer) handleConnectPage(c *fiber.Ctx) error {
	wallet, _ := s.browserWallet()
	token := c.Params("token")
	if token != wallet.ConnectToken() {
		return s.renderErrorPage(c, fiber.StatusNotFound, "Connect Link Not Found",
			"This connect link is not valid for the running server. Ask for a fresh one with wallet_status.")
	}

	network := s.services.Marketplace.RequiredNetwork()
	return s.renderPage(c, "connect", assets.ConnectHTML, map[string]interface{}{
		"NetworkName": network.Name,
		"ChainID":     network.ChainID,
		"Endpoint":    "/api/wallet/connect/" + token,
	})
}

// handleConnectWallet records the account the connect page read from the wallet
func (s *APIServer) handleConnectWallet(c *fiber.Ctx) error {
	wallet, _ := s.browserWallet()
	if c.Params("token") != wallet.ConnectToken() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown connect token"})
	}

	var body WalletConnectRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := wallet.Connect(body.Address, body.ChainID); err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Message})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.walletStatus(wallet))
}
