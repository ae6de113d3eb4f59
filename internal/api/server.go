package api

import (
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/api/middleware"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/mcp"
	app "github.com/rxtech-lab/lp-marketplace-mcp/internal/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
	"github.com/sirupsen/logrus"
)

const mcpEndpoint = "/mcp"

type APIServer struct {
	app         *fiber.App
	services    *app.Services
	mcpServer   *mcp.MCPServer
	port        int
	routesReady bool
}

func NewAPIServer(services *app.Services) *APIServer {
	fiberApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	fiberApp.Use(cors.New())
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	return &APIServer{
		app:      fiberApp,
		services: services,
	}
}

// EnableAuthentication requires a bearer JWT on every route except /health
// and the .well-known metadata. It must run before SetupRoutes.
func (s *APIServer) EnableAuthentication() error {
	if s.routesReady {
		return fmt.Errorf("authentication must be enabled before routes are set up")
	}

	cfg := s.services.Config
	var authenticator *utils.JwtAuthenticator
	switch {
	case cfg.JWKSURI != "":
		authenticator = utils.NewJwtAuthenticator(cfg.JWKSURI)
	case cfg.JWTSecret != "":
		authenticator = utils.NewSecretJwtAuthenticator(cfg.JWTSecret)
	default:
		return fmt.Errorf("JWT_SECRET or JWKS_URI is required to enable authentication")
	}

	authConfig := middleware.DefaultAuthConfig()
	authConfig.Audience = cfg.JWTAudience
	authConfig.Authenticator = authenticator
	if _, ok := s.browserWallet(); ok {
		// the signing and connect pages are opened in a plain browser tab
		authConfig.PublicPrefixes = []string{"/tx/", "/api/tx/", "/connect/", "/api/wallet/connect/"}
	}
	if cfg.BaseURL != "" {
		authConfig.ResourceMetadataURL = cfg.BaseURL + "/.well-known/oauth-protected-resource"
	}
	s.app.Use(middleware.AuthMiddleware(authConfig))
	logrus.WithField("jwks", cfg.JWKSURI != "").Info("bearer authentication enabled")
	return nil
}

// SetupRoutes registers the HTTP API. Calling it twice is a no-op.
func (s *APIServer) SetupRoutes() {
	if s.routesReady {
		return
	}
	s.routesReady = true

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	s.app.Get("/.well-known/oauth-protected-resource", s.handleOAuthProtectedResource)
	s.setupSigningRoutes()

	api := s.app.Group("/api")

	api.Get("/networks", s.handleListNetworks)
	api.Post("/networks/:chain_id/switch", s.handleSwitchNetwork)
	api.Get("/wallet", s.handleWalletStatus)

	api.Get("/listing-fee", s.handleListingFee)
	api.Get("/listings", s.handleDiscoverListings)
	api.Get("/listings/cached", s.handleCachedListings)
	api.Get("/listings/:id", s.handleGetListing)
	api.Get("/listings/:id/expired", s.handleConfirmationExpired)

	api.Post("/listings", s.handleCreateListing)
	api.Post("/listings/:id/purchase", s.handlePurchaseListing)
	api.Post("/listings/:id/proof", s.handleSubmitTransferProof)
	api.Post("/listings/:id/confirm", s.handleConfirmReceipt)
	api.Post("/listings/:id/price", s.handleEditPrice)
	api.Post("/listings/:id/cancel", s.handleCancelListing)

	api.Get("/transactions", s.handleListTransactions)
	api.Get("/transactions/:id", s.handleGetTransaction)
}

// EnableStreamableHttp serves the MCP server over streamable HTTP at /mcp
func (s *APIServer) EnableStreamableHttp() error {
	if s.mcpServer == nil {
		return fmt.Errorf("MCP server is not set")
	}
	s.SetupRoutes()

	handler := s.mcpServer.StreamableHTTPServer(mcpEndpoint)
	s.app.All(mcpEndpoint, adaptor.HTTPHandler(handler))
	return nil
}

// Start listens on port, or on a random free port when port is nil, and
// returns the port in use.
func (s *APIServer) Start(port *int) (int, error) {
	s.SetupRoutes()

	address := ":0"
	if port != nil {
		address = fmt.Sprintf(":%d", *port)
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	go func() {
		if err := s.app.Listener(listener); err != nil {
			logrus.WithError(err).Error("API server stopped")
		}
	}()

	return s.port, nil
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *APIServer) GetPort() int {
	return s.port
}

// SetMCPServer sets the MCP server instance served by EnableStreamableHttp
func (s *APIServer) SetMCPServer(mcpServer *mcp.MCPServer) {
	s.mcpServer = mcpServer
}

// GetMCPServer returns the MCP server instance
func (s *APIServer) GetMCPServer() *mcp.MCPServer {
	return s.mcpServer
}

func (s *APIServer) GetFiberApp() *fiber.App {
	return s.app
}
