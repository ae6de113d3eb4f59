package handler

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/api"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/mcp"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

var (
	apiServer *api.APIServer
	initOnce  sync.Once
	initErr   error
)

// Handler is the main Vercel function handler
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		initErr = initializeAPIServer()
	})
	if initErr != nil {
		log.Printf("Failed to initialize API server: %v", initErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	adaptor.FiberApp(apiServer.GetFiberApp())(w, r)
}

func initializeAPIServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbService, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	backend, err := server.NewRPCBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize chain backend: %w", err)
	}

	svc, err := server.InitializeServices(cfg, dbService.GetDB(), backend)
	if err != nil {
		return err
	}

	apiServer = api.NewAPIServer(svc)
	if cfg.AuthEnabled() {
		if err := apiServer.EnableAuthentication(); err != nil {
			return err
		}
	}
	apiServer.SetMCPServer(mcp.NewMCPServer(svc, cfg.Port))
	if err := apiServer.EnableStreamableHttp(); err != nil {
		return err
	}

	apiServer.GetFiberApp().Get("/", func(c *fiber.Ctx) error {
		return c.JSON(map[string]interface{}{
			"message": "LP Marketplace MCP API",
			"status":  "running",
			"version": "1.0.0",
		})
	})
	return nil
}

// openDatabase prefers POSTGRES_URL; otherwise sqlite in /tmp, the only writable path on Vercel
func openDatabase(cfg *config.Config) (services.DBService, error) {
	if cfg.PostgresURL != "" {
		return services.NewPostgresDBService(cfg.PostgresURL)
	}
	if os.Getenv("VERCEL") == "1" {
		return services.NewSqliteDBService("/tmp/lp-marketplace.db")
	}
	dbPath, err := cfg.SqlitePath()
	if err != nil {
		return nil, err
	}
	return services.NewSqliteDBService(dbPath)
}
