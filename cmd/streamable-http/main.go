package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/api"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/mcp"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/server"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
)

// configureAndStartServer serves the API and MCP over HTTP behind bearer authentication
func configureAndStartServer(cfg *config.Config, dbService services.DBService, backend *server.Backend, port int) (*api.APIServer, *server.Services, int, error) {
	svc, err := server.InitializeServices(cfg, dbService.GetDB(), backend)
	if err != nil {
		return nil, nil, 0, err
	}

	apiServer := api.NewAPIServer(svc)
	if err := apiServer.EnableAuthentication(); err != nil {
		svc.Close()
		return nil, nil, 0, err
	}
	apiServer.SetMCPServer(mcp.NewMCPServer(svc, port))
	if err := apiServer.EnableStreamableHttp(); err != nil {
		svc.Close()
		return nil, nil, 0, err
	}

	var portPtr *int
	if port != 0 {
		portPtr = &port
	}
	startedPort, err := apiServer.Start(portPtr)
	if err != nil {
		svc.Close()
		return nil, nil, 0, err
	}
	return apiServer, svc, startedPort, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	dbService, err := services.NewPostgresDBService(cfg.PostgresURL)
	if err != nil {
		log.Fatal("Failed to initialize database service:", err)
	}
	defer dbService.Close()

	backend, err := server.NewRPCBackend(cfg)
	if err != nil {
		log.Fatal("Failed to initialize chain backend:", err)
	}
	defer backend.Close()

	apiServer, svc, startedPort, err := configureAndStartServer(cfg, dbService, backend, cfg.Port)
	if err != nil {
		log.Fatal("Failed to start API server:", err)
	}
	defer svc.Close()

	log.Printf("API server started on port %d\n", startedPort)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("\nShutting down server...")

	if err := apiServer.Shutdown(); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Server shut down successfully")
}
