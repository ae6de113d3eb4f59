package main

import (
	"flag"
	"io"
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
	"github.com/sirupsen/logrus"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

func configureAndStartServer(cfg *config.Config, dbService services.DBService, backend *server.Backend, port int) (*api.APIServer, *server.Services, int, error) {
	svc, err := server.InitializeServices(cfg, dbService.GetDB(), backend)
	if err != nil {
		return nil, nil, 0, err
	}

	// No authentication and no /mcp route: the MCP transport is stdio
	apiServer := api.NewAPIServer(svc)
	apiServer.SetupRoutes()

	var portPtr *int
	if port != 0 {
		portPtr = &port
	}
	startedPort, err := apiServer.Start(portPtr)
	if err != nil {
		svc.Close()
		return nil, nil, 0, err
	}

	// record urls in tool results point at the port actually in use
	apiServer.SetMCPServer(mcp.NewMCPServer(svc, startedPort))
	return apiServer, svc, startedPort, nil
}

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	var showHelp = flag.Bool("help", false, "Show help information")
	var enableLog = flag.Bool("log", false, "Enable logging output")
	flag.Parse()

	// stdout is the MCP transport, keep it clean unless asked
	if !*enableLog {
		log.SetOutput(io.Discard)
		logrus.SetOutput(io.Discard)
	}

	if *showVersion {
		log.Printf("LP Marketplace MCP Server\n")
		log.Printf("Version: %s\n", Version)
		log.Printf("Commit: %s\n", CommitHash)
		log.Printf("Built: %s\n", BuildTime)
		return
	}

	if *showHelp {
		log.Printf("LP Marketplace MCP Server\n\n")
		log.Printf("Usage: %s [options]\n\n", os.Args[0])
		log.Printf("Options:\n")
		log.Printf("  --version    Show version information\n")
		log.Printf("  --help       Show this help message\n")
		log.Printf("  --log        Enable logging output\n\n")
		log.Printf("Description:\n")
		log.Printf("  Buy and sell locked LP positions through the marketplace escrow contract.\n")
		log.Printf("  Provides 14 MCP tools for listings, trading and network selection.\n\n")
		log.Printf("Database: ~/lp-marketplace.db (SQLite, MARKETPLACE_DB_PATH overrides)\n")
		log.Printf("Web Interface: http://localhost:[random-port]\n")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	dbPath, err := cfg.SqlitePath()
	if err != nil {
		log.Fatal("Failed to resolve database path:", err)
	}
	dbService, err := services.NewSqliteDBService(dbPath)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer dbService.Close()

	backend, err := server.NewRPCBackend(cfg)
	if err != nil {
		log.Fatal("Failed to initialize chain backend:", err)
	}
	defer backend.Close()

	apiServer, svc, port, err := configureAndStartServer(cfg, dbService, backend, 0)
	if err != nil {
		log.Fatal("Failed to start API server:", err)
	}
	defer svc.Close()

	log.Printf("API server started on port %d\n", port)

	mcpServer := apiServer.GetMCPServer()
	if mcpServer == nil {
		log.Fatal("MCP server not found")
	}

	go func() {
		if err := mcpServer.StartStdioServer(); err != nil {
			log.SetOutput(os.Stderr)
			log.SetFlags(0)
			log.Fatal("Failed to start MCP server:", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("\nShutting down servers...")

	if err := apiServer.Shutdown(); err != nil {
		log.SetOutput(os.Stderr)
		log.SetFlags(0)
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Servers shut down successfully")
}
