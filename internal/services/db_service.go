package services

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBService handles database connection and lifecycle management
type DBService interface {
	GetDB() *gorm.DB
	Close() error
}

type dbService struct {
	db *gorm.DB
}

// NewSqliteDBService opens (and creates if needed) a SQLite database. ":memory:" is accepted for tests.
func NewSqliteDBService(dbPath string) (DBService, error) {
	if dbPath == ":memory:" {
		// every new connection would get its own empty in-memory database
		return openDB(sqlite.Open(dbPath), 1)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return openDB(sqlite.Open(dbPath), 0)
}

// NewPostgresDBService connects to PostgreSQL using a DSN or postgres:// URL
func NewPostgresDBService(dsn string) (DBService, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres url is empty")
	}
	return openDB(postgres.Open(dsn), 0)
}

func openDB(dialector gorm.Dialector, maxOpenConns int) (DBService, error) {
	// Only log errors and slow queries
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}

	service := &dbService{db: db}
	if err := service.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return service, nil
}

// GetDB returns the underlying GORM database instance
func (s *dbService) GetDB() *gorm.DB {
	return s.db
}

func (s *dbService) migrate() error {
	return s.db.AutoMigrate(
		&models.Chain{},
		&models.Listing{},
		&models.MarketplaceTransaction{},
	)
}

// Close closes the database connection
func (s *dbService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
