// Package postgres implements the storage.Backend interface on PostgreSQL
// by connecting the GORM backend to the server configured under db.*.
package postgres

import (
	"fmt"
	"time"

	"github.com/kartsync/kartsync/internal/database"
	"github.com/kartsync/kartsync/internal/logging"
	gormstorage "github.com/kartsync/kartsync/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	LogManager    *logging.SlogManager
	DBLogger      zerolog.Logger
	FlushInterval time.Duration
}

// Backend is the GORM backend bound to a Postgres connection on Init.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects, validates the connection and initializes the GORM backend.
func (b *Backend) Init() error {
	db, err := database.GetPostgresDB()
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		LogManager:    b.deps.LogManager,
		DBLogger:      b.deps.DBLogger,
		FlushInterval: b.deps.FlushInterval,
	})
	return b.Backend.Init()
}

// Close flushes and stops the writer. It is a no-op if Init failed.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
