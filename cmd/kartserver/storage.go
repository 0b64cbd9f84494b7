package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/logging"
	"github.com/kartsync/kartsync/internal/storage"
	"github.com/kartsync/kartsync/internal/storage/memory"
	pgstorage "github.com/kartsync/kartsync/internal/storage/postgres"
	sqlitestorage "github.com/kartsync/kartsync/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// storageDeps is what every backend may need.
type storageDeps struct {
	LogManager   *logging.SlogManager
	DBLogger     zerolog.Logger
	SessionStart time.Time
}

func createStorageBackend(storageCfg config.StorageConfig, deps storageDeps) (storage.Backend, error) {
	switch strings.ToLower(storageCfg.Type) {
	case "postgres":
		return pgstorage.New(pgstorage.Dependencies{
			LogManager:    deps.LogManager,
			DBLogger:      deps.DBLogger,
			FlushInterval: storageCfg.FlushInterval,
		}), nil

	case "sqlite":
		dumpPath := sessionFilePath(storageCfg.SQLite.Path, deps.SessionStart)
		if err := os.MkdirAll(filepath.Dir(dumpPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite dump dir: %w", err)
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval:  storageCfg.SQLite.DumpInterval,
			DumpPath:      dumpPath,
			FlushInterval: storageCfg.FlushInterval,
		}, deps.LogManager, deps.DBLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil

	case "none":
		return storage.Noop{}, nil

	case "", "memory":
		return memory.New(storageCfg.Memory), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
}

// sessionFilePath stamps the session start into a file name, so
// "recordings/kartsync.db" becomes "recordings/kartsync_20260102_150405.db".
func sessionFilePath(path string, start time.Time) string {
	if path == "" {
		path = "kartsync.db"
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(path, ext), start.Format("20060102_150405"), ext)
}
