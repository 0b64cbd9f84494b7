// Package database opens the gorm connections used by the recording
// backends and reads recordings back for verification.
package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/kartsync/kartsync/internal/model"
	"github.com/kartsync/kartsync/internal/model/convert"
	"github.com/kartsync/kartsync/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrSessionNotFound is returned by LoadSession when nothing matches.
var ErrSessionNotFound = errors.New("session not found")

// GetPostgresDB returns a connection to the Postgres database using viper config.
func GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses an in-memory database.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA page_size = 32768;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// Setup migrates the recording schema.
func Setup(db *gorm.DB, log zerolog.Logger) error {
	log.Info().Str("dialect", db.Name()).Msg("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info().Msg("Database setup complete")
	return nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	// remove existing file if it exists
	if exists, err := os.Stat(sqliteFilePath); err == nil && exists != nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	err := db.Exec("VACUUM INTO 'file:" + sqliteFilePath + "';").Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %s", err)
	}

	return nil
}

// Recording is everything stored for one session, in recording order.
type Recording struct {
	Session  core.Session
	Vehicles []core.VehicleInfo
	Moves    []core.MoveRecord
	States   []core.StateRecord
}

// MovesFor returns the recorded moves of one vehicle.
func (r *Recording) MovesFor(vehicleID string) []core.MoveRecord {
	var out []core.MoveRecord
	for _, m := range r.Moves {
		if m.VehicleID == vehicleID {
			out = append(out, m)
		}
	}
	return out
}

// StatesFor returns the recorded states of one vehicle.
func (r *Recording) StatesFor(vehicleID string) []core.StateRecord {
	var out []core.StateRecord
	for _, s := range r.States {
		if s.VehicleID == vehicleID {
			out = append(out, s)
		}
	}
	return out
}

// LoadSession reads a recorded session. An empty id selects the most
// recently started one.
func LoadSession(db *gorm.DB, id string) (*Recording, error) {
	var s model.Session
	q := db.Order("start_time DESC")
	if id != "" {
		q = db.Where("id = ?", id)
	}
	if err := q.First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	cs, err := convert.SessionToCore(s)
	if err != nil {
		return nil, err
	}
	rec := &Recording{Session: cs}

	var vehicles []model.Vehicle
	if err := db.Where("session_id = ?", s.ID).Order("join_time, id").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("loading vehicles: %w", err)
	}
	for _, v := range vehicles {
		cv, err := convert.VehicleToCore(v)
		if err != nil {
			return nil, err
		}
		rec.Vehicles = append(rec.Vehicles, cv)
	}

	var moves []model.Move
	if err := db.Where("session_id = ?", s.ID).Order("id").Find(&moves).Error; err != nil {
		return nil, fmt.Errorf("loading moves: %w", err)
	}
	for _, m := range moves {
		rec.Moves = append(rec.Moves, convert.MoveToCore(m))
	}

	var states []model.VehicleState
	if err := db.Where("session_id = ?", s.ID).Order("tick, id").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("loading states: %w", err)
	}
	for _, st := range states {
		cst, err := convert.StateToCore(st)
		if err != nil {
			return nil, err
		}
		rec.States = append(rec.States, cst)
	}

	return rec, nil
}
