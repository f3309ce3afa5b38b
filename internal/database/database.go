// Package database opens the backing store and brings its schema up to date.
package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/erplink/internal/checksum"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/logging"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrUnsupportedDriver indicates a driver other than sqlite or postgres.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")
	// ErrMigrationFailed marks a schema migration that was rolled back.
	ErrMigrationFailed = errors.New("database: migration failed")
)

// Config selects and parameterizes the backing store.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	LogLevel string
}

// Open connects to the configured database, migrates the schema and applies pending named
// migrations. Any migration failure closes the connection and is returned wrapped in
// ErrMigrationFailed.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	dialector, err := dialectorFor(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormLogger(logger, logging.GormLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(schemaModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: auto migrate: %v", ErrMigrationFailed, err)
	}

	if err := applyMigrations(db, driver, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driver))
	return db, nil
}

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(cfg.Path), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func schemaModels() []any {
	models := storefront.Models()
	models = append(models, linking.Models()...)
	models = append(models, &checksum.Record{}, &migrationRecord{})
	return models
}
