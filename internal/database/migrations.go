package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationLinkCleanupTriggers = "2026-09-01_link_cleanup_triggers"
	migrationSplitLegacyLinks    = "2026-09-02_split_legacy_links"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrationsFor(driver string, logger *zap.Logger) []migrationDefinition {
	return []migrationDefinition{
		{name: migrationLinkCleanupTriggers, apply: func(tx *gorm.DB) error {
			return installCleanupTriggers(tx, driver)
		}},
		{name: migrationSplitLegacyLinks, apply: func(tx *gorm.DB) error {
			return splitLegacyLinks(tx, logger)
		}},
	}
}

// applyMigrations runs every pending migration together with its db_migrations record in one
// transaction, so a failed migration leaves neither partial changes nor a record behind.
func applyMigrations(db *gorm.DB, driver string, logger *zap.Logger) error {
	for _, migration := range migrationsFor(driver, logger) {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			logger.Error("database migration rolled back", zap.String("migration", migration.name), zap.Error(err))
			return fmt.Errorf("%w: %s: %w", ErrMigrationFailed, migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}
