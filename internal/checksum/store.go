// Package checksum stores content fingerprints used to skip redundant writes.
package checksum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Type enumerates checksum sub-types. Only TypeVariation is backed by storage.
type Type int

const (
	// TypeVariation fingerprints the variation-relevant content of a product variation.
	TypeVariation Type = 1
)

const (
	opStoreNew = "checksum.store.new"
	opRead     = "checksum.read"
	opWrite    = "checksum.write"
	opDelete   = "checksum.delete"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// Record backs product_checksums. One row per product and type.
type Record struct {
	ProductID string `gorm:"column:product_id;primaryKey;size:190"`
	Type      Type   `gorm:"column:type;primaryKey;autoIncrement:false"`
	Checksum  string `gorm:"column:checksum;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "product_checksums"
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store reads and writes checksums. Checksums never expire.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opStoreNew, errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// WithTx returns a Store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, logger: s.logger}
}

// Read returns the stored checksum or "" when none was computed. Unsupported types and empty
// endpoint ids always read as "".
func (s *Store) Read(ctx context.Context, endpointID string, checksumType Type) (string, error) {
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" || checksumType != TypeVariation {
		return "", nil
	}
	var values []string
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("product_id = ? AND type = ?", endpointID, checksumType).
		Limit(1).
		Pluck("checksum", &values).Error
	if err != nil {
		s.logError(opRead, "query_failed", err, zap.String("endpoint_id", endpointID))
		return "", storeerr.New(opRead, "query_failed", err)
	}
	if len(values) == 0 {
		return "", nil
	}
	s.loggerOrDefault().Debug("checksum read", zap.String("endpoint_id", endpointID), zap.Int("type", int(checksumType)), zap.String("checksum", values[0]))
	return values[0], nil
}

// Write upserts the checksum. It reports false without touching storage for unsupported types.
func (s *Store) Write(ctx context.Context, endpointID string, checksumType Type, value string) (bool, error) {
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" || checksumType != TypeVariation {
		return false, nil
	}
	record := Record{ProductID: endpointID, Type: checksumType, Checksum: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"checksum"}),
		}).
		Create(&record).Error
	if err != nil {
		s.logError(opWrite, "upsert_failed", err, zap.String("endpoint_id", endpointID))
		return false, storeerr.New(opWrite, "upsert_failed", err)
	}
	s.loggerOrDefault().Debug("checksum written", zap.String("endpoint_id", endpointID), zap.Int("type", int(checksumType)), zap.String("checksum", value))
	return true, nil
}

// Delete removes the checksum. It reports false for unsupported types.
func (s *Store) Delete(ctx context.Context, endpointID string, checksumType Type) (bool, error) {
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" || checksumType != TypeVariation {
		return false, nil
	}
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND type = ?", endpointID, checksumType).
		Delete(&Record{}).Error
	if err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("endpoint_id", endpointID))
		return false, storeerr.New(opDelete, "delete_failed", err)
	}
	return true, nil
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("checksum store error", attrs...)
}
