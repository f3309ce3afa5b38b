package connector

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/checksum"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opTransactorNew = "connector.transactor.new"
	opTransaction   = "connector.transaction"
)

// Stores groups the repositories a controller works with. Inside InTx every store is bound to the
// same transaction.
type Stores struct {
	Storefront *storefront.Store
	Links      *linking.Store
	Checksums  *checksum.Store
}

// TransactorConfig describes the dependencies of a Transactor.
type TransactorConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Transactor hands out stores and runs units of work in one database transaction.
type Transactor struct {
	db     *gorm.DB
	stores Stores
	clock  func() time.Time
	logger *zap.Logger
}

// NewTransactor builds the stores over db.
func NewTransactor(cfg TransactorConfig) (*Transactor, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opTransactorNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	front, err := storefront.NewStore(storefront.StoreConfig{Database: cfg.Database, Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	links, err := linking.NewStore(linking.StoreConfig{Database: cfg.Database, Logger: logger})
	if err != nil {
		return nil, err
	}
	checksums, err := checksum.NewStore(checksum.StoreConfig{Database: cfg.Database, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Transactor{
		db:     cfg.Database,
		stores: Stores{Storefront: front, Links: links, Checksums: checksums},
		clock:  clock,
		logger: logger,
	}, nil
}

// Stores returns the stores bound to the shared handle. They must not be used inside InTx.
func (t *Transactor) Stores() Stores {
	return t.stores
}

// Now returns the current time of the injected clock in UTC.
func (t *Transactor) Now() time.Time {
	return t.clock().UTC()
}

// InTx runs fn with stores bound to one transaction. An error from fn rolls everything back.
func (t *Transactor) InTx(ctx context.Context, fn func(Stores) error) error {
	var inner error
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner = fn(Stores{
			Storefront: t.stores.Storefront.WithTx(tx),
			Links:      t.stores.Links.WithTx(tx),
			Checksums:  t.stores.Checksums.WithTx(tx),
		})
		return inner
	})
	if err == nil || inner != nil {
		return err
	}
	t.logger.Error("transaction failed", zap.String("operation", opTransaction), zap.Error(err))
	return storeerr.New(opTransaction, "commit_failed", err)
}
