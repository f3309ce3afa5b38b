package connector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/database"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      *gorm.DB
	clock   *testClock
	tx      *Transactor
	options Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "connector.db"),
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	clock := newTestClock()
	tx, err := NewTransactor(TransactorConfig{Database: db, Clock: clock.Now, Logger: zap.NewNop()})
	require.NoError(t, err)
	return &fixture{
		db:      db,
		clock:   clock,
		tx:      tx,
		options: Options{IncludeCompletedOrders: true, ManageStock: true, PriceDecimals: 2},
	}
}

func newTestBatch(t *testing.T) *Batch {
	t.Helper()
	batch, err := NewBatch()
	require.NoError(t, err)
	return batch
}

func (f *fixture) products() *ProductController {
	return NewProductController(f.tx, f.options, zap.NewNop())
}

func (f *fixture) seedProduct(t *testing.T, product storefront.Product) storefront.Product {
	t.Helper()
	if product.Type == "" {
		product.Type = storefront.ProductTypeSimple
	}
	if product.Status == "" {
		product.Status = storefront.StatusPublish
	}
	if product.StockStatus == "" {
		product.StockStatus = storefront.StockInStock
	}
	if product.Backorders == "" {
		product.Backorders = storefront.BackordersNo
	}
	product.CreatedAt = f.clock.Now()
	product.ModifiedAt = f.clock.Now()
	require.NoError(t, f.db.Create(&product).Error)
	return product
}

func (f *fixture) seedAttachment(t *testing.T, id int64) {
	t.Helper()
	attachment := storefront.Attachment{ID: id, Title: "image", FileName: "image.jpg", MimeType: "image/jpeg", CreatedAt: f.clock.Now()}
	require.NoError(t, f.db.Create(&attachment).Error)
}

func (f *fixture) seedOrder(t *testing.T, order storefront.Order) storefront.Order {
	t.Helper()
	if order.Status == "" {
		order.Status = storefront.OrderProcessing
	}
	order.CreatedAt = f.clock.Now()
	require.NoError(t, f.db.Create(&order).Error)
	return order
}

func (f *fixture) link(t *testing.T, scopeKind Kind, host int64, endpoint string) {
	t.Helper()
	scope, err := ackScope(Ack{Kind: scopeKind, ID: Identity{Endpoint: endpoint, Host: host}})
	require.NoError(t, err)
	require.NoError(t, f.tx.Stores().Links.Link(context.Background(), scope, host, endpoint))
}

func (f *fixture) findProduct(t *testing.T, id int64) (storefront.Product, bool) {
	t.Helper()
	product, found, err := f.tx.Stores().Storefront.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return product, found
}

func (f *fixture) countProducts(t *testing.T) int64 {
	t.Helper()
	var total int64
	require.NoError(t, f.db.Model(&storefront.Product{}).Count(&total).Error)
	return total
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
