package storefront

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opUnlinkedTaxRates        = "storefront.unlinked_tax_rates"
	opTaxRateForClass         = "storefront.tax_rate_for_class"
	opFindTaxRate             = "storefront.find_tax_rate"
	opUnlinkedShippingClasses = "storefront.unlinked_shipping_classes"
	opFindShippingClass       = "storefront.find_shipping_class"
	opSaveShippingClass       = "storefront.save_shipping_class"
)

var (
	unlinkedTaxRateFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = wc_tax_rates.id)",
		linking.TableName(linking.TypeTaxRate))
	unlinkedShippingClassFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = wc_shipping_classes.id)",
		linking.TableName(linking.TypeShippingClass))
)

func (s *Store) unlinkedTaxRates(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&TaxRate{}).Where(unlinkedTaxRateFilter)
}

func (s *Store) unlinkedShippingClasses(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&ShippingClass{}).Where(unlinkedShippingClassFilter)
}

// UnlinkedTaxRates returns up to limit tax rates without a link.
func (s *Store) UnlinkedTaxRates(ctx context.Context, limit int) ([]TaxRate, error) {
	var rates []TaxRate
	if err := limitOrAll(s.unlinkedTaxRates(ctx).Order("id"), limit).Find(&rates).Error; err != nil {
		return nil, s.fail(opUnlinkedTaxRates, "query_failed", err)
	}
	return rates, nil
}

// CountUnlinkedTaxRates counts tax rates without a link.
func (s *Store) CountUnlinkedTaxRates(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedTaxRates(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedTaxRates, "count_failed", err)
	}
	return total, nil
}

// TaxRateForClass returns the highest priority rate of a tax class.
func (s *Store) TaxRateForClass(ctx context.Context, class string) (decimal.Decimal, bool, error) {
	var rates []TaxRate
	if err := s.conn(ctx).Where("class = ?", class).Order("priority").Order("id").Limit(1).Find(&rates).Error; err != nil {
		return decimal.Zero, false, s.fail(opTaxRateForClass, "query_failed", err, zap.String("class", class))
	}
	if len(rates) == 0 {
		return decimal.Zero, false, nil
	}
	return rates[0].Rate, true, nil
}

// UnlinkedShippingClasses returns up to limit shipping classes without a link.
func (s *Store) UnlinkedShippingClasses(ctx context.Context, limit int) ([]ShippingClass, error) {
	var classes []ShippingClass
	if err := limitOrAll(s.unlinkedShippingClasses(ctx).Order("id"), limit).Find(&classes).Error; err != nil {
		return nil, s.fail(opUnlinkedShippingClasses, "query_failed", err)
	}
	return classes, nil
}

// CountUnlinkedShippingClasses counts shipping classes without a link.
func (s *Store) CountUnlinkedShippingClasses(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedShippingClasses(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedShippingClasses, "count_failed", err)
	}
	return total, nil
}

// FindTaxRate loads a tax rate by id.
func (s *Store) FindTaxRate(ctx context.Context, id int64) (TaxRate, bool, error) {
	var rate TaxRate
	if id <= 0 {
		return rate, false, nil
	}
	found, err := s.first(ctx, opFindTaxRate, &rate, "id = ?", id)
	return rate, found, err
}

// FindShippingClass loads a shipping class by id.
func (s *Store) FindShippingClass(ctx context.Context, id int64) (ShippingClass, bool, error) {
	var class ShippingClass
	if id <= 0 {
		return class, false, nil
	}
	found, err := s.first(ctx, opFindShippingClass, &class, "id = ?", id)
	return class, found, err
}

// FindShippingClassBySlug loads a shipping class by its unique slug.
func (s *Store) FindShippingClassBySlug(ctx context.Context, slug string) (ShippingClass, bool, error) {
	var class ShippingClass
	if slug == "" {
		return class, false, nil
	}
	found, err := s.first(ctx, opFindShippingClass, &class, "slug = ?", slug)
	return class, found, err
}

// SaveShippingClass inserts a shipping class without id or updates an existing one.
func (s *Store) SaveShippingClass(ctx context.Context, class *ShippingClass) error {
	if class.ID == 0 {
		if err := s.conn(ctx).Create(class).Error; err != nil {
			return s.fail(opSaveShippingClass, "insert_failed", err, zap.String("slug", class.Slug))
		}
		return nil
	}
	if err := s.conn(ctx).Save(class).Error; err != nil {
		return s.fail(opSaveShippingClass, "update_failed", err, zap.Int64("shipping_class_id", class.ID))
	}
	return nil
}
