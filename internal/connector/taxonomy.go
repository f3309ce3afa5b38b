package connector

import (
	"context"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const (
	opTaxRatePull        = "connector.tax_rate.pull"
	opTaxRateStats       = "connector.tax_rate.statistic"
	opShippingClassPull  = "connector.shipping_class.pull"
	opShippingClassPush  = "connector.shipping_class.push"
	opShippingClassStats = "connector.shipping_class.statistic"
)

var taxRateScope = linking.ScopeOf(linking.TypeTaxRate)

// TaxRateController offers storefront tax rates to the host.
type TaxRateController struct {
	base
}

// NewTaxRateController returns the tax rate controller.
func NewTaxRateController(tx *Transactor, options Options, logger *zap.Logger) *TaxRateController {
	return &TaxRateController{base: base{kind: KindTaxRate, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked tax rates.
func (c *TaxRateController) Pull(ctx context.Context, limit int) ([]TaxRate, error) {
	if err := checkLimit(opTaxRatePull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []TaxRate{}, nil
	}
	records, err := c.stores().Storefront.UnlinkedTaxRates(ctx, limit)
	if err != nil {
		c.logError(opTaxRatePull, "query_failed", err)
		return nil, err
	}
	rates := make([]TaxRate, 0, len(records))
	for _, record := range records {
		rates = append(rates, TaxRate{
			ID:         endpointIdentity(record.ID),
			CountryISO: record.Country,
			State:      record.State,
			Rate:       record.Rate,
			Name:       record.Name,
			Priority:   record.Priority,
			Class:      record.Class,
		})
	}
	return rates, nil
}

// Push is not offered for tax rates.
func (c *TaxRateController) Push(_ context.Context, _ *Batch, entity TaxRate) (TaxRate, error) {
	return entity, unsupported(c.kind, "push")
}

// Delete is not offered for tax rates.
func (c *TaxRateController) Delete(_ context.Context, _ *Batch, entity TaxRate) (TaxRate, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats counts unlinked tax rates.
func (c *TaxRateController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedTaxRates(ctx)
	if err != nil {
		c.logError(opTaxRateStats, "count_failed", err)
	}
	return total, err
}

// ShippingClassController synchronizes shipping classes.
type ShippingClassController struct {
	base
}

// NewShippingClassController returns the shipping class controller.
func NewShippingClassController(tx *Transactor, options Options, logger *zap.Logger) *ShippingClassController {
	return &ShippingClassController{base: base{kind: KindShippingClass, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked shipping classes.
func (c *ShippingClassController) Pull(ctx context.Context, limit int) ([]ShippingClass, error) {
	if err := checkLimit(opShippingClassPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []ShippingClass{}, nil
	}
	records, err := c.stores().Storefront.UnlinkedShippingClasses(ctx, limit)
	if err != nil {
		c.logError(opShippingClassPull, "query_failed", err)
		return nil, err
	}
	classes := make([]ShippingClass, 0, len(records))
	for _, record := range records {
		classes = append(classes, ShippingClass{ID: endpointIdentity(record.ID), Name: record.Name, Slug: record.Slug})
	}
	return classes, nil
}

// Push creates or updates the shipping class of entity, matched by endpoint id, link or slug.
func (c *ShippingClassController) Push(ctx context.Context, _ *Batch, entity ShippingClass) (ShippingClass, error) {
	if err := requireHost(opShippingClassPush, entity.ID); err != nil {
		return entity, err
	}
	slug := entity.Slug
	if slug == "" {
		slug = slugify(entity.Name)
	}
	var endpointID int64
	err := c.tx.InTx(ctx, func(tx Stores) error {
		record, err := resolveShippingClass(ctx, tx, entity, slug)
		if err != nil {
			return err
		}
		record.Name = entity.Name
		record.Slug = slug
		if err := tx.Storefront.SaveShippingClass(ctx, &record); err != nil {
			return err
		}
		endpointID = record.ID
		return tx.Links.Link(ctx, shippingClassScope, entity.ID.Host, formatID(record.ID))
	})
	if err != nil {
		c.logError(opShippingClassPush, "write_failed", err, zap.Stringer("shipping_class", entity.ID))
		return entity, err
	}
	entity.ID.Endpoint = formatID(endpointID)
	entity.Slug = slug
	return entity, nil
}

func resolveShippingClass(ctx context.Context, tx Stores, entity ShippingClass, slug string) (storefront.ShippingClass, error) {
	if endpointID, ok := numericEndpoint(entity.ID); ok {
		record, found, err := tx.Storefront.FindShippingClass(ctx, endpointID)
		if err != nil || found {
			return record, err
		}
	}
	linked, found, err := tx.Links.LookupEndpoint(ctx, shippingClassScope, entity.ID.Host)
	if err != nil {
		return storefront.ShippingClass{}, err
	}
	if endpointID, ok := numericEndpoint(Identity{Endpoint: linked}); found && ok {
		record, exists, err := tx.Storefront.FindShippingClass(ctx, endpointID)
		if err != nil || exists {
			return record, err
		}
	}
	record, _, err := tx.Storefront.FindShippingClassBySlug(ctx, slug)
	return record, err
}

// Delete is not offered for shipping classes.
func (c *ShippingClassController) Delete(_ context.Context, _ *Batch, entity ShippingClass) (ShippingClass, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats counts unlinked shipping classes.
func (c *ShippingClassController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedShippingClasses(ctx)
	if err != nil {
		c.logError(opShippingClassStats, "count_failed", err)
	}
	return total, err
}
