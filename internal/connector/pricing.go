package connector

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/checksum"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	opPricePush = "connector.product_price.push"
	opStockPush = "connector.product_stock_level.push"
)

// ProductPriceController writes host net prices as gross storefront prices.
type ProductPriceController struct {
	base
}

// NewProductPriceController returns the product price controller.
func NewProductPriceController(tx *Transactor, options Options, logger *zap.Logger) *ProductPriceController {
	return &ProductPriceController{base: base{kind: KindProductPrice, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull is not offered for prices.
func (c *ProductPriceController) Pull(context.Context, int) ([]ProductPrice, error) {
	return nil, unsupported(c.kind, "pull")
}

// Push applies the tax rate of the product's tax class to the net prices and stores the gross
// regular and active price. Variations re-sync the price range of their parent.
func (c *ProductPriceController) Push(ctx context.Context, batch *Batch, entity ProductPrice) (ProductPrice, error) {
	productID, found, err := c.resolveTarget(ctx, batch, opPricePush, entity.ProductID)
	if err != nil || !found {
		return entity, err
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		product, found, err := tx.Storefront.FindProduct(ctx, productID)
		if err != nil || !found {
			return err
		}
		rate, _, err := tx.Storefront.TaxRateForClass(ctx, product.TaxClass)
		if err != nil {
			return err
		}
		regular := grossPrice(entity.NetPrice, rate, c.options.PriceDecimals)
		active := regular
		if entity.SpecialNetPrice.Valid && entity.SpecialNetPrice.Decimal.IsPositive() {
			active = grossPrice(entity.SpecialNetPrice.Decimal, rate, c.options.PriceDecimals)
		}
		if err := tx.Storefront.UpdateProductPrice(ctx, productID, regular, active); err != nil {
			return err
		}
		if product.IsVariation() {
			return resyncVariation(ctx, tx, product)
		}
		return nil
	})
	if err != nil {
		c.logError(opPricePush, "write_failed", err, zap.Stringer("product", entity.ProductID))
		return entity, err
	}
	entity.ProductID.Endpoint = formatID(productID)
	return entity, nil
}

// grossPrice adds rate percent to net and rounds to places.
func grossPrice(net, rate decimal.Decimal, places int32) decimal.Decimal {
	return net.Mul(decimal.NewFromInt(1).Add(rate.Div(hundred))).Round(places)
}

// Delete is not offered for prices.
func (c *ProductPriceController) Delete(_ context.Context, _ *Batch, entity ProductPrice) (ProductPrice, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats is not offered for prices.
func (c *ProductPriceController) Stats(context.Context) (int64, error) {
	return 0, unsupported(c.kind, "statistic")
}

// ProductStockLevelController writes host stock levels.
type ProductStockLevelController struct {
	base
}

// NewProductStockLevelController returns the stock level controller.
func NewProductStockLevelController(tx *Transactor, options Options, logger *zap.Logger) *ProductStockLevelController {
	return &ProductStockLevelController{base: base{kind: KindProductStockLevel, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull is not offered for stock levels.
func (c *ProductStockLevelController) Pull(context.Context, int) ([]ProductStockLevel, error) {
	return nil, unsupported(c.kind, "pull")
}

// Push stores the stock level and the derived stock status. Variable products only take the
// quantity; their status follows the variations. Nothing is written when stock management is off.
func (c *ProductStockLevelController) Push(ctx context.Context, batch *Batch, entity ProductStockLevel) (ProductStockLevel, error) {
	if !c.options.ManageStock {
		return entity, nil
	}
	productID, found, err := c.resolveTarget(ctx, batch, opStockPush, entity.ProductID)
	if err != nil || !found {
		return entity, err
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		product, found, err := tx.Storefront.FindProduct(ctx, productID)
		if err != nil || !found {
			return err
		}
		status := ""
		if product.Type != storefront.ProductTypeVariable {
			status = stockStatusFor(true, entity.StockLevel, product.BackordersAllowed())
		}
		if err := tx.Storefront.UpdateProductStock(ctx, productID, entity.StockLevel, status); err != nil {
			return err
		}
		if product.IsVariation() {
			return resyncVariation(ctx, tx, product)
		}
		return nil
	})
	if err != nil {
		c.logError(opStockPush, "write_failed", err, zap.Stringer("product", entity.ProductID))
		return entity, err
	}
	entity.ProductID.Endpoint = formatID(productID)
	return entity, nil
}

// Delete is not offered for stock levels.
func (c *ProductStockLevelController) Delete(_ context.Context, _ *Batch, entity ProductStockLevel) (ProductStockLevel, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats is not offered for stock levels.
func (c *ProductStockLevelController) Stats(context.Context) (int64, error) {
	return 0, unsupported(c.kind, "statistic")
}

// resolveTarget finds the product a price or stock update targets. A missing product is recorded
// as a soft failure and reported as not found.
func (b base) resolveTarget(ctx context.Context, batch *Batch, operation string, reference Identity) (int64, bool, error) {
	if reference.IsEmpty() {
		return 0, false, newServiceError(operation, "missing_product", fmt.Errorf("%w: product reference", ErrMissingEndpointID))
	}
	stores := b.stores()
	productID, found, err := resolveReference(ctx, stores.Links, batch, productScope, KindProduct, reference, productExists(stores))
	if err != nil {
		b.logError(operation, "product_lookup_failed", err, zap.Stringer("product", reference))
		return 0, false, err
	}
	if !found {
		b.softFail(batch, reference, KindProduct, reference)
	}
	return productID, found, nil
}

// resyncVariation drops the checksum of a variation whose columns were written outside a product
// push and refreshes its parent.
func resyncVariation(ctx context.Context, tx Stores, variation storefront.Product) error {
	if _, err := tx.Checksums.Delete(ctx, formatID(variation.ID), checksum.TypeVariation); err != nil {
		return err
	}
	return tx.Storefront.SyncVariableProduct(ctx, variation.ParentID)
}
