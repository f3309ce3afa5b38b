package connector

import (
	"context"

	"github.com/MarcoPoloResearchLab/erplink/internal/checksum"
	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	opProductPull   = "connector.product.pull"
	opProductPush   = "connector.product.push"
	opProductDelete = "connector.product.delete"
	opProductStats  = "connector.product.statistic"
)

var (
	productScope       = linking.ScopeOf(linking.TypeProduct)
	categoryScope      = linking.ScopeOf(linking.TypeCategory)
	shippingClassScope = linking.ScopeOf(linking.TypeShippingClass)
)

// ProductController synchronizes simple, variable and variation products.
type ProductController struct {
	base
}

// NewProductController returns the product controller.
func NewProductController(tx *Transactor, options Options, logger *zap.Logger) *ProductController {
	return &ProductController{base: base{kind: KindProduct, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked products, parents before variations.
func (c *ProductController) Pull(ctx context.Context, limit int) ([]Product, error) {
	if err := checkLimit(opProductPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Product{}, nil
	}
	stores := c.stores()
	records, err := stores.Storefront.UnlinkedProducts(ctx, limit)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(records))
	for _, record := range records {
		product, err := c.toEntity(ctx, stores, record)
		if err != nil {
			c.logError(opProductPull, "map_failed", err, zap.Int64("product_id", record.ID))
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (c *ProductController) toEntity(ctx context.Context, stores Stores, record storefront.Product) (Product, error) {
	master, err := referenceIdentity(ctx, stores.Links, productScope, record.ParentID)
	if err != nil {
		return Product{}, err
	}
	shippingClass, err := referenceIdentity(ctx, stores.Links, shippingClassScope, record.ShippingClassID)
	if err != nil {
		return Product{}, err
	}
	categoryIDs, err := stores.Storefront.ProductCategoryIDs(ctx, record.ID)
	if err != nil {
		return Product{}, err
	}
	categories := make([]Identity, 0, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		category, err := referenceIdentity(ctx, stores.Links, categoryScope, categoryID)
		if err != nil {
			return Product{}, err
		}
		categories = append(categories, category)
	}
	return Product{
		ID:                  endpointIdentity(record.ID),
		MasterProductID:     master,
		ShippingClassID:     shippingClass,
		Categories:          categories,
		IsMasterProduct:     record.Type == storefront.ProductTypeVariable,
		SKU:                 record.SKU,
		Name:                record.Name,
		Description:         record.Description,
		IsActive:            record.Status == storefront.StatusPublish,
		IsTopProduct:        record.Featured,
		Sort:                record.MenuOrder,
		TaxClass:            record.TaxClass,
		ConsiderStock:       record.ManageStock,
		PermitNegativeStock: record.BackordersAllowed(),
		StockLevel:          record.StockQuantity,
		Weight:              record.Weight,
		Length:              record.Length,
		Width:               record.Width,
		Height:              record.Height,
		GrossPrice:          record.RegularPrice,
		Created:             record.CreatedAt,
		Modified:            record.ModifiedAt,
	}, nil
}

// Push creates or updates the endpoint product of entity and links it. A variation whose content
// fingerprint matches the stored checksum is not written again.
func (c *ProductController) Push(ctx context.Context, batch *Batch, entity Product) (Product, error) {
	if err := requireHost(opProductPush, entity.ID); err != nil {
		return entity, err
	}
	stores := c.stores()

	var parentID int64
	if !entity.MasterProductID.IsEmpty() {
		resolved, found, err := resolveReference(ctx, stores.Links, batch, productScope, KindProduct, entity.MasterProductID, productExists(stores))
		if err != nil {
			c.logError(opProductPush, "master_lookup_failed", err, zap.Stringer("product", entity.ID))
			return entity, err
		}
		if !found {
			c.softFail(batch, entity.ID, KindProduct, entity.MasterProductID)
			return entity, nil
		}
		parentID = resolved
	}

	var shippingClassID int64
	if !entity.ShippingClassID.IsEmpty() {
		resolved, found, err := resolveReference(ctx, stores.Links, batch, shippingClassScope, "", entity.ShippingClassID, shippingClassExists(stores))
		if err != nil {
			c.logError(opProductPush, "shipping_class_lookup_failed", err, zap.Stringer("product", entity.ID))
			return entity, err
		}
		if !found {
			c.softFail(batch, entity.ID, KindShippingClass, entity.ShippingClassID)
			return entity, nil
		}
		shippingClassID = resolved
	}

	categoryIDs, err := c.resolveCategories(ctx, stores, batch, entity)
	if err != nil {
		return entity, err
	}

	var endpointID int64
	err = c.tx.InTx(ctx, func(tx Stores) error {
		record, _, err := resolveProduct(ctx, tx, entity)
		if err != nil {
			return err
		}
		previousParent := record.ParentID

		var fingerprint string
		if parentID > 0 {
			fingerprint, err = variationFingerprint(entity, parentID, shippingClassID)
			if err != nil {
				return err
			}
			if record.ID > 0 && previousParent == parentID {
				stored, err := tx.Checksums.Read(ctx, formatID(record.ID), checksum.TypeVariation)
				if err != nil {
					return err
				}
				if stored == fingerprint {
					endpointID = record.ID
					return tx.Links.Link(ctx, productScope, entity.ID.Host, formatID(record.ID))
				}
			}
		}

		c.apply(&record, entity, parentID, shippingClassID)
		if err := tx.Storefront.SaveProduct(ctx, &record); err != nil {
			return err
		}
		endpointID = record.ID
		if parentID == 0 {
			if err := tx.Storefront.ReplaceProductCategories(ctx, record.ID, categoryIDs); err != nil {
				return err
			}
		}
		if err := tx.Links.Link(ctx, productScope, entity.ID.Host, formatID(record.ID)); err != nil {
			return err
		}
		if previousParent > 0 && previousParent != parentID {
			if err := tx.Storefront.SyncVariableProduct(ctx, previousParent); err != nil {
				return err
			}
		}
		if parentID == 0 {
			if previousParent > 0 {
				_, err := tx.Checksums.Delete(ctx, formatID(record.ID), checksum.TypeVariation)
				return err
			}
			return nil
		}
		if _, err := tx.Checksums.Write(ctx, formatID(record.ID), checksum.TypeVariation, fingerprint); err != nil {
			return err
		}
		return tx.Storefront.SyncVariableProduct(ctx, parentID)
	})
	if err != nil {
		c.logError(opProductPush, "write_failed", err, zap.Stringer("product", entity.ID), zap.String("sku", entity.SKU))
		return entity, err
	}

	if entity.IsMasterProduct {
		batch.RememberParent(KindProduct, entity.ID.Host, endpointID)
	}
	entity.ID.Endpoint = formatID(endpointID)
	return entity, nil
}

func (c *ProductController) resolveCategories(ctx context.Context, stores Stores, batch *Batch, entity Product) ([]int64, error) {
	ids := make([]int64, 0, len(entity.Categories))
	for _, reference := range entity.Categories {
		resolved, found, err := resolveReference(ctx, stores.Links, batch, categoryScope, KindCategory, reference, categoryExists(stores))
		if err != nil {
			c.logError(opProductPush, "category_lookup_failed", err, zap.Stringer("product", entity.ID))
			return nil, err
		}
		if !found {
			c.logger.Warn("skipping unresolved category",
				zap.Stringer("product", entity.ID),
				zap.Stringer("category", reference))
			continue
		}
		ids = append(ids, resolved)
	}
	return ids, nil
}

// resolveProduct finds the endpoint product of entity by explicit endpoint id, then by link, then
// by SKU. A zero record means a new product.
func resolveProduct(ctx context.Context, tx Stores, entity Product) (storefront.Product, bool, error) {
	if endpointID, ok := numericEndpoint(entity.ID); ok {
		record, found, err := tx.Storefront.FindProduct(ctx, endpointID)
		if err != nil || found {
			return record, found, err
		}
	}
	linked, found, err := tx.Links.LookupEndpoint(ctx, productScope, entity.ID.Host)
	if err != nil {
		return storefront.Product{}, false, err
	}
	if endpointID, ok := numericEndpoint(Identity{Endpoint: linked}); found && ok {
		record, exists, err := tx.Storefront.FindProduct(ctx, endpointID)
		if err != nil || exists {
			return record, exists, err
		}
	}
	return tx.Storefront.FindProductBySKU(ctx, entity.SKU)
}

func (c *ProductController) apply(record *storefront.Product, entity Product, parentID, shippingClassID int64) {
	switch {
	case parentID > 0:
		record.Type = storefront.ProductTypeVariation
	case entity.IsMasterProduct:
		record.Type = storefront.ProductTypeVariable
	default:
		record.Type = storefront.ProductTypeSimple
	}
	record.ParentID = parentID
	record.SKU = entity.SKU
	record.Name = entity.Name
	record.Description = entity.Description
	record.Status = storefront.StatusDraft
	if entity.IsActive {
		record.Status = storefront.StatusPublish
	}
	record.Featured = entity.IsTopProduct
	record.MenuOrder = entity.Sort
	record.TaxClass = entity.TaxClass
	record.ShippingClassID = shippingClassID
	record.Weight = entity.Weight
	record.Length = entity.Length
	record.Width = entity.Width
	record.Height = entity.Height
	if !entity.GrossPrice.IsZero() {
		record.RegularPrice = entity.GrossPrice.Round(c.options.PriceDecimals)
		record.Price = record.RegularPrice
	}

	record.Backorders = storefront.BackordersNo
	if entity.PermitNegativeStock {
		record.Backorders = storefront.BackordersYes
	}
	if c.options.ManageStock && entity.ConsiderStock {
		record.ManageStock = true
		record.StockQuantity = entity.StockLevel
	} else {
		record.ManageStock = false
	}
	if record.Type != storefront.ProductTypeVariable {
		record.StockStatus = stockStatusFor(record.ManageStock, record.StockQuantity, entity.PermitNegativeStock)
	} else if record.StockStatus == "" {
		record.StockStatus = storefront.StockOutOfStock
	}
}

// variationFingerprint covers every field a variation write stores. Price and stock pushes write
// some of the same columns and drop the stored checksum.
func variationFingerprint(entity Product, parentID, shippingClassID int64) (string, error) {
	return checksum.Fingerprint(map[string]any{
		"parent":         parentID,
		"sku":            entity.SKU,
		"name":           entity.Name,
		"description":    entity.Description,
		"active":         entity.IsActive,
		"top":            entity.IsTopProduct,
		"sort":           entity.Sort,
		"tax_class":      entity.TaxClass,
		"shipping_class": shippingClassID,
		"consider_stock": entity.ConsiderStock,
		"negative_stock": entity.PermitNegativeStock,
		"stock_level":    entity.StockLevel.String(),
		"weight":         entity.Weight.String(),
		"length":         entity.Length.String(),
		"width":          entity.Width.String(),
		"height":         entity.Height.String(),
		"gross_price":    entity.GrossPrice.String(),
	})
}

// stockStatusFor derives the stock status of a simple product or variation.
func stockStatusFor(managed bool, quantity decimal.Decimal, backorders bool) string {
	if !managed || quantity.IsPositive() {
		return storefront.StockInStock
	}
	if backorders {
		return storefront.StockOnBackorder
	}
	return storefront.StockOutOfStock
}

// Delete removes the endpoint product of entity with its variations, releases its images when no
// other owner uses them and unlinks everything. Unknown products only lose their links.
func (c *ProductController) Delete(ctx context.Context, batch *Batch, entity Product) (Product, error) {
	endpointID, ok := numericEndpoint(entity.ID)
	if !ok && entity.ID.Host > 0 {
		linked, found, err := c.stores().Links.LookupEndpoint(ctx, productScope, entity.ID.Host)
		if err != nil {
			c.logError(opProductDelete, "link_lookup_failed", err, zap.Stringer("product", entity.ID))
			return entity, err
		}
		if found {
			endpointID, ok = numericEndpoint(Identity{Endpoint: linked})
		}
	}
	if !ok {
		return entity, nil
	}

	err := c.tx.InTx(ctx, func(tx Stores) error {
		record, found, err := tx.Storefront.FindProduct(ctx, endpointID)
		if err != nil {
			return err
		}
		if !found {
			return unlinkProduct(ctx, tx, endpointID)
		}
		if record.Type == storefront.ProductTypeVariable {
			variations, err := tx.Storefront.ProductVariationIDs(ctx, record.ID)
			if err != nil {
				return err
			}
			for _, variationID := range variations {
				if err := deleteProductRecord(ctx, tx, variationID); err != nil {
					return err
				}
			}
		}
		if err := deleteProductRecord(ctx, tx, record.ID); err != nil {
			return err
		}
		if record.ParentID > 0 {
			return tx.Storefront.SyncVariableProduct(ctx, record.ParentID)
		}
		return nil
	})
	if err != nil {
		c.logError(opProductDelete, "delete_failed", err, zap.Stringer("product", entity.ID))
		return entity, err
	}
	batch.ForgetParent(KindProduct, entity.ID.Host)
	return entity, nil
}

func deleteProductRecord(ctx context.Context, tx Stores, productID int64) error {
	record, found, err := tx.Storefront.FindProduct(ctx, productID)
	if err != nil || !found {
		return err
	}
	gallery, err := tx.Storefront.GalleryAttachmentIDs(ctx, productID)
	if err != nil {
		return err
	}
	attachments := gallery
	if record.ThumbnailID > 0 {
		attachments = append([]int64{record.ThumbnailID}, gallery...)
	}
	for _, attachmentID := range attachments {
		id := compositeid.ProductImageID{AttachmentID: attachmentID, ProductID: productID}
		if _, err := tx.Links.UnlinkEndpoint(ctx, linking.ImageScope(linking.RelationProduct), id.String()); err != nil {
			return err
		}
	}
	if err := tx.Storefront.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	for _, attachmentID := range attachments {
		if err := releaseAttachment(ctx, tx, attachmentID); err != nil {
			return err
		}
	}
	return unlinkProduct(ctx, tx, productID)
}

func unlinkProduct(ctx context.Context, tx Stores, productID int64) error {
	if _, err := tx.Links.UnlinkEndpoint(ctx, productScope, formatID(productID)); err != nil {
		return err
	}
	_, err := tx.Checksums.Delete(ctx, formatID(productID), checksum.TypeVariation)
	return err
}

// Stats counts unlinked products.
func (c *ProductController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedProducts(ctx)
	if err != nil {
		c.logError(opProductStats, "count_failed", err)
	}
	return total, err
}

func productExists(stores Stores) func(context.Context, int64) (bool, error) {
	return func(ctx context.Context, id int64) (bool, error) {
		_, found, err := stores.Storefront.FindProduct(ctx, id)
		return found, err
	}
}

func categoryExists(stores Stores) func(context.Context, int64) (bool, error) {
	return func(ctx context.Context, id int64) (bool, error) {
		_, found, err := stores.Storefront.FindCategory(ctx, id)
		return found, err
	}
}

func shippingClassExists(stores Stores) func(context.Context, int64) (bool, error) {
	return func(ctx context.Context, id int64) (bool, error) {
		_, found, err := stores.Storefront.FindShippingClass(ctx, id)
		return found, err
	}
}
