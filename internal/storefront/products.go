package storefront

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opUnlinkedProducts    = "storefront.unlinked_products"
	opFindProduct         = "storefront.find_product"
	opSaveProduct         = "storefront.save_product"
	opProductCategories   = "storefront.product_categories"
	opReplaceCategories   = "storefront.replace_product_categories"
	opProductVariations   = "storefront.product_variations"
	opDeleteProduct       = "storefront.delete_product"
	opSyncVariableProduct = "storefront.sync_variable_product"
	opUpdateProductPrice  = "storefront.update_product_price"
	opUpdateProductStock  = "storefront.update_product_stock"
)

func (s *Store) unlinkedProducts(ctx context.Context) *gorm.DB {
	return s.conn(ctx).
		Model(&Product{}).
		Where("status <> ?", StatusTrash).
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = wc_products.id)", linking.TableName(linking.TypeProduct)))
}

// UnlinkedProducts returns up to limit products without a link, parents before variations.
func (s *Store) UnlinkedProducts(ctx context.Context, limit int) ([]Product, error) {
	var products []Product
	query := s.unlinkedProducts(ctx).
		Order("CASE WHEN parent_id = 0 THEN 0 ELSE 1 END").
		Order("id")
	if err := limitOrAll(query, limit).Find(&products).Error; err != nil {
		return nil, s.fail(opUnlinkedProducts, "query_failed", err)
	}
	return products, nil
}

// CountUnlinkedProducts counts the products UnlinkedProducts would eventually return.
func (s *Store) CountUnlinkedProducts(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedProducts(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedProducts, "count_failed", err)
	}
	return total, nil
}

// FindProduct loads a product by id.
func (s *Store) FindProduct(ctx context.Context, id int64) (Product, bool, error) {
	var product Product
	if id <= 0 {
		return product, false, nil
	}
	found, err := s.first(ctx, opFindProduct, &product, "id = ? AND status <> ?", id, StatusTrash)
	return product, found, err
}

// FindProductBySKU loads the product owning sku. An empty sku never matches.
func (s *Store) FindProductBySKU(ctx context.Context, sku string) (Product, bool, error) {
	var product Product
	if sku == "" {
		return product, false, nil
	}
	found, err := s.first(ctx, opFindProduct, &product, "sku = ? AND status <> ?", sku, StatusTrash)
	return product, found, err
}

// SaveProduct inserts a product without id or updates an existing one, stamping ModifiedAt.
func (s *Store) SaveProduct(ctx context.Context, product *Product) error {
	now := s.now()
	product.ModifiedAt = now
	if product.ID == 0 {
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		if err := s.conn(ctx).Create(product).Error; err != nil {
			return s.fail(opSaveProduct, "insert_failed", err, zap.String("sku", product.SKU))
		}
		return nil
	}
	if err := s.conn(ctx).Save(product).Error; err != nil {
		return s.fail(opSaveProduct, "update_failed", err, zap.Int64("product_id", product.ID))
	}
	return nil
}

// ProductCategoryIDs returns the category ids of a product in ascending order.
func (s *Store) ProductCategoryIDs(ctx context.Context, productID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).
		Model(&ProductCategory{}).
		Where("product_id = ?", productID).
		Order("category_id").
		Pluck("category_id", &ids).Error
	if err != nil {
		return nil, s.fail(opProductCategories, "query_failed", err, zap.Int64("product_id", productID))
	}
	return ids, nil
}

// ReplaceProductCategories sets the category assignment of a product.
func (s *Store) ReplaceProductCategories(ctx context.Context, productID int64, categoryIDs []int64) error {
	if err := s.conn(ctx).Where("product_id = ?", productID).Delete(&ProductCategory{}).Error; err != nil {
		return s.fail(opReplaceCategories, "delete_failed", err, zap.Int64("product_id", productID))
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	rows := make([]ProductCategory, 0, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		rows = append(rows, ProductCategory{ProductID: productID, CategoryID: categoryID})
	}
	if err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return s.fail(opReplaceCategories, "insert_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}

// ProductVariationIDs returns the variation ids of a variable product.
func (s *Store) ProductVariationIDs(ctx context.Context, parentID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).
		Model(&Product{}).
		Where("parent_id = ? AND status <> ?", parentID, StatusTrash).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, s.fail(opProductVariations, "query_failed", err, zap.Int64("parent_id", parentID))
	}
	return ids, nil
}

// DeleteProduct removes a product with its category and gallery rows. Missing products are ignored.
func (s *Store) DeleteProduct(ctx context.Context, productID int64) error {
	conn := s.conn(ctx)
	if err := conn.Where("product_id = ?", productID).Delete(&ProductCategory{}).Error; err != nil {
		return s.fail(opDeleteProduct, "categories_delete_failed", err, zap.Int64("product_id", productID))
	}
	if err := conn.Where("product_id = ?", productID).Delete(&GalleryImage{}).Error; err != nil {
		return s.fail(opDeleteProduct, "gallery_delete_failed", err, zap.Int64("product_id", productID))
	}
	if err := conn.Where("id = ?", productID).Delete(&Product{}).Error; err != nil {
		return s.fail(opDeleteProduct, "delete_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}

// SyncVariableProduct recomputes the price range and aggregate stock status of a variable product
// from its variations.
func (s *Store) SyncVariableProduct(ctx context.Context, parentID int64) error {
	var variations []Product
	if err := s.conn(ctx).Where("parent_id = ? AND status <> ?", parentID, StatusTrash).Find(&variations).Error; err != nil {
		return s.fail(opSyncVariableProduct, "variations_query_failed", err, zap.Int64("parent_id", parentID))
	}

	minPrice, maxPrice := decimal.Zero, decimal.Zero
	priced := false
	stockStatus := StockOutOfStock
	for _, variation := range variations {
		switch variation.StockStatus {
		case StockInStock:
			stockStatus = StockInStock
		case StockOnBackorder:
			if stockStatus != StockInStock {
				stockStatus = StockOnBackorder
			}
		}
		if variation.Price.IsZero() {
			continue
		}
		if !priced || variation.Price.LessThan(minPrice) {
			minPrice = variation.Price
		}
		if !priced || variation.Price.GreaterThan(maxPrice) {
			maxPrice = variation.Price
		}
		priced = true
	}

	updates := map[string]any{
		"min_variation_price": minPrice,
		"max_variation_price": maxPrice,
		"price":               minPrice,
		"stock_status":        stockStatus,
	}
	if err := s.conn(ctx).Model(&Product{}).Where("id = ?", parentID).Updates(updates).Error; err != nil {
		return s.fail(opSyncVariableProduct, "update_failed", err, zap.Int64("parent_id", parentID))
	}
	return nil
}

// UpdateProductPrice sets the regular and active price of a product.
func (s *Store) UpdateProductPrice(ctx context.Context, productID int64, regular, active decimal.Decimal) error {
	updates := map[string]any{
		"regular_price": regular,
		"price":         active,
		"modified_at":   s.now(),
	}
	if err := s.conn(ctx).Model(&Product{}).Where("id = ?", productID).Updates(updates).Error; err != nil {
		return s.fail(opUpdateProductPrice, "update_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}

// UpdateProductStock sets the stock quantity and, when status is not empty, the stock status.
func (s *Store) UpdateProductStock(ctx context.Context, productID int64, quantity decimal.Decimal, status string) error {
	updates := map[string]any{
		"manage_stock":   true,
		"stock_quantity": quantity,
		"modified_at":    s.now(),
	}
	if status != "" {
		updates["stock_status"] = status
	}
	if err := s.conn(ctx).Model(&Product{}).Where("id = ?", productID).Updates(updates).Error; err != nil {
		return s.fail(opUpdateProductStock, "update_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}
