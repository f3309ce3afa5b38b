package storefront

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
)

const (
	opUnlinkedCategories = "storefront.unlinked_categories"
	opFindCategory       = "storefront.find_category"
	opSaveCategory       = "storefront.save_category"
	opDeleteCategory     = "storefront.delete_category"
)

// maxCategoryDepth bounds the tree walk so corrupted parent cycles terminate.
const maxCategoryDepth = 64

// categoryTree assigns every category its depth. Categories whose parent is missing count as roots.
var categoryTree = fmt.Sprintf(`WITH RECURSIVE tree(id, level) AS (
	SELECT id, 0 FROM wc_categories
	WHERE parent_id = 0 OR parent_id NOT IN (SELECT id FROM wc_categories)
	UNION ALL
	SELECT c.id, t.level + 1 FROM wc_categories c JOIN tree t ON c.parent_id = t.id
	WHERE t.level < %d
)`, maxCategoryDepth)

var unlinkedCategoryFilter = fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = c.id)", linking.TableName(linking.TypeCategory))

// UnlinkedCategories returns up to limit categories without a link, ordered by tree level so a
// parent is always emitted before its children.
func (s *Store) UnlinkedCategories(ctx context.Context, limit int) ([]Category, error) {
	statement := categoryTree + `
SELECT c.* FROM wc_categories c JOIN tree t ON t.id = c.id
WHERE ` + unlinkedCategoryFilter + `
ORDER BY t.level, c.sort, c.id`
	args := []any{}
	if limit > 0 {
		statement += " LIMIT ?"
		args = append(args, limit)
	}
	var categories []Category
	if err := s.conn(ctx).Raw(statement, args...).Scan(&categories).Error; err != nil {
		return nil, s.fail(opUnlinkedCategories, "query_failed", err)
	}
	return categories, nil
}

// CountUnlinkedCategories counts the categories UnlinkedCategories would eventually return.
func (s *Store) CountUnlinkedCategories(ctx context.Context) (int64, error) {
	statement := categoryTree + `
SELECT COUNT(*) FROM wc_categories c JOIN tree t ON t.id = c.id
WHERE ` + unlinkedCategoryFilter
	var total int64
	if err := s.conn(ctx).Raw(statement).Scan(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedCategories, "count_failed", err)
	}
	return total, nil
}

// FindCategory loads a category by id.
func (s *Store) FindCategory(ctx context.Context, id int64) (Category, bool, error) {
	var category Category
	if id <= 0 {
		return category, false, nil
	}
	found, err := s.first(ctx, opFindCategory, &category, "id = ?", id)
	return category, found, err
}

// FindCategoryBySlug loads a category by its unique slug.
func (s *Store) FindCategoryBySlug(ctx context.Context, slug string) (Category, bool, error) {
	var category Category
	if slug == "" {
		return category, false, nil
	}
	found, err := s.first(ctx, opFindCategory, &category, "slug = ?", slug)
	return category, found, err
}

// SaveCategory inserts a category without id or updates an existing one.
func (s *Store) SaveCategory(ctx context.Context, category *Category) error {
	if category.ID == 0 {
		if err := s.conn(ctx).Create(category).Error; err != nil {
			return s.fail(opSaveCategory, "insert_failed", err, zap.String("slug", category.Slug))
		}
		return nil
	}
	if err := s.conn(ctx).Save(category).Error; err != nil {
		return s.fail(opSaveCategory, "update_failed", err, zap.Int64("category_id", category.ID))
	}
	return nil
}

// DeleteCategory removes a category, detaches its products and moves its children to the root.
func (s *Store) DeleteCategory(ctx context.Context, categoryID int64) error {
	conn := s.conn(ctx)
	if err := conn.Where("category_id = ?", categoryID).Delete(&ProductCategory{}).Error; err != nil {
		return s.fail(opDeleteCategory, "products_detach_failed", err, zap.Int64("category_id", categoryID))
	}
	if err := conn.Model(&Category{}).Where("parent_id = ?", categoryID).Update("parent_id", 0).Error; err != nil {
		return s.fail(opDeleteCategory, "children_reparent_failed", err, zap.Int64("category_id", categoryID))
	}
	if err := conn.Where("id = ?", categoryID).Delete(&Category{}).Error; err != nil {
		return s.fail(opDeleteCategory, "delete_failed", err, zap.Int64("category_id", categoryID))
	}
	return nil
}
