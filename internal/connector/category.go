package connector

import (
	"context"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const (
	opCategoryPull   = "connector.category.pull"
	opCategoryPush   = "connector.category.push"
	opCategoryDelete = "connector.category.delete"
	opCategoryStats  = "connector.category.statistic"
)

// CategoryController synchronizes the product category tree.
type CategoryController struct {
	base
}

// NewCategoryController returns the category controller.
func NewCategoryController(tx *Transactor, options Options, logger *zap.Logger) *CategoryController {
	return &CategoryController{base: base{kind: KindCategory, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked categories, parents first.
func (c *CategoryController) Pull(ctx context.Context, limit int) ([]Category, error) {
	if err := checkLimit(opCategoryPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Category{}, nil
	}
	stores := c.stores()
	records, err := stores.Storefront.UnlinkedCategories(ctx, limit)
	if err != nil {
		return nil, err
	}
	categories := make([]Category, 0, len(records))
	for _, record := range records {
		parent, err := referenceIdentity(ctx, stores.Links, categoryScope, record.ParentID)
		if err != nil {
			c.logError(opCategoryPull, "parent_lookup_failed", err, zap.Int64("category_id", record.ID))
			return nil, err
		}
		categories = append(categories, Category{
			ID:               endpointIdentity(record.ID),
			ParentCategoryID: parent,
			Name:             record.Name,
			Slug:             record.Slug,
			Description:      record.Description,
			Sort:             record.Sort,
		})
	}
	return categories, nil
}

// Push creates or updates the endpoint category of entity and links it. The slug is the natural
// key.
func (c *CategoryController) Push(ctx context.Context, batch *Batch, entity Category) (Category, error) {
	if err := requireHost(opCategoryPush, entity.ID); err != nil {
		return entity, err
	}
	stores := c.stores()

	var parentID int64
	if !entity.ParentCategoryID.IsEmpty() {
		resolved, found, err := resolveReference(ctx, stores.Links, batch, categoryScope, KindCategory, entity.ParentCategoryID, categoryExists(stores))
		if err != nil {
			c.logError(opCategoryPush, "parent_lookup_failed", err, zap.Stringer("category", entity.ID))
			return entity, err
		}
		if !found {
			c.softFail(batch, entity.ID, KindCategory, entity.ParentCategoryID)
			return entity, nil
		}
		parentID = resolved
	}

	slug := entity.Slug
	if slug == "" {
		slug = slugify(entity.Name)
	}

	var endpointID int64
	err := c.tx.InTx(ctx, func(tx Stores) error {
		record, err := resolveCategory(ctx, tx, entity, slug)
		if err != nil {
			return err
		}
		record.ParentID = parentID
		if record.ID > 0 && record.ID == parentID {
			record.ParentID = 0
		}
		record.Name = entity.Name
		record.Slug = slug
		record.Description = entity.Description
		record.Sort = entity.Sort
		if err := tx.Storefront.SaveCategory(ctx, &record); err != nil {
			return err
		}
		endpointID = record.ID
		return tx.Links.Link(ctx, categoryScope, entity.ID.Host, formatID(record.ID))
	})
	if err != nil {
		c.logError(opCategoryPush, "write_failed", err, zap.Stringer("category", entity.ID), zap.String("slug", slug))
		return entity, err
	}

	batch.RememberParent(KindCategory, entity.ID.Host, endpointID)
	entity.ID.Endpoint = formatID(endpointID)
	entity.Slug = slug
	return entity, nil
}

func resolveCategory(ctx context.Context, tx Stores, entity Category, slug string) (storefront.Category, error) {
	if endpointID, ok := numericEndpoint(entity.ID); ok {
		record, found, err := tx.Storefront.FindCategory(ctx, endpointID)
		if err != nil || found {
			return record, err
		}
	}
	linked, found, err := tx.Links.LookupEndpoint(ctx, categoryScope, entity.ID.Host)
	if err != nil {
		return storefront.Category{}, err
	}
	if endpointID, ok := numericEndpoint(Identity{Endpoint: linked}); found && ok {
		record, exists, err := tx.Storefront.FindCategory(ctx, endpointID)
		if err != nil || exists {
			return record, err
		}
	}
	record, _, err := tx.Storefront.FindCategoryBySlug(ctx, slug)
	return record, err
}

// Delete removes the endpoint category of entity, its thumbnail when unused elsewhere and its
// links. Products are detached and children move to the root.
func (c *CategoryController) Delete(ctx context.Context, batch *Batch, entity Category) (Category, error) {
	endpointID, ok := numericEndpoint(entity.ID)
	if !ok && entity.ID.Host > 0 {
		linked, found, err := c.stores().Links.LookupEndpoint(ctx, categoryScope, entity.ID.Host)
		if err != nil {
			c.logError(opCategoryDelete, "link_lookup_failed", err, zap.Stringer("category", entity.ID))
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
		record, found, err := tx.Storefront.FindCategory(ctx, endpointID)
		if err != nil {
			return err
		}
		if found {
			if record.ThumbnailID > 0 {
				id := compositeid.CategoryImageID{AttachmentID: record.ThumbnailID, CategoryID: record.ID}
				if _, err := tx.Links.UnlinkEndpoint(ctx, linking.ImageScope(linking.RelationCategory), id.String()); err != nil {
					return err
				}
			}
			if err := tx.Storefront.DeleteCategory(ctx, record.ID); err != nil {
				return err
			}
			if err := releaseAttachment(ctx, tx, record.ThumbnailID); err != nil {
				return err
			}
		}
		_, err = tx.Links.UnlinkEndpoint(ctx, categoryScope, formatID(endpointID))
		return err
	})
	if err != nil {
		c.logError(opCategoryDelete, "delete_failed", err, zap.Stringer("category", entity.ID))
		return entity, err
	}
	batch.ForgetParent(KindCategory, entity.ID.Host)
	return entity, nil
}

// Stats counts unlinked categories.
func (c *CategoryController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedCategories(ctx)
	if err != nil {
		c.logError(opCategoryStats, "count_failed", err)
	}
	return total, err
}
