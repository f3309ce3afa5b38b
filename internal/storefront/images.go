package storefront

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const (
	opUnlinkedImages       = "storefront.unlinked_images"
	opFindAttachment       = "storefront.find_attachment"
	opSaveAttachment       = "storefront.save_attachment"
	opDeleteAttachment     = "storefront.delete_attachment"
	opAttachmentUsage      = "storefront.attachment_usage"
	opSetProductThumbnail  = "storefront.set_product_thumbnail"
	opSetCategoryThumbnail = "storefront.set_category_thumbnail"
	opGallery              = "storefront.gallery"
)

// Sort values of pulled images. Gallery images are numbered from GallerySortOffset.
const (
	CategoryImageSort = 0
	CoverImageSort    = 1
	GallerySortOffset = 2
)

// imageRefs lists every attachment use: product covers, gallery entries that are not also the
// cover, and category thumbnails.
var imageRefs = fmt.Sprintf(`SELECT p.thumbnail_id AS attachment_id, p.id AS owner_id, '%[1]s' AS relation, %[3]d AS sort, 0 AS relation_order
	FROM wc_products p JOIN wc_attachments a ON a.id = p.thumbnail_id
	WHERE p.thumbnail_id <> 0 AND p.status <> '%[6]s'
UNION ALL
SELECT g.attachment_id AS attachment_id, g.product_id AS owner_id, '%[1]s' AS relation, g.position + %[4]d AS sort, 0 AS relation_order
	FROM wc_product_gallery g
	JOIN wc_products p ON p.id = g.product_id
	JOIN wc_attachments a ON a.id = g.attachment_id
	WHERE g.attachment_id <> p.thumbnail_id AND p.status <> '%[6]s'
UNION ALL
SELECT c.thumbnail_id AS attachment_id, c.id AS owner_id, '%[2]s' AS relation, %[5]d AS sort, 1 AS relation_order
	FROM wc_categories c JOIN wc_attachments a ON a.id = c.thumbnail_id
	WHERE c.thumbnail_id <> 0`,
	linking.RelationProduct, linking.RelationCategory, CoverImageSort, GallerySortOffset, CategoryImageSort, StatusTrash)

// unlinkedImageFilter compares the composite id of each ref with the image links of its relation.
var unlinkedImageFilter = fmt.Sprintf(`NOT EXISTS (
	SELECT 1 FROM %s l
	WHERE l.relation_type = refs.relation
	AND l.endpoint_id = CAST(CASE refs.relation WHEN '%s' THEN ? ELSE ? END AS TEXT)
		|| CAST(refs.attachment_id AS TEXT) || CAST(? AS TEXT) || CAST(refs.owner_id AS TEXT)
)`, linking.TableName(linking.TypeImage), linking.RelationProduct)

func imageFilterArgs() []any {
	return []any{
		string(compositeid.PrefixProductImage) + compositeid.Delimiter,
		string(compositeid.PrefixCategoryImage) + compositeid.Delimiter,
		compositeid.Delimiter,
	}
}

// UnlinkedImages returns up to limit attachment uses without an image link: product images by
// product then sort, followed by category images.
func (s *Store) UnlinkedImages(ctx context.Context, limit int) ([]ImageRef, error) {
	statement := "SELECT refs.attachment_id, refs.owner_id, refs.relation, refs.sort FROM (" + imageRefs + ") refs WHERE " +
		unlinkedImageFilter + " ORDER BY refs.relation_order, refs.owner_id, refs.sort, refs.attachment_id"
	args := imageFilterArgs()
	if limit > 0 {
		statement += " LIMIT ?"
		args = append(args, limit)
	}
	var refs []ImageRef
	if err := s.conn(ctx).Raw(statement, args...).Scan(&refs).Error; err != nil {
		return nil, s.fail(opUnlinkedImages, "query_failed", err)
	}
	return refs, nil
}

// CountUnlinkedImages counts the refs UnlinkedImages would eventually return.
func (s *Store) CountUnlinkedImages(ctx context.Context) (int64, error) {
	statement := "SELECT COUNT(*) FROM (" + imageRefs + ") refs WHERE " + unlinkedImageFilter
	var total int64
	if err := s.conn(ctx).Raw(statement, imageFilterArgs()...).Scan(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedImages, "count_failed", err)
	}
	return total, nil
}

// FindAttachment loads an attachment by id.
func (s *Store) FindAttachment(ctx context.Context, id int64) (Attachment, bool, error) {
	var attachment Attachment
	if id <= 0 {
		return attachment, false, nil
	}
	found, err := s.first(ctx, opFindAttachment, &attachment, "id = ?", id)
	return attachment, found, err
}

// SaveAttachment inserts an attachment without id or updates an existing one.
func (s *Store) SaveAttachment(ctx context.Context, attachment *Attachment) error {
	if attachment.ID == 0 {
		if attachment.CreatedAt.IsZero() {
			attachment.CreatedAt = s.now()
		}
		if err := s.conn(ctx).Create(attachment).Error; err != nil {
			return s.fail(opSaveAttachment, "insert_failed", err, zap.String("file_name", attachment.FileName))
		}
		return nil
	}
	if err := s.conn(ctx).Save(attachment).Error; err != nil {
		return s.fail(opSaveAttachment, "update_failed", err, zap.Int64("attachment_id", attachment.ID))
	}
	return nil
}

// DeleteAttachment removes an attachment row.
func (s *Store) DeleteAttachment(ctx context.Context, attachmentID int64) error {
	if err := s.conn(ctx).Where("id = ?", attachmentID).Delete(&Attachment{}).Error; err != nil {
		return s.fail(opDeleteAttachment, "delete_failed", err, zap.Int64("attachment_id", attachmentID))
	}
	return nil
}

// AttachmentUsage counts the product covers, gallery entries and category thumbnails referencing
// an attachment.
func (s *Store) AttachmentUsage(ctx context.Context, attachmentID int64) (int64, error) {
	var covers, gallery, categories int64
	conn := s.conn(ctx)
	if err := conn.Model(&Product{}).Where("thumbnail_id = ?", attachmentID).Count(&covers).Error; err != nil {
		return 0, s.fail(opAttachmentUsage, "covers_count_failed", err, zap.Int64("attachment_id", attachmentID))
	}
	if err := conn.Model(&GalleryImage{}).Where("attachment_id = ?", attachmentID).Count(&gallery).Error; err != nil {
		return 0, s.fail(opAttachmentUsage, "gallery_count_failed", err, zap.Int64("attachment_id", attachmentID))
	}
	if err := conn.Model(&Category{}).Where("thumbnail_id = ?", attachmentID).Count(&categories).Error; err != nil {
		return 0, s.fail(opAttachmentUsage, "categories_count_failed", err, zap.Int64("attachment_id", attachmentID))
	}
	return covers + gallery + categories, nil
}

// SetProductThumbnail sets the cover attachment of a product. Zero clears it.
func (s *Store) SetProductThumbnail(ctx context.Context, productID, attachmentID int64) error {
	if err := s.conn(ctx).Model(&Product{}).Where("id = ?", productID).Update("thumbnail_id", attachmentID).Error; err != nil {
		return s.fail(opSetProductThumbnail, "update_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}

// SetCategoryThumbnail sets the thumbnail attachment of a category. Zero clears it.
func (s *Store) SetCategoryThumbnail(ctx context.Context, categoryID, attachmentID int64) error {
	if err := s.conn(ctx).Model(&Category{}).Where("id = ?", categoryID).Update("thumbnail_id", attachmentID).Error; err != nil {
		return s.fail(opSetCategoryThumbnail, "update_failed", err, zap.Int64("category_id", categoryID))
	}
	return nil
}

// GalleryAttachmentIDs returns the gallery of a product in position order.
func (s *Store) GalleryAttachmentIDs(ctx context.Context, productID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).
		Model(&GalleryImage{}).
		Where("product_id = ?", productID).
		Order("position").
		Order("attachment_id").
		Pluck("attachment_id", &ids).Error
	if err != nil {
		return nil, s.fail(opGallery, "query_failed", err, zap.Int64("product_id", productID))
	}
	return ids, nil
}

// AddGalleryImage places an attachment in a product gallery, moving it if already present.
func (s *Store) AddGalleryImage(ctx context.Context, productID, attachmentID int64, position int) error {
	row := GalleryImage{ProductID: productID, AttachmentID: attachmentID, Position: position}
	err := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "attachment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position"}),
		}).
		Create(&row).Error
	if err != nil {
		return s.fail(opGallery, "insert_failed", err, zap.Int64("product_id", productID), zap.Int64("attachment_id", attachmentID))
	}
	return nil
}

// RemoveGalleryImage removes an attachment from a product gallery.
func (s *Store) RemoveGalleryImage(ctx context.Context, productID, attachmentID int64) error {
	err := s.conn(ctx).
		Where("product_id = ? AND attachment_id = ?", productID, attachmentID).
		Delete(&GalleryImage{}).Error
	if err != nil {
		return s.fail(opGallery, "delete_failed", err, zap.Int64("product_id", productID), zap.Int64("attachment_id", attachmentID))
	}
	return nil
}

// ClearProductGallery removes every gallery entry of a product.
func (s *Store) ClearProductGallery(ctx context.Context, productID int64) error {
	if err := s.conn(ctx).Where("product_id = ?", productID).Delete(&GalleryImage{}).Error; err != nil {
		return s.fail(opGallery, "clear_failed", err, zap.Int64("product_id", productID))
	}
	return nil
}
