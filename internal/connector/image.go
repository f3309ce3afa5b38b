package connector

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const (
	opImagePull   = "connector.image.pull"
	opImagePush   = "connector.image.push"
	opImageDelete = "connector.image.delete"
	opImageStats  = "connector.image.statistic"
)

// ErrInvalidRelation indicates an image relation other than product or category.
var ErrInvalidRelation = errors.New("connector: invalid image relation")

// ImageController synchronizes product covers, product gallery images and category thumbnails.
// Attachments are shared and only deleted once nothing uses them anymore.
type ImageController struct {
	base
}

// NewImageController returns the image controller.
func NewImageController(tx *Transactor, options Options, logger *zap.Logger) *ImageController {
	return &ImageController{base: base{kind: KindImage, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// imageRelation bundles the per-relation scopes and identifiers of an image.
type imageRelation struct {
	name       string
	linkScope  linking.Scope
	ownerScope linking.Scope
	ownerKind  Kind
}

var imageRelations = map[string]imageRelation{
	RelationProduct: {
		name:       RelationProduct,
		linkScope:  linking.ImageScope(linking.RelationProduct),
		ownerScope: productScope,
		ownerKind:  KindProduct,
	},
	RelationCategory: {
		name:       RelationCategory,
		linkScope:  linking.ImageScope(linking.RelationCategory),
		ownerScope: categoryScope,
		ownerKind:  KindCategory,
	},
}

func (r imageRelation) composite(attachmentID, ownerID int64) compositeid.ID {
	if r.name == RelationCategory {
		return compositeid.CategoryImageID{AttachmentID: attachmentID, CategoryID: ownerID}
	}
	return compositeid.ProductImageID{AttachmentID: attachmentID, ProductID: ownerID}
}

func (r imageRelation) ownerExists(stores Stores) func(context.Context, int64) (bool, error) {
	if r.name == RelationCategory {
		return categoryExists(stores)
	}
	return productExists(stores)
}

// decodeImage splits an image composite id into relation, attachment and owner.
func decodeImage(endpointID string) (imageRelation, int64, int64, error) {
	id, err := compositeid.Parse(endpointID)
	if err != nil {
		return imageRelation{}, 0, 0, err
	}
	switch typed := id.(type) {
	case compositeid.ProductImageID:
		return imageRelations[RelationProduct], typed.AttachmentID, typed.ProductID, nil
	case compositeid.CategoryImageID:
		return imageRelations[RelationCategory], typed.AttachmentID, typed.CategoryID, nil
	default:
		return imageRelation{}, 0, 0, fmt.Errorf("%w: %q is not an image id", compositeid.ErrMalformedIdentifier, endpointID)
	}
}

func relationOf(name string) (imageRelation, error) {
	relation, ok := imageRelations[name]
	if !ok {
		return imageRelation{}, fmt.Errorf("%w: %q", ErrInvalidRelation, name)
	}
	return relation, nil
}

// Pull returns up to limit attachment uses whose composite id is not linked.
func (c *ImageController) Pull(ctx context.Context, limit int) ([]Image, error) {
	if err := checkLimit(opImagePull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Image{}, nil
	}
	stores := c.stores()
	refs, err := stores.Storefront.UnlinkedImages(ctx, limit)
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(refs))
	for _, ref := range refs {
		image, err := c.toEntity(ctx, stores, ref)
		if err != nil {
			c.logError(opImagePull, "map_failed", err, zap.Int64("attachment_id", ref.AttachmentID), zap.Int64("owner_id", ref.OwnerID))
			return nil, err
		}
		images = append(images, image)
	}
	return images, nil
}

func (c *ImageController) toEntity(ctx context.Context, stores Stores, ref storefront.ImageRef) (Image, error) {
	relation, err := relationOf(ref.Relation)
	if err != nil {
		return Image{}, err
	}
	owner, err := referenceIdentity(ctx, stores.Links, relation.ownerScope, ref.OwnerID)
	if err != nil {
		return Image{}, err
	}
	attachment, _, err := stores.Storefront.FindAttachment(ctx, ref.AttachmentID)
	if err != nil {
		return Image{}, err
	}
	return Image{
		ID:         Identity{Endpoint: relation.composite(ref.AttachmentID, ref.OwnerID).String()},
		ForeignKey: owner,
		Relation:   relation.name,
		Sort:       ref.Sort,
		Name:       attachment.Title,
		FileName:   attachment.FileName,
		MimeType:   attachment.MimeType,
		AltText:    attachment.AltText,
	}, nil
}

// Push stores the attachment of entity, assigns it to its owner and links the composite id. A
// product image with sort 1 becomes the cover, higher sorts go to the gallery. A missing owner is
// a soft failure.
func (c *ImageController) Push(ctx context.Context, batch *Batch, entity Image) (Image, error) {
	if err := requireHost(opImagePush, entity.ID); err != nil {
		return entity, err
	}
	relation, err := relationOf(entity.Relation)
	if err != nil {
		return entity, newServiceError(opImagePush, "invalid_relation", err)
	}
	stores := c.stores()
	ownerID, found, err := resolveReference(ctx, stores.Links, batch, relation.ownerScope, relation.ownerKind, entity.ForeignKey, relation.ownerExists(stores))
	if err != nil {
		c.logError(opImagePush, "owner_lookup_failed", err, zap.Stringer("image", entity.ID))
		return entity, err
	}
	if !found {
		c.softFail(batch, entity.ID, relation.ownerKind, entity.ForeignKey)
		return entity, nil
	}

	var endpoint string
	err = c.tx.InTx(ctx, func(tx Stores) error {
		previous, linked, err := tx.Links.LookupEndpoint(ctx, relation.linkScope, entity.ID.Host)
		if err != nil {
			return err
		}
		attachment, err := c.resolveAttachment(ctx, tx, entity, relation, previous)
		if err != nil {
			return err
		}
		attachment.Title = entity.Name
		attachment.FileName = entity.FileName
		attachment.MimeType = entity.MimeType
		attachment.AltText = entity.AltText
		if err := tx.Storefront.SaveAttachment(ctx, &attachment); err != nil {
			return err
		}

		endpoint = relation.composite(attachment.ID, ownerID).String()
		if linked && previous != endpoint {
			if err := detachImage(ctx, tx, previous); err != nil {
				return err
			}
			if _, err := tx.Links.UnlinkHost(ctx, relation.linkScope, entity.ID.Host); err != nil {
				return err
			}
		}
		if err := assignImage(ctx, tx, relation, ownerID, attachment.ID, entity.Sort); err != nil {
			return err
		}
		return tx.Links.Link(ctx, relation.linkScope, entity.ID.Host, endpoint)
	})
	if err != nil {
		c.logError(opImagePush, "write_failed", err, zap.Stringer("image", entity.ID))
		return entity, err
	}
	entity.ID.Endpoint = endpoint
	entity.ForeignKey.Endpoint = formatID(ownerID)
	return entity, nil
}

// resolveAttachment finds the attachment named by the endpoint id of entity or by the composite
// currently linked to its host. A zero attachment means a new one.
func (c *ImageController) resolveAttachment(ctx context.Context, tx Stores, entity Image, relation imageRelation, linked string) (storefront.Attachment, error) {
	for _, candidate := range []string{entity.ID.Endpoint, linked} {
		if candidate == "" {
			continue
		}
		candidateRelation, attachmentID, _, err := decodeImage(candidate)
		if err != nil {
			return storefront.Attachment{}, newServiceError(opImagePush, "malformed_identifier", err)
		}
		if candidateRelation.name != relation.name {
			continue
		}
		attachment, found, err := tx.Storefront.FindAttachment(ctx, attachmentID)
		if err != nil {
			return storefront.Attachment{}, err
		}
		if found {
			return attachment, nil
		}
	}
	return storefront.Attachment{}, nil
}

// assignImage makes attachmentID the cover, a gallery image or the category thumbnail of ownerID.
// An attachment moves between cover and gallery. A replaced cover loses its link unless the
// gallery still shows it.
func assignImage(ctx context.Context, tx Stores, relation imageRelation, ownerID, attachmentID int64, sort int) error {
	if relation.name == RelationCategory {
		return tx.Storefront.SetCategoryThumbnail(ctx, ownerID, attachmentID)
	}
	product, found, err := tx.Storefront.FindProduct(ctx, ownerID)
	if err != nil || !found {
		return err
	}
	if sort >= storefront.GallerySortOffset {
		if product.ThumbnailID == attachmentID {
			if err := tx.Storefront.SetProductThumbnail(ctx, ownerID, 0); err != nil {
				return err
			}
		}
		return tx.Storefront.AddGalleryImage(ctx, ownerID, attachmentID, sort-storefront.GallerySortOffset)
	}
	if err := tx.Storefront.RemoveGalleryImage(ctx, ownerID, attachmentID); err != nil {
		return err
	}
	if product.ThumbnailID > 0 && product.ThumbnailID != attachmentID {
		gallery, err := tx.Storefront.GalleryAttachmentIDs(ctx, ownerID)
		if err != nil {
			return err
		}
		if !slices.Contains(gallery, product.ThumbnailID) {
			replaced := compositeid.ProductImageID{AttachmentID: product.ThumbnailID, ProductID: ownerID}
			if _, err := tx.Links.UnlinkEndpoint(ctx, relation.linkScope, replaced.String()); err != nil {
				return err
			}
		}
	}
	return tx.Storefront.SetProductThumbnail(ctx, ownerID, attachmentID)
}

// detachImage removes one attachment use without deleting the attachment.
func detachImage(ctx context.Context, tx Stores, endpointID string) error {
	relation, attachmentID, ownerID, err := decodeImage(endpointID)
	if err != nil {
		return err
	}
	if relation.name == RelationCategory {
		category, found, err := tx.Storefront.FindCategory(ctx, ownerID)
		if err != nil || !found || category.ThumbnailID != attachmentID {
			return err
		}
		return tx.Storefront.SetCategoryThumbnail(ctx, ownerID, 0)
	}
	product, found, err := tx.Storefront.FindProduct(ctx, ownerID)
	if err != nil || !found {
		return err
	}
	if product.ThumbnailID == attachmentID {
		if err := tx.Storefront.SetProductThumbnail(ctx, ownerID, 0); err != nil {
			return err
		}
	}
	return tx.Storefront.RemoveGalleryImage(ctx, ownerID, attachmentID)
}

// releaseAttachment deletes an attachment nothing uses anymore.
func releaseAttachment(ctx context.Context, tx Stores, attachmentID int64) error {
	if attachmentID <= 0 {
		return nil
	}
	usage, err := tx.Storefront.AttachmentUsage(ctx, attachmentID)
	if err != nil || usage > 0 {
		return err
	}
	return tx.Storefront.DeleteAttachment(ctx, attachmentID)
}

// Delete detaches the image from its owner, unlinks it and deletes the attachment when no other
// owner uses it. A product image without endpoint id and with sort 0 clears every image of the
// owner.
func (c *ImageController) Delete(ctx context.Context, batch *Batch, entity Image) (Image, error) {
	endpoint := entity.ID.Endpoint
	if endpoint == "" && entity.ID.Host > 0 {
		if relation, err := relationOf(entity.Relation); err == nil {
			linked, found, err := c.stores().Links.LookupEndpoint(ctx, relation.linkScope, entity.ID.Host)
			if err != nil {
				c.logError(opImageDelete, "link_lookup_failed", err, zap.Stringer("image", entity.ID))
				return entity, err
			}
			if found {
				endpoint = linked
			}
		}
	}
	if endpoint == "" {
		if entity.Relation == RelationProduct && entity.Sort == 0 && !entity.ForeignKey.IsEmpty() {
			return c.clearOwner(ctx, batch, entity)
		}
		return entity, nil
	}

	relation, attachmentID, _, err := decodeImage(endpoint)
	if err != nil {
		return entity, newServiceError(opImageDelete, "malformed_identifier", err)
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		if err := detachImage(ctx, tx, endpoint); err != nil {
			return err
		}
		if _, err := tx.Links.UnlinkEndpoint(ctx, relation.linkScope, endpoint); err != nil {
			return err
		}
		return releaseAttachment(ctx, tx, attachmentID)
	})
	if err != nil {
		c.logError(opImageDelete, "delete_failed", err, zap.Stringer("image", entity.ID))
	}
	return entity, err
}

func (c *ImageController) clearOwner(ctx context.Context, batch *Batch, entity Image) (Image, error) {
	relation := imageRelations[RelationProduct]
	stores := c.stores()
	ownerID, found, err := resolveReference(ctx, stores.Links, batch, relation.ownerScope, relation.ownerKind, entity.ForeignKey, relation.ownerExists(stores))
	if err != nil {
		c.logError(opImageDelete, "owner_lookup_failed", err, zap.Stringer("image", entity.ID))
		return entity, err
	}
	if !found {
		return entity, nil
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		product, found, err := tx.Storefront.FindProduct(ctx, ownerID)
		if err != nil || !found {
			return err
		}
		attachments, err := tx.Storefront.GalleryAttachmentIDs(ctx, ownerID)
		if err != nil {
			return err
		}
		if product.ThumbnailID > 0 {
			attachments = append(attachments, product.ThumbnailID)
		}
		if err := tx.Storefront.SetProductThumbnail(ctx, ownerID, 0); err != nil {
			return err
		}
		if err := tx.Storefront.ClearProductGallery(ctx, ownerID); err != nil {
			return err
		}
		for _, attachmentID := range attachments {
			composite := relation.composite(attachmentID, ownerID).String()
			if _, err := tx.Links.UnlinkEndpoint(ctx, relation.linkScope, composite); err != nil {
				return err
			}
			if err := releaseAttachment(ctx, tx, attachmentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logError(opImageDelete, "clear_failed", err, zap.Stringer("image", entity.ID))
	}
	return entity, err
}

// Stats counts attachment uses without a link.
func (c *ImageController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedImages(ctx)
	if err != nil {
		c.logError(opImageStats, "count_failed", err)
	}
	return total, err
}
