package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const legacyLinkTable = "legacy_links"

// ErrUnknownLegacyType indicates a legacy link row whose type has no link table.
var ErrUnknownLegacyType = errors.New("database: unknown legacy link type")

// legacyLink is a row of the single link table used before links were split per type.
type legacyLink struct {
	EndpointID string `gorm:"column:endpoint_id"`
	HostID     int64  `gorm:"column:host_id"`
	Type       string `gorm:"column:type"`
}

func (legacyLink) TableName() string {
	return legacyLinkTable
}

// splitLegacyLinks moves every legacy link into its per-type table and drops the legacy table.
// A single bad row fails the whole migration.
func splitLegacyLinks(tx *gorm.DB, logger *zap.Logger) error {
	if !tx.Migrator().HasTable(legacyLinkTable) {
		return nil
	}

	var rows []legacyLink
	if err := tx.Order("type, host_id, endpoint_id").Find(&rows).Error; err != nil {
		return fmt.Errorf("read legacy links: %w", err)
	}

	store, err := linking.NewStore(linking.StoreConfig{Database: tx, Logger: logger})
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, row := range rows {
		scope, err := legacyScope(row)
		if err != nil {
			return err
		}
		if err := store.Link(ctx, scope, row.HostID, row.EndpointID); err != nil {
			return fmt.Errorf("copy legacy link %s/%s: %w", row.Type, row.EndpointID, err)
		}
	}

	if err := tx.Migrator().DropTable(legacyLinkTable); err != nil {
		return fmt.Errorf("drop legacy links: %w", err)
	}
	logger.Info("legacy links split", zap.Int("rows", len(rows)))
	return nil
}

func legacyScope(row legacyLink) (linking.Scope, error) {
	linkType := linking.LinkType(row.Type)
	switch linkType {
	case linking.TypeCustomer:
		if !compositeid.HasPrefix(row.EndpointID) {
			return linking.GuestScope(false), nil
		}
		id, err := compositeid.Parse(row.EndpointID)
		if err != nil {
			return linking.Scope{}, fmt.Errorf("legacy customer link %q: %w", row.EndpointID, err)
		}
		if _, ok := id.(compositeid.GuestID); !ok {
			return linking.Scope{}, fmt.Errorf("legacy customer link %q: %w", row.EndpointID, compositeid.ErrMalformedIdentifier)
		}
		return linking.GuestScope(true), nil
	case linking.TypeImage:
		id, err := compositeid.Parse(row.EndpointID)
		if err != nil {
			return linking.Scope{}, fmt.Errorf("legacy image link %q: %w", row.EndpointID, err)
		}
		switch id.(type) {
		case compositeid.ProductImageID:
			return linking.ImageScope(linking.RelationProduct), nil
		case compositeid.CategoryImageID:
			return linking.ImageScope(linking.RelationCategory), nil
		}
		return linking.Scope{}, fmt.Errorf("legacy image link %q: %w", row.EndpointID, compositeid.ErrMalformedIdentifier)
	}
	if linking.TableName(linkType) == "" {
		return linking.Scope{}, fmt.Errorf("%w: %q", ErrUnknownLegacyType, row.Type)
	}
	return linking.ScopeOf(linkType), nil
}
