package linking

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrUnknownLinkType indicates a type without a link table.
	ErrUnknownLinkType = errors.New("linking: unknown link type")
	// ErrMissingDiscriminator indicates a lookup on a discriminated table without its discriminator.
	ErrMissingDiscriminator = errors.New("linking: discriminator required")
	// ErrUnexpectedDiscriminator indicates a discriminator on a table that has none, or an unknown value.
	ErrUnexpectedDiscriminator = errors.New("linking: unexpected discriminator")
)

// Scope selects one link table and, where the table needs it, the discriminator partition.
type Scope struct {
	linkType LinkType
	guest    *bool
	relation RelationType
}

// ScopeOf returns the scope of a link type. Customer and image scopes built this way carry no
// discriminator and are rejected by every store operation.
func ScopeOf(linkType LinkType) Scope {
	return Scope{linkType: linkType}
}

// GuestScope returns the customer scope for guest or registered customers.
func GuestScope(isGuest bool) Scope {
	return Scope{linkType: TypeCustomer, guest: &isGuest}
}

// ImageScope returns the image scope for one relation type.
func ImageScope(relation RelationType) Scope {
	return Scope{linkType: TypeImage, relation: relation}
}

// Type returns the link type of the scope.
func (s Scope) Type() LinkType {
	return s.linkType
}

func (s Scope) String() string {
	switch {
	case s.guest != nil:
		return fmt.Sprintf("%s[is_guest=%t]", s.linkType, *s.guest)
	case s.relation != "":
		return fmt.Sprintf("%s[relation=%s]", s.linkType, s.relation)
	default:
		return string(s.linkType)
	}
}

func (s Scope) resolve() (tableLayout, error) {
	layout, ok := tableLayouts[s.linkType]
	if !ok {
		return tableLayout{}, fmt.Errorf("%w: %q", ErrUnknownLinkType, s.linkType)
	}
	switch layout.discriminator {
	case discriminatorGuest:
		if s.guest == nil {
			return tableLayout{}, fmt.Errorf("%w: %s needs the guest flag", ErrMissingDiscriminator, s.linkType)
		}
		if s.relation != "" {
			return tableLayout{}, fmt.Errorf("%w: %s has no relation type", ErrUnexpectedDiscriminator, s.linkType)
		}
	case discriminatorRelation:
		if s.relation == "" {
			return tableLayout{}, fmt.Errorf("%w: %s needs a relation type", ErrMissingDiscriminator, s.linkType)
		}
		if s.relation != RelationProduct && s.relation != RelationCategory {
			return tableLayout{}, fmt.Errorf("%w: relation %q", ErrUnexpectedDiscriminator, s.relation)
		}
		if s.guest != nil {
			return tableLayout{}, fmt.Errorf("%w: %s has no guest flag", ErrUnexpectedDiscriminator, s.linkType)
		}
	default:
		if s.guest != nil || s.relation != "" {
			return tableLayout{}, fmt.Errorf("%w: %s", ErrUnexpectedDiscriminator, s.linkType)
		}
	}
	return layout, nil
}

func (s Scope) filter(query *gorm.DB, layout tableLayout) *gorm.DB {
	switch layout.discriminator {
	case discriminatorGuest:
		return query.Where(guestColumn+" = ?", *s.guest)
	case discriminatorRelation:
		return query.Where(relationColumn+" = ?", string(s.relation))
	default:
		return query
	}
}

func (s Scope) columns(layout tableLayout, values map[string]any) {
	switch layout.discriminator {
	case discriminatorGuest:
		values[guestColumn] = *s.guest
	case discriminatorRelation:
		values[relationColumn] = string(s.relation)
	}
}
