package compositeid

import "fmt"

// ID is the closed set of composite identifiers. Business code switches on the concrete type and
// only converts to the wire string at the store boundary.
type ID interface {
	Prefix() Prefix
	String() string
	composite()
}

// GuestID identifies a guest customer by the order it was derived from.
type GuestID struct {
	OrderID int64
}

// ProductImageID identifies an attachment in its role as image of one product.
type ProductImageID struct {
	AttachmentID int64
	ProductID    int64
}

// CategoryImageID identifies an attachment in its role as image of one category.
type CategoryImageID struct {
	AttachmentID int64
	CategoryID   int64
}

func (GuestID) Prefix() Prefix         { return PrefixGuest }
func (ProductImageID) Prefix() Prefix  { return PrefixProductImage }
func (CategoryImageID) Prefix() Prefix { return PrefixCategoryImage }

func (GuestID) composite()         {}
func (ProductImageID) composite()  {}
func (CategoryImageID) composite() {}

func (id GuestID) String() string {
	return format(id.Prefix(), id.OrderID)
}

func (id ProductImageID) String() string {
	return format(id.Prefix(), id.AttachmentID, id.ProductID)
}

func (id CategoryImageID) String() string {
	return format(id.Prefix(), id.AttachmentID, id.CategoryID)
}

// Parse decodes raw into its typed identifier.
func Parse(raw string) (ID, error) {
	prefix, parts, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	switch prefix {
	case PrefixGuest:
		return GuestID{OrderID: parts[0]}, nil
	case PrefixProductImage:
		return ProductImageID{AttachmentID: parts[0], ProductID: parts[1]}, nil
	case PrefixCategoryImage:
		return CategoryImageID{AttachmentID: parts[0], CategoryID: parts[1]}, nil
	default:
		return nil, fmt.Errorf("%w: unhandled prefix %q", ErrMalformedIdentifier, prefix)
	}
}

// format never fails for the typed ids; invalid zero parts still render so they can be logged.
func format(prefix Prefix, parts ...int64) string {
	encoded, err := Encode(prefix, parts...)
	if err != nil {
		raw := string(prefix)
		for _, part := range parts {
			raw += fmt.Sprintf("%s%d", Delimiter, part)
		}
		return raw
	}
	return encoded
}
