// Package compositeid encodes identifiers derived from one or more storefront record ids.
package compositeid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Prefix names the semantic relationship a composite identifier encodes.
type Prefix string

const (
	// PrefixGuest marks a guest customer derived from an order.
	PrefixGuest Prefix = "guest"
	// PrefixProductImage marks an attachment used by a product.
	PrefixProductImage Prefix = "product-image"
	// PrefixCategoryImage marks an attachment used by a category.
	PrefixCategoryImage Prefix = "category-image"
)

// Delimiter separates the prefix and the parts. Storefront ids are decimal so it never occurs inside a part.
const Delimiter = "_"

// ErrMalformedIdentifier indicates an unknown prefix, a wrong number of parts or a non-canonical part.
var ErrMalformedIdentifier = errors.New("compositeid: malformed identifier")

var arity = map[Prefix]int{
	PrefixGuest:         1,
	PrefixProductImage:  2,
	PrefixCategoryImage: 2,
}

// Prefixes lists every recognised prefix.
func Prefixes() []Prefix {
	return []Prefix{PrefixGuest, PrefixProductImage, PrefixCategoryImage}
}

// Encode joins the prefix and the ordered parts.
func Encode(prefix Prefix, parts ...int64) (string, error) {
	expected, ok := arity[prefix]
	if !ok {
		return "", fmt.Errorf("%w: unknown prefix %q", ErrMalformedIdentifier, prefix)
	}
	if len(parts) != expected {
		return "", fmt.Errorf("%w: %s expects %d parts, got %d", ErrMalformedIdentifier, prefix, expected, len(parts))
	}
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, string(prefix))
	for _, part := range parts {
		if part <= 0 {
			return "", fmt.Errorf("%w: part %d is not a positive id", ErrMalformedIdentifier, part)
		}
		segments = append(segments, strconv.FormatInt(part, 10))
	}
	return strings.Join(segments, Delimiter), nil
}

// Decode splits a composite identifier into its prefix and parts.
func Decode(raw string) (Prefix, []int64, error) {
	segments := strings.Split(raw, Delimiter)
	prefix := Prefix(segments[0])
	expected, ok := arity[prefix]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown prefix in %q", ErrMalformedIdentifier, raw)
	}
	if len(segments)-1 != expected {
		return "", nil, fmt.Errorf("%w: %s expects %d parts in %q", ErrMalformedIdentifier, prefix, expected, raw)
	}
	parts := make([]int64, 0, expected)
	for _, segment := range segments[1:] {
		value, err := strconv.ParseInt(segment, 10, 64)
		if err != nil || value <= 0 || strconv.FormatInt(value, 10) != segment {
			return "", nil, fmt.Errorf("%w: invalid part %q in %q", ErrMalformedIdentifier, segment, raw)
		}
		parts = append(parts, value)
	}
	return prefix, parts, nil
}

// HasPrefix reports whether raw starts with a recognised prefix followed by the delimiter.
// It does not validate the parts.
func HasPrefix(raw string) bool {
	head, _, found := strings.Cut(raw, Delimiter)
	if !found {
		return false
	}
	_, ok := arity[Prefix(head)]
	return ok
}
