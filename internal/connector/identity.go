// Package connector maps storefront records to host-shaped entities and drives the pull, push,
// delete and statistics operations of every entity kind.
package connector

import (
	"fmt"
	"strconv"
)

// Kind enumerates the closed set of synchronizable entity kinds.
type Kind string

const (
	KindProduct           Kind = "product"
	KindCategory          Kind = "category"
	KindCustomer          Kind = "customer"
	KindCustomerOrder     Kind = "customer_order"
	KindPayment           Kind = "payment"
	KindImage             Kind = "image"
	KindTaxRate           Kind = "tax_rate"
	KindShippingClass     Kind = "shipping_class"
	KindProductPrice      Kind = "product_price"
	KindProductStockLevel Kind = "product_stock_level"
)

// Kinds returns every kind in dispatch order.
func Kinds() []Kind {
	return []Kind{
		KindProduct,
		KindCategory,
		KindCustomer,
		KindCustomerOrder,
		KindPayment,
		KindImage,
		KindTaxRate,
		KindShippingClass,
		KindProductPrice,
		KindProductStockLevel,
	}
}

// Identity pairs the endpoint id of a storefront record with the host id assigned by the ERP.
// An empty Endpoint or a zero Host means that side is not known yet.
type Identity struct {
	Endpoint string `json:"endpoint"`
	Host     int64  `json:"host"`
}

// IsEmpty reports whether neither side is known.
func (i Identity) IsEmpty() bool {
	return i.Endpoint == "" && i.Host <= 0
}

// Linked reports whether both sides are known.
func (i Identity) Linked() bool {
	return i.Endpoint != "" && i.Host > 0
}

func (i Identity) String() string {
	return fmt.Sprintf("%q/%d", i.Endpoint, i.Host)
}

// endpointIdentity returns the identity of a numeric storefront id, or the empty identity for 0.
func endpointIdentity(id int64) Identity {
	if id <= 0 {
		return Identity{}
	}
	return Identity{Endpoint: strconv.FormatInt(id, 10)}
}

// numericEndpoint parses the endpoint side of a numeric identity. An empty or malformed endpoint
// reports false.
func numericEndpoint(identity Identity) (int64, bool) {
	if identity.Endpoint == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(identity.Endpoint, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
