package connector

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the host projection of a simple, variable or variation product.
type Product struct {
	ID                  Identity        `json:"id"`
	MasterProductID     Identity        `json:"masterProductId"`
	ShippingClassID     Identity        `json:"shippingClassId"`
	Categories          []Identity      `json:"categories"`
	IsMasterProduct     bool            `json:"isMasterProduct"`
	SKU                 string          `json:"sku"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	IsActive            bool            `json:"isActive"`
	IsTopProduct        bool            `json:"isTopProduct"`
	Sort                int             `json:"sort"`
	TaxClass            string          `json:"taxClass"`
	ConsiderStock       bool            `json:"considerStock"`
	PermitNegativeStock bool            `json:"permitNegativeStock"`
	StockLevel          decimal.Decimal `json:"stockLevel"`
	Weight              decimal.Decimal `json:"weight"`
	Length              decimal.Decimal `json:"length"`
	Width               decimal.Decimal `json:"width"`
	Height              decimal.Decimal `json:"height"`
	GrossPrice          decimal.Decimal `json:"grossPrice"`
	Created             time.Time       `json:"created"`
	Modified            time.Time       `json:"modified"`
}

// Category is the host projection of a product category.
type Category struct {
	ID               Identity `json:"id"`
	ParentCategoryID Identity `json:"parentCategoryId"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description"`
	Sort             int      `json:"sort"`
}

// Customer is a registered storefront account or a guest derived from an order.
type Customer struct {
	ID         Identity  `json:"id"`
	IsGuest    bool      `json:"isGuest"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Company    string    `json:"company"`
	Street     string    `json:"street"`
	ZipCode    string    `json:"zipCode"`
	City       string    `json:"city"`
	CountryISO string    `json:"countryIso"`
	Phone      string    `json:"phone"`
	Created    time.Time `json:"created"`
}

// Order statuses reported to the host.
const (
	OrderStatusNew       = "new"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses reported to the host.
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusUnpaid    = "unpaid"
)

// Address is the billing address of an order.
type Address struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company"`
	Street     string `json:"street"`
	ZipCode    string `json:"zipCode"`
	City       string `json:"city"`
	CountryISO string `json:"countryIso"`
	Phone      string `json:"phone"`
}

// OrderItem is one line of a customer order.
type OrderItem struct {
	ID        Identity        `json:"id"`
	ProductID Identity        `json:"productId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	NetPrice  decimal.Decimal `json:"netPrice"`
	VAT       decimal.Decimal `json:"vat"`
}

// CustomerOrder is the host projection of a storefront order.
type CustomerOrder struct {
	ID             Identity        `json:"id"`
	CustomerID     Identity        `json:"customerId"`
	OrderNumber    string          `json:"orderNumber"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"paymentStatus"`
	Currency       string          `json:"currency"`
	Total          decimal.Decimal `json:"total"`
	TotalTax       decimal.Decimal `json:"totalTax"`
	ShippingMethod string          `json:"shippingMethod"`
	PaymentMethod  string          `json:"paymentMethod"`
	Note           string          `json:"note"`
	BillingAddress Address         `json:"billingAddress"`
	Items          []OrderItem     `json:"items"`
	Created        time.Time       `json:"created"`
}

// Payment is the payment of one order. Its endpoint id is the order id.
type Payment struct {
	ID              Identity        `json:"id"`
	CustomerOrderID Identity        `json:"customerOrderId"`
	PaymentMethod   string          `json:"paymentMethod"`
	TransactionID   string          `json:"transactionId"`
	TotalSum        decimal.Decimal `json:"totalSum"`
	Created         time.Time       `json:"created"`
}

// Image relations.
const (
	RelationProduct  = "product"
	RelationCategory = "category"
)

// Image is one use of an attachment by a product or category. Its endpoint id is an image
// composite id.
type Image struct {
	ID         Identity `json:"id"`
	ForeignKey Identity `json:"foreignKey"`
	Relation   string   `json:"relation"`
	Sort       int      `json:"sort"`
	Name       string   `json:"name"`
	FileName   string   `json:"fileName"`
	MimeType   string   `json:"mimeType"`
	AltText    string   `json:"altText"`
}

// TaxRate is a storefront tax rate.
type TaxRate struct {
	ID         Identity        `json:"id"`
	CountryISO string          `json:"countryIso"`
	State      string          `json:"state"`
	Rate       decimal.Decimal `json:"rate"`
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Class      string          `json:"class"`
}

// ShippingClass is a storefront shipping class.
type ShippingClass struct {
	ID   Identity `json:"id"`
	Name string   `json:"name"`
	Slug string   `json:"slug"`
}

// ProductPrice carries the net prices of a linked product.
type ProductPrice struct {
	ProductID       Identity            `json:"productId"`
	NetPrice        decimal.Decimal     `json:"netPrice"`
	SpecialNetPrice decimal.NullDecimal `json:"specialNetPrice"`
}

// ProductStockLevel carries the stock level of a linked product.
type ProductStockLevel struct {
	ProductID  Identity        `json:"productId"`
	StockLevel decimal.Decimal `json:"stockLevel"`
}
