// Package storefront holds the endpoint-side records the connector reads and writes.
package storefront

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product types.
const (
	ProductTypeSimple    = "simple"
	ProductTypeVariable  = "variable"
	ProductTypeVariation = "variation"
)

// Post statuses.
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusFuture  = "future"
	StatusPrivate = "private"
	StatusTrash   = "trash"
)

// Stock statuses.
const (
	StockInStock     = "instock"
	StockOutOfStock  = "outofstock"
	StockOnBackorder = "onbackorder"
)

// Backorder settings.
const (
	BackordersNo     = "no"
	BackordersNotify = "notify"
	BackordersYes    = "yes"
)

// Order statuses.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderOnHold     = "on-hold"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
	OrderRefunded   = "refunded"
	OrderFailed     = "failed"
)

// Product is a simple product, a variable (master) product or one of its variations.
type Product struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ParentID          int64           `gorm:"column:parent_id;not null;default:0;index:idx_wc_products_parent"`
	Type              string          `gorm:"column:type;size:32;not null"`
	SKU               string          `gorm:"column:sku;size:100;not null;default:'';index:idx_wc_products_sku"`
	Name              string          `gorm:"column:name;size:255;not null;default:''"`
	Description       string          `gorm:"column:description;type:text"`
	Status            string          `gorm:"column:status;size:20;not null"`
	MenuOrder         int             `gorm:"column:menu_order;not null;default:0"`
	Featured          bool            `gorm:"column:featured;not null;default:false"`
	TaxClass          string          `gorm:"column:tax_class;size:100;not null;default:''"`
	ShippingClassID   int64           `gorm:"column:shipping_class_id;not null;default:0"`
	Weight            decimal.Decimal `gorm:"column:weight;type:numeric(14,4);not null;default:0"`
	Length            decimal.Decimal `gorm:"column:length;type:numeric(14,4);not null;default:0"`
	Width             decimal.Decimal `gorm:"column:width;type:numeric(14,4);not null;default:0"`
	Height            decimal.Decimal `gorm:"column:height;type:numeric(14,4);not null;default:0"`
	RegularPrice      decimal.Decimal `gorm:"column:regular_price;type:numeric(14,4);not null;default:0"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(14,4);not null;default:0"`
	MinVariationPrice decimal.Decimal `gorm:"column:min_variation_price;type:numeric(14,4);not null;default:0"`
	MaxVariationPrice decimal.Decimal `gorm:"column:max_variation_price;type:numeric(14,4);not null;default:0"`
	ManageStock       bool            `gorm:"column:manage_stock;not null;default:false"`
	StockQuantity     decimal.Decimal `gorm:"column:stock_quantity;type:numeric(14,4);not null;default:0"`
	StockStatus       string          `gorm:"column:stock_status;size:20;not null;default:'instock'"`
	Backorders        string          `gorm:"column:backorders;size:20;not null;default:'no'"`
	ThumbnailID       int64           `gorm:"column:thumbnail_id;not null;default:0"`
	CreatedAt         time.Time       `gorm:"column:created_at;not null"`
	ModifiedAt        time.Time       `gorm:"column:modified_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "wc_products"
}

// IsVariation reports whether the product is a child of a variable product.
func (p Product) IsVariation() bool {
	return p.Type == ProductTypeVariation
}

// BackordersAllowed reports whether stock may go negative.
func (p Product) BackordersAllowed() bool {
	return p.Backorders == BackordersYes || p.Backorders == BackordersNotify
}

// ProductCategory assigns a product to a category.
type ProductCategory struct {
	ProductID  int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	CategoryID int64 `gorm:"column:category_id;primaryKey;autoIncrement:false;index:idx_wc_product_categories_category"`
}

// TableName provides the explicit table binding for GORM.
func (ProductCategory) TableName() string {
	return "wc_product_categories"
}

// GalleryImage places an attachment in a product gallery.
type GalleryImage struct {
	ProductID    int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	AttachmentID int64 `gorm:"column:attachment_id;primaryKey;autoIncrement:false;index:idx_wc_product_gallery_attachment"`
	Position     int   `gorm:"column:position;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (GalleryImage) TableName() string {
	return "wc_product_gallery"
}

// Attachment is an uploaded media file.
type Attachment struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;size:255;not null;default:''"`
	FileName  string    `gorm:"column:file_name;size:255;not null;default:''"`
	MimeType  string    `gorm:"column:mime_type;size:100;not null;default:''"`
	AltText   string    `gorm:"column:alt_text;size:255;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Attachment) TableName() string {
	return "wc_attachments"
}

// Category is a product category term.
type Category struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ParentID    int64  `gorm:"column:parent_id;not null;default:0;index:idx_wc_categories_parent"`
	Name        string `gorm:"column:name;size:255;not null"`
	Slug        string `gorm:"column:slug;size:190;not null;uniqueIndex:idx_wc_categories_slug"`
	Description string `gorm:"column:description;type:text"`
	Sort        int    `gorm:"column:sort;not null;default:0"`
	ThumbnailID int64  `gorm:"column:thumbnail_id;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "wc_categories"
}

// Customer is a registered customer account.
type Customer struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;size:320;not null;default:'';index:idx_wc_customers_email"`
	FirstName string    `gorm:"column:first_name;size:190;not null;default:''"`
	LastName  string    `gorm:"column:last_name;size:190;not null;default:''"`
	Company   string    `gorm:"column:company;size:190;not null;default:''"`
	Street    string    `gorm:"column:street;size:255;not null;default:''"`
	ZipCode   string    `gorm:"column:zip_code;size:32;not null;default:''"`
	City      string    `gorm:"column:city;size:190;not null;default:''"`
	Country   string    `gorm:"column:country;size:2;not null;default:''"`
	Phone     string    `gorm:"column:phone;size:64;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Customer) TableName() string {
	return "wc_customers"
}

// Order is a customer order. CustomerID 0 marks a guest checkout.
type Order struct {
	ID               int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CustomerID       int64           `gorm:"column:customer_id;not null;default:0;index:idx_wc_orders_customer"`
	OrderNumber      string          `gorm:"column:order_number;size:64;not null;default:''"`
	Status           string          `gorm:"column:status;size:32;not null"`
	Currency         string          `gorm:"column:currency;size:3;not null;default:''"`
	Total            decimal.Decimal `gorm:"column:total;type:numeric(14,4);not null;default:0"`
	TotalTax         decimal.Decimal `gorm:"column:total_tax;type:numeric(14,4);not null;default:0"`
	ShippingMethod   string          `gorm:"column:shipping_method;size:190;not null;default:''"`
	PaymentMethod    string          `gorm:"column:payment_method;size:100;not null;default:''"`
	TransactionID    string          `gorm:"column:transaction_id;size:190;not null;default:''"`
	CustomerNote     string          `gorm:"column:customer_note;type:text"`
	BillingEmail     string          `gorm:"column:billing_email;size:320;not null;default:''"`
	BillingFirstName string          `gorm:"column:billing_first_name;size:190;not null;default:''"`
	BillingLastName  string          `gorm:"column:billing_last_name;size:190;not null;default:''"`
	BillingCompany   string          `gorm:"column:billing_company;size:190;not null;default:''"`
	BillingStreet    string          `gorm:"column:billing_street;size:255;not null;default:''"`
	BillingZipCode   string          `gorm:"column:billing_zip_code;size:32;not null;default:''"`
	BillingCity      string          `gorm:"column:billing_city;size:190;not null;default:''"`
	BillingCountry   string          `gorm:"column:billing_country;size:2;not null;default:''"`
	BillingPhone     string          `gorm:"column:billing_phone;size:64;not null;default:''"`
	DatePaid         *time.Time      `gorm:"column:date_paid"`
	DateCompleted    *time.Time      `gorm:"column:date_completed"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "wc_orders"
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.CustomerID == 0
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64           `gorm:"column:order_id;not null;index:idx_wc_order_items_order"`
	ProductID int64           `gorm:"column:product_id;not null;default:0"`
	Name      string          `gorm:"column:name;size:255;not null;default:''"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:numeric(14,4);not null;default:0"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(14,4);not null;default:0"`
	TotalTax  decimal.Decimal `gorm:"column:total_tax;type:numeric(14,4);not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (OrderItem) TableName() string {
	return "wc_order_items"
}

// TaxRate is a tax rate for a tax class and location.
type TaxRate struct {
	ID       int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Country  string          `gorm:"column:country;size:2;not null;default:''"`
	State    string          `gorm:"column:state;size:190;not null;default:''"`
	Rate     decimal.Decimal `gorm:"column:rate;type:numeric(8,4);not null"`
	Name     string          `gorm:"column:name;size:190;not null;default:''"`
	Priority int             `gorm:"column:priority;not null;default:1"`
	Class    string          `gorm:"column:class;size:100;not null;default:'';index:idx_wc_tax_rates_class"`
}

// TableName provides the explicit table binding for GORM.
func (TaxRate) TableName() string {
	return "wc_tax_rates"
}

// ShippingClass is a shipping class term.
type ShippingClass struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:190;not null"`
	Slug string `gorm:"column:slug;size:190;not null;uniqueIndex:idx_wc_shipping_classes_slug"`
}

// TableName provides the explicit table binding for GORM.
func (ShippingClass) TableName() string {
	return "wc_shipping_classes"
}

// ImageRef is one use of an attachment by an owner, as offered to image pulls.
type ImageRef struct {
	AttachmentID int64  `gorm:"column:attachment_id"`
	OwnerID      int64  `gorm:"column:owner_id"`
	Relation     string `gorm:"column:relation"`
	Sort         int    `gorm:"column:sort"`
}

// Models lists the storefront models for schema migration.
func Models() []any {
	return []any{
		&Product{},
		&ProductCategory{},
		&GalleryImage{},
		&Attachment{},
		&Category{},
		&Customer{},
		&Order{},
		&OrderItem{},
		&TaxRate{},
		&ShippingClass{},
	}
}
