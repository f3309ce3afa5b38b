package linking

// LinkType enumerates the entity types with a dedicated link table.
type LinkType string

const (
	TypeProduct       LinkType = "product"
	TypeCategory      LinkType = "category"
	TypeCustomer      LinkType = "customer"
	TypeCustomerOrder LinkType = "customer_order"
	TypePayment       LinkType = "payment"
	TypeImage         LinkType = "image"
	TypeTaxRate       LinkType = "tax_rate"
	TypeShippingClass LinkType = "shipping_class"
)

// RelationType distinguishes the owner kind of an image link.
type RelationType string

const (
	RelationProduct  RelationType = "product"
	RelationCategory RelationType = "category"
)

type discriminatorKind int

const (
	discriminatorNone discriminatorKind = iota
	discriminatorGuest
	discriminatorRelation
)

type tableLayout struct {
	table         string
	numeric       bool
	discriminator discriminatorKind
}

const (
	guestColumn    = "is_guest"
	relationColumn = "relation_type"
)

var tableLayouts = map[LinkType]tableLayout{
	TypeProduct:       {table: "link_product", numeric: true},
	TypeCategory:      {table: "link_category", numeric: true},
	TypeCustomer:      {table: "link_customer", discriminator: discriminatorGuest},
	TypeCustomerOrder: {table: "link_customer_order", numeric: true},
	TypePayment:       {table: "link_payment", numeric: true},
	TypeImage:         {table: "link_image", discriminator: discriminatorRelation},
	TypeTaxRate:       {table: "link_tax_rate", numeric: true},
	TypeShippingClass: {table: "link_shipping_class", numeric: true},
}

// Types returns every link type in a stable order.
func Types() []LinkType {
	return []LinkType{
		TypeProduct,
		TypeCategory,
		TypeCustomer,
		TypeCustomerOrder,
		TypePayment,
		TypeImage,
		TypeTaxRate,
		TypeShippingClass,
	}
}

// TableName returns the link table backing t, or "" for an unknown type.
func TableName(t LinkType) string {
	return tableLayouts[t].table
}

// NumericEndpoint reports whether endpoint ids of t are stored as integers.
func NumericEndpoint(t LinkType) bool {
	return tableLayouts[t].numeric
}

// ProductLink backs link_product.
type ProductLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_product_host"`
}

func (ProductLink) TableName() string { return "link_product" }

// CategoryLink backs link_category.
type CategoryLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_category_host"`
}

func (CategoryLink) TableName() string { return "link_category" }

// CustomerLink backs link_customer. Registered customers use the decimal account id, guests the
// guest composite id.
type CustomerLink struct {
	EndpointID string `gorm:"column:endpoint_id;primaryKey;size:190"`
	HostID     int64  `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_customer_host,priority:1"`
	IsGuest    bool   `gorm:"column:is_guest;primaryKey;index:idx_link_customer_host,priority:2"`
}

func (CustomerLink) TableName() string { return "link_customer" }

// CustomerOrderLink backs link_customer_order.
type CustomerOrderLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_customer_order_host"`
}

func (CustomerOrderLink) TableName() string { return "link_customer_order" }

// PaymentLink backs link_payment. The endpoint id is the paid order.
type PaymentLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_payment_host"`
}

func (PaymentLink) TableName() string { return "link_payment" }

// ImageLink backs link_image. Endpoint ids are image composite ids.
type ImageLink struct {
	EndpointID   string `gorm:"column:endpoint_id;primaryKey;size:190"`
	HostID       int64  `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_image_host,priority:1"`
	RelationType string `gorm:"column:relation_type;primaryKey;size:32;index:idx_link_image_host,priority:2"`
}

func (ImageLink) TableName() string { return "link_image" }

// TaxRateLink backs link_tax_rate.
type TaxRateLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_tax_rate_host"`
}

func (TaxRateLink) TableName() string { return "link_tax_rate" }

// ShippingClassLink backs link_shipping_class.
type ShippingClassLink struct {
	EndpointID int64 `gorm:"column:endpoint_id;primaryKey;autoIncrement:false"`
	HostID     int64 `gorm:"column:host_id;primaryKey;autoIncrement:false;index:idx_link_shipping_class_host"`
}

func (ShippingClassLink) TableName() string { return "link_shipping_class" }

// Models lists the link table models for schema migration.
func Models() []any {
	return []any{
		&ProductLink{},
		&CategoryLink{},
		&CustomerLink{},
		&CustomerOrderLink{},
		&PaymentLink{},
		&ImageLink{},
		&TaxRateLink{},
		&ShippingClassLink{},
	}
}
