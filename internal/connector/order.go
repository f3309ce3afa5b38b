package connector

import (
	"context"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	opOrderPull  = "connector.customer_order.pull"
	opOrderStats = "connector.customer_order.statistic"

	paymentMethodCashOnDelivery = "cod"
)

var (
	orderScope   = linking.ScopeOf(linking.TypeCustomerOrder)
	hundred      = decimal.NewFromInt(100)
	vatPrecision = int32(2)
)

// CustomerOrderController offers storefront orders to the host. Orders are never pushed or
// deleted from the host side.
type CustomerOrderController struct {
	base
}

// NewCustomerOrderController returns the customer order controller.
func NewCustomerOrderController(tx *Transactor, options Options, logger *zap.Logger) *CustomerOrderController {
	return &CustomerOrderController{base: base{kind: KindCustomerOrder, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked orders, oldest first.
func (c *CustomerOrderController) Pull(ctx context.Context, limit int) ([]CustomerOrder, error) {
	if err := checkLimit(opOrderPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []CustomerOrder{}, nil
	}
	stores := c.stores()
	records, err := stores.Storefront.UnlinkedOrders(ctx, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]CustomerOrder, 0, len(records))
	for _, record := range records {
		order, err := c.toEntity(ctx, stores, record)
		if err != nil {
			c.logError(opOrderPull, "map_failed", err, zap.Int64("order_id", record.ID))
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *CustomerOrderController) toEntity(ctx context.Context, stores Stores, record storefront.Order) (CustomerOrder, error) {
	customer, err := orderCustomer(ctx, stores, record)
	if err != nil {
		return CustomerOrder{}, err
	}
	lines, err := stores.Storefront.OrderItems(ctx, record.ID)
	if err != nil {
		return CustomerOrder{}, err
	}
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := referenceIdentity(ctx, stores.Links, productScope, line.ProductID)
		if err != nil {
			return CustomerOrder{}, err
		}
		items = append(items, OrderItem{
			ID:        endpointIdentity(line.ID),
			ProductID: product,
			Name:      line.Name,
			Quantity:  line.Quantity,
			NetPrice:  unitPrice(line.Total, line.Quantity, c.options.PriceDecimals),
			VAT:       vatRate(line.Total, line.TotalTax),
		})
	}
	return CustomerOrder{
		ID:             endpointIdentity(record.ID),
		CustomerID:     customer,
		OrderNumber:    record.OrderNumber,
		Status:         orderStatus(record.Status),
		PaymentStatus:  paymentStatus(record.Status, record.PaymentMethod),
		Currency:       record.Currency,
		Total:          record.Total.Round(c.options.PriceDecimals),
		TotalTax:       record.TotalTax.Round(c.options.PriceDecimals),
		ShippingMethod: record.ShippingMethod,
		PaymentMethod:  record.PaymentMethod,
		Note:           record.CustomerNote,
		BillingAddress: Address{
			Email:      record.BillingEmail,
			FirstName:  record.BillingFirstName,
			LastName:   record.BillingLastName,
			Company:    record.BillingCompany,
			Street:     record.BillingStreet,
			ZipCode:    record.BillingZipCode,
			City:       record.BillingCity,
			CountryISO: record.BillingCountry,
			Phone:      record.BillingPhone,
		},
		Items:   items,
		Created: record.CreatedAt,
	}, nil
}

// orderCustomer references the registered customer of an order or the guest derived from it.
func orderCustomer(ctx context.Context, stores Stores, record storefront.Order) (Identity, error) {
	if !record.IsGuest() {
		return referenceIdentity(ctx, stores.Links, registeredScope, record.CustomerID)
	}
	guest := compositeid.GuestID{OrderID: record.ID}.String()
	host, _, err := stores.Links.LookupHost(ctx, guestScope, guest)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Endpoint: guest, Host: host}, nil
}

func orderStatus(status string) string {
	switch status {
	case storefront.OrderCompleted:
		return OrderStatusShipped
	case storefront.OrderCancelled, storefront.OrderRefunded:
		return OrderStatusCancelled
	default:
		return OrderStatusNew
	}
}

func paymentStatus(status, method string) string {
	switch {
	case status == storefront.OrderCompleted:
		return PaymentStatusCompleted
	case status == storefront.OrderProcessing && method != paymentMethodCashOnDelivery:
		return PaymentStatusCompleted
	default:
		return PaymentStatusUnpaid
	}
}

func unitPrice(total, quantity decimal.Decimal, places int32) decimal.Decimal {
	if !quantity.IsPositive() {
		return total.Round(places)
	}
	return total.Div(quantity).Round(places)
}

func vatRate(total, tax decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return tax.Div(total).Mul(hundred).Round(vatPrecision)
}

// Push is not offered for orders.
func (c *CustomerOrderController) Push(_ context.Context, _ *Batch, entity CustomerOrder) (CustomerOrder, error) {
	return entity, unsupported(c.kind, "push")
}

// Delete is not offered for orders.
func (c *CustomerOrderController) Delete(_ context.Context, _ *Batch, entity CustomerOrder) (CustomerOrder, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats counts unlinked orders.
func (c *CustomerOrderController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedOrders(ctx)
	if err != nil {
		c.logError(opOrderStats, "count_failed", err)
	}
	return total, err
}
