package connector

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const (
	opPaymentPull  = "connector.payment.pull"
	opPaymentPush  = "connector.payment.push"
	opPaymentStats = "connector.payment.statistic"
)

var paymentScope = linking.ScopeOf(linking.TypePayment)

// PaymentController offers paid orders as payments and records host payments on orders.
type PaymentController struct {
	base
}

// NewPaymentController returns the payment controller.
func NewPaymentController(tx *Transactor, options Options, logger *zap.Logger) *PaymentController {
	return &PaymentController{base: base{kind: KindPayment, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit paid orders whose payment is not linked.
func (c *PaymentController) Pull(ctx context.Context, limit int) ([]Payment, error) {
	if err := checkLimit(opPaymentPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Payment{}, nil
	}
	stores := c.stores()
	records, err := stores.Storefront.UnlinkedPaidOrders(ctx, limit, c.options.IncludeCompletedOrders)
	if err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(records))
	for _, record := range records {
		order, err := referenceIdentity(ctx, stores.Links, orderScope, record.ID)
		if err != nil {
			c.logError(opPaymentPull, "order_lookup_failed", err, zap.Int64("order_id", record.ID))
			return nil, err
		}
		payments = append(payments, Payment{
			ID:              endpointIdentity(record.ID),
			CustomerOrderID: order,
			PaymentMethod:   record.PaymentMethod,
			TransactionID:   record.TransactionID,
			TotalSum:        record.Total.Round(c.options.PriceDecimals),
			Created:         paidAt(record),
		})
	}
	return payments, nil
}

func paidAt(record storefront.Order) time.Time {
	switch {
	case record.DatePaid != nil:
		return *record.DatePaid
	case record.DateCompleted != nil:
		return *record.DateCompleted
	default:
		return record.CreatedAt
	}
}

// Push stores the transaction id and payment date on the referenced order and links the payment.
// A missing order is a soft failure.
func (c *PaymentController) Push(ctx context.Context, batch *Batch, entity Payment) (Payment, error) {
	if err := requireHost(opPaymentPush, entity.ID); err != nil {
		return entity, err
	}
	stores := c.stores()
	reference := entity.CustomerOrderID
	if reference.IsEmpty() {
		reference = Identity{Endpoint: entity.ID.Endpoint}
	}
	orderID, found, err := resolveReference(ctx, stores.Links, batch, orderScope, "", reference, orderExists(stores))
	if err != nil {
		c.logError(opPaymentPush, "order_lookup_failed", err, zap.Stringer("payment", entity.ID))
		return entity, err
	}
	if !found {
		c.softFail(batch, entity.ID, KindCustomerOrder, reference)
		return entity, nil
	}

	paid := entity.Created
	if paid.IsZero() {
		paid = c.tx.Now()
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		if err := tx.Storefront.RecordPayment(ctx, orderID, entity.TransactionID, paid); err != nil {
			return err
		}
		return tx.Links.Link(ctx, paymentScope, entity.ID.Host, formatID(orderID))
	})
	if err != nil {
		c.logError(opPaymentPush, "write_failed", err, zap.Stringer("payment", entity.ID))
		return entity, err
	}
	entity.ID.Endpoint = formatID(orderID)
	return entity, nil
}

// Delete is not offered for payments.
func (c *PaymentController) Delete(_ context.Context, _ *Batch, entity Payment) (Payment, error) {
	return entity, unsupported(c.kind, "delete")
}

// Stats counts paid orders whose payment is not linked.
func (c *PaymentController) Stats(ctx context.Context) (int64, error) {
	total, err := c.stores().Storefront.CountUnlinkedPaidOrders(ctx, c.options.IncludeCompletedOrders)
	if err != nil {
		c.logError(opPaymentStats, "count_failed", err)
	}
	return total, err
}

func orderExists(stores Stores) func(context.Context, int64) (bool, error) {
	return func(ctx context.Context, id int64) (bool, error) {
		_, found, err := stores.Storefront.FindOrder(ctx, id)
		return found, err
	}
}
