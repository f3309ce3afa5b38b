package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opUnlinkedOrders   = "storefront.unlinked_orders"
	opUnlinkedPayments = "storefront.unlinked_payments"
	opFindOrder        = "storefront.find_order"
	opOrderItems       = "storefront.order_items"
	opRecordPayment    = "storefront.record_payment"
)

var (
	unlinkedOrderFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = wc_orders.id)",
		linking.TableName(linking.TypeCustomerOrder))
	unlinkedPaymentFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = wc_orders.id)",
		linking.TableName(linking.TypePayment))
)

func (s *Store) unlinkedOrders(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&Order{}).Where(unlinkedOrderFilter)
}

// paidOrders selects orders with a payment date and, when includeCompleted, completed orders.
// Cancelled and refunded orders never offer a payment.
func (s *Store) paidOrders(ctx context.Context, includeCompleted bool) *gorm.DB {
	query := s.conn(ctx).
		Model(&Order{}).
		Where("status NOT IN ?", []string{OrderCancelled, OrderRefunded}).
		Where(unlinkedPaymentFilter)
	if includeCompleted {
		return query.Where("(date_paid IS NOT NULL OR status = ?)", OrderCompleted)
	}
	return query.Where("date_paid IS NOT NULL")
}

// UnlinkedOrders returns up to limit orders without a link, oldest first.
func (s *Store) UnlinkedOrders(ctx context.Context, limit int) ([]Order, error) {
	var orders []Order
	if err := limitOrAll(s.unlinkedOrders(ctx).Order("id"), limit).Find(&orders).Error; err != nil {
		return nil, s.fail(opUnlinkedOrders, "query_failed", err)
	}
	return orders, nil
}

// CountUnlinkedOrders counts orders without a link.
func (s *Store) CountUnlinkedOrders(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedOrders(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedOrders, "count_failed", err)
	}
	return total, nil
}

// UnlinkedPaidOrders returns up to limit paid orders whose payment has no link.
func (s *Store) UnlinkedPaidOrders(ctx context.Context, limit int, includeCompleted bool) ([]Order, error) {
	var orders []Order
	if err := limitOrAll(s.paidOrders(ctx, includeCompleted).Order("id"), limit).Find(&orders).Error; err != nil {
		return nil, s.fail(opUnlinkedPayments, "query_failed", err)
	}
	return orders, nil
}

// CountUnlinkedPaidOrders counts paid orders whose payment has no link.
func (s *Store) CountUnlinkedPaidOrders(ctx context.Context, includeCompleted bool) (int64, error) {
	var total int64
	if err := s.paidOrders(ctx, includeCompleted).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedPayments, "count_failed", err)
	}
	return total, nil
}

// FindOrder loads an order by id.
func (s *Store) FindOrder(ctx context.Context, id int64) (Order, bool, error) {
	var order Order
	if id <= 0 {
		return order, false, nil
	}
	found, err := s.first(ctx, opFindOrder, &order, "id = ?", id)
	return order, found, err
}

// OrderItems returns the lines of an order.
func (s *Store) OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	var items []OrderItem
	if err := s.conn(ctx).Where("order_id = ?", orderID).Order("id").Find(&items).Error; err != nil {
		return nil, s.fail(opOrderItems, "query_failed", err, zap.Int64("order_id", orderID))
	}
	return items, nil
}

// RecordPayment stores the transaction id and payment date of an order.
func (s *Store) RecordPayment(ctx context.Context, orderID int64, transactionID string, paidAt time.Time) error {
	updates := map[string]any{
		"transaction_id": transactionID,
		"date_paid":      paidAt.UTC(),
	}
	if err := s.conn(ctx).Model(&Order{}).Where("id = ?", orderID).Updates(updates).Error; err != nil {
		return s.fail(opRecordPayment, "update_failed", err, zap.Int64("order_id", orderID))
	}
	return nil
}
