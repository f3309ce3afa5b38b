package storefront

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opUnlinkedCustomers = "storefront.unlinked_customers"
	opUnlinkedGuests    = "storefront.unlinked_guests"
	opFindCustomer      = "storefront.find_customer"
	opSaveCustomer      = "storefront.save_customer"
	opDeleteCustomer    = "storefront.delete_customer"
)

var (
	unlinkedCustomerFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = CAST(wc_customers.id AS TEXT) AND l.is_guest = ?)",
		linking.TableName(linking.TypeCustomer))
	unlinkedGuestFilter = fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s l WHERE l.endpoint_id = CAST(? AS TEXT) || CAST(wc_orders.id AS TEXT) AND l.is_guest = ?)",
		linking.TableName(linking.TypeCustomer))
)

func (s *Store) unlinkedCustomers(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&Customer{}).Where(unlinkedCustomerFilter, false)
}

func (s *Store) unlinkedGuests(ctx context.Context) *gorm.DB {
	return s.conn(ctx).
		Model(&Order{}).
		Where("customer_id = 0").
		Where(unlinkedGuestFilter, string(compositeid.PrefixGuest)+compositeid.Delimiter, true)
}

// UnlinkedCustomers returns up to limit registered customers without a link.
func (s *Store) UnlinkedCustomers(ctx context.Context, limit int) ([]Customer, error) {
	var customers []Customer
	if err := limitOrAll(s.unlinkedCustomers(ctx).Order("id"), limit).Find(&customers).Error; err != nil {
		return nil, s.fail(opUnlinkedCustomers, "query_failed", err)
	}
	return customers, nil
}

// CountUnlinkedCustomers counts registered customers without a link.
func (s *Store) CountUnlinkedCustomers(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedCustomers(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedCustomers, "count_failed", err)
	}
	return total, nil
}

// UnlinkedGuestOrders returns up to limit guest orders whose derived guest customer has no link.
func (s *Store) UnlinkedGuestOrders(ctx context.Context, limit int) ([]Order, error) {
	var orders []Order
	if err := limitOrAll(s.unlinkedGuests(ctx).Order("id"), limit).Find(&orders).Error; err != nil {
		return nil, s.fail(opUnlinkedGuests, "query_failed", err)
	}
	return orders, nil
}

// CountUnlinkedGuests counts guest orders whose derived guest customer has no link.
func (s *Store) CountUnlinkedGuests(ctx context.Context) (int64, error) {
	var total int64
	if err := s.unlinkedGuests(ctx).Count(&total).Error; err != nil {
		return 0, s.fail(opUnlinkedGuests, "count_failed", err)
	}
	return total, nil
}

// FindCustomer loads a registered customer by id.
func (s *Store) FindCustomer(ctx context.Context, id int64) (Customer, bool, error) {
	var customer Customer
	if id <= 0 {
		return customer, false, nil
	}
	found, err := s.first(ctx, opFindCustomer, &customer, "id = ?", id)
	return customer, found, err
}

// FindCustomerByEmail loads the first registered customer with email. An empty email never matches.
func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (Customer, bool, error) {
	var customer Customer
	if email == "" {
		return customer, false, nil
	}
	var matches []Customer
	if err := s.conn(ctx).Where("LOWER(email) = LOWER(?)", email).Order("id").Limit(1).Find(&matches).Error; err != nil {
		return customer, false, s.fail(opFindCustomer, "select_failed", err)
	}
	if len(matches) == 0 {
		return customer, false, nil
	}
	return matches[0], true, nil
}

// SaveCustomer inserts a customer without id or updates an existing one.
func (s *Store) SaveCustomer(ctx context.Context, customer *Customer) error {
	if customer.ID == 0 {
		if customer.CreatedAt.IsZero() {
			customer.CreatedAt = s.now()
		}
		if err := s.conn(ctx).Create(customer).Error; err != nil {
			return s.fail(opSaveCustomer, "insert_failed", err)
		}
		return nil
	}
	if err := s.conn(ctx).Save(customer).Error; err != nil {
		return s.fail(opSaveCustomer, "update_failed", err, zap.Int64("customer_id", customer.ID))
	}
	return nil
}

// DeleteCustomer removes a registered customer. Orders keep their customer id.
func (s *Store) DeleteCustomer(ctx context.Context, customerID int64) error {
	if err := s.conn(ctx).Where("id = ?", customerID).Delete(&Customer{}).Error; err != nil {
		return s.fail(opDeleteCustomer, "delete_failed", err, zap.Int64("customer_id", customerID))
	}
	return nil
}
