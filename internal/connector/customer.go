package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const (
	opCustomerPull   = "connector.customer.pull"
	opCustomerPush   = "connector.customer.push"
	opCustomerDelete = "connector.customer.delete"
	opCustomerStats  = "connector.customer.statistic"
)

var (
	registeredScope = linking.GuestScope(false)
	guestScope      = linking.GuestScope(true)
)

// CustomerController synchronizes registered customers and guests derived from orders.
type CustomerController struct {
	base
}

// NewCustomerController returns the customer controller.
func NewCustomerController(tx *Transactor, options Options, logger *zap.Logger) *CustomerController {
	return &CustomerController{base: base{kind: KindCustomer, tx: tx, options: options, logger: loggerOrNop(logger)}}
}

// Pull returns up to limit unlinked registered customers followed by unlinked guests.
func (c *CustomerController) Pull(ctx context.Context, limit int) ([]Customer, error) {
	if err := checkLimit(opCustomerPull, limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Customer{}, nil
	}
	stores := c.stores()
	records, err := stores.Storefront.UnlinkedCustomers(ctx, limit)
	if err != nil {
		return nil, err
	}
	customers := make([]Customer, 0, len(records))
	for _, record := range records {
		customers = append(customers, Customer{
			ID:         endpointIdentity(record.ID),
			Email:      record.Email,
			FirstName:  record.FirstName,
			LastName:   record.LastName,
			Company:    record.Company,
			Street:     record.Street,
			ZipCode:    record.ZipCode,
			City:       record.City,
			CountryISO: record.Country,
			Phone:      record.Phone,
			Created:    record.CreatedAt,
		})
	}

	remaining := limit - len(customers)
	if remaining <= 0 {
		return customers, nil
	}
	orders, err := stores.Storefront.UnlinkedGuestOrders(ctx, remaining)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		customers = append(customers, guestFromOrder(order))
	}
	return customers, nil
}

func guestFromOrder(order storefront.Order) Customer {
	return Customer{
		ID:         Identity{Endpoint: compositeid.GuestID{OrderID: order.ID}.String()},
		IsGuest:    true,
		Email:      order.BillingEmail,
		FirstName:  order.BillingFirstName,
		LastName:   order.BillingLastName,
		Company:    order.BillingCompany,
		Street:     order.BillingStreet,
		ZipCode:    order.BillingZipCode,
		City:       order.BillingCity,
		CountryISO: order.BillingCountry,
		Phone:      order.BillingPhone,
		Created:    order.CreatedAt,
	}
}

// guestOrder returns the order id of a guest endpoint id. ok is false for a registered customer id.
func guestOrder(endpointID string) (int64, bool, error) {
	if !compositeid.HasPrefix(endpointID) {
		return 0, false, nil
	}
	id, err := compositeid.Parse(endpointID)
	if err != nil {
		return 0, false, err
	}
	guest, isGuest := id.(compositeid.GuestID)
	if !isGuest {
		return 0, false, fmt.Errorf("%w: %q is not a customer id", compositeid.ErrMalformedIdentifier, endpointID)
	}
	return guest.OrderID, true, nil
}

// Push links a guest to the order it is derived from, or creates or updates a registered customer
// matched by endpoint id, link or e-mail.
func (c *CustomerController) Push(ctx context.Context, batch *Batch, entity Customer) (Customer, error) {
	if err := requireHost(opCustomerPush, entity.ID); err != nil {
		return entity, err
	}
	orderID, isGuest, err := guestOrder(entity.ID.Endpoint)
	if err != nil {
		return entity, newServiceError(opCustomerPush, "malformed_identifier", err)
	}
	if isGuest {
		return c.pushGuest(ctx, batch, entity, orderID)
	}

	var endpointID int64
	err = c.tx.InTx(ctx, func(tx Stores) error {
		record, err := resolveCustomer(ctx, tx, entity)
		if err != nil {
			return err
		}
		record.Email = entity.Email
		record.FirstName = entity.FirstName
		record.LastName = entity.LastName
		record.Company = entity.Company
		record.Street = entity.Street
		record.ZipCode = entity.ZipCode
		record.City = entity.City
		record.Country = entity.CountryISO
		record.Phone = entity.Phone
		if err := tx.Storefront.SaveCustomer(ctx, &record); err != nil {
			return err
		}
		endpointID = record.ID
		return tx.Links.Link(ctx, registeredScope, entity.ID.Host, formatID(record.ID))
	})
	if err != nil {
		c.logError(opCustomerPush, "write_failed", err, zap.Stringer("customer", entity.ID))
		return entity, err
	}
	entity.ID.Endpoint = formatID(endpointID)
	entity.IsGuest = false
	return entity, nil
}

func (c *CustomerController) pushGuest(ctx context.Context, batch *Batch, entity Customer, orderID int64) (Customer, error) {
	err := c.tx.InTx(ctx, func(tx Stores) error {
		order, found, err := tx.Storefront.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !found || !order.IsGuest() {
			return errReferenceMissing
		}
		return tx.Links.Link(ctx, guestScope, entity.ID.Host, entity.ID.Endpoint)
	})
	if errors.Is(err, errReferenceMissing) {
		c.softFail(batch, entity.ID, KindCustomerOrder, endpointIdentity(orderID))
		return entity, nil
	}
	if err != nil {
		c.logError(opCustomerPush, "guest_link_failed", err, zap.Stringer("customer", entity.ID))
		return entity, err
	}
	entity.IsGuest = true
	return entity, nil
}

func resolveCustomer(ctx context.Context, tx Stores, entity Customer) (storefront.Customer, error) {
	if endpointID, ok := numericEndpoint(entity.ID); ok {
		record, found, err := tx.Storefront.FindCustomer(ctx, endpointID)
		if err != nil || found {
			return record, err
		}
	}
	linked, found, err := tx.Links.LookupEndpoint(ctx, registeredScope, entity.ID.Host)
	if err != nil {
		return storefront.Customer{}, err
	}
	if endpointID, ok := numericEndpoint(Identity{Endpoint: linked}); found && ok {
		record, exists, err := tx.Storefront.FindCustomer(ctx, endpointID)
		if err != nil || exists {
			return record, err
		}
	}
	record, _, err := tx.Storefront.FindCustomerByEmail(ctx, entity.Email)
	return record, err
}

// Delete removes a registered customer and its link. Guests only lose their link.
func (c *CustomerController) Delete(ctx context.Context, _ *Batch, entity Customer) (Customer, error) {
	orderID, isGuest, err := guestOrder(entity.ID.Endpoint)
	if err != nil {
		return entity, newServiceError(opCustomerDelete, "malformed_identifier", err)
	}
	if isGuest {
		guest := compositeid.GuestID{OrderID: orderID}
		if _, err := c.stores().Links.UnlinkEndpoint(ctx, guestScope, guest.String()); err != nil {
			c.logError(opCustomerDelete, "guest_unlink_failed", err, zap.Stringer("customer", entity.ID))
			return entity, err
		}
		return entity, nil
	}

	endpointID, ok := numericEndpoint(entity.ID)
	if !ok && entity.ID.Host > 0 {
		linked, found, err := c.stores().Links.LookupEndpoint(ctx, registeredScope, entity.ID.Host)
		if err != nil {
			c.logError(opCustomerDelete, "link_lookup_failed", err, zap.Stringer("customer", entity.ID))
			return entity, err
		}
		if found {
			endpointID, ok = numericEndpoint(Identity{Endpoint: linked})
		}
	}
	if !ok {
		return entity, nil
	}
	err = c.tx.InTx(ctx, func(tx Stores) error {
		if err := tx.Storefront.DeleteCustomer(ctx, endpointID); err != nil {
			return err
		}
		_, err := tx.Links.UnlinkEndpoint(ctx, registeredScope, formatID(endpointID))
		return err
	})
	if err != nil {
		c.logError(opCustomerDelete, "delete_failed", err, zap.Stringer("customer", entity.ID))
	}
	return entity, err
}

// Stats counts unlinked registered customers and guests.
func (c *CustomerController) Stats(ctx context.Context) (int64, error) {
	stores := c.stores()
	registered, err := stores.Storefront.CountUnlinkedCustomers(ctx)
	if err != nil {
		c.logError(opCustomerStats, "count_failed", err)
		return 0, err
	}
	guests, err := stores.Storefront.CountUnlinkedGuests(ctx)
	if err != nil {
		c.logError(opCustomerStats, "guest_count_failed", err)
		return 0, err
	}
	return registered + guests, nil
}
