package connector

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (f *fixture) customers() *CustomerController {
	return NewCustomerController(f.tx, f.options, zap.NewNop())
}

func TestCustomerPullAppendsGuestsAfterRegisteredCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&storefront.Customer{ID: 1, Email: "ada@example.com", CreatedAt: f.clock.Now()}).Error)
	require.NoError(t, f.db.Create(&storefront.Customer{ID: 2, Email: "bob@example.com", CreatedAt: f.clock.Now()}).Error)
	f.seedOrder(t, storefront.Order{ID: 10, CustomerID: 1})
	f.seedOrder(t, storefront.Order{ID: 11, BillingEmail: "guest@example.com", BillingCountry: "DE"})
	f.seedOrder(t, storefront.Order{ID: 12, BillingEmail: "other@example.com"})

	customers, err := f.customers().Pull(ctx, 3)
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, "1", customers[0].ID.Endpoint)
	assert.Equal(t, "2", customers[1].ID.Endpoint)
	assert.Equal(t, "guest_11", customers[2].ID.Endpoint)
	assert.True(t, customers[2].IsGuest)
	assert.Equal(t, "guest@example.com", customers[2].Email)
	assert.Equal(t, "DE", customers[2].CountryISO)

	total, err := f.customers().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	f.link(t, KindCustomer, 500, "guest_11")
	f.link(t, KindCustomer, 501, "1")
	total, err = f.customers().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestCustomerPushMatchesRegisteredCustomerByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&storefront.Customer{ID: 7, Email: "Ada@Example.com", CreatedAt: f.clock.Now()}).Error)

	pushed, err := f.customers().Push(ctx, newTestBatch(t), Customer{
		ID:        Identity{Host: 90},
		Email:     "ada@example.com",
		FirstName: "Ada",
		City:      "London",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", pushed.ID.Endpoint)
	assert.False(t, pushed.IsGuest)

	record, found, err := f.tx.Stores().Storefront.FindCustomer(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ada", record.FirstName)
	assert.Equal(t, "London", record.City)

	created, err := f.customers().Push(ctx, newTestBatch(t), Customer{ID: Identity{Host: 91}, Email: "new@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, "7", created.ID.Endpoint)
	assert.NotEmpty(t, created.ID.Endpoint)
}

func TestCustomerPushLinksGuestToItsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, storefront.Order{ID: 11})

	pushed, err := f.customers().Push(ctx, newTestBatch(t), Customer{ID: Identity{Endpoint: "guest_11", Host: 300}})
	require.NoError(t, err)
	assert.True(t, pushed.IsGuest)

	endpoint, found, err := f.tx.Stores().Links.LookupEndpoint(ctx, guestScope, 300)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guest_11", endpoint)

	_, err = f.customers().Delete(ctx, newTestBatch(t), pushed)
	require.NoError(t, err)
	_, found, err = f.tx.Stores().Links.LookupEndpoint(ctx, guestScope, 300)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCustomerPushOfUnknownGuestIsSoftFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, storefront.Order{ID: 12, CustomerID: 4})
	batch := newTestBatch(t)

	for _, endpoint := range []string{"guest_99", "guest_12"} {
		entity := Customer{ID: Identity{Endpoint: endpoint, Host: 301}}
		pushed, err := f.customers().Push(ctx, batch, entity)
		require.NoError(t, err)
		assert.Equal(t, entity, pushed)
	}
	failures := batch.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, KindCustomerOrder, failures[0].Reference)
	assert.Equal(t, "99", failures[0].Missing.Endpoint)
}

func TestCustomerPushRejectsMalformedGuestID(t *testing.T) {
	f := newFixture(t)

	_, err := f.customers().Push(context.Background(), newTestBatch(t), Customer{ID: Identity{Endpoint: "guest_x", Host: 1}})
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
}

func TestCustomerDeleteRemovesRegisteredCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&storefront.Customer{ID: 3, Email: "c@example.com", CreatedAt: f.clock.Now()}).Error)
	f.link(t, KindCustomer, 40, "3")

	_, err := f.customers().Delete(ctx, newTestBatch(t), Customer{ID: Identity{Host: 40}})
	require.NoError(t, err)

	_, found, err := f.tx.Stores().Storefront.FindCustomer(ctx, 3)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = f.tx.Stores().Links.LookupEndpoint(ctx, registeredScope, 40)
	require.NoError(t, err)
	assert.False(t, found)
}
