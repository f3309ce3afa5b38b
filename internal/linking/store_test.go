package linking

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "links.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))

	store, err := NewStore(StoreConfig{Database: db})
	require.NoError(t, err)
	return store
}

func TestLinkRoundTripForEveryNumericType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for index, linkType := range Types() {
		if !NumericEndpoint(linkType) {
			continue
		}
		scope := ScopeOf(linkType)
		hostID := int64(100 + index)
		endpointID := "42"

		require.NoError(t, store.Link(ctx, scope, hostID, endpointID), "type %s", linkType)

		gotEndpoint, found, err := store.LookupEndpoint(ctx, scope, hostID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, endpointID, gotEndpoint)

		gotHost, found, err := store.LookupHost(ctx, scope, endpointID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, hostID, gotHost)
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scope := ScopeOf(TypeProduct)

	require.NoError(t, store.Link(ctx, scope, 7, "15"))
	require.NoError(t, store.Link(ctx, scope, 7, " 15 "))

	total, err := store.Count(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestLinkRejectsConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scope := ScopeOf(TypeCategory)

	require.NoError(t, store.Link(ctx, scope, 7, "15"))

	err := store.Link(ctx, scope, 7, "16")
	require.ErrorIs(t, err, ErrConflict)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "15", conflict.ExistingEndpointID)

	err = store.Link(ctx, scope, 8, "15")
	require.ErrorIs(t, err, ErrConflict)
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(7), conflict.ExistingHostID)

	endpointID, found, err := store.LookupEndpoint(ctx, scope, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "15", endpointID, "existing link must not be overwritten")
}

func TestCustomerLinksArePartitionedByGuestFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Link(ctx, GuestScope(false), 10, "5"))
	require.NoError(t, store.Link(ctx, GuestScope(true), 11, "guest_5"))

	_, found, err := store.LookupEndpoint(ctx, GuestScope(true), 10)
	require.NoError(t, err)
	assert.False(t, found)

	endpointID, found, err := store.LookupEndpoint(ctx, GuestScope(true), 11)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guest_5", endpointID)

	hostID, found, err := store.LookupHost(ctx, GuestScope(false), "5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), hostID)
}

func TestImageLinksArePartitionedByRelation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Link(ctx, ImageScope(RelationProduct), 3, "product-image_9_1"))
	require.NoError(t, store.Link(ctx, ImageScope(RelationCategory), 3, "category-image_9_4"))

	productImage, found, err := store.LookupEndpoint(ctx, ImageScope(RelationProduct), 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "product-image_9_1", productImage)

	categoryImage, found, err := store.LookupEndpoint(ctx, ImageScope(RelationCategory), 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "category-image_9_4", categoryImage)
}

func TestDiscriminatorIsRequiredAndExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.LookupEndpoint(ctx, ScopeOf(TypeCustomer), 1)
	assert.ErrorIs(t, err, ErrMissingDiscriminator)

	_, _, err = store.LookupHost(ctx, ScopeOf(TypeImage), "product-image_1_2")
	assert.ErrorIs(t, err, ErrMissingDiscriminator)

	_, _, err = store.LookupEndpoint(ctx, ImageScope(RelationType("banner")), 1)
	assert.ErrorIs(t, err, ErrUnexpectedDiscriminator)

	_, _, err = store.LookupEndpoint(ctx, Scope{linkType: TypeProduct, relation: RelationProduct}, 1)
	assert.ErrorIs(t, err, ErrUnexpectedDiscriminator)

	_, _, err = store.LookupEndpoint(ctx, ScopeOf(LinkType("manufacturer")), 1)
	assert.ErrorIs(t, err, ErrUnknownLinkType)
}

func TestInvalidIdentifiersAreRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Link(ctx, ScopeOf(TypeProduct), 0, "1"), ErrInvalidHostID)
	assert.ErrorIs(t, store.Link(ctx, ScopeOf(TypeProduct), 1, "abc"), ErrInvalidEndpointID)
	assert.ErrorIs(t, store.Link(ctx, ScopeOf(TypeProduct), 1, ""), ErrInvalidEndpointID)
	assert.ErrorIs(t, store.Link(ctx, GuestScope(true), 1, "  "), ErrInvalidEndpointID)
}

func TestUnlinkRemovesOnlyTheScopedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Link(ctx, GuestScope(false), 20, "8"))
	require.NoError(t, store.Link(ctx, GuestScope(true), 20, "guest_8"))

	removed, err := store.UnlinkHost(ctx, GuestScope(true), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, found, err := store.LookupEndpoint(ctx, GuestScope(false), 20)
	require.NoError(t, err)
	assert.True(t, found)

	removed, err = store.UnlinkEndpoint(ctx, GuestScope(false), "8")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.UnlinkEndpoint(ctx, GuestScope(false), "8")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestStoreFailuresAreTransient(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	store, err := NewStore(StoreConfig{Database: db})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "endpoint_id" FROM "link_product"`)).
		WillReturnError(errors.New("connection reset by peer"))

	_, _, err = store.LookupEndpoint(context.Background(), ScopeOf(TypeProduct), 5)
	require.Error(t, err)
	assert.True(t, storeerr.IsTransient(err))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM link_customer WHERE endpoint_id = $1 AND is_guest = $2`)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err = store.UnlinkEndpoint(context.Background(), GuestScope(true), "guest_3")
	require.Error(t, err)
	assert.True(t, storeerr.IsTransient(err))

	require.NoError(t, mock.ExpectationsWereMet())
}
