package checksum

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "checksums.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Record{}))

	store, err := NewStore(StoreConfig{Database: db})
	require.NoError(t, err)
	return store
}

func TestReadWriteDeleteVariationChecksum(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	value, err := store.Read(ctx, "12", TypeVariation)
	require.NoError(t, err)
	assert.Equal(t, "", value, "absent checksum reads as empty")

	written, err := store.Write(ctx, "12", TypeVariation, "abc")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = store.Write(ctx, "12", TypeVariation, "def")
	require.NoError(t, err)
	assert.True(t, written)

	value, err = store.Read(ctx, "12", TypeVariation)
	require.NoError(t, err)
	assert.Equal(t, "def", value)

	deleted, err := store.Delete(ctx, "12", TypeVariation)
	require.NoError(t, err)
	assert.True(t, deleted)

	value, err = store.Read(ctx, "12", TypeVariation)
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestUnsupportedTypesAreNoOps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	other := Type(2)

	written, err := store.Write(ctx, "12", other, "abc")
	require.NoError(t, err)
	assert.False(t, written)

	value, err := store.Read(ctx, "12", other)
	require.NoError(t, err)
	assert.Equal(t, "", value)

	deleted, err := store.Delete(ctx, "12", other)
	require.NoError(t, err)
	assert.False(t, deleted)

	written, err = store.Write(ctx, "", TypeVariation, "abc")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	first, err := Fingerprint(map[string]any{
		"sku":   "A-1",
		"price": "10.00",
		"attributes": map[string]any{
			"size":  "M",
			"color": "red",
		},
		"categories": []any{int64(1), int64(2)},
	})
	require.NoError(t, err)
	second, err := Fingerprint(map[string]any{
		"categories": []any{int64(1), int64(2)},
		"attributes": map[string]any{
			"color": "red",
			"size":  "M",
		},
		"price": "10.00",
		"sku":   "A-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed, err := Fingerprint(map[string]any{"sku": "A-1", "price": "10.01"})
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestFingerprintRejectsUnencodableValues(t *testing.T) {
	for name, value := range map[string]any{
		"channel":  make(chan int),
		"function": func() {},
		"nested":   map[string]any{"inner": []any{complex(1, 2)}},
	} {
		t.Run(name, func(t *testing.T) {
			fingerprint, err := Fingerprint(map[string]any{"sku": "A-1", "value": value})
			require.Error(t, err)
			assert.Empty(t, fingerprint)
		})
	}
}
