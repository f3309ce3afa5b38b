package connector

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (f *fixture) prices() *ProductPriceController {
	return NewProductPriceController(f.tx, f.options, zap.NewNop())
}

func (f *fixture) stockLevels() *ProductStockLevelController {
	return NewProductStockLevelController(f.tx, f.options, zap.NewNop())
}

func TestGrossPrice(t *testing.T) {
	cases := []struct {
		net, rate, want string
		places          int32
	}{
		{net: "10", rate: "19", want: "11.9", places: 2},
		{net: "8.40", rate: "7", want: "8.99", places: 2},
		{net: "10", rate: "0", want: "10", places: 2},
		{net: "1.2345", rate: "19", want: "1.469", places: 3},
	}
	for _, tc := range cases {
		got := grossPrice(dec(tc.net), dec(tc.rate), tc.places)
		assert.True(t, dec(tc.want).Equal(got), "gross of %s at %s%%: got %s", tc.net, tc.rate, got)
	}
}

func TestPricePushStoresGrossPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&storefront.TaxRate{Rate: dec("19"), Class: "", Priority: 1}).Error)
	require.NoError(t, f.db.Create(&storefront.TaxRate{Rate: dec("7"), Class: "reduced-rate", Priority: 1}).Error)
	standard := f.seedProduct(t, storefront.Product{SKU: "STD"})
	reduced := f.seedProduct(t, storefront.Product{SKU: "RED", TaxClass: "reduced-rate"})
	f.link(t, KindProduct, 1, "1")

	pushed, err := f.prices().Push(ctx, newTestBatch(t), ProductPrice{ProductID: Identity{Host: 1}, NetPrice: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "1", pushed.ProductID.Endpoint)
	record, _ := f.findProduct(t, standard.ID)
	assert.True(t, dec("11.9").Equal(record.RegularPrice), "regular %s", record.RegularPrice)
	assert.True(t, dec("11.9").Equal(record.Price), "price %s", record.Price)

	_, err = f.prices().Push(ctx, newTestBatch(t), ProductPrice{
		ProductID:       endpointIdentity(reduced.ID),
		NetPrice:        dec("10"),
		SpecialNetPrice: decimal.NewNullDecimal(dec("5")),
	})
	require.NoError(t, err)
	record, _ = f.findProduct(t, reduced.ID)
	assert.True(t, dec("10.7").Equal(record.RegularPrice), "regular %s", record.RegularPrice)
	assert.True(t, dec("5.35").Equal(record.Price), "price %s", record.Price)
}

func TestPricePushOfVariationUpdatesParentRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.seedProduct(t, storefront.Product{SKU: "TEE", Type: storefront.ProductTypeVariable})
	small := f.seedProduct(t, storefront.Product{SKU: "TEE-S", Type: storefront.ProductTypeVariation, ParentID: parent.ID})
	large := f.seedProduct(t, storefront.Product{SKU: "TEE-L", Type: storefront.ProductTypeVariation, ParentID: parent.ID})

	for id, net := range map[int64]string{small.ID: "10", large.ID: "20"} {
		_, err := f.prices().Push(ctx, newTestBatch(t), ProductPrice{ProductID: endpointIdentity(id), NetPrice: dec(net)})
		require.NoError(t, err)
	}

	record, _ := f.findProduct(t, parent.ID)
	assert.True(t, dec("10").Equal(record.MinVariationPrice), "min %s", record.MinVariationPrice)
	assert.True(t, dec("20").Equal(record.MaxVariationPrice), "max %s", record.MaxVariationPrice)
	assert.True(t, dec("10").Equal(record.Price), "price %s", record.Price)
}

func TestPricePushReferenceHandling(t *testing.T) {
	f := newFixture(t)
	batch := newTestBatch(t)

	_, err := f.prices().Push(context.Background(), batch, ProductPrice{NetPrice: dec("1")})
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.ErrorIs(t, err, ErrMissingEndpointID)

	entity := ProductPrice{ProductID: Identity{Host: 404}, NetPrice: dec("1")}
	pushed, err := f.prices().Push(context.Background(), batch, entity)
	require.NoError(t, err)
	assert.Equal(t, entity, pushed)
	require.Len(t, batch.Failures(), 1)
	assert.Equal(t, KindProduct, batch.Failures()[0].Reference)
}

func TestStockPushDerivesStockStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	simple := f.seedProduct(t, storefront.Product{SKU: "A"})
	backorder := f.seedProduct(t, storefront.Product{SKU: "B", Backorders: storefront.BackordersNotify})
	parent := f.seedProduct(t, storefront.Product{SKU: "V", Type: storefront.ProductTypeVariable, StockStatus: storefront.StockOutOfStock})
	variation := f.seedProduct(t, storefront.Product{SKU: "V-1", Type: storefront.ProductTypeVariation, ParentID: parent.ID, StockStatus: storefront.StockOutOfStock})

	push := func(id int64, level string) {
		t.Helper()
		_, err := f.stockLevels().Push(ctx, newTestBatch(t), ProductStockLevel{ProductID: endpointIdentity(id), StockLevel: dec(level)})
		require.NoError(t, err)
	}
	push(simple.ID, "0")
	push(backorder.ID, "-2")
	push(variation.ID, "3")
	push(parent.ID, "9")

	record, _ := f.findProduct(t, simple.ID)
	assert.True(t, record.ManageStock)
	assert.Equal(t, storefront.StockOutOfStock, record.StockStatus)

	record, _ = f.findProduct(t, backorder.ID)
	assert.Equal(t, storefront.StockOnBackorder, record.StockStatus)
	assert.True(t, dec("-2").Equal(record.StockQuantity))

	record, _ = f.findProduct(t, variation.ID)
	assert.Equal(t, storefront.StockInStock, record.StockStatus)

	record, _ = f.findProduct(t, parent.ID)
	assert.Equal(t, storefront.StockInStock, record.StockStatus)
	assert.True(t, dec("9").Equal(record.StockQuantity))
}

func TestStockPushIsIgnoredWithoutStockManagement(t *testing.T) {
	f := newFixture(t)
	f.options.ManageStock = false
	product := f.seedProduct(t, storefront.Product{SKU: "A"})

	_, err := f.stockLevels().Push(context.Background(), newTestBatch(t), ProductStockLevel{ProductID: endpointIdentity(product.ID), StockLevel: dec("0")})
	require.NoError(t, err)

	record, _ := f.findProduct(t, product.ID)
	assert.False(t, record.ManageStock)
	assert.Equal(t, storefront.StockInStock, record.StockStatus)
}

func TestPriceAndStockOnlySupportPush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.prices().Pull(ctx, 1)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	_, err = f.prices().Stats(ctx)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	_, err = f.stockLevels().Delete(ctx, newTestBatch(t), ProductStockLevel{})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}
