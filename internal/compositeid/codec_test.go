package compositeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		prefix Prefix
		parts  []int64
		wire   string
	}{
		{prefix: PrefixGuest, parts: []int64{42}, wire: "guest_42"},
		{prefix: PrefixProductImage, parts: []int64{7, 1200}, wire: "product-image_7_1200"},
		{prefix: PrefixCategoryImage, parts: []int64{9223372036854775807, 1}, wire: "category-image_9223372036854775807_1"},
	}

	for _, tc := range cases {
		encoded, err := Encode(tc.prefix, tc.parts...)
		require.NoError(t, err)
		assert.Equal(t, tc.wire, encoded)

		prefix, parts, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, tc.prefix, prefix)
		assert.Equal(t, tc.parts, parts)
	}
}

func TestDecodeRejectsMalformedIdentifiers(t *testing.T) {
	for _, raw := range []string{
		"",
		"12",
		"vip_12",
		"guest",
		"guest_",
		"guest_1_2",
		"product-image_5",
		"product-image_5_0",
		"category-image_05_1",
		"guest_+3",
		"guest_-3",
		"guest_abc",
	} {
		_, _, err := Decode(raw)
		assert.ErrorIs(t, err, ErrMalformedIdentifier, "raw=%q", raw)
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, err := Encode(Prefix("vip"), 1)
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = Encode(PrefixProductImage, 1)
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = Encode(PrefixGuest, 0)
	assert.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestParseReturnsTypedIdentifiers(t *testing.T) {
	ids := []ID{
		GuestID{OrderID: 15},
		ProductImageID{AttachmentID: 3, ProductID: 15},
		CategoryImageID{AttachmentID: 3, CategoryID: 8},
	}
	for _, id := range ids {
		parsed, err := Parse(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}

	_, err := Parse("product-image_3")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("guest_4"))
	assert.True(t, HasPrefix("product-image_x"))
	assert.False(t, HasPrefix("44"))
	assert.False(t, HasPrefix("guest"))
}
