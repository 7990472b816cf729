package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oralcare-shop/internal/domain/product"
)

func TestQuote(t *testing.T) {
	products := []product.Product{
		{ID: 1, Name: "Soft toothbrush", BasePrice: 10000, SalePrice: ptr[int64](8000), Stock: 5, Active: true},
		{ID: 2, Name: "Floss", BasePrice: 3000, Stock: 0, Active: true},
	}
	options := []product.Option{
		{ID: 11, ProductID: 1, Label: "Family pack", PriceAdjustment: 1000, Stock: 2, Active: true},
	}

	t.Run("prices without touching stock", func(t *testing.T) {
		snaps, err := Quote(products, options, []Request{
			{ProductID: 1, Quantity: 2},
			{ProductID: 1, OptionID: ptr[int64](11), Quantity: 1},
		}, true)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, int64(5600), snaps[0].UnitPrice)
		assert.Equal(t, int64(6300), snaps[1].UnitPrice)
		assert.Equal(t, "Family pack", snaps[1].OptionLabel)
		assert.Equal(t, 5, products[0].Stock)
	})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "unknown product", req: Request{ProductID: 9, Quantity: 1}, want: ErrNotFound},
		{name: "sold out", req: Request{ProductID: 2, Quantity: 1}, want: ErrOutOfStock},
		{name: "option of another product", req: Request{ProductID: 2, OptionID: ptr[int64](11), Quantity: 1}, want: ErrNotFound},
		{name: "option short", req: Request{ProductID: 1, OptionID: ptr[int64](11), Quantity: 3}, want: ErrOutOfStock},
		{name: "zero quantity", req: Request{ProductID: 1}, want: ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Quote(products, options, []Request{tt.req}, false)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
