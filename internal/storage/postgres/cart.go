package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

const removeCartProductsSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`

var _ order.CartStore = (*CartStore)(nil)

// CartStore implements order.CartStore.
type CartStore struct {
	q DBTX
}

func (s *CartStore) RemoveProducts(ctx context.Context, userID int64, productIDs []int64) error {
	if _, err := s.q.Exec(ctx, removeCartProductsSQL, userID, productIDs); err != nil {
		return errors.Wrap(err, "remove cart items")
	}
	return nil
}
