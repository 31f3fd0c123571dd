package repository

import (
	"context"

	"fulfillment/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)

	// 同一商品は数量を上書き
	UpsertQuantity(ctx context.Context, cartID int64, productID int64, qty int64) (model.CartItem, error)
	DeleteByCartAndProduct(ctx context.Context, cartID int64, productID int64) error
}
