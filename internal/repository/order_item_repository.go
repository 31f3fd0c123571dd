package repository

import (
	"context"

	"fulfillment/internal/domain/model"
)

// 注文明細は作成後に変更しない（価格・商品名はスナップショット）
type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)

	// 一覧表示用。注文idごとにまとめて返す
	ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error)
}
