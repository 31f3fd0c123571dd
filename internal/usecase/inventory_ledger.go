package usecase

import (
	"context"
	"errors"

	repo "fulfillment/internal/repository"
)

// 在庫の確保と戻し。
// 呼び出し元のトランザクション内でだけ使う。失敗したら呼び出し元ごとロールバックされる。
type InventoryLedger struct{}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

// 在庫をqty減らす。足りなければInsufficientStock
// 判定と減算は条件付きUPDATE 1文で行う（先に読んだ値は使わない）
func (l *InventoryLedger) Reserve(ctx context.Context, r repo.TxRepos, productID int64, qty int64) error {
	if qty <= 0 {
		return NewAppError(KindValidation, "quantity must be positive")
	}

	ok, err := r.Inventory().DecreaseStockIfEnough(ctx, productID, qty)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		return productError(KindInsufficientStock, productID, "insufficient stock for product %d")
	}
	return nil
}

// 在庫を戻す
func (l *InventoryLedger) Release(ctx context.Context, r repo.TxRepos, productID int64, qty int64) error {
	if qty <= 0 {
		return NewAppError(KindValidation, "quantity must be positive")
	}

	err := r.Inventory().IncreaseStock(ctx, productID, qty)
	if errors.Is(err, repo.ErrNotFound) {
		return productError(KindNotFound, productID, "product %d not found")
	}
	if err != nil {
		return internalError(err)
	}
	return nil
}
