package repository

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (model.Payment, error)
	FindByID(ctx context.Context, paymentID int64) (model.Payment, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)

	// Webhook用。intent idで行ロックして取得
	FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (model.Payment, error)

	// transaction_idが未設定のときだけ保存する
	AttachTransactionID(ctx context.Context, paymentID int64, transactionID string) error

	// fromのときだけtoに変える。一致しなければErrConflict
	UpdateStatus(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus) error

	// intent idが付いていないinitiatedの支払い（before以前に作成）
	ListMissingTransactionID(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}
