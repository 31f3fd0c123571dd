package repository

import (
	"context"

	"fulfillment/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)

	// 行ロック付きで取得（チェックアウトの直列化）
	FindActiveByUserIDForUpdate(ctx context.Context, userID int64) (model.Cart, error)

	// is_active=trueのときだけ非アクティブにする。既に非アクティブならErrConflict
	Deactivate(ctx context.Context, cartID int64) error
}
