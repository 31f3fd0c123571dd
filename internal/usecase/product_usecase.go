package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	tx repo.TransactionManager
}

// DI
func NewProductUsecase(tx repo.TransactionManager) *ProductUsecase {
	return &ProductUsecase{tx: tx}
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// 公開商品の一覧（検索・絞り込みはしない）
func (u *ProductUsecase) List(ctx context.Context, page int, limit int) (ProductListOutput, error) {
	if page < 1 {
		return ProductListOutput{}, NewAppError(KindValidation, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return ProductListOutput{}, NewAppError(KindValidation, "invalid limit")
	}

	out := ProductListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		out.Items, out.Total, err = r.Products().List(ctx, page, limit)
		if err != nil {
			return internalError(err)
		}
		return nil
	})
	if err != nil {
		return ProductListOutput{}, err
	}
	return out, nil
}

func (u *ProductUsecase) Get(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewAppError(KindValidation, "invalid product id")
	}

	var p model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return NewAppError(KindNotFound, "not found")
		}
		if err != nil {
			return internalError(err)
		}
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

type AdminProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
}

func (u *ProductUsecase) AdminCreate(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if err := checkProductInput(in); err != nil {
		return model.Product{}, err
	}

	var created model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		created, err = r.Products().Create(ctx, model.Product{
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
			IsActive:    in.IsActive,
		})
		if err != nil {
			return internalError(err)
		}
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return created, nil
}

// 在庫はAdminSetStockでだけ変える
func (u *ProductUsecase) AdminUpdate(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) error {
	if adminUserID <= 0 {
		return NewAppError(KindUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewAppError(KindValidation, "invalid product id")
	}
	if err := checkProductInput(in); err != nil {
		return err
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		err := r.Products().Update(ctx, model.Product{
			ID:          productID,
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price,
			IsActive:    in.IsActive,
		})
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "not found")
		}
		if err != nil {
			return internalError(err)
		}
		return nil
	})
}

func (u *ProductUsecase) AdminDelete(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewAppError(KindUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewAppError(KindValidation, "invalid product id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		err := r.Products().SoftDelete(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "not found")
		}
		if err != nil {
			return internalError(err)
		}
		return nil
	})
}

// 在庫の上書き＋調整履歴＋監査ログを1トランザクションで
func (u *ProductUsecase) AdminSetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) error {
	if adminUserID <= 0 {
		return NewAppError(KindUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewAppError(KindValidation, "invalid product id")
	}
	if newStock < 0 {
		return NewAppError(KindValidation, "stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewAppError(KindValidation, "reason required")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "not found")
		}
		if err != nil {
			return internalError(err)
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewAppError(KindNotFound, "not found")
			}
			return internalError(err)
		}

		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       newStock - p.Stock,
			Reason:      reason,
		}); err != nil {
			return internalError(err)
		}

		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, p.Stock),
			AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
		}); err != nil {
			return internalError(err)
		}
		return nil
	})
}

func checkProductInput(in AdminProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return NewAppError(KindValidation, "name required")
	}
	if in.Price.IsNegative() {
		return NewAppError(KindValidation, "price must be >= 0")
	}
	if in.Stock < 0 {
		return NewAppError(KindValidation, "stock must be >= 0")
	}
	return nil
}
