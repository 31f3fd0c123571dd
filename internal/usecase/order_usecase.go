package usecase

import (
	"context"
	"errors"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderOutput struct {
	model.Order
	Payment *model.Payment `json:"payment,omitempty"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 管理者は全件、それ以外は自分の注文（新しい順）
func (u *OrderUsecase) List(ctx context.Context, actor Actor, page int, limit int) (OrderListOutput, error) {
	if actor.UserID <= 0 {
		return OrderListOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	out := OrderListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var orders []model.Order
		var err error
		if actor.IsAdmin() {
			orders, out.Total, err = r.Orders().ListAll(ctx, page, limit)
		} else {
			orders, out.Total, err = r.Orders().ListByUserID(ctx, actor.UserID, page, limit)
		}
		if err != nil {
			return internalError(err)
		}

		ids := make([]int64, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		items, err := r.OrderItems().ListByOrderIDs(ctx, ids)
		if err != nil {
			return internalError(err)
		}

		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			o.Items = items[o.ID]
			oo := OrderOutput{Order: o}
			p, err := r.Payments().FindByOrderID(ctx, o.ID)
			switch {
			case err == nil:
				oo.Payment = &p
			case errors.Is(err, repo.ErrNotFound):
			default:
				return internalError(err)
			}
			out.Items = append(out.Items, oo)
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// 持ち主か管理者でなければForbidden
func (u *OrderUsecase) Get(ctx context.Context, actor Actor, orderID int64) (OrderOutput, error) {
	if actor.UserID <= 0 {
		return OrderOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewAppError(KindValidation, "invalid order id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "order not found")
		}
		if err != nil {
			return internalError(err)
		}
		if !actor.CanAccess(o.UserID) {
			return NewAppError(KindForbidden, "forbidden")
		}

		out, err = loadOrder(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 明細と支払いを付ける
func loadOrder(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, internalError(err)
	}
	o.Items = items

	out := OrderOutput{Order: o}
	p, err := r.Payments().FindByOrderID(ctx, o.ID)
	switch {
	case err == nil:
		out.Payment = &p
	case errors.Is(err, repo.ErrNotFound):
	default:
		return OrderOutput{}, internalError(err)
	}
	return out, nil
}
