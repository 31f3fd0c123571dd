package memory

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

type paymentRepo struct {
	st *state
}

// order_id と transaction_id は一意
func (r *paymentRepo) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	for _, cur := range r.st.payments {
		if cur.OrderID == p.OrderID {
			return model.Payment{}, repo.ErrConflict
		}
		if p.TransactionID != nil && cur.TransactionID != nil && *cur.TransactionID == *p.TransactionID {
			return model.Payment{}, repo.ErrConflict
		}
	}

	now := time.Now()
	p.ID = r.st.nextID("payments")
	p.CreatedAt = now
	p.UpdatedAt = now
	r.st.payments[p.ID] = p
	return p, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	p, ok := r.st.payments[paymentID]
	if !ok {
		return model.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	for _, p := range r.st.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (r *paymentRepo) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (model.Payment, error) {
	for _, p := range r.st.payments {
		if p.TransactionID != nil && *p.TransactionID == transactionID {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (r *paymentRepo) AttachTransactionID(ctx context.Context, paymentID int64, transactionID string) error {
	p, ok := r.st.payments[paymentID]
	if !ok || p.TransactionID != nil {
		return repo.ErrConflict
	}
	for _, cur := range r.st.payments {
		if cur.TransactionID != nil && *cur.TransactionID == transactionID {
			return repo.ErrConflict
		}
	}

	id := transactionID
	p.TransactionID = &id
	p.UpdatedAt = time.Now()
	r.st.payments[paymentID] = p
	return nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus) error {
	p, ok := r.st.payments[paymentID]
	if !ok || p.Status != from {
		return repo.ErrConflict
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	r.st.payments[paymentID] = p
	return nil
}

func (r *paymentRepo) ListMissingTransactionID(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	items := []model.Payment{}
	for _, id := range sortedKeys(r.st.payments) {
		p := r.st.payments[id]
		if p.Status == model.PaymentStatusInitiated && p.TransactionID == nil && p.CreatedAt.Before(before) {
			items = append(items, p)
		}
		if len(items) == limit {
			break
		}
	}
	return items, nil
}
