package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *Store, stock int64) model.Product {
	t.Helper()
	var p model.Product
	err := s.WithinTx(context.Background(), func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().Create(context.Background(), model.Product{
			Name:     "Widget",
			Price:    decimal.RequireFromString("10.00"),
			Stock:    stock,
			IsActive: true,
		})
		return err
	})
	require.NoError(t, err)
	return p
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	s := NewStore()
	p := seedProduct(t, s, 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 3)
		require.NoError(t, err)
		require.True(t, ok)
		if _, err := r.Orders().Create(ctx, model.Order{UserID: 1, Status: model.OrderStatusPending}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
		got, err := r.Products().FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Stock)

		_, total, err := r.Orders().ListAll(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
		return nil
	})
}

func TestDecreaseStockIfEnough_ConcurrentNeverNegative(t *testing.T) {
	s := NewStore()
	p := seedProduct(t, s, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
				ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 1)
				if err != nil || !ok {
					return err
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
		got, _ := r.Products().FindByID(ctx, p.ID)
		assert.Equal(t, int64(0), got.Stock)
		return nil
	})
}

func TestCart_OneActivePerUserAndUpsert(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
		c1, err := r.Carts().GetOrCreateActiveByUserID(ctx, 7)
		require.NoError(t, err)
		c2, err := r.Carts().GetOrCreateActiveByUserID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, c1.ID, c2.ID)

		_, err = r.CartItems().UpsertQuantity(ctx, c1.ID, 3, 2)
		require.NoError(t, err)
		_, err = r.CartItems().UpsertQuantity(ctx, c1.ID, 3, 5)
		require.NoError(t, err)

		items, err := r.CartItems().ListByCartID(ctx, c1.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(5), items[0].Quantity)

		require.NoError(t, r.Carts().Deactivate(ctx, c1.ID))
		assert.ErrorIs(t, r.Carts().Deactivate(ctx, c1.ID), repo.ErrConflict)

		c3, err := r.Carts().GetOrCreateActiveByUserID(ctx, 7)
		require.NoError(t, err)
		assert.NotEqual(t, c1.ID, c3.ID)
		return nil
	})
}

func TestPayment_TransactionIDUniqueAndConditional(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
		p1, err := r.Payments().Create(ctx, model.Payment{OrderID: 1, Status: model.PaymentStatusInitiated})
		require.NoError(t, err)
		p2, err := r.Payments().Create(ctx, model.Payment{OrderID: 2, Status: model.PaymentStatusInitiated})
		require.NoError(t, err)

		_, err = r.Payments().Create(ctx, model.Payment{OrderID: 1})
		assert.ErrorIs(t, err, repo.ErrConflict)

		require.NoError(t, r.Payments().AttachTransactionID(ctx, p1.ID, "pi_1"))
		assert.ErrorIs(t, r.Payments().AttachTransactionID(ctx, p1.ID, "pi_x"), repo.ErrConflict)
		assert.ErrorIs(t, r.Payments().AttachTransactionID(ctx, p2.ID, "pi_1"), repo.ErrConflict)

		got, err := r.Payments().FindByTransactionIDForUpdate(ctx, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, p1.ID, got.ID)

		require.NoError(t, r.Payments().UpdateStatus(ctx, p1.ID, model.PaymentStatusInitiated, model.PaymentStatusSuccessful))
		assert.ErrorIs(t, r.Payments().UpdateStatus(ctx, p1.ID, model.PaymentStatusInitiated, model.PaymentStatusFailed), repo.ErrConflict)
		return nil
	})
}
