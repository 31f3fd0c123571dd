package usecase_test

import (
	"sync"
	"testing"

	"fulfillment/internal/infra/memory"
	repo "fulfillment/internal/repository"
	"fulfillment/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryLedger_ConcurrentReservations(t *testing.T) {
	s := memory.NewStore()
	p := addProduct(t, s, "A", "1.00", 50)
	ledger := usecase.NewInventoryLedger()

	qtys := []int64{7, 3, 9, 4, 8, 6, 5, 2, 10, 1, 7, 3}
	var mu sync.Mutex
	var reserved int64
	var wg sync.WaitGroup
	for _, q := range qtys {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			err := s.WithinTx(ctx, func(r repo.TxRepos) error {
				return ledger.Reserve(ctx, r, p.ID, q)
			})
			if err == nil {
				mu.Lock()
				reserved += q
				mu.Unlock()
				return
			}
			assert.Equal(t, usecase.KindInsufficientStock, usecase.KindOf(err))
		}(q)
	}
	wg.Wait()

	stock := stockOf(t, s, p.ID)
	assert.Equal(t, int64(50)-reserved, stock)
	assert.GreaterOrEqual(t, stock, int64(0))
}

func TestInventoryLedger_ReserveAndRelease(t *testing.T) {
	s := memory.NewStore()
	p := addProduct(t, s, "A", "1.00", 2)
	ledger := usecase.NewInventoryLedger()

	err := s.WithinTx(ctx, func(r repo.TxRepos) error { return ledger.Reserve(ctx, r, p.ID, 3) })
	requireKind(t, err, usecase.KindInsufficientStock)
	ae, _ := usecase.AsAppError(err)
	assert.Equal(t, p.ID, ae.ProductID)
	assert.Equal(t, int64(2), stockOf(t, s, p.ID))

	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error { return ledger.Reserve(ctx, r, p.ID, 2) }))
	assert.Equal(t, int64(0), stockOf(t, s, p.ID))

	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error { return ledger.Release(ctx, r, p.ID, 1) }))
	assert.Equal(t, int64(1), stockOf(t, s, p.ID))

	err = s.WithinTx(ctx, func(r repo.TxRepos) error { return ledger.Reserve(ctx, r, p.ID, 0) })
	requireKind(t, err, usecase.KindValidation)

	err = s.WithinTx(ctx, func(r repo.TxRepos) error { return ledger.Release(ctx, r, 404, 1) })
	requireKind(t, err, usecase.KindNotFound)
}
