package usecase_test

import (
	"testing"

	"fulfillment/internal/domain/model"
	"fulfillment/internal/infra/memory"
	"fulfillment/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderUsecase_GetAuthorization(t *testing.T) {
	s, out, _ := checkedOut(t)
	uc := usecase.NewOrderUsecase(s)

	got, err := uc.Get(ctx, usecase.Actor{UserID: 1, Role: model.RoleUser}, out.Order.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	require.NotNil(t, got.Payment)
	assert.Equal(t, out.Payment.ID, got.Payment.ID)

	_, err = uc.Get(ctx, usecase.Actor{UserID: 2, Role: model.RoleUser}, out.Order.ID)
	requireKind(t, err, usecase.KindForbidden)

	_, err = uc.Get(ctx, usecase.Actor{UserID: 2, Role: model.RoleAdmin}, out.Order.ID)
	require.NoError(t, err)

	_, err = uc.Get(ctx, usecase.Actor{UserID: 1, Role: model.RoleUser}, 999)
	requireKind(t, err, usecase.KindNotFound)
}

func TestOrderUsecase_ListScopesByRole(t *testing.T) {
	s := memory.NewStore()
	a := addProduct(t, s, "A", "1.00", 10)
	co := newCheckout(s, newFakeGateway())
	for _, uid := range []int64{1, 2, 1} {
		putInCart(t, s, uid, a.ID, 1)
		_, err := co.Checkout(ctx, uid, usecase.CheckoutInput{})
		require.NoError(t, err)
	}
	uc := usecase.NewOrderUsecase(s)

	mine, err := uc.List(ctx, usecase.Actor{UserID: 1, Role: model.RoleUser}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)
	require.Len(t, mine.Items, 2)
	assert.Greater(t, mine.Items[0].ID, mine.Items[1].ID)

	all, err := uc.List(ctx, usecase.Actor{UserID: 9, Role: model.RoleAdmin}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
}
