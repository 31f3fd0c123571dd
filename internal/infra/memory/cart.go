package memory

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

// carts と cart_items の両方を扱う
type cartRepo struct {
	st *state
}

func (r *cartRepo) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if c, err := r.FindActiveByUserID(ctx, userID); err == nil {
		return c, nil
	}

	now := time.Now()
	c := model.Cart{
		ID:        r.st.nextID("carts"),
		UserID:    userID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.st.carts[c.ID] = c
	return c, nil
}

func (r *cartRepo) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	for _, id := range sortedKeys(r.st.carts) {
		c := r.st.carts[id]
		if c.UserID == userID && c.IsActive {
			return c, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

// ロックはWithinTxが持っている
func (r *cartRepo) FindActiveByUserIDForUpdate(ctx context.Context, userID int64) (model.Cart, error) {
	return r.FindActiveByUserID(ctx, userID)
}

func (r *cartRepo) Deactivate(ctx context.Context, cartID int64) error {
	c, ok := r.st.carts[cartID]
	if !ok || !c.IsActive {
		return repo.ErrConflict
	}
	c.IsActive = false
	c.UpdatedAt = time.Now()
	r.st.carts[cartID] = c
	return nil
}

func (r *cartRepo) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	items := []model.CartItem{}
	for _, id := range sortedKeys(r.st.cartItems) {
		if it := r.st.cartItems[id]; it.CartID == cartID {
			items = append(items, it)
		}
	}
	return items, nil
}

func (r *cartRepo) UpsertQuantity(ctx context.Context, cartID int64, productID int64, qty int64) (model.CartItem, error) {
	now := time.Now()
	for id, it := range r.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			it.Quantity = qty
			it.UpdatedAt = now
			r.st.cartItems[id] = it
			return it, nil
		}
	}

	it := model.CartItem{
		ID:        r.st.nextID("cart_items"),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.st.cartItems[it.ID] = it
	return it, nil
}

func (r *cartRepo) DeleteByCartAndProduct(ctx context.Context, cartID int64, productID int64) error {
	for id, it := range r.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			delete(r.st.cartItems, id)
			return nil
		}
	}
	return repo.ErrNotFound
}
