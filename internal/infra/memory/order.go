package memory

import (
	"context"
	"slices"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

type orderRepo struct {
	st *state
}

func (r *orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *orderRepo) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	return r.list(page, limit, func(o model.Order) bool { return o.UserID == userID })
}

func (r *orderRepo) ListAll(ctx context.Context, page int, limit int) ([]model.Order, int64, error) {
	return r.list(page, limit, func(model.Order) bool { return true })
}

// 新しい順
func (r *orderRepo) list(page int, limit int, match func(model.Order) bool) ([]model.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ids := sortedKeys(r.st.orders)
	slices.Reverse(ids)

	var hit []model.Order
	for _, id := range ids {
		if o := r.st.orders[id]; match(o) {
			hit = append(hit, o)
		}
	}
	return paginate(hit, page, limit), int64(len(hit)), nil
}

func (r *orderRepo) Create(ctx context.Context, order model.Order) (int64, error) {
	now := time.Now()
	order.ID = r.st.nextID("orders")
	order.Items = nil
	order.CreatedAt = now
	order.UpdatedAt = now
	r.st.orders[order.ID] = order
	return order.ID, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error {
	o, ok := r.st.orders[orderID]
	if !ok || o.Status != from {
		return repo.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.st.orders[orderID] = o
	return nil
}

type orderItemRepo struct {
	st *state
}

func (r *orderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	now := time.Now()
	for i := range items {
		items[i].ID = r.st.nextID("order_items")
		items[i].OrderID = orderID
		items[i].CreatedAt = now
		r.st.orderItems[items[i].ID] = items[i]
	}
	return nil
}

func (r *orderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	items := []model.OrderItem{}
	for _, id := range sortedKeys(r.st.orderItems) {
		if it := r.st.orderItems[id]; it.OrderID == orderID {
			items = append(items, it)
		}
	}
	return items, nil
}

func (r *orderItemRepo) ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	out := make(map[int64][]model.OrderItem, len(orderIDs))
	want := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}
	for _, id := range sortedKeys(r.st.orderItems) {
		if it := r.st.orderItems[id]; want[it.OrderID] {
			out[it.OrderID] = append(out[it.OrderID], it)
		}
	}
	return out, nil
}
