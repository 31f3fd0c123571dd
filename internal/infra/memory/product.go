package memory

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

type productRepo struct {
	st *state
}

func (r *productRepo) live(id int64) (model.Product, bool) {
	p, ok := r.st.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, false
	}
	return p, true
}

func (r *productRepo) List(ctx context.Context, page int, limit int) ([]model.Product, int64, error) {
	var active []model.Product
	for _, id := range sortedKeys(r.st.products) {
		p, ok := r.live(id)
		if ok && p.IsActive {
			active = append(active, p)
		}
	}
	return paginate(active, page, limit), int64(len(active)), nil
}

func (r *productRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.live(id)
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	out := make(map[int64]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.live(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *productRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	now := time.Now()
	p.ID = r.st.nextID("products")
	p.CreatedAt = now
	p.UpdatedAt = now
	r.st.products[p.ID] = p
	return p, nil
}

// 在庫は触らない
func (r *productRepo) Update(ctx context.Context, p model.Product) error {
	cur, ok := r.live(p.ID)
	if !ok {
		return repo.ErrNotFound
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Price = p.Price
	cur.IsActive = p.IsActive
	cur.UpdatedAt = time.Now()
	r.st.products[p.ID] = cur
	return nil
}

func (r *productRepo) SoftDelete(ctx context.Context, id int64) error {
	cur, ok := r.live(id)
	if !ok {
		return repo.ErrNotFound
	}
	cur.DeletedAt.Time = time.Now()
	cur.DeletedAt.Valid = true
	r.st.products[id] = cur
	return nil
}

type inventoryRepo struct {
	st *state
}

func (r *inventoryRepo) SetStock(ctx context.Context, productID int64, newStock int64) error {
	p, ok := (&productRepo{st: r.st}).live(productID)
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock = newStock
	p.UpdatedAt = time.Now()
	r.st.products[productID] = p
	return nil
}

// WithinTxのロック下で判定と減算を行う
func (r *inventoryRepo) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := (&productRepo{st: r.st}).live(productID)
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now()
	r.st.products[productID] = p
	return true, nil
}

func (r *inventoryRepo) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := (&productRepo{st: r.st}).live(productID)
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = time.Now()
	r.st.products[productID] = p
	return nil
}

func (r *inventoryRepo) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	adj.ID = r.st.nextID("inventory_adjustments")
	adj.CreatedAt = time.Now()
	r.st.adjustments = append(r.st.adjustments, adj)
	return nil
}
