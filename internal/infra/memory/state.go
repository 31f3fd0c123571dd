package memory

import (
	"maps"
	"slices"

	"fulfillment/internal/domain/model"
)

// テーブル相当のmap。値で持つのでcloneはmapのコピーで足りる
type state struct {
	seq map[string]int64

	products    map[int64]model.Product
	carts       map[int64]model.Cart
	cartItems   map[int64]model.CartItem
	orders      map[int64]model.Order
	orderItems  map[int64]model.OrderItem
	payments    map[int64]model.Payment
	adjustments []model.InventoryAdjustment
	auditLogs   []model.AuditLog
}

func newState() *state {
	return &state{
		seq:        map[string]int64{},
		products:   map[int64]model.Product{},
		carts:      map[int64]model.Cart{},
		cartItems:  map[int64]model.CartItem{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64]model.OrderItem{},
		payments:   map[int64]model.Payment{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:         maps.Clone(s.seq),
		products:    maps.Clone(s.products),
		carts:       maps.Clone(s.carts),
		cartItems:   maps.Clone(s.cartItems),
		orders:      maps.Clone(s.orders),
		orderItems:  maps.Clone(s.orderItems),
		payments:    maps.Clone(s.payments),
		adjustments: slices.Clone(s.adjustments),
		auditLogs:   slices.Clone(s.auditLogs),
	}
}

// テーブルごとの連番
func (s *state) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// id昇順のキー
func sortedKeys[V any](m map[int64]V) []int64 {
	var keys []int64
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// page/limitでスライスを切る
func paginate[T any](items []T, page int, limit int) []T {
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
