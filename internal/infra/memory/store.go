package memory

import (
	"context"
	"sync"

	repo "fulfillment/internal/repository"
)

// DBを使わないときのストア（開発用・テスト用）。
// WithinTxは全体を1本のロックで直列化し、fnが成功したときだけ状態を差し替える。
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	//作業用のコピーに書いて、成功したらcommit
	work := s.state.clone()
	if err := fn(&txRepos{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type txRepos struct {
	st *state
}

func (r *txRepos) Orders() repo.OrderRepository         { return &orderRepo{st: r.st} }
func (r *txRepos) OrderItems() repo.OrderItemRepository { return &orderItemRepo{st: r.st} }
func (r *txRepos) Carts() repo.CartRepository           { return &cartRepo{st: r.st} }
func (r *txRepos) CartItems() repo.CartItemRepository   { return &cartRepo{st: r.st} }
func (r *txRepos) Inventory() repo.InventoryRepository  { return &inventoryRepo{st: r.st} }
func (r *txRepos) Products() repo.ProductRepository     { return &productRepo{st: r.st} }
func (r *txRepos) Payments() repo.PaymentRepository     { return &paymentRepo{st: r.st} }
func (r *txRepos) AuditLogs() repo.AuditLogRepository   { return &auditLogRepo{st: r.st} }
