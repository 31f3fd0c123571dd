package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fulfillment/internal/domain/model"
	"fulfillment/internal/infra/memory"
	repo "fulfillment/internal/repository"
	"fulfillment/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newCheckout(tx repo.TransactionManager, gw usecase.PaymentGateway) *usecase.CheckoutUsecase {
	return usecase.NewCheckoutUsecase(tx, usecase.NewInventoryLedger(), gw, nil, nil, zap.NewNop(), usecase.CheckoutConfig{
		Currency:       "usd",
		GatewayTimeout: time.Second,
	})
}

func newWebhook(tx repo.TransactionManager, release bool, dedup usecase.EventDeduper, pub usecase.EventPublisher) *usecase.WebhookUsecase {
	return usecase.NewWebhookUsecase(tx, usecase.NewInventoryLedger(), dedup, pub, nil, zap.NewNop(), usecase.WebhookConfig{
		ReleaseStockOnFailure: release,
	})
}

func addProduct(t *testing.T, s *memory.Store, name string, price string, stock int64) model.Product {
	t.Helper()
	var p model.Product
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().Create(ctx, model.Product{
			Name:     name,
			Price:    decimal.RequireFromString(price),
			Stock:    stock,
			IsActive: true,
		})
		return err
	}))
	return p
}

// 在庫チェックを通さずにカートへ入れる
func putInCart(t *testing.T, s *memory.Store, userID int64, productID int64, qty int64) {
	t.Helper()
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Carts().GetOrCreateActiveByUserID(ctx, userID)
		if err != nil {
			return err
		}
		_, err = r.CartItems().UpsertQuantity(ctx, c.ID, productID, qty)
		return err
	}))
}

func stockOf(t *testing.T, s *memory.Store, productID int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		stock = p.Stock
		return err
	}))
	return stock
}

func orderCount(t *testing.T, s *memory.Store) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		_, n, err = r.Orders().ListAll(ctx, 1, 100)
		return err
	}))
	return n
}

func loadPayment(t *testing.T, s *memory.Store, paymentID int64) model.Payment {
	t.Helper()
	var p model.Payment
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Payments().FindByID(ctx, paymentID)
		return err
	}))
	return p
}

func loadOrder(t *testing.T, s *memory.Store, orderID int64) model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, err = r.Orders().FindByID(ctx, orderID)
		return err
	}))
	return o
}

func auditActions(t *testing.T, s *memory.Store) []model.AuditAction {
	t.Helper()
	var logs []model.AuditLog
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		logs, err = r.AuditLogs().List(ctx, repo.AuditLogFilter{})
		return err
	}))
	out := make([]model.AuditAction, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func requireKind(t *testing.T, err error, kind usecase.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, usecase.KindOf(err), err.Error())
}

// testify mock
type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(usecase.PaymentIntent), args.Error(1)
}

// 同じ冪等キーには同じintentを返す
type fakeGateway struct {
	mu      sync.Mutex
	byKey   map[string]usecase.PaymentIntent
	calls   int
	failing bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byKey: map[string]usecase.PaymentIntent{}}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.failing {
		return usecase.PaymentIntent{}, errors.New("gateway timeout")
	}
	if in, ok := g.byKey[req.IdempotencyKey]; ok {
		return in, nil
	}
	in := usecase.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", len(g.byKey)+1),
		ClientSecret: fmt.Sprintf("pi_%d_secret", len(g.byKey)+1),
	}
	g.byKey[req.IdempotencyKey] = in
	return in, nil
}

func (g *fakeGateway) setFailing(v bool) {
	g.mu.Lock()
	g.failing = v
	g.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []usecase.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev usecase.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: map[string]bool{}}
}

func (d *memoryDeduper) Seen(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id], nil
}

func (d *memoryDeduper) Mark(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
	return nil
}

// 支払い作成で失敗するTxRepos（明細作成と在庫確保の後）
type failingPayments struct {
	repo.PaymentRepository
}

func (failingPayments) Create(context.Context, model.Payment) (model.Payment, error) {
	return model.Payment{}, errors.New("payments: disk full")
}

type faultyRepos struct {
	repo.TxRepos
}

func (f faultyRepos) Payments() repo.PaymentRepository {
	return failingPayments{f.TxRepos.Payments()}
}

type faultyTx struct {
	inner repo.TransactionManager
}

func (f faultyTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return f.inner.WithinTx(ctx, func(r repo.TxRepos) error { return fn(faultyRepos{r}) })
}

// 事前チェックには在庫が多く見える（確定チェックだけが本当の在庫を見る）
type inflatedProducts struct {
	repo.ProductRepository
}

func (p inflatedProducts) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	m, err := p.ProductRepository.FindByIDs(ctx, ids)
	for id, prod := range m {
		prod.Stock += 100
		m[id] = prod
	}
	return m, err
}

type staleRepos struct {
	repo.TxRepos
}

func (s staleRepos) Products() repo.ProductRepository {
	return inflatedProducts{s.TxRepos.Products()}
}

type staleTx struct {
	inner repo.TransactionManager
}

func (s staleTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return s.inner.WithinTx(ctx, func(r repo.TxRepos) error { return fn(staleRepos{r}) })
}
