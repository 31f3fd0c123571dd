package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/domain/model"
	"fulfillment/internal/handler"
	"fulfillment/internal/infra/gateway"
	"fulfillment/internal/infra/memory"
	repo "fulfillment/internal/repository"
	"fulfillment/internal/server"
	"fulfillment/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	jwtSecret     = "handler-test-secret"
	webhookSecret = "whsec_handler_test"
)

// 一時的に落とせるゲートウェイ
type switchGateway struct {
	down  atomic.Bool
	inner *gateway.LocalGateway
}

func (g *switchGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	if g.down.Load() {
		return usecase.PaymentIntent{}, errors.New("connection refused")
	}
	return g.inner.CreateIntent(ctx, req)
}

type app struct {
	e     *echo.Echo
	store *memory.Store
	gw    *switchGateway
}

func newApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Config{JWTSecret: jwtSecret}
	store := memory.NewStore()
	gw := &switchGateway{inner: gateway.NewLocalGateway()}
	ledger := usecase.NewInventoryLedger()
	log := zap.NewNop()

	checkout := usecase.NewCheckoutUsecase(store, ledger, gw, nil, nil, log, usecase.CheckoutConfig{
		Currency:       "usd",
		GatewayTimeout: time.Second,
	})
	webhookUC := usecase.NewWebhookUsecase(store, ledger, nil, nil, nil, log, usecase.WebhookConfig{
		ReleaseStockOnFailure: true,
	})
	products := usecase.NewProductUsecase(store)

	e := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Gatherer: prometheus.NewRegistry(),
		Handlers: server.Handlers{
			Product: handler.NewProductHandler(products),
			Cart:    handler.NewCartHandler(usecase.NewCartUsecase(store), checkout),
			Order:   handler.NewOrderHandler(usecase.NewOrderUsecase(store), checkout),
			Webhook: handler.NewWebhookHandler(webhookUC, gateway.NewStripeVerifier(webhookSecret), log),
			Admin:   handler.NewAdminProductHandler(products, usecase.NewAuditUsecase(store)),
		},
	})
	return &app{e: e, store: store, gw: gw}
}

func token(t *testing.T, userID int64, role model.Role) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprint(userID),
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return tok
}

func (a *app) call(method, path, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) product(t *testing.T, name, price string, stock int64) model.Product {
	t.Helper()
	var p model.Product
	require.NoError(t, a.store.WithinTx(context.Background(), func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().Create(context.Background(), model.Product{
			Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true,
		})
		return err
	}))
	return p
}

func (a *app) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, a.store.WithinTx(context.Background(), func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().FindByID(context.Background(), productID)
		return err
	}))
	return p.Stock
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type checkoutBody struct {
	Error        string        `json:"error"`
	Code         string        `json:"code"`
	ProductID    int64         `json:"product_id"`
	Order        model.Order   `json:"order"`
	Payment      model.Payment `json:"payment"`
	ClientSecret string        `json:"client_secret"`
}

func (a *app) signedWebhook(t *testing.T, eventID, eventType, intentID string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent"}}}`, eventID, eventType, intentID)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", bytes.NewReader(sp.Payload))
	req.Header.Set("Stripe-Signature", sp.Header)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutFlow_PaidByWebhook(t *testing.T) {
	a := newApp(t)
	p := a.product(t, "Mug", "9.99", 3)
	user := token(t, 10, model.RoleUser)

	rec := a.call(http.MethodPost, "/cart/items", user, map[string]any{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(http.MethodPost, "/cart/checkout", user, map[string]any{"shipping_address": "1-2-3 Shibuya, Tokyo"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[checkoutBody](t, rec)

	assert.Equal(t, model.OrderStatusPending, out.Order.Status)
	assert.True(t, out.Order.TotalAmount.Equal(decimal.RequireFromString("9.99")))
	require.NotNil(t, out.Payment.TransactionID)
	assert.True(t, strings.HasPrefix(out.ClientSecret, *out.Payment.TransactionID))
	assert.Equal(t, int64(2), a.stock(t, p.ID))

	rec = a.signedWebhook(t, "evt_1", "payment_intent.succeeded", *out.Payment.TransactionID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(http.MethodGet, fmt.Sprintf("/orders/%d", out.Order.ID), user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[usecase.OrderOutput](t, rec)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, model.PaymentStatusSuccessful, got.Payment.Status)

	// 空になったカートでもう一度
	rec = a.call(http.MethodPost, "/cart/checkout", user, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(usecase.KindEmptyCart), decode[checkoutBody](t, rec).Code)
}

func TestCheckout_InsufficientStockNamesProduct(t *testing.T) {
	a := newApp(t)
	p := a.product(t, "Lamp", "25.00", 2)
	user := token(t, 11, model.RoleUser)
	admin := token(t, 1, model.RoleAdmin)

	rec := a.call(http.MethodPost, "/cart/items", user, map[string]any{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.call(http.MethodPatch, fmt.Sprintf("/admin/products/%d/stock", p.ID), admin, map[string]any{"stock": 1, "reason": "damaged"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(http.MethodPost, "/cart/checkout", user, map[string]any{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[checkoutBody](t, rec)
	assert.Equal(t, string(usecase.KindInsufficientStock), body.Code)
	assert.Equal(t, p.ID, body.ProductID)
	assert.Equal(t, int64(1), a.stock(t, p.ID))
}

func TestCheckout_GatewayDownThenRetry(t *testing.T) {
	a := newApp(t)
	p := a.product(t, "Pen", "1.50", 10)
	user := token(t, 12, model.RoleUser)
	other := token(t, 13, model.RoleUser)

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/cart/items", user, map[string]any{"product_id": p.ID, "quantity": 4}).Code)

	a.gw.down.Store(true)
	rec := a.call(http.MethodPost, "/cart/checkout", user, map[string]any{"payment_method": "stripe"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	body := decode[checkoutBody](t, rec)
	assert.Equal(t, string(usecase.KindGatewayUnavailable), body.Code)
	require.NotZero(t, body.Payment.ID)
	assert.Nil(t, body.Payment.TransactionID)
	assert.Equal(t, int64(6), a.stock(t, p.ID))

	a.gw.down.Store(false)
	retryPath := fmt.Sprintf("/payments/%d/retry", body.Payment.ID)

	assert.Equal(t, http.StatusForbidden, a.call(http.MethodPost, retryPath, other, nil).Code)

	rec = a.call(http.MethodPost, retryPath, user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	retried := decode[checkoutBody](t, rec)
	require.NotNil(t, retried.Payment.TransactionID)

	// 同じ支払いidなら同じintent
	rec = a.call(http.MethodPost, retryPath, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, *retried.Payment.TransactionID, *decode[checkoutBody](t, rec).Payment.TransactionID)
}

func TestCheckout_ValidationAndAuth(t *testing.T) {
	a := newApp(t)
	user := token(t, 14, model.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, a.call(http.MethodPost, "/cart/checkout", "", map[string]any{}).Code)

	rec := a.call(http.MethodPost, "/cart/checkout", user, map[string]any{"shipping_address": " abc "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(usecase.KindValidation), decode[checkoutBody](t, rec).Code)

	rec = a.call(http.MethodPost, "/cart/checkout", user, map[string]any{"payment_method": "cash"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.call(http.MethodPost, "/cart/items", user, map[string]any{"product_id": 1, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_SignatureAndUnknownIntent(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(`{"id":"evt_x"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 知らないintentは受理して記録だけ
	rec = a.signedWebhook(t, "evt_2", "payment_intent.succeeded", "pi_unknown")
	assert.Equal(t, http.StatusOK, rec.Code)

	// 対象外のイベント
	rec = a.signedWebhook(t, "evt_3", "customer.created", "cus_1")
	assert.Equal(t, http.StatusOK, rec.Code)

	admin := token(t, 1, model.RoleAdmin)
	rec = a.call(http.MethodGet, "/admin/audit-logs?action=PAYMENT_NOT_FOUND", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[struct {
		Items []model.AuditLog `json:"items"`
	}](t, rec)
	require.Len(t, logs.Items, 1)
	assert.Equal(t, "pi_unknown", logs.Items[0].ExternalRef)
}

func TestOrders_OwnerOrAdmin(t *testing.T) {
	a := newApp(t)
	p := a.product(t, "Cup", "3.00", 5)
	owner := token(t, 20, model.RoleUser)

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/cart/items", owner, map[string]any{"product_id": p.ID, "quantity": 1}).Code)
	rec := a.call(http.MethodPost, "/cart/checkout", owner, map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode[checkoutBody](t, rec).Order.ID
	path := fmt.Sprintf("/orders/%d", orderID)

	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, path, owner, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.call(http.MethodGet, path, token(t, 21, model.RoleUser), nil).Code)
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, path, token(t, 1, model.RoleAdmin), nil).Code)
	assert.Equal(t, http.StatusNotFound, a.call(http.MethodGet, "/orders/9999", owner, nil).Code)

	list := decode[usecase.OrderListOutput](t, a.call(http.MethodGet, "/orders", token(t, 21, model.RoleUser), nil))
	assert.Empty(t, list.Items)
}

func TestAdminProducts(t *testing.T) {
	a := newApp(t)
	admin := token(t, 1, model.RoleAdmin)
	user := token(t, 30, model.RoleUser)

	assert.Equal(t, http.StatusForbidden, a.call(http.MethodPost, "/admin/products", user, map[string]any{"name": "X", "price": "1.00"}).Code)

	rec := a.call(http.MethodPost, "/admin/products", admin, map[string]any{"name": "Notebook", "price": "4.20", "stock": 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Product](t, rec)
	assert.True(t, created.IsActive)

	rec = a.call(http.MethodPost, "/admin/products", admin, map[string]any{"name": "Bad", "price": "4.205"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.call(http.MethodGet, fmt.Sprintf("/products/%d", created.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Notebook", decode[model.Product](t, rec).Name)

	rec = a.call(http.MethodDelete, fmt.Sprintf("/admin/products/%d", created.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, a.call(http.MethodGet, fmt.Sprintf("/products/%d", created.ID), "", nil).Code)

	assert.Equal(t, http.StatusBadRequest, a.call(http.MethodGet, "/products?limit=abc", "", nil).Code)
}
