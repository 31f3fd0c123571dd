package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CheckoutConfig struct {
	Currency       string
	GatewayTimeout time.Duration
}

// カート→注文＋支払いの確定と、決済intentの作成
type CheckoutUsecase struct {
	tx      repo.TransactionManager
	ledger  *InventoryLedger
	gateway PaymentGateway
	events  EventPublisher
	metrics Metrics
	log     *zap.Logger
	cfg     CheckoutConfig
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	ledger *InventoryLedger,
	gateway PaymentGateway,
	events EventPublisher,
	metrics Metrics,
	log *zap.Logger,
	cfg CheckoutConfig,
) *CheckoutUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &CheckoutUsecase{
		tx:      tx,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
	}
}

type CheckoutInput struct {
	ShippingAddress *string
	PaymentMethod   string
}

// GatewayUnavailableのときも注文と支払いは入っている
type CheckoutOutput struct {
	Order        model.Order   `json:"order"`
	Payment      model.Payment `json:"payment"`
	ClientSecret string        `json:"client_secret,omitempty"`
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (out CheckoutOutput, err error) {
	ctx, span := tracer.Start(ctx, "usecase.Checkout", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer func() {
		u.metrics.CheckoutOutcome(outcomeLabel(err))
		endSpan(span, err)
	}()

	if userID <= 0 {
		return CheckoutOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}

	method := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = model.DefaultPaymentMethod
	}
	if !method.Valid() {
		return CheckoutOutput{}, NewAppError(KindValidation, "unsupported payment method")
	}

	var address *string
	if in.ShippingAddress != nil {
		if a := strings.TrimSpace(*in.ShippingAddress); a != "" {
			address = &a
		}
	}

	//事前チェック（安く早く落とす）。確定の在庫チェックは下のトランザクション内
	if err := u.precheck(ctx, userID); err != nil {
		return CheckoutOutput{}, err
	}

	var order model.Order
	var payment model.Payment
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		order, payment, err = u.placeOrder(ctx, r, userID, address, method)
		return err
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int64("payment.id", payment.ID))
	publish(ctx, u.events, u.log, EventOrderCreated, strconv.FormatInt(order.ID, 10), order)

	out = CheckoutOutput{Order: order, Payment: payment}

	// ここから先はcommit済み。クライアントのキャンセルでは止めない
	paid, intent, err := u.initiate(context.WithoutCancel(ctx), payment)
	out.Payment = paid
	if err != nil {
		return out, err
	}
	out.ClientSecret = intent.ClientSecret
	return out, nil
}

// 読み取りだけ。カート順に見て最初の不足商品を返す
func (u *CheckoutUsecase) precheck(ctx context.Context, userID int64) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindEmptyCart, "cart is empty")
		}
		if err != nil {
			return internalError(err)
		}

		items, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return internalError(err)
		}
		if len(items) == 0 {
			return NewAppError(KindEmptyCart, "cart is empty")
		}

		products, err := r.Products().FindByIDs(ctx, cartProductIDs(items))
		if err != nil {
			return internalError(err)
		}

		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok || !p.IsActive {
				return productError(KindProductMissing, it.ProductID, "product %d no longer exists")
			}
			if p.Stock < it.Quantity {
				return productError(KindInsufficientStock, it.ProductID, "insufficient stock for product %d")
			}
		}
		return nil
	})
}

// 注文・明細・在庫確保・支払い・カート無効化を1トランザクションで
func (u *CheckoutUsecase) placeOrder(
	ctx context.Context,
	r repo.TxRepos,
	userID int64,
	address *string,
	method model.PaymentMethod,
) (model.Order, model.Payment, error) {
	// 同じカートの同時チェックアウトはここで直列化される
	cart, err := r.Carts().FindActiveByUserIDForUpdate(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, model.Payment{}, NewAppError(KindEmptyCart, "cart is empty")
	}
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}
	if len(cartItems) == 0 {
		return model.Order{}, model.Payment{}, NewAppError(KindEmptyCart, "cart is empty")
	}

	products, err := r.Products().FindByIDs(ctx, cartProductIDs(cartItems))
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	//明細ごとに丸めてから合計
	items := make([]model.OrderItem, 0, len(cartItems))
	total := decimal.Zero
	for _, ci := range cartItems {
		p, ok := products[ci.ProductID]
		if !ok || !p.IsActive {
			return model.Order{}, model.Payment{}, productError(KindProductMissing, ci.ProductID, "product %d no longer exists")
		}
		sub := model.LineSubtotal(p.Price, ci.Quantity)
		items = append(items, model.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    ci.Quantity,
			Price:       p.Price,
			Subtotal:    sub,
		})
		total = total.Add(sub)
	}

	order := model.Order{
		UserID:          userID,
		TotalAmount:     total,
		Status:          model.OrderStatusPending,
		ShippingAddress: address,
	}
	order.ID, err = r.Orders().Create(ctx, order)
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	// 確定の在庫チェック。商品id順に確保して、別カートとのロック順を揃える
	reserve := slices.Clone(items)
	slices.SortFunc(reserve, func(a, b model.OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	for _, it := range reserve {
		if err := u.ledger.Reserve(ctx, r, it.ProductID, it.Quantity); err != nil {
			return model.Order{}, model.Payment{}, err
		}
	}

	payment, err := r.Payments().Create(ctx, model.Payment{
		OrderID:  order.ID,
		UserID:   userID,
		Method:   method,
		Amount:   total,
		Currency: u.cfg.Currency,
		Status:   model.PaymentStatusInitiated,
	})
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	err = r.Carts().Deactivate(ctx, cart.ID)
	if errors.Is(err, repo.ErrConflict) {
		return model.Order{}, model.Payment{}, NewAppError(KindEmptyCart, "cart is empty")
	}
	if err != nil {
		return model.Order{}, model.Payment{}, internalError(err)
	}

	order.Items = items
	return order, payment, nil
}

// intentを作ってidを支払いに保存する。失敗はGatewayUnavailable
func (u *CheckoutUsecase) initiate(ctx context.Context, p model.Payment) (model.Payment, PaymentIntent, error) {
	logger := u.log.With(zap.Int64("order_id", p.OrderID), zap.Int64("payment_id", p.ID))

	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	intent, err := u.gateway.CreateIntent(gctx, PaymentIntentRequest{
		AmountMinor:    model.ToMinorUnits(p.Amount),
		Currency:       p.Currency,
		IdempotencyKey: paymentIdempotencyKey(p.ID),
		Metadata: map[string]string{
			"order_id":   strconv.FormatInt(p.OrderID, 10),
			"payment_id": strconv.FormatInt(p.ID, 10),
			"user_id":    strconv.FormatInt(p.UserID, 10),
		},
	})
	if err != nil {
		u.metrics.GatewayDuration("error", time.Since(start))
		logger.Warn("payment gateway unavailable", zap.Error(err))
		return p, PaymentIntent{}, &AppError{
			Kind:    KindGatewayUnavailable,
			Message: fmt.Sprintf("payment initiation failed; retry with payment %d", p.ID),
			cause:   err,
		}
	}
	u.metrics.GatewayDuration("ok", time.Since(start))

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Payments().FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		// 再試行で同じintentが返ってきた
		if cur.TransactionID != nil {
			if *cur.TransactionID == intent.ID {
				return nil
			}
			return repo.ErrConflict
		}
		return r.Payments().AttachTransactionID(ctx, p.ID, intent.ID)
	})
	if err != nil {
		u.metrics.IntentAttachFailed()
		logger.Error("intent created but not stored on payment",
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
		// スイープで毎回失敗しても監査は支払いごとに1件
		u.auditOnce(ctx, model.AuditLog{
			ActorUserID:  model.SystemActorID,
			Action:       model.AuditActionIntentAttachFailed,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   p.ID,
			ExternalRef:  intent.ID,
			AfterJSON:    fmt.Sprintf(`{"error":%q}`, err.Error()),
		})
		return p, PaymentIntent{}, &AppError{
			Kind:    KindGatewayUnavailable,
			Message: fmt.Sprintf("payment initiation failed; retry with payment %d", p.ID),
			cause:   err,
		}
	}

	id := intent.ID
	p.TransactionID = &id
	return p, intent, nil
}

// 支払いidで決済の開始をやり直す（同じ冪等キーを使う）
func (u *CheckoutUsecase) RetryPaymentIntent(ctx context.Context, actor Actor, paymentID int64) (CheckoutOutput, error) {
	if actor.UserID <= 0 {
		return CheckoutOutput{}, NewAppError(KindUnauthorized, "unauthorized")
	}
	if paymentID <= 0 {
		return CheckoutOutput{}, NewAppError(KindValidation, "invalid payment id")
	}

	var out CheckoutOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Payments().FindByID(ctx, paymentID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindNotFound, "payment not found")
		}
		if err != nil {
			return internalError(err)
		}
		if !actor.CanAccess(p.UserID) {
			return NewAppError(KindForbidden, "forbidden")
		}
		if p.Status != model.PaymentStatusInitiated {
			return NewAppError(KindReconcileConflict, fmt.Sprintf("payment is already %s", p.Status))
		}

		o, err := r.Orders().FindByID(ctx, p.OrderID)
		if err != nil {
			return internalError(err)
		}
		o.Items, err = r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return internalError(err)
		}

		out = CheckoutOutput{Order: o, Payment: p}
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	paid, intent, err := u.initiate(context.WithoutCancel(ctx), out.Payment)
	out.Payment = paid
	if err != nil {
		return out, err
	}
	out.ClientSecret = intent.ClientSecret
	return out, nil
}

// intent idが付かないまま残った支払いを拾い直す。再開できた件数を返す
func (u *CheckoutUsecase) SweepPendingIntents(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	var stuck []model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		stuck, err = r.Payments().ListMissingTransactionID(ctx, time.Now().Add(-olderThan), limit)
		return err
	})
	if err != nil {
		return 0, internalError(err)
	}

	done := 0
	for _, p := range stuck {
		if ctx.Err() != nil {
			break
		}
		if _, _, err := u.initiate(ctx, p); err != nil {
			u.metrics.SweepResult("error")
			continue
		}
		u.metrics.SweepResult("ok")
		done++
	}

	if len(stuck) > 0 {
		u.log.Info("payment sweep finished", zap.Int("found", len(stuck)), zap.Int("initiated", done))
	}
	return done, nil
}

// 監査ログは本処理と別トランザクション（失敗してもログだけ）。
// 同じ対象・アクションの監査が既にあれば書かない
func (u *CheckoutUsecase) auditOnce(ctx context.Context, entry model.AuditLog) {
	ctx = context.WithoutCancel(ctx)
	action, rt, id := entry.Action, entry.ResourceType, entry.ResourceID
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		prev, err := r.AuditLogs().List(ctx, repo.AuditLogFilter{
			Action:       &action,
			ResourceType: &rt,
			ResourceID:   &id,
			Limit:        1,
		})
		if err != nil {
			return err
		}
		if len(prev) > 0 {
			return nil
		}
		return r.AuditLogs().Create(ctx, entry)
	})
	if err != nil {
		u.log.Error("audit log write failed", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}

func writeAudit(ctx context.Context, tx repo.TransactionManager, log *zap.Logger, entry model.AuditLog) {
	ctx = context.WithoutCancel(ctx)
	err := tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.AuditLogs().Create(ctx, entry)
	})
	if err != nil {
		log.Error("audit log write failed", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}

func paymentIdempotencyKey(paymentID int64) string {
	return "payment-" + strconv.FormatInt(paymentID, 10)
}
