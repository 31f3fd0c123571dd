package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type WebhookConfig struct {
	// 決済失敗で確保済み在庫を戻す
	ReleaseStockOnFailure bool
}

// 決済プロバイダからの非同期通知を支払い/注文に反映する
type WebhookUsecase struct {
	tx      repo.TransactionManager
	ledger  *InventoryLedger
	dedup   EventDeduper
	events  EventPublisher
	metrics Metrics
	log     *zap.Logger
	cfg     WebhookConfig
}

// dedupはnilでもよい（DB側の状態遷移だけで冪等）
func NewWebhookUsecase(
	tx repo.TransactionManager,
	ledger *InventoryLedger,
	dedup EventDeduper,
	events EventPublisher,
	metrics Metrics,
	log *zap.Logger,
	cfg WebhookConfig,
) *WebhookUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookUsecase{
		tx:      tx,
		ledger:  ledger,
		dedup:   dedup,
		events:  events,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
	}
}

// 結果をintent idの支払いに反映する。
// 同じ結果の再送は何もせず現在の支払いを返す。逆の結果はReconcileConflict
func (u *WebhookUsecase) ApplyOutcome(ctx context.Context, intentID string, outcome PaymentOutcome) (model.Payment, error) {
	p, _, err := u.apply(ctx, intentID, outcome)
	return p, err
}

// changed: 今回の呼び出しで状態が変わったか
func (u *WebhookUsecase) apply(ctx context.Context, intentID string, outcome PaymentOutcome) (p model.Payment, changed bool, err error) {
	ctx, span := tracer.Start(ctx, "usecase.ApplyOutcome", trace.WithAttributes(
		attribute.String("payment.intent_id", intentID),
		attribute.String("payment.outcome", string(outcome)),
	))
	defer func() {
		switch {
		case err != nil:
			u.metrics.ReconcileOutcome(outcomeLabel(err))
		case changed:
			u.metrics.ReconcileOutcome("applied")
		default:
			u.metrics.ReconcileOutcome("duplicate")
		}
		endSpan(span, err)
	}()

	if intentID == "" {
		return model.Payment{}, false, NewAppError(KindValidation, "intent id is required")
	}
	if !outcome.Valid() {
		return model.Payment{}, false, NewAppError(KindValidation, "invalid outcome")
	}

	target := model.PaymentStatusSuccessful
	orderTo := model.OrderStatusPaid
	if outcome == OutcomeFailed {
		target = model.PaymentStatusFailed
		orderTo = model.OrderStatusFailed
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じintentへの同時配信はこの行ロックで直列化される
		cur, err := r.Payments().FindByTransactionIDForUpdate(ctx, intentID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewAppError(KindPaymentNotFound, "no payment for intent "+intentID)
		}
		if err != nil {
			return internalError(err)
		}
		p = cur

		if cur.Status == target {
			return nil
		}
		if cur.Status.IsTerminal() {
			return NewAppError(KindReconcileConflict,
				fmt.Sprintf("payment %d is already %s; refusing %s", cur.ID, cur.Status, outcome))
		}

		if err := r.Payments().UpdateStatus(ctx, cur.ID, model.PaymentStatusInitiated, target); err != nil {
			return u.transitionError(err, "payment", cur.ID)
		}
		if err := r.Orders().UpdateStatus(ctx, cur.OrderID, model.OrderStatusPending, orderTo); err != nil {
			return u.transitionError(err, "order", cur.OrderID)
		}

		if outcome == OutcomeFailed && u.cfg.ReleaseStockOnFailure {
			if err := u.releaseOrder(ctx, r, cur.OrderID); err != nil {
				return err
			}
		}

		p.Status = target
		changed = true
		return nil
	})
	if err != nil {
		return p, false, err
	}
	return p, changed, nil
}

// 条件付き更新が外れた＝他の経路で状態が変わっていた
func (u *WebhookUsecase) transitionError(err error, resource string, id int64) error {
	if errors.Is(err, repo.ErrConflict) {
		return NewAppError(KindReconcileConflict, fmt.Sprintf("%s %d is no longer pending", resource, id))
	}
	return internalError(err)
}

// 注文の明細分の在庫を戻す（削除済み商品はスキップ）
func (u *WebhookUsecase) releaseOrder(ctx context.Context, r repo.TxRepos, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return internalError(err)
	}
	for _, it := range items {
		err := u.ledger.Release(ctx, r, it.ProductID, it.Quantity)
		if KindOf(err) == KindNotFound {
			u.log.Warn("release skipped: product gone",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", it.ProductID),
			)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// 署名検証済みの通知を処理する。
// PaymentNotFound / ReconcileConflict は記録して受理（nil）
// それ以外のエラーは返す（再送される）
func (u *WebhookUsecase) HandleNotification(ctx context.Context, n Notification) error {
	logger := u.log.With(
		zap.String("event_id", n.EventID),
		zap.String("intent_id", n.IntentID),
		zap.String("outcome", string(n.Outcome)),
	)

	if u.dedup != nil && n.EventID != "" {
		seen, err := u.dedup.Seen(ctx, n.EventID)
		if err != nil {
			// 重複排除が使えなくてもDBの状態遷移で冪等
			logger.Warn("event dedup lookup failed", zap.Error(err))
		} else if seen {
			u.metrics.ReconcileOutcome("duplicate_event")
			logger.Info("duplicate webhook event ignored")
			return nil
		}
	}

	p, changed, err := u.apply(ctx, n.IntentID, n.Outcome)
	// PaymentNotFoundは未処理扱い（intent id保存後の再送で反映させる）
	markSeen := true
	switch KindOf(err) {
	case "":
		if changed {
			typ := EventPaymentSucceeded
			if n.Outcome == OutcomeFailed {
				typ = EventPaymentFailed
			}
			publish(ctx, u.events, logger, typ, strconv.FormatInt(p.OrderID, 10), p)
			logger.Info("payment reconciled", zap.Int64("payment_id", p.ID), zap.Int64("order_id", p.OrderID))
		}

	case KindPaymentNotFound:
		markSeen = false
		logger.Warn("webhook for unknown intent", zap.Error(err))
		writeAudit(ctx, u.tx, logger, model.AuditLog{
			ActorUserID:  model.SystemActorID,
			Action:       model.AuditActionPaymentNotFound,
			ResourceType: model.AuditResourcePayment,
			ExternalRef:  n.IntentID,
			AfterJSON:    fmt.Sprintf(`{"event_id":%q,"outcome":%q}`, n.EventID, n.Outcome),
		})

	case KindReconcileConflict:
		logger.Error("webhook outcome conflicts with payment state",
			zap.Int64("payment_id", p.ID),
			zap.Int64("order_id", p.OrderID),
			zap.Error(err),
		)
		writeAudit(ctx, u.tx, logger, model.AuditLog{
			ActorUserID:  model.SystemActorID,
			Action:       model.AuditActionReconcileConflict,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   p.ID,
			ExternalRef:  n.IntentID,
			BeforeJSON:   fmt.Sprintf(`{"status":%q}`, p.Status),
			AfterJSON:    fmt.Sprintf(`{"event_id":%q,"outcome":%q}`, n.EventID, n.Outcome),
		})

	default:
		return err
	}

	if markSeen && u.dedup != nil && n.EventID != "" {
		if err := u.dedup.Mark(ctx, n.EventID); err != nil {
			logger.Warn("event dedup mark failed", zap.Error(err))
		}
	}
	return nil
}
