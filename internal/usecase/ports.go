package usecase

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
)

// 認証済みの呼び出し元
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// 自分のものか、管理者なら見てよい
func (a Actor) CanAccess(ownerID int64) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

// ゲートウェイに渡す金額は最小通貨単位
type PaymentIntentRequest struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// 外部決済（Stripeなど）のintent作成
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
}

type PaymentOutcome string

const (
	OutcomeSucceeded PaymentOutcome = "succeeded"
	OutcomeFailed    PaymentOutcome = "failed"
)

func (o PaymentOutcome) Valid() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// 署名検証済みの通知
type Notification struct {
	EventID  string
	IntentID string
	Outcome  PaymentOutcome
}

// Webhookのイベントid単位の重複排除
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type DomainEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

const (
	EventOrderCreated     = "order.created"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

type Metrics interface {
	CheckoutOutcome(outcome string)
	ReconcileOutcome(outcome string)
	GatewayDuration(result string, d time.Duration)
	SweepResult(result string)
	IntentAttachFailed()
}

type nopMetrics struct{}

func (nopMetrics) CheckoutOutcome(string)                {}
func (nopMetrics) ReconcileOutcome(string)               {}
func (nopMetrics) GatewayDuration(string, time.Duration) {}
func (nopMetrics) SweepResult(string)                    {}
func (nopMetrics) IntentAttachFailed()                   {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, DomainEvent) error { return nil }
