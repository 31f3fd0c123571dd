package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fulfillment/usecase")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// イベント送信の失敗は処理結果に影響させない（ログだけ）
func publish(ctx context.Context, pub EventPublisher, log *zap.Logger, typ string, key string, payload any) {
	ev := DomainEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("event publish failed",
			zap.String("event_type", typ),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

// メトリクスのoutcomeラベル
func outcomeLabel(err error) string {
	switch KindOf(err) {
	case "":
		return "success"
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindEmptyCart:
		return "empty_cart"
	case KindProductMissing:
		return "product_missing"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindGatewayUnavailable:
		return "gateway_unavailable"
	case KindPaymentNotFound:
		return "payment_not_found"
	case KindReconcileConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}
