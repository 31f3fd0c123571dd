package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"fulfillment/internal/usecase"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
)

// Stripe-Signatureヘッダの検証
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// handled=falseは対象外のイベント（受け取って無視する）
func (v *StripeVerifier) Verify(payload []byte, sigHeader string) (usecase.Notification, bool, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return usecase.Notification{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var outcome usecase.PaymentOutcome
	switch string(ev.Type) {
	case eventIntentSucceeded:
		outcome = usecase.OutcomeSucceeded
	case eventIntentFailed:
		outcome = usecase.OutcomeFailed
	default:
		return usecase.Notification{}, false, nil
	}

	if ev.Data == nil {
		return usecase.Notification{}, false, ErrInvalidPayload
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return usecase.Notification{}, false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if pi.ID == "" {
		return usecase.Notification{}, false, ErrInvalidPayload
	}

	return usecase.Notification{
		EventID:  ev.ID,
		IntentID: pi.ID,
		Outcome:  outcome,
	}, true, nil
}
