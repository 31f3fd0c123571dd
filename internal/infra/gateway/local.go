package gateway

import (
	"context"
	"sync"

	"fulfillment/internal/usecase"

	"github.com/google/uuid"
)

// 開発用（STRIPE_SECRET_KEY未設定のとき）
// 同じidempotency keyには同じintentを返す
type LocalGateway struct {
	mu      sync.Mutex
	intents map[string]usecase.PaymentIntent
}

func NewLocalGateway() *LocalGateway {
	return &LocalGateway{intents: map[string]usecase.PaymentIntent{}}
}

func (g *LocalGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return usecase.PaymentIntent{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if pi, ok := g.intents[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return pi, nil
	}
	id := "pi_local_" + uuid.NewString()
	pi := usecase.PaymentIntent{ID: id, ClientSecret: id + "_secret"}
	if req.IdempotencyKey != "" {
		g.intents[req.IdempotencyKey] = pi
	}
	return pi, nil
}
