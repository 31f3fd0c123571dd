package handler

import (
	"io"
	"net/http"

	"fulfillment/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Stripeの署名付きペイロードの上限
const maxWebhookBody = 64 << 10

type NotificationVerifier interface {
	Verify(payload []byte, sigHeader string) (usecase.Notification, bool, error)
}

type WebhookHandler struct {
	uc       *usecase.WebhookUsecase
	verifier NotificationVerifier
	log      *zap.Logger
}

func NewWebhookHandler(uc *usecase.WebhookUsecase, verifier NotificationVerifier, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{uc: uc, verifier: verifier, log: log}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo, limit echo.MiddlewareFunc) {
	if limit != nil {
		e.POST("/payment/webhook", h.receive, limit)
		return
	}
	e.POST("/payment/webhook", h.receive)
}

type webhookAck struct {
	Received bool `json:"received"`
}

// 署名が不正なら400。それ以外は受理して2xx（5xxは再送される）
func (h *WebhookHandler) receive(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "invalid body")
	}

	n, handled, err := h.verifier.Verify(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook rejected", zap.Error(err))
		return badRequest(c, "invalid signature")
	}
	if !handled {
		return c.JSON(http.StatusOK, webhookAck{Received: true})
	}

	if err := h.uc.HandleNotification(c.Request().Context(), n); err != nil {
		if usecase.KindOf(err) != usecase.KindValidation {
			h.log.Error("webhook processing failed", zap.String("event_id", n.EventID), zap.Error(err))
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, webhookAck{Received: true})
}
