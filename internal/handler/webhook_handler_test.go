package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fulfillment/internal/handler"
	"fulfillment/internal/infra/memory"
	repo "fulfillment/internal/repository"
	"fulfillment/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// 署名は見ずに決まった通知を返す
type stubVerifier struct {
	n usecase.Notification
}

func (v stubVerifier) Verify([]byte, string) (usecase.Notification, bool, error) {
	return v.n, true, nil
}

type downTx struct{}

func (downTx) WithinTx(context.Context, func(r repo.TxRepos) error) error {
	return errors.New("db: connection reset")
}

func postWebhook(tx repo.TransactionManager, n usecase.Notification) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	uc := usecase.NewWebhookUsecase(tx, usecase.NewInventoryLedger(), nil, nil, nil, zap.NewNop(), usecase.WebhookConfig{})

	e := echo.New()
	handler.NewWebhookHandler(uc, stubVerifier{n: n}, log).RegisterRoutes(e, nil)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, logs
}

func TestWebhook_InvalidNotificationIsNotLoggedAsFailure(t *testing.T) {
	rec, logs := postWebhook(memory.NewStore(), usecase.Notification{EventID: "evt_1", Outcome: usecase.OutcomeSucceeded})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, logs.FilterMessage("webhook processing failed").Len())
}

func TestWebhook_InternalFailureIsLoggedAndRetried(t *testing.T) {
	rec, logs := postWebhook(downTx{}, usecase.Notification{EventID: "evt_1", IntentID: "pi_1", Outcome: usecase.OutcomeSucceeded})

	// 5xxで再送させる
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	failed := logs.FilterMessage("webhook processing failed").All()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
		assert.Equal(t, "evt_1", failed[0].ContextMap()["event_id"])
	}
}
