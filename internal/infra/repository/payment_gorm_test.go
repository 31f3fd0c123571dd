package repository

import (
	"context"
	"testing"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentColumns = []string{
	"id", "order_id", "user_id", "payment_method", "amount", "currency",
	"transaction_id", "status", "created_at", "updated_at",
}

func TestFindByTransactionIDForUpdate_LocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(paymentColumns).
		AddRow(3, 10, 1, "stripe", "9.99", "usd", "pi_123", "initiated", now, now)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE transaction_id = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)

	p, err := r.FindByTransactionIDForUpdate(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, model.PaymentStatusInitiated, p.Status)
	assert.Equal(t, "9.99", p.Amount.StringFixed(2))
	require.NotNil(t, p.TransactionID)
	assert.Equal(t, "pi_123", *p.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTransactionIDForUpdate_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "payments"`).WillReturnRows(sqlmock.NewRows(paymentColumns))

	_, err := r.FindByTransactionIDForUpdate(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestPaymentUpdateStatus_ConditionalOnFromStatus(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	mock.ExpectExec(`UPDATE "payments" SET "status"=\$1.*WHERE id = \$3 AND status = \$4`).
		WithArgs("successful", sqlmock.AnyArg(), int64(3), "initiated").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.UpdateStatus(context.Background(), 3, model.PaymentStatusInitiated, model.PaymentStatusSuccessful)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentUpdateStatus_AlreadyMovedIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	mock.ExpectExec(`UPDATE "payments" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.UpdateStatus(context.Background(), 3, model.PaymentStatusInitiated, model.PaymentStatusFailed)
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestAttachTransactionID_OnlyWhenEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	mock.ExpectExec(`UPDATE "payments" SET "transaction_id"=\$1.*WHERE id = \$3 AND transaction_id IS NULL`).
		WithArgs("pi_1", sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, r.AttachTransactionID(context.Background(), 5, "pi_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachTransactionID_UniqueViolationIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewPaymentGormRepository(db)

	mock.ExpectExec(`UPDATE "payments" SET "transaction_id"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := r.AttachTransactionID(context.Background(), 5, "pi_dup")
	assert.ErrorIs(t, err, repo.ErrConflict)
}
