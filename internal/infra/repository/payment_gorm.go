package repository

import (
	"context"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Payment{}, repo.ErrConflict
		}
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", paymentID))
}

func (r *PaymentGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

// 同じintent idへの同時Webhookはここで直列化される
func (r *PaymentGormRepository) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (model.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID))
}

func (r *PaymentGormRepository) first(q *gorm.DB) (model.Payment, error) {
	var p model.Payment
	err := q.First(&p).Error
	if isNotFound(err) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

// transaction_idが空のときだけ保存
func (r *PaymentGormRepository) AttachTransactionID(ctx context.Context, paymentID int64, transactionID string) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND transaction_id IS NULL", paymentID).
		Update("transaction_id", transactionID)

	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return repo.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

// 現在のステータスがfromのときだけ更新
func (r *PaymentGormRepository) UpdateStatus(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Update("status", to)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *PaymentGormRepository) ListMissingTransactionID(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND transaction_id IS NULL AND created_at < ?", model.PaymentStatusInitiated, before).
		Order("id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Payment{}, err
	}
	return items, nil
}
