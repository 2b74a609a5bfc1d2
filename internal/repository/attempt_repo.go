package repository

import (
	"context"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository is the append-only delivery ledger port.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	RecentFailureCount(ctx context.Context, subscriptionID string, window time.Duration) (int64, error)
	History(ctx context.Context, subscriptionID string, limit int) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db, now: time.Now}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) RecentFailureCount(ctx context.Context, subscriptionID string, window time.Duration) (int64, error) {
	since := r.now().UTC().Add(-window)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Where("subscription_id = ? AND success = ? AND attempted_at >= ?", subscriptionID, false, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormAttemptRepo) History(ctx context.Context, subscriptionID string, limit int) ([]domain.DeliveryAttempt, error) {
	if limit < 1 {
		limit = 20
	}

	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("attempted_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
