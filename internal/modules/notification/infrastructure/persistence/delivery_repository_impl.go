package persistence

import (
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/internal/modules/notification/domain/repository"
	"context"
	"time"

	"gorm.io/gorm"
)

type deliveryRepositoryImpl struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) repository.DeliveryRepository {
	return &deliveryRepositoryImpl{db: db}
}

func (r *deliveryRepositoryImpl) Create(ctx context.Context, d *notification.Delivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *deliveryRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*notification.Delivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*notification.Delivery
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *deliveryRepositoryImpl) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&notification.Delivery{})
	return res.RowsAffected, res.Error
}
