package repository

import (
	"EduTask/internal/modules/notification/domain/notification"
	"context"
	"time"
)

// DeliveryRepository 扇出审计记录
type DeliveryRepository interface {
	// Create 写入一次扇出的统计
	Create(ctx context.Context, d *notification.Delivery) error

	// ListRecent 按时间倒序取最近的记录
	ListRecent(ctx context.Context, limit int) ([]*notification.Delivery, error)

	// DeleteBefore 清理过期记录，返回删除条数
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
