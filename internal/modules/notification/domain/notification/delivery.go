package notification

import "time"

// Delivery 一次扇出的审计记录，只做统计，不用于补发
type Delivery struct {
	Id         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DeliveryId string    `gorm:"column:delivery_id;type:char(36);uniqueIndex;not null"`
	Kind       string    `gorm:"column:kind;type:varchar(30);index;not null"`
	Title      string    `gorm:"column:title;type:varchar(200)"`
	Severity   string    `gorm:"column:severity;type:varchar(10);not null"`
	TaskId     *int64    `gorm:"column:task_id;index"`
	Broadcast  bool      `gorm:"column:broadcast;not null;default:false"`
	Relayed    bool      `gorm:"column:relayed;not null;default:false"`
	Targets    string    `gorm:"column:targets;type:text"`
	TargetCnt  int       `gorm:"column:target_cnt;not null;default:0"`
	Delivered  int       `gorm:"column:delivered;not null;default:0"`
	Skipped    int       `gorm:"column:skipped;not null;default:0"`
	NodeId     string    `gorm:"column:node_id;type:varchar(64)"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (Delivery) TableName() string {
	return "notification_delivery"
}
