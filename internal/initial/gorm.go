package initial

import (
	"fmt"
	"log"
	"os"
	"time"

	"EduTask/internal/config"
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormDB 未配置 MySQL 主机时返回 nil，扇出记录随之关闭
func NewGormDB(conf *config.Config) (*gorm.DB, error) {
	mc := conf.MysqlConfig
	if mc.Host == "" {
		zlog.Info("MySQL 未配置，跳过初始化")
		return nil, nil
	}
	dbName := mc.DatabaseName
	if dbName == "" {
		dbName = conf.AppName
	}
	port := mc.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", mc.User, mc.Password, mc.Host, port, dbName)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	// 自动迁移，如果没有建表，会自动创建对应的表
	if err := db.AutoMigrate(&notification.Delivery{}); err != nil {
		return nil, err
	}
	zlog.Info("MySQL 连接成功", zap.String("host", mc.Host), zap.String("db", dbName))
	return db, nil
}
