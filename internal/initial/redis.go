package initial

import (
	"context"
	"fmt"
	"time"

	"EduTask/internal/config"
	"EduTask/pkg/redis"
	"EduTask/pkg/zlog"

	goredis "github.com/redis/go-redis/v9"
)

// InitRedis 连接成功后设置到 pkg/redis；未配置主机时返回 false
func InitRedis(conf *config.Config) (bool, error) {
	host := conf.RedisConfig.Host
	port := conf.RedisConfig.Port

	// 如果未配置主机，则跳过 Redis 初始化
	if host == "" {
		zlog.Info("Redis 未配置，跳过初始化")
		return false, nil
	}

	if port == 0 {
		port = 6379
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	zlog.Info(fmt.Sprintf("Redis connecting: %s", addr))

	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     conf.RedisConfig.Password,
		DB:           conf.RedisConfig.DB,
		PoolSize:     conf.RedisConfig.PoolSize,
		MinIdleConns: conf.RedisConfig.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return false, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	redis.SetClient(client)
	zlog.Info("Redis 连接成功")
	return true, nil
}
