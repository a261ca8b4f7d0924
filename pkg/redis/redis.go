package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

var ErrNotConnected = errors.New("redis not connected")

// SetClient 设置 Redis 客户端（由 internal/initial 调用）
func SetClient(c *redis.Client) {
	client = c
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func IsConnected() bool {
	return client != nil
}

func checkClient() error {
	if client == nil {
		return ErrNotConnected
	}
	return nil
}

// ==================== Key ====================

func Del(ctx context.Context, keys ...string) (int64, error) {
	if err := checkClient(); err != nil {
		return 0, err
	}
	return client.Del(ctx, keys...).Result()
}

// ==================== Hash ====================

func HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if err := checkClient(); err != nil {
		return 0, err
	}
	return client.HDel(ctx, key, fields...).Result()
}

// ==================== Pub/Sub ====================

// Publish 返回收到消息的订阅者数量
func Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	if err := checkClient(); err != nil {
		return 0, err
	}
	return client.Publish(ctx, channel, message).Result()
}

// Subscribe 调用方负责 Close 返回的 PubSub
func Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if err := checkClient(); err != nil {
		return nil, err
	}
	ps := client.Subscribe(ctx, channels...)
	// 等待订阅确认，避免订阅前的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// ==================== Pipeline ====================

// TxPipeline 获取事务管道
func TxPipeline() redis.Pipeliner {
	if client == nil {
		return nil
	}
	return client.TxPipeline()
}
