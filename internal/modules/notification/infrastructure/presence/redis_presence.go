package presence

import (
	"context"
	"strconv"
	"time"

	"EduTask/pkg/redis"
)

// Tracker 记录各身份在本节点的在线连接数
type Tracker interface {
	Update(ctx context.Context, identity string, live int) error
	// Sync 用完整快照覆盖本节点数据并续期，修正乱序或丢失的增量更新
	Sync(ctx context.Context, counts map[string]int) error
	// Clear 节点下线时删除本节点数据
	Clear(ctx context.Context) error
}

type redisTracker struct {
	key string
	ttl time.Duration
}

// NewRedisTracker 每个节点一个 hash：<prefix>:<nodeID>，field 为身份，value 为连接数
func NewRedisTracker(prefix, nodeID string, ttl time.Duration) Tracker {
	return &redisTracker{key: prefix + ":" + nodeID, ttl: ttl}
}

func (t *redisTracker) Update(ctx context.Context, identity string, live int) error {
	if live <= 0 {
		_, err := redis.HDel(ctx, t.key, identity)
		return err
	}
	pipe := redis.TxPipeline()
	if pipe == nil {
		return redis.ErrNotConnected
	}
	pipe.HSet(ctx, t.key, identity, strconv.Itoa(live))
	pipe.Expire(ctx, t.key, t.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *redisTracker) Sync(ctx context.Context, counts map[string]int) error {
	pipe := redis.TxPipeline()
	if pipe == nil {
		return redis.ErrNotConnected
	}
	pipe.Del(ctx, t.key)
	fields := make(map[string]interface{}, len(counts))
	for identity, live := range counts {
		if live > 0 {
			fields[identity] = strconv.Itoa(live)
		}
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, t.key, fields)
		pipe.Expire(ctx, t.key, t.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (t *redisTracker) Clear(ctx context.Context) error {
	_, err := redis.Del(ctx, t.key)
	return err
}

// Nop 未配置 Redis 时使用
type Nop struct{}

func (Nop) Update(context.Context, string, int) error  { return nil }
func (Nop) Sync(context.Context, map[string]int) error { return nil }
func (Nop) Clear(context.Context) error                { return nil }
