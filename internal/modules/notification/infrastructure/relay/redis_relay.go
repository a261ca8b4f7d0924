package relay

import (
	"context"
	"errors"

	"EduTask/pkg/redis"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

type redisRelay struct {
	channel string
}

// NewRedisRelay 基于 Redis PUBLISH/SUBSCRIBE，需先完成 redis.SetClient
func NewRedisRelay(channel string) (Relay, error) {
	if !redis.IsConnected() {
		return nil, redis.ErrNotConnected
	}
	if channel == "" {
		return nil, errors.New("relay: redis channel is empty")
	}
	return &redisRelay{channel: channel}, nil
}

func (r *redisRelay) Publish(ctx context.Context, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = redis.Publish(ctx, r.channel, b)
	return err
}

func (r *redisRelay) Run(ctx context.Context, deliver func(Message)) error {
	ps, err := redis.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay: redis subscription closed")
			}
			m, err := Decode([]byte(msg.Payload))
			if err != nil {
				zlog.Warn("relay: drop malformed redis message", zap.Error(err))
				continue
			}
			deliver(m)
		}
	}
}

func (r *redisRelay) Close() error { return nil }
