package presence

import (
	"context"
	"sync"
	"time"

	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

// Follow 返回挂到 Registry 上的观察者。
// 回调在注册表解锁后才执行，多个回调可能乱序到达；
// 这里串行写入，并在写入时重新读取当前连接数，丢弃回调携带的旧值。
func Follow(registry *ws.Registry, tracker Tracker, timeout time.Duration) ws.Observer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	var mu sync.Mutex
	return func(identity string, _ int) {
		mu.Lock()
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		live := registry.LiveCount(identity)
		if err := tracker.Update(ctx, identity, live); err != nil {
			zlog.Warn("presence update failed", zap.String("identity", identity), zap.Int("live", live), zap.Error(err))
		}
	}
}
