package notifyclient

import (
	"math"
	"math/rand"
	"time"
)

// Backoff 重连间隔。Multiplier<=1 为固定间隔，MaxAttempts=0 不限次数
type Backoff struct {
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
	// Jitter 取值 [0,1)，在计算结果上下浮动的比例
	Jitter float64
}

// DefaultBackoff 固定 3 秒、不限次数
func DefaultBackoff() Backoff {
	return Backoff{Initial: 3 * time.Second, Multiplier: 1}
}

var randFloat = rand.Float64

// Delay 第 attempt 次（从 0 开始）重连前的等待时间；超过次数上限时返回 false
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 3 * time.Second
	}
	d := float64(initial)
	if b.Multiplier > 1 {
		d *= math.Pow(b.Multiplier, float64(attempt))
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if j := min(max(b.Jitter, 0), 0.99); j > 0 {
		d += d * j * (randFloat()*2 - 1)
	}
	return time.Duration(d), true
}
