package notifyclient

import (
	"sync"
	"time"

	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/util"
)

// MaxNotifications 本地最多保留的通知条数
const MaxNotifications = 50

type Notification struct {
	ID         string
	Kind       notification.Kind
	Title      string
	Message    string
	Severity   notification.Severity
	TaskID     *int64
	ReceivedAt time.Time
	// SentAt 服务端时间戳，缺失时为零值
	SentAt time.Time
	Read   bool
}

type AlertLevel int

const (
	// AlertPassive 短暂提示，自动消失
	AlertPassive AlertLevel = iota
	// AlertBlocking 需要用户确认
	AlertBlocking
)

type Alerter interface {
	Alert(level AlertLevel, n Notification)
}

type AlerterFunc func(level AlertLevel, n Notification)

func (f AlerterFunc) Alert(level AlertLevel, n Notification) { f(level, n) }

// Store 单个客户端的通知列表与未读数，最新的在前
type Store struct {
	mu       sync.Mutex
	items    []Notification
	unread   int
	alerter  Alerter
	onChange func()
	now      func() time.Time
}

// NewStore alerter 可为空
func NewStore(alerter Alerter) *Store {
	return &Store{alerter: alerter, now: time.Now}
}

// OnChange 每次变更后调用，用于刷新界面
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnReceive 记录一条新通知并触发提示
func (s *Store) OnReceive(env notification.Envelope) Notification {
	p := env.Payload()
	n := Notification{
		ID:         util.GenerateUUID(),
		Kind:       p.Kind,
		Title:      p.Title,
		Message:    p.Message,
		Severity:   p.Severity,
		TaskID:     p.TaskID,
		ReceivedAt: s.now(),
		SentAt:     env.Time(),
	}

	s.mu.Lock()
	items := make([]Notification, 0, min(len(s.items)+1, MaxNotifications))
	items = append(items, n)
	for _, old := range s.items {
		if len(items) == MaxNotifications {
			break
		}
		items = append(items, old)
	}
	s.items = items
	s.unread = countUnread(items)
	alerter, cb := s.alerter, s.onChange
	s.mu.Unlock()

	if alerter != nil {
		level := AlertPassive
		if n.Severity == notification.SeverityError {
			level = AlertBlocking
		}
		alerter.Alert(level, n)
	}
	if cb != nil {
		cb()
	}
	return n
}

// MarkAsRead 已读或不存在时不做任何事
func (s *Store) MarkAsRead(id string) {
	s.mutate(func() bool {
		for i := range s.items {
			if s.items[i].ID != id {
				continue
			}
			if s.items[i].Read {
				return false
			}
			s.items[i].Read = true
			s.unread = max(s.unread-1, 0)
			return true
		}
		return false
	})
}

func (s *Store) MarkAllAsRead() {
	s.mutate(func() bool {
		for i := range s.items {
			s.items[i].Read = true
		}
		s.unread = 0
		return true
	})
}

// Remove 删除指定通知，无论是否已读
func (s *Store) Remove(id string) {
	s.mutate(func() bool {
		for i := range s.items {
			if s.items[i].ID != id {
				continue
			}
			if !s.items[i].Read {
				s.unread = max(s.unread-1, 0)
			}
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
		return false
	})
}

func (s *Store) Clear() {
	s.mutate(func() bool {
		s.items = nil
		s.unread = 0
		return true
	})
}

// Notifications 返回副本
func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	cb := s.onChange
	s.mu.Unlock()
	if changed && cb != nil {
		cb()
	}
}

func countUnread(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}
