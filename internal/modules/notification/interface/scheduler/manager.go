package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EduTask/internal/modules/notification/domain/repository"
	"EduTask/internal/modules/notification/infrastructure/presence"
	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Options 维护任务的调度表达式，空表达式表示不启用该任务
type Options struct {
	StatsSpec     string
	PresenceSpec  string
	RetentionSpec string
	// Retention 扇出记录保留时长
	Retention time.Duration
}

// SchedulerManager 通知服务的周期维护：在线统计日志、在线状态重建、记录清理
type SchedulerManager struct {
	cron     *cron.Cron
	registry *ws.Registry
	tracker  presence.Tracker
	audit    repository.DeliveryRepository
	opts     Options

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

func NewSchedulerManager(registry *ws.Registry, tracker presence.Tracker, audit repository.DeliveryRepository, opts Options) *SchedulerManager {
	if tracker == nil {
		tracker = presence.Nop{}
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	return &SchedulerManager{
		// 使用标准5段Cron表达式（不含秒），同时支持 @every
		cron:     cron.New(),
		registry: registry,
		tracker:  tracker,
		audit:    audit,
		opts:     opts,
		entries:  make(map[string]cron.EntryID),
	}
}

func (m *SchedulerManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if err := m.add("stats", m.opts.StatsSpec, m.LogStats); err != nil {
		return err
	}
	if err := m.add("presence", m.opts.PresenceSpec, m.RefreshPresence); err != nil {
		return err
	}
	if m.audit != nil {
		if err := m.add("retention", m.opts.RetentionSpec, m.PurgeDeliveries); err != nil {
			return err
		}
	}

	m.cron.Start()
	m.started = true
	zlog.Info("notification scheduler started", zap.Int("jobs", len(m.entries)))
	return nil
}

// Stop 等待正在执行的任务结束
func (m *SchedulerManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	<-m.cron.Stop().Done()
	m.started = false
}

// Jobs 返回已注册的任务名
func (m *SchedulerManager) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	return out
}

func (m *SchedulerManager) add(name, spec string, fn func()) error {
	if spec == "" {
		return nil
	}
	id, err := m.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				zlog.Error("scheduler job panic", zap.String("job", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	m.entries[name] = id
	return nil
}

func (m *SchedulerManager) LogStats() {
	s := m.registry.Stats()
	zlog.Info("notify registry stats", zap.Int("channels", s.Channels), zap.Int("identities", s.Identities))
}

// RefreshPresence 按注册表当前快照重建本节点在线数据并续期
func (m *SchedulerManager) RefreshPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.tracker.Sync(ctx, m.registry.Counts()); err != nil {
		zlog.Warn("presence refresh failed", zap.Error(err))
	}
}

func (m *SchedulerManager) PurgeDeliveries() {
	if m.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := m.audit.DeleteBefore(ctx, time.Now().Add(-m.opts.Retention))
	if err != nil {
		zlog.Warn("purge deliveries failed", zap.Error(err))
		return
	}
	if n > 0 {
		zlog.Info("purged deliveries", zap.Int64("rows", n))
	}
}
