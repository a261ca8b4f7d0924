package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	https_server "EduTask/api/http"
	"EduTask/internal/config"
	"EduTask/internal/initial"
	"EduTask/internal/modules/notification/application/service"
	"EduTask/internal/modules/notification/domain/repository"
	"EduTask/internal/modules/notification/infrastructure/persistence"
	"EduTask/internal/modules/notification/infrastructure/presence"
	"EduTask/internal/modules/notification/interface/scheduler"
	"EduTask/pkg/redis"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	if err := zlog.Init(zlog.Options{
		LogPath:    conf.LogConfig.LogPath,
		Level:      conf.LogConfig.Level,
		MaxSizeMB:  conf.LogConfig.MaxSizeMB,
		MaxBackups: conf.LogConfig.MaxBackups,
		MaxAgeDays: conf.LogConfig.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()

	if conf.JwtConfig.Key == "" {
		zlog.Fatal("jwtConfig.key is required")
	}
	jm := myjwt.NewManager(conf.JwtConfig.Key, conf.JwtConfig.Issuer, conf.JwtConfig.ExpireHours)
	nodeID := conf.NotifyConfig.NodeID

	// 2. 外部依赖，均为可选
	var audit repository.DeliveryRepository
	if conf.NotifyConfig.AuditEnabled {
		db, err := initial.NewGormDB(conf)
		if err != nil {
			zlog.Fatal("mysql init failed", zap.Error(err))
		}
		if db != nil {
			audit = persistence.NewDeliveryRepository(db)
		}
	}

	redisOK, err := initial.InitRedis(conf)
	if err != nil {
		zlog.Error("redis init failed, presence disabled", zap.Error(err))
	}
	defer redis.Close()

	rl, err := initial.NewRelay(conf, nodeID)
	if err != nil {
		zlog.Fatal("relay init failed", zap.Error(err))
	}

	// 3. 通知核心
	registry := ws.NewRegistry()
	var tracker presence.Tracker = presence.Nop{}
	if redisOK {
		tracker = presence.NewRedisTracker(conf.NotifyConfig.PresenceKey, nodeID, conf.NotifyConfig.PresenceTTL.Duration)
		registry.SetObserver(presence.Follow(registry, tracker, 2*time.Second))
	}

	bc := service.NewBroadcaster(registry, service.BroadcasterOptions{NodeID: nodeID, Relay: rl, Audit: audit})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		if err := bc.Run(ctx); err != nil {
			zlog.Error("notify relay stopped", zap.Error(err))
		}
	}()

	sched := scheduler.NewSchedulerManager(registry, tracker, audit, scheduler.Options{
		StatsSpec:     conf.NotifyConfig.StatsCron,
		PresenceSpec:  fmt.Sprintf("@every %s", conf.NotifyConfig.PresenceTTL.Duration/2),
		RetentionSpec: "@daily",
	})
	if err := sched.Start(); err != nil {
		zlog.Fatal("scheduler start failed", zap.Error(err))
	}

	// 4. 启动 HTTP 服务
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: https_server.NewEngine(https_server.Deps{
			Conf:     conf,
			Registry: registry,
			Sender:   bc,
			Jwt:      jm,
			Audit:    audit,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("服务器正在启动", zap.String("addr", addr), zap.String("node", nodeID), zap.String("relay", conf.NotifyConfig.Relay))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 5. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
	// 已升级的连接不受 Shutdown 管理
	for _, ch := range registry.All() {
		if c, ok := ch.(*ws.Conn); ok {
			c.Close()
		}
	}
	sched.Stop()
	stop()
	if rl != nil {
		if err := rl.Close(); err != nil {
			zlog.Warn("relay close", zap.Error(err))
		}
	}
	if err := tracker.Clear(shutdownCtx); err != nil {
		zlog.Warn("presence clear failed", zap.Error(err))
	}
	zlog.Info("服务器已关闭")
}
