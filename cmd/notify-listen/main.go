package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"EduTask/internal/config"
	"EduTask/pkg/notifyclient"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	conf := config.GetConfig()
	cc := conf.ClientConfig

	origin := flag.String("origin", cc.Origin, "server origin, http(s)://host:port")
	path := flag.String("path", cc.Path, "websocket path")
	token := flag.String("token", cc.Token, "session token")
	userID := flag.String("user", cc.UserID, "identity announced in the auth message")
	flag.Parse()

	if *token == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "notify-listen: -token and -user are required")
		os.Exit(2)
	}

	store := notifyclient.NewStore(notifyclient.AlerterFunc(func(level notifyclient.AlertLevel, n notifyclient.Notification) {
		fields := []zap.Field{
			zap.String("kind", string(n.Kind)),
			zap.String("title", n.Title),
			zap.String("message", n.Message),
			zap.String("severity", string(n.Severity)),
		}
		if n.TaskID != nil {
			fields = append(fields, zap.Int64("task_id", *n.TaskID))
		}
		if level == notifyclient.AlertBlocking {
			zlog.Error("notification", fields...)
			return
		}
		zlog.Info("notification", fields...)
	}))

	r := cc.Reconnect
	m, err := notifyclient.NewManager(
		notifyclient.StaticSession{Identity: *userID, Token: *token},
		store,
		notifyclient.Options{
			Origin: *origin,
			Path:   *path,
			Backoff: notifyclient.Backoff{
				Initial:     r.InitialDelay.Duration,
				Multiplier:  r.Multiplier,
				Max:         r.MaxDelay.Duration,
				MaxAttempts: r.MaxAttempts,
				Jitter:      r.Jitter,
			},
			ReadTimeout: conf.NotifyConfig.PongWait.Duration + conf.NotifyConfig.WriteWait.Duration,
		},
	)
	if err != nil {
		zlog.Fatal("notify-listen: bad options", zap.Error(err))
	}
	m.OnStateChange(func(s notifyclient.State) {
		zlog.Info("channel state", zap.String("state", s.String()), zap.Int("unread", store.UnreadCount()))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Info("connecting", zap.String("endpoint", m.Endpoint()), zap.String("user", *userID))
	if err := m.Connect(ctx); err != nil {
		zlog.Warn("first connect failed, retrying in background", zap.Error(err))
	}

	<-ctx.Done()
	zlog.Info("shutting down", zap.Int("received", len(store.Notifications())), zap.Int("unread", store.UnreadCount()))
	m.Close()
	_ = zlog.Sync()
}
