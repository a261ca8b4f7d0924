package accesslog

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// New 用 zap 记录每个请求；websocket 升级请求在连接结束后才会记录
func New(l *zap.Logger) gin.HandlerFunc {
	l = l.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uuid := c.GetString("uuid"); uuid != "" {
			fields = append(fields, zap.String("uuid", uuid))
		}
		if len(c.Errors) > 0 {
			l.Warn(c.Errors.String(), fields...)
			return
		}
		l.Info("request", fields...)
	}
}
