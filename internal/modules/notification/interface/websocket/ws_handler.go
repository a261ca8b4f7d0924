package websocket

import (
	"net/http"

	"EduTask/internal/config"
	jwtMiddleware "EduTask/internal/middleware/jwt"
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/util"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WsHandler 通知通道：升级、握手、维持连接
//
// 升级请求必须携带业务 token（?token= 或 Authorization 头），
// 连接随后发送的 auth 消息中 userId 必须与 token 身份一致，否则关闭连接。
type WsHandler struct {
	registry *ws.Registry
	jwt      *myjwt.Manager
	upgrader websocket.Upgrader
	connOpts ws.ConnOptions
}

func NewWsHandler(registry *ws.Registry, jwt *myjwt.Manager, conf config.NotifyConfig) *WsHandler {
	return &WsHandler{
		registry: registry,
		jwt:      jwt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(conf.AllowedOrigins),
		},
		connOpts: ws.ConnOptions{
			SendBuffer:     conf.SendBuffer,
			MaxMessageSize: conf.MaxMessageSize,
			WriteWait:      conf.WriteWait.Duration,
			PongWait:       conf.PongWait.Duration,
			PingPeriod:     conf.PingPeriod.Duration,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 非浏览器客户端
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WsHandler) Connect(c *gin.Context) {
	claims, err := h.jwt.ParseToken(jwtMiddleware.TokenFromRequest(c))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := ws.NewConn(util.GenerateConnID(), claims.Uuid, raw, h.connOpts)
	conn.OnClose(func(cc *ws.Conn) {
		h.registry.Dissociate(cc)
		zlog.Info("notify channel closed", zap.String("conn_id", cc.ID()), zap.String("identity", cc.VerifiedIdentity()))
	})
	zlog.Info("notify channel opened", zap.String("conn_id", conn.ID()), zap.String("identity", claims.Uuid))

	conn.Serve(func(data []byte) {
		h.handleMessage(conn, data)
	})
}

func (h *WsHandler) handleMessage(conn *ws.Conn, data []byte) {
	env, err := notification.Decode(data)
	if err != nil {
		zlog.Warn("notify channel: malformed message ignored", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	switch env.Type {
	case notification.TypeAuth:
		h.authenticate(conn, env.UserID)
	case notification.TypePing:
		if conn.State() == ws.StateAssociated {
			sendEnvelope(conn, notification.Envelope{Type: notification.TypePong})
		}
	default:
		// 握手完成前的其他消息直接忽略
		zlog.Debug("notify channel: message ignored", zap.String("conn_id", conn.ID()), zap.String("type", env.Type))
	}
}

func (h *WsHandler) authenticate(conn *ws.Conn, userID string) {
	if userID == "" || userID != conn.VerifiedIdentity() {
		zlog.Warn("notify channel: identity mismatch, closing",
			zap.String("conn_id", conn.ID()),
			zap.String("claimed", userID),
			zap.String("verified", conn.VerifiedIdentity()))
		b, _ := notification.Marshal(notification.Envelope{Type: notification.TypeAuthError, Message: "identity does not match session"})
		conn.Reject(b)
		return
	}

	if !h.registry.Associate(userID, conn) {
		return
	}
	// 与并发关闭竞争时，关闭回调可能先于登记执行
	if !conn.IsOpen() {
		h.registry.Dissociate(conn)
		return
	}
	conn.MarkAssociated()
	sendEnvelope(conn, notification.Envelope{Type: notification.TypeAuthSuccess})
}

func sendEnvelope(conn *ws.Conn, e notification.Envelope) {
	b, err := notification.Marshal(e)
	if err != nil {
		zlog.Error("notify channel: encode failed", zap.Error(err))
		return
	}
	conn.Send(b)
}
