package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"EduTask/pkg/zlog"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 连接状态：Open -> Associated -> Closing -> Closed，不可回退
const (
	StateOpen int32 = iota
	StateAssociated
	StateClosing
	StateClosed
)

var ErrClosed = errors.New("ws: connection closed")

type ConnOptions struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func (o *ConnOptions) normalize() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 16
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
}

type outbound struct {
	data       []byte
	closeAfter bool
}

// Conn 基于 gorilla 连接的 Channel 实现。
// 所有写操作由 writePump 单协程完成，保证同一连接上的消息顺序。
type Conn struct {
	id       string
	identity string
	conn     *websocket.Conn
	opts     ConnOptions
	send     chan outbound
	done     chan struct{}
	state    atomic.Int32

	mu      sync.Mutex
	onClose []func(*Conn)

	closeOnce sync.Once
}

var _ Channel = (*Conn)(nil)

// NewConn identity 为升级时已校验过的身份
func NewConn(id, identity string, conn *websocket.Conn, opts ConnOptions) *Conn {
	opts.normalize()
	return &Conn{
		id:       id,
		identity: identity,
		conn:     conn,
		opts:     opts,
		send:     make(chan outbound, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// VerifiedIdentity 升级请求中 token 对应的身份
func (c *Conn) VerifiedIdentity() string { return c.identity }

func (c *Conn) State() int32 { return c.state.Load() }

func (c *Conn) IsOpen() bool {
	s := c.state.Load()
	return s == StateOpen || s == StateAssociated
}

// MarkAssociated Open -> Associated，重复调用无副作用
func (c *Conn) MarkAssociated() bool {
	return c.state.CompareAndSwap(StateOpen, StateAssociated) || c.state.Load() == StateAssociated
}

// OnClose 注册关闭回调，在 Close 中同步执行
func (c *Conn) OnClose(fn func(*Conn)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Send 非阻塞入队；缓冲区满视为慢连接，直接关闭
func (c *Conn) Send(payload []byte) bool {
	if len(payload) == 0 || !c.IsOpen() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- outbound{data: payload}:
		return true
	case <-c.done:
		return false
	default:
		zlog.Warn("ws send buffer full, closing", zap.String("conn_id", c.id), zap.String("identity", c.identity))
		c.Close()
		return false
	}
}

// Reject 发送最后一条消息后关闭连接，之后不再接受任何推送
func (c *Conn) Reject(payload []byte) {
	for {
		s := c.state.Load()
		if s == StateClosing || s == StateClosed {
			return
		}
		if c.state.CompareAndSwap(s, StateClosing) {
			break
		}
	}
	c.runOnClose()
	select {
	case c.send <- outbound{data: payload, closeAfter: true}:
	default:
		c.Close()
	}
}

// Close 幂等；关闭回调在返回前执行完毕
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(StateClosed)
		c.runOnClose()
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Conn) runOnClose() {
	c.mu.Lock()
	fns := c.onClose
	c.onClose = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Done 连接关闭后返回
func (c *Conn) Done() <-chan struct{} { return c.done }

// Serve 启动写协程并阻塞读取，直到连接出错或关闭。每条文本帧交给 onMessage。
func (c *Conn) Serve(onMessage func(data []byte)) {
	if c.conn == nil {
		return
	}
	defer c.Close()

	go c.writePump()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				zlog.Warn("ws read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		onMessage(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				zlog.Warn("ws write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
			if msg.closeAfter {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "identity mismatch"),
					time.Now().Add(c.opts.WriteWait))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}
