package notifyclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/zlog"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	// StateOpen 已连接，尚未完成握手
	StateOpen
	StateAuthenticated
	// StateDisconnected 主动断开，只有再次 Connect 才会离开
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Session struct {
	Identity string
	Token    string
}

// SessionProvider 返回当前登录会话，未登录时 ok=false
type SessionProvider interface {
	Session() (Session, bool)
}

// StaticSession 固定会话，适合命令行
type StaticSession Session

func (s StaticSession) Session() (Session, bool) {
	return Session(s), s.Identity != "" && s.Token != ""
}

// EndpointFromOrigin https→wss，http→ws，再拼上路径
func EndpointFromOrigin(origin, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("notifyclient: unsupported origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("notifyclient: origin has no host")
	}
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

type Options struct {
	Origin  string
	Path    string
	Backoff Backoff
	// ReadTimeout 超过该时间没有任何入站帧（含 ping）视为断线，0 表示不检测
	ReadTimeout time.Duration
	Dialer      *websocket.Dialer
}

// Manager 维护一个逻辑推送通道：连接、握手、断线后按 Backoff 重连
type Manager struct {
	opts     Options
	endpoint string
	session  SessionProvider
	store    *Store
	dialer   *websocket.Dialer

	mu       sync.Mutex
	state    State
	gen      uint64
	conn     *websocket.Conn
	timer    *time.Timer
	timerSeq uint64
	attempts int
	onState  func(State)

	writeMu sync.Mutex
}

func NewManager(session SessionProvider, store *Store, opts Options) (*Manager, error) {
	endpoint, err := EndpointFromOrigin(opts.Origin, opts.Path)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("notifyclient: session provider is nil")
	}
	if store == nil {
		store = NewStore(nil)
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff.Initial = DefaultBackoff().Initial
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	return &Manager{
		opts:     opts,
		endpoint: endpoint,
		session:  session,
		store:    store,
		dialer:   dialer,
	}, nil
}

func (m *Manager) Endpoint() string { return m.endpoint }

func (m *Manager) Store() *Store { return m.store }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected 握手完成才算已连接
func (m *Manager) Connected() bool {
	return m.State() == StateAuthenticated
}

// OnStateChange 每次状态变化时调用，回调内不要阻塞
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// Connect 未登录或已有活动连接时直接返回。会取消尚未触发的重连。
// 拨号失败时安排下一次重连并返回错误。
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, 0)
}

// connect expect 非零时来自重连定时器：仅当代数仍为 expect 且未主动断开时继续
func (m *Manager) connect(ctx context.Context, expect uint64) error {
	sess, ok := m.session.Session()
	if !ok {
		return nil
	}

	m.mu.Lock()
	if expect != 0 && (expect != m.gen || m.state == StateDisconnected) {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateConnecting || m.state == StateOpen || m.state == StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.gen++
	gen := m.gen
	notify := m.transitionLocked(StateConnecting)
	m.mu.Unlock()
	notify()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token)
	conn, _, err := m.dialer.DialContext(ctx, m.endpoint, header)
	if err != nil {
		zlog.Warn("notify channel dial failed", zap.String("endpoint", m.endpoint), zap.Error(err))
		m.dropped(gen)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		// 拨号期间已 Disconnect 或被新连接取代
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	notify = m.transitionLocked(StateOpen)
	m.mu.Unlock()
	notify()

	auth, err := notification.Marshal(notification.Envelope{Type: notification.TypeAuth, UserID: sess.Identity})
	if err == nil {
		err = m.write(conn, auth)
	}
	if err != nil {
		zlog.Warn("notify channel auth send failed", zap.Error(err))
		_ = conn.Close()
		m.dropped(gen)
		return err
	}

	go m.readLoop(conn, gen)
	return nil
}

// Disconnect 取消待触发的重连并关闭当前连接，可重复调用
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	notify := m.transitionLocked(StateDisconnected)
	m.mu.Unlock()
	notify()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
}

// SessionChanged 登录状态变化时由宿主调用：已登录则连接，否则断开并清空本地通知
func (m *Manager) SessionChanged(ctx context.Context) error {
	if _, ok := m.session.Session(); ok {
		return m.Connect(ctx)
	}
	m.Disconnect()
	m.store.Clear()
	return nil
}

// Close 退出时调用
func (m *Manager) Close() {
	m.Disconnect()
	m.store.Clear()
}

func (m *Manager) write(conn *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	defer conn.Close()

	if t := m.opts.ReadTimeout; t > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(t))
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !m.current(gen) {
				return
			}
			zlog.Warn("notify channel lost", zap.Error(err))
			m.dropped(gen)
			return
		}
		if t := m.opts.ReadTimeout; t > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t))
		}
		if !m.handle(gen, data) {
			_ = conn.Close()
			return
		}
	}
}

// handle 返回 false 表示不应继续读取
func (m *Manager) handle(gen uint64, data []byte) bool {
	env, err := notification.Decode(data)
	if err != nil {
		zlog.Warn("notify channel: malformed message ignored", zap.Error(err))
		return true
	}

	switch env.Type {
	case notification.TypeAuthSuccess:
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return false
		}
		m.attempts = 0
		notify := m.transitionLocked(StateAuthenticated)
		m.mu.Unlock()
		notify()
	case notification.TypeAuthError:
		// 身份与会话不一致，重连也不会成功
		zlog.Error("notify channel rejected", zap.String("reason", env.Message))
		m.mu.Lock()
		if gen == m.gen {
			m.cancelTimerLocked()
			m.gen++
			m.conn = nil
			notify := m.transitionLocked(StateDisconnected)
			m.mu.Unlock()
			notify()
		} else {
			m.mu.Unlock()
		}
		return false
	case notification.TypeNotification:
		if !m.current(gen) {
			return false
		}
		m.store.OnReceive(env)
	}
	return true
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// dropped 非主动断开：回到 Idle 并安排一次重连
func (m *Manager) dropped(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	delay, ok := m.opts.Backoff.Delay(m.attempts)
	var notify func()
	if !ok {
		zlog.Warn("notify channel: reconnect attempts exhausted", zap.Int("attempts", m.attempts))
		notify = m.transitionLocked(StateDisconnected)
	} else {
		m.attempts++
		m.cancelTimerLocked()
		seq := m.timerSeq
		m.timer = time.AfterFunc(delay, func() { m.fire(seq, gen) })
		notify = m.transitionLocked(StateIdle)
		zlog.Info("notify channel: reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", m.attempts))
	}
	m.mu.Unlock()
	notify()
}

func (m *Manager) fire(seq, gen uint64) {
	m.mu.Lock()
	if m.timer == nil || seq != m.timerSeq || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.timerSeq++
	m.mu.Unlock()

	_ = m.connect(context.Background(), gen)
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

// transitionLocked 返回的回调须在解锁后调用
func (m *Manager) transitionLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	cb := m.onState
	if cb == nil {
		return func() {}
	}
	return func() { cb(s) }
}
