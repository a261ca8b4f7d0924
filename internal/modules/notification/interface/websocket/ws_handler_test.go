package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EduTask/internal/config"
	"EduTask/internal/modules/notification/application/service"
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	srv      *httptest.Server
	registry *ws.Registry
	bc       *service.Broadcaster
	jwt      *myjwt.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := ws.NewRegistry()
	jm := myjwt.NewManager("test-key", "EduTask", 1)
	h := NewWsHandler(reg, jm, config.Default().NotifyConfig)

	r := gin.New()
	r.GET("/ws", h.Connect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		registry: reg,
		bc:       service.NewBroadcaster(reg, service.BroadcasterOptions{NodeID: "test"}),
		jwt:      jm,
	}
}

func (e *testEnv) dial(t *testing.T, identity string) *websocket.Conn {
	t.Helper()
	tok, err := e.jwt.GenerateToken(identity, identity)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + tok
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) notification.Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := notification.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := c.ReadMessage(); err == nil {
		t.Fatalf("unexpected message %s", data)
	}
}

func authenticate(t *testing.T, c *websocket.Conn, identity string) {
	t.Helper()
	send(t, c, `{"type":"auth","userId":"`+identity+`"}`)
	if env := read(t, c); env.Type != notification.TypeAuthSuccess {
		t.Fatalf("expected auth_success, got %+v", env)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHandshakeThenNotification(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")
	authenticate(t, a, "u1")

	if n := len(env.registry.ChannelsFor("u1")); n != 1 {
		t.Fatalf("expected 1 channel for u1, got %d", n)
	}

	res := env.bc.SendToUsers(context.Background(), []string{"u1"},
		notification.NewPayload(notification.KindTaskAssigned, "Task Assigned", "Read chapter 4", notification.SeverityInfo))
	if res.Delivered != 1 {
		t.Fatalf("result %+v", res)
	}

	got := read(t, a)
	if got.Type != notification.TypeNotification || got.Title != "Task Assigned" || got.Kind != notification.KindTaskAssigned {
		t.Fatalf("unexpected notification %+v", got)
	}
	expectSilence(t, a)
}

func TestTwoChannelsSameIdentityBothReceive(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")
	b := env.dial(t, "u1")
	authenticate(t, a, "u1")
	authenticate(t, b, "u1")

	env.bc.SendToUsers(context.Background(), []string{"u1"}, notification.NewPayload(notification.KindGeneral, "hello", "", ""))

	if got := read(t, a); got.Title != "hello" {
		t.Fatalf("a got %+v", got)
	}
	if got := read(t, b); got.Title != "hello" {
		t.Fatalf("b got %+v", got)
	}
}

func TestCloseRemovesChannelFromRegistry(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")
	authenticate(t, a, "u1")

	_ = a.Close()
	waitFor(t, func() bool { return env.registry.Stats().Identities == 0 })

	res := env.bc.SendToUsers(context.Background(), []string{"u1"}, notification.NewPayload(notification.KindGeneral, "lost", "", ""))
	if res.Delivered != 0 {
		t.Fatalf("expected no delivery after close, got %+v", res)
	}
}

func TestIdentityMismatchClosesChannel(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")

	send(t, a, `{"type":"auth","userId":"someone-else"}`)
	if got := read(t, a); got.Type != notification.TypeAuthError {
		t.Fatalf("expected auth_error, got %+v", got)
	}
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the channel")
	}
	if s := env.registry.Stats(); s.Channels != 0 {
		t.Fatalf("mismatched channel registered: %+v", s)
	}
}

func TestMalformedAndPreAuthMessagesAreIgnored(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")

	send(t, a, `{not json`)
	send(t, a, `{"type":"subscribe","topic":"tasks"}`)
	send(t, a, `{"type":"ping"}`)

	res := env.bc.SendToUsers(context.Background(), []string{"u1"}, notification.NewPayload(notification.KindGeneral, "early", "", ""))
	if res.Delivered != 0 {
		t.Fatalf("unauthenticated channel must not receive pushes: %+v", res)
	}

	// the first frame after auth must be auth_success: nothing was answered before it
	authenticate(t, a, "u1")
	send(t, a, `{"type":"ping"}`)
	if got := read(t, a); got.Type != notification.TypePong {
		t.Fatalf("expected pong, got %+v", got)
	}
}

func TestDuplicateAuthKeepsSingleRegistration(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "u1")
	authenticate(t, a, "u1")
	authenticate(t, a, "u1")

	if s := env.registry.Stats(); s.Channels != 1 || s.Identities != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestUpgradeWithoutTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://school.example"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	if !check(req("https://school.example")) || check(req("https://evil.example")) || !check(req("")) {
		t.Fatal("origin allow-list not applied")
	}
	if !originChecker(nil)(req("https://any.example")) || !originChecker([]string{"*"})(req("https://any.example")) {
		t.Fatal("empty list or * should allow every origin")
	}
}
