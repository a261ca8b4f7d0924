package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtMiddleware "EduTask/internal/middleware/jwt"
	"EduTask/internal/modules/notification/application/service"
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"
	"EduTask/pkg/xerr"

	"github.com/gin-gonic/gin"
)

type stubChannel struct {
	id     string
	writes int
}

func (s *stubChannel) ID() string         { return s.id }
func (s *stubChannel) IsOpen() bool       { return true }
func (s *stubChannel) Send(_ []byte) bool { s.writes++; return true }

type stubAudit struct {
	rows []*notification.Delivery
	err  error
}

func (a *stubAudit) Create(context.Context, *notification.Delivery) error { return nil }

func (a *stubAudit) ListRecent(_ context.Context, limit int) ([]*notification.Delivery, error) {
	return a.rows, a.err
}

func (a *stubAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type body struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	router *gin.Engine
	reg    *ws.Registry
	token  string
}

func newHarness(t *testing.T, audit *stubAudit) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := ws.NewRegistry()
	jm := myjwt.NewManager("k", "EduTask", 1)
	bc := service.NewBroadcaster(reg, service.BroadcasterOptions{NodeID: "n1"})

	var h *NotificationHandler
	if audit != nil {
		h = NewNotificationHandler(bc, reg, audit)
	} else {
		h = NewNotificationHandler(bc, reg, nil)
	}

	r := gin.New()
	g := r.Group("/notification", jwtMiddleware.Auth(jm))
	g.POST("/send", h.Send)
	g.POST("/broadcast", h.Broadcast)
	g.GET("/online", h.Online)
	g.GET("/deliveries", h.ListDeliveries)

	tok, err := jm.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return &harness{router: r, reg: reg, token: tok}
}

func (h *harness) do(t *testing.T, method, path, payload string, authed bool) body {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("http status %d", w.Code)
	}
	var b body
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode body %s: %v", w.Body.String(), err)
	}
	return b
}

func TestSendRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	b := h.do(t, http.MethodPost, "/notification/send", `{"userIds":["u1"],"title":"x"}`, false)
	if b.Code != xerr.Unauthorized {
		t.Fatalf("expected 401 code, got %+v", b)
	}
}

func TestSendDeliversToRegisteredChannels(t *testing.T) {
	h := newHarness(t, nil)
	ch := &stubChannel{id: "c1"}
	h.reg.Associate("u1", ch)

	b := h.do(t, http.MethodPost, "/notification/send",
		`{"userIds":["u1","u2"],"kind":"task_assigned","title":"Task Assigned","message":"m","severity":"info","taskId":9}`, true)
	if b.Code != xerr.OK {
		t.Fatalf("unexpected response %+v", b)
	}
	var res struct {
		Targets   int `json:"targets"`
		Delivered int `json:"delivered"`
	}
	if err := json.Unmarshal(b.Data, &res); err != nil {
		t.Fatalf("data: %v", err)
	}
	if res.Targets != 2 || res.Delivered != 1 || ch.writes != 1 {
		t.Fatalf("unexpected result %+v writes=%d", res, ch.writes)
	}
}

func TestSendValidatesBody(t *testing.T) {
	h := newHarness(t, nil)
	for _, payload := range []string{
		`{"userIds":[],"title":"x"}`,
		`{"userIds":["u1"]}`,
		`{"userIds":[""],"title":"x"}`,
		`not json`,
	} {
		if b := h.do(t, http.MethodPost, "/notification/send", payload, true); b.Code != xerr.BadRequest {
			t.Fatalf("%s: expected 400 code, got %+v", payload, b)
		}
	}
}

func TestBroadcastAndOnline(t *testing.T) {
	h := newHarness(t, nil)
	a, c := &stubChannel{id: "a"}, &stubChannel{id: "c"}
	h.reg.Associate("admin", a)
	h.reg.Associate("u2", c)

	if b := h.do(t, http.MethodPost, "/notification/broadcast", `{"title":"Holiday","severity":"success"}`, true); b.Code != xerr.OK {
		t.Fatalf("broadcast: %+v", b)
	}
	if a.writes != 1 || c.writes != 1 {
		t.Fatalf("writes a=%d c=%d", a.writes, c.writes)
	}

	b := h.do(t, http.MethodGet, "/notification/online", "", true)
	var online struct {
		NodeId     string `json:"nodeId"`
		Channels   int    `json:"channels"`
		Identities int    `json:"identities"`
		Mine       int    `json:"mine"`
	}
	if err := json.Unmarshal(b.Data, &online); err != nil {
		t.Fatalf("data: %v", err)
	}
	if online.NodeId != "n1" || online.Channels != 2 || online.Identities != 2 || online.Mine != 1 {
		t.Fatalf("online %+v", online)
	}
}

func TestListDeliveries(t *testing.T) {
	if b := newHarness(t, nil).do(t, http.MethodGet, "/notification/deliveries", "", true); b.Code != xerr.NotFound {
		t.Fatalf("expected 404 when audit disabled, got %+v", b)
	}

	h := newHarness(t, &stubAudit{rows: []*notification.Delivery{{DeliveryId: "d1", Kind: "general", Delivered: 3}}})
	b := h.do(t, http.MethodGet, "/notification/deliveries?limit=10", "", true)
	var items []struct {
		DeliveryId string `json:"deliveryId"`
		Delivered  int    `json:"delivered"`
	}
	if err := json.Unmarshal(b.Data, &items); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(items) != 1 || items[0].DeliveryId != "d1" || items[0].Delivered != 3 {
		t.Fatalf("items %+v", items)
	}

	h = newHarness(t, &stubAudit{err: errors.New("db down")})
	if b := h.do(t, http.MethodGet, "/notification/deliveries", "", true); b.Code != xerr.InternalServerError {
		t.Fatalf("expected 500 code, got %+v", b)
	}
}
