package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"EduTask/internal/config"
	"EduTask/internal/modules/notification/application/service"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"

	"github.com/gin-gonic/gin"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	reg := ws.NewRegistry()
	return NewEngine(Deps{
		Conf:     config.Default(),
		Registry: reg,
		Sender:   service.NewBroadcaster(reg, service.BroadcasterOptions{NodeID: "t"}),
		Jwt:      myjwt.NewManager("k", "EduTask", 1),
	})
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newTestEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestRoutesAreMounted(t *testing.T) {
	e := newTestEngine()

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ws without token: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notification/online", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"code":401`) {
		t.Fatalf("online without token: status %d body %s", w.Code, w.Body.String())
	}
}
