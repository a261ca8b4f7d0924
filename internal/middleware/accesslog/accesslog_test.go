package accesslog

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIsLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(New(zap.New(core)))
	r.GET("/items/:id", func(c *gin.Context) {
		c.Set("uuid", "u1")
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["path"] != "/items/:id" || ctx["status"] != int64(http.StatusNoContent) || ctx["uuid"] != "u1" {
		t.Fatalf("fields %v", ctx)
	}
}
