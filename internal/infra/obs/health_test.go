package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestReadyzListsFailingChecks(t *testing.T) {
	h := HealthHandlers{Checks: []Check{
		{Name: "store", Probe: func(context.Context) error { return nil }},
		{Name: "redis", Probe: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}}
	r := gin.New()
	r.GET("/readyz", h.Readyz)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body.Checks["redis"]; !ok || len(body.Checks) != 1 {
		t.Fatalf("checks = %v", body.Checks)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	var buf bytes.Buffer
	m := Middleware{Logger: newLogger(&buf, "prod", slog.LevelInfo)}
	r := gin.New()
	r.Use(m.RequestID(), m.AccessLog())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen != "req-42" || rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id = %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}
	line := buf.String()
	if !strings.Contains(line, `"level":"WARN"`) || !strings.Contains(line, `"request_id":"req-42"`) {
		t.Fatalf("access log = %s", line)
	}
}
