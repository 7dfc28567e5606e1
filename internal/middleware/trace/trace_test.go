package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ledgerwidget/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(log.New(log.Config{Level: slog.LevelDebug, Output: &buf}), func(*http.Request) string { return "10.0.0.1" })

	var seenID string
	var seenLogger *log.Logger
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/balance", nil))

	assert.True(t, strings.HasPrefix(seenID, "req_"))
	assert.Equal(t, seenID, rr.Header().Get(RequestIDHeader))
	assert.Equal(t, log.ComponentHTTP, seenLogger.Component())
	assert.Contains(t, buf.String(), "HTTP request started")
	assert.Contains(t, buf.String(), "status_code=418")
	assert.Contains(t, buf.String(), "client_ip=10.0.0.1")

	metrics := m.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRequests)
	assert.Equal(t, int64(0), metrics.TotalErrors)
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "abc123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, int64(1), m.GetMetrics().TotalErrors)
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
