package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name      string
		path      string
		tls       bool
		wantCache string
		wantHSTS  string
	}{
		{"page", "/", false, "", ""},
		{"api over tls", "/api/balance", true, "no-store", "max-age=31536000; includeSubDomains"},
		{"summary fragment", "/ui/summary", false, "no-store", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
			assert.Equal(t, "same-origin", rr.Header().Get("Referrer-Policy"))
			assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "script-src 'self' https://unpkg.com")
			assert.Equal(t, tt.wantCache, rr.Header().Get("Cache-Control"))
			assert.Equal(t, tt.wantHSTS, rr.Header().Get("Strict-Transport-Security"))
		})
	}
}

func TestHeadersMiddleware_EmptyConfig(t *testing.T) {
	h := NewHeadersMiddleware(HeadersConfig{}).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rr.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, rr.Header().Get("Cache-Control"))
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{"plain page", http.MethodGet, "/", "Mozilla/5.0", false},
		{"api call from curl", http.MethodGet, "/api/totals?period=week", "curl/8.0", false},
		{"path traversal", http.MethodGet, "/static/../../etc/passwd", "", true},
		{"dotenv probe", http.MethodGet, "/.env", "", true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			assert.Equal(t, tt.want, d.DetectSuspiciousRequest(req))
		})
	}
	assert.Equal(t, int64(4), d.GetMetrics().SuspiciousRequests)
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "198.51.100.2", d.ExtractClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:80"
	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(req))

	require.NoError(t, d.AddTrustedProxy("198.51.100.0/24"))
	assert.Error(t, d.AddTrustedProxy("not-a-cidr"))
}

func TestDetectorMiddlewareRejectsTrace(t *testing.T) {
	d := NewDetector()
	called := false
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("TRACE", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.False(t, called)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.env", nil))
	assert.True(t, called)
}
