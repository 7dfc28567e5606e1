// Package security applies response hardening headers and flags
// suspicious requests.
package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CacheRule sets Cache-Control on responses whose path starts with Prefix.
type CacheRule struct {
	Prefix string
	Value  string
}

// HeadersConfig describes the headers added to every ledger response.
type HeadersConfig struct {
	// CSP allows the htmx script from its CDN and nothing else off-site.
	CSP            string
	FrameOptions   string
	ReferrerPolicy string

	// HSTS is only sent over TLS; zero disables it.
	HSTSMaxAge time.Duration

	// First matching rule wins.
	CacheRules []CacheRule
}

// DefaultHeadersConfig keeps balance and totals out of shared caches.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: strings.Join([]string{
			"default-src 'self'",
			"script-src 'self' https://unpkg.com",
			"style-src 'self' 'unsafe-inline'",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		}, "; "),
		FrameOptions:   "DENY",
		ReferrerPolicy: "same-origin",
		HSTSMaxAge:     365 * 24 * time.Hour,
		CacheRules: []CacheRule{
			{Prefix: "/api/", Value: "no-store"},
			{Prefix: "/ui/", Value: "no-store"},
		},
	}
}

// HeadersMiddleware writes the configured headers before the handler runs.
type HeadersMiddleware struct {
	fixed http.Header
	hsts  string
	rules []CacheRule
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	fixed := http.Header{}
	fixed.Set("X-Content-Type-Options", "nosniff")
	if config.FrameOptions != "" {
		fixed.Set("X-Frame-Options", config.FrameOptions)
	}
	if config.CSP != "" {
		fixed.Set("Content-Security-Policy", config.CSP)
	}
	if config.ReferrerPolicy != "" {
		fixed.Set("Referrer-Policy", config.ReferrerPolicy)
	}

	h := &HeadersMiddleware{fixed: fixed, rules: config.CacheRules}
	if config.HSTSMaxAge > 0 {
		h.hsts = fmt.Sprintf("max-age=%d; includeSubDomains", int64(config.HSTSMaxAge/time.Second))
	}
	return h
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for k, v := range h.fixed {
			out[k] = append([]string(nil), v...)
		}
		if r.TLS != nil && h.hsts != "" {
			out.Set("Strict-Transport-Security", h.hsts)
		}
		for _, rule := range h.rules {
			if strings.HasPrefix(r.URL.Path, rule.Prefix) {
				out.Set("Cache-Control", rule.Value)
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware lets browsers keep embedded assets for maxAge.
func StaticAssetMiddleware(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int64(maxAge/time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
