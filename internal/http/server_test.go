package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/middleware/ratelimit"
	"ledgerwidget/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type failingStore struct{}

func (failingStore) Load(context.Context) (core.State, bool, error) { return core.State{}, false, nil }
func (failingStore) Save(context.Context, core.State) error {
	return core.NewStorageError("save", errors.New("disk full"))
}

func newTestServer(t *testing.T, store ledger.Store, opts Options) (*Server, *ledger.Engine) {
	t.Helper()
	eng, err := ledger.New(context.Background(), store, testNow, ledger.WithLocation(time.UTC))
	require.NoError(t, err)

	if opts.Categories == nil {
		opts.Categories = []string{"food", "salary", "rent"}
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.TotalsCacheTTL == 0 {
		opts.TotalsCacheTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}

	srv := NewServer(":0", eng, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, eng
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(srv *Server, category, amount string) *httptest.ResponseRecorder {
	form := url.Values{"category": {category}, "amount": {amount}}
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(srv, req)
}

func postJSON(srv *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(srv, req)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Expense Tracker")
	assert.Contains(t, body, `<option value="salary">salary</option>`)
	assert.Contains(t, body, "No transactions yet")
	assert.Contains(t, body, "2024-W11")
	assert.Contains(t, body, "2024-03")

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestReadyReportsBackendFailure(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{
		Ready: func(context.Context) error { return errors.New("db gone") },
	})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestIndexShowsNegativeBalance(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})
	_, err := eng.Record(context.Background(), "food", -50, testNow)
	require.NoError(t, err)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "balance negative")
	assert.Contains(t, body, "-$50.00")
	assert.Contains(t, body, `<li class="expense">`)
}

func TestIndexRollsOverStaleMonth(t *testing.T) {
	state := core.NewState("2024-02")
	state.Transactions = []core.Transaction{
		{Category: "food", Amount: -20, Date: time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)},
	}
	store := memory.NewWithState(state)
	srv, eng := newTestServer(t, store, Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "2024-03", eng.LastMonth())
	assert.Empty(t, eng.Transactions())
	assert.Equal(t, core.Totals{"food": -20}, eng.History()["2024-02"])
	assert.Contains(t, rr.Body.String(), "<details>")
}

func TestCreateTransactionForm(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})

	rr := postForm(srv, "salary", "2000")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	rr = postForm(srv, "food", "-50abc")
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	assert.Equal(t, 1950.0, eng.CurrentBalance())
	require.Len(t, eng.Transactions(), 2)
	assert.True(t, testNow.Equal(eng.Transactions()[0].Date))
}

func TestCreateTransactionValidation(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})

	tests := []struct {
		name     string
		category string
		amount   string
		wantMsg  string
	}{
		{"empty category", "", "10", "Please choose a category"},
		{"blank category", "   ", "10", "Please choose a category"},
		{"non numeric amount", "food", "abc", "Please enter a valid amount"},
		{"missing amount", "food", "", "Please enter a valid amount"},
		{"nan amount", "food", "NaN", "Please enter a valid amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(srv, tt.category, tt.amount)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantMsg)
			assert.Contains(t, rr.Header().Get("HX-Trigger"), `"type":"error"`)
		})
	}

	assert.Empty(t, eng.Transactions())
}

func TestCreateTransactionJSON(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})

	rr := postJSON(srv, "/transactions", `{"category":"rent","amount":-800.5}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	out := decodeBody(t, rr)
	assert.Equal(t, -800.5, out["balance"])
	assert.Equal(t, "2024-03", out["month"])
	tx, ok := out["transaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rent", tx["category"])
	assert.Equal(t, -800.5, tx["amount"])

	rr = postJSON(srv, "/transactions", `{"category":"rent","amount":"12.5"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, -788.0, eng.CurrentBalance())
}

func TestCreateTransactionJSONErrors(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})

	rr := postJSON(srv, "/transactions", `{nope`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Malformed request", decodeBody(t, rr)["error"])

	rr = postJSON(srv, "/transactions", `{"category":"","amount":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Please choose a category", decodeBody(t, rr)["error"])

	assert.Empty(t, eng.Transactions())
}

func TestCreateTransactionHTMX(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	form := url.Values{"category": {"food"}, "amount": {"-12.25"}}
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	rr := serve(srv, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Expense recorded")
	assert.Contains(t, rr.Body.String(), "-$12.25")

	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"transaction:recorded"`)
	assert.Contains(t, trigger, `"form:reset"`)
	assert.Contains(t, trigger, `"balance":-12.25`)
}

func TestCreateTransactionStorageFailure(t *testing.T) {
	srv, eng := newTestServer(t, failingStore{}, Options{})

	rr := postJSON(srv, "/transactions", `{"category":"food","amount":-5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Could not save, please try again", decodeBody(t, rr)["error"])

	rr = postForm(srv, "food", "-5")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	assert.Empty(t, eng.Transactions())
	assert.Equal(t, 0.0, eng.CurrentBalance())
}

func TestMethodRouting(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/transactions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPIEndpoints(t *testing.T) {
	srv, eng := newTestServer(t, memory.New(), Options{})
	ctx := context.Background()
	_, err := eng.Record(ctx, "salary", 2000, testNow)
	require.NoError(t, err)
	_, err = eng.Record(ctx, "food", -50, testNow)
	require.NoError(t, err)
	_, err = eng.Record(ctx, "food", -25, testNow.AddDate(0, 0, -10))
	require.NoError(t, err)

	t.Run("balance", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/balance", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		out := decodeBody(t, rr)
		assert.Equal(t, 1925.0, out["balance"])
		assert.Equal(t, "$1,925.00", out["formatted"])
		assert.Equal(t, "USD", out["currency"])
	})

	t.Run("transactions", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		txs, ok := decodeBody(t, rr)["transactions"].([]any)
		require.True(t, ok)
		assert.Len(t, txs, 3)
	})

	t.Run("weekly totals", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals?period=week", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		out := decodeBody(t, rr)
		assert.Equal(t, "2024-W11", out["key"])
		assert.Equal(t, map[string]any{"salary": 2000.0, "food": -50.0}, out["totals"])
	})

	t.Run("monthly totals by default", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		out := decodeBody(t, rr)
		assert.Equal(t, "month", out["period"])
		assert.Equal(t, "2024-03", out["key"])
		assert.Equal(t, map[string]any{"salary": 2000.0, "food": -75.0}, out["totals"])
		assert.Equal(t, 1925.0, out["total"])
	})

	t.Run("invalid period", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals?period=year", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("history", func(t *testing.T) {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		out := decodeBody(t, rr)
		assert.Equal(t, map[string]any{}, out["history"])
	})
}

func TestAPIRollover(t *testing.T) {
	state := core.NewState("2024-02")
	state.Transactions = []core.Transaction{
		{Category: "food", Amount: -20, Date: time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)},
		{Category: "salary", Amount: 100, Date: time.Date(2024, 2, 11, 9, 0, 0, 0, time.UTC)},
	}
	srv, _ := newTestServer(t, memory.NewWithState(state), Options{})

	rr := postJSON(srv, "/api/rollover", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody(t, rr)
	assert.Equal(t, true, out["rolled"])
	assert.Equal(t, "2024-03", out["month"])
	assert.Contains(t, rr.Header().Get("HX-Trigger"), "month:rolled-over")

	rr = postJSON(srv, "/api/rollover", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["rolled"])
	assert.Empty(t, rr.Header().Get("HX-Trigger"))

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	history := decodeBody(t, rr)["history"].(map[string]any)
	assert.Equal(t, map[string]any{"food": -20.0, "salary": 100.0}, history["2024-02"])
}

func TestTotalsCacheInvalidatedOnWrite(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	get := func() map[string]any {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals?period=week", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		return decodeBody(t, rr)
	}

	assert.Equal(t, 0.0, get()["total"])
	assert.Equal(t, 0.0, get()["total"])
	assert.Equal(t, int64(1), srv.totalsCache.Stats().Hits)

	rr := postJSON(srv, "/transactions", `{"category":"food","amount":-7}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 0, srv.totalsCache.Size())

	assert.Equal(t, -7.0, get()["total"])
}

func TestBackgroundRolloverClearsCachedTotals(t *testing.T) {
	clock := time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC)
	srv, eng := newTestServer(t, memory.New(), Options{
		Now: func() time.Time { return clock },
	})

	rr := postJSON(srv, "/transactions", `{"category":"food","amount":-50}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	get := func() map[string]any {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals?period=week", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		return decodeBody(t, rr)
	}

	body := get()
	assert.Equal(t, "2024-W14", body["key"])
	assert.Equal(t, -50.0, body["total"])

	// 2024-04-01 falls in the same week key as 2024-03-31
	clock = time.Date(2024, 4, 1, 0, 5, 0, 0, time.UTC)
	rolled, err := srv.CheckRollover(context.Background())
	require.NoError(t, err)
	require.True(t, rolled)
	assert.Equal(t, "2024-04", eng.LastMonth())
	assert.Equal(t, 0, srv.totalsCache.Size())

	body = get()
	assert.Equal(t, "2024-W14", body["key"])
	assert.Equal(t, 0.0, body["total"])
	assert.Empty(t, body["totals"])

	rolled, err = srv.CheckRollover(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled)
}

func TestRateLimitOnPost(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{
		RateLimit: ratelimit.Config{RequestsPerMinute: 1, Methods: []string{http.MethodPost}},
	})

	rr := postForm(srv, "food", "-1")
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	rr = postForm(srv, "food", "-1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are never limited
	for i := 0; i < 3; i++ {
		rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/balance", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.NotEqual(t, "no-store", rr.Header().Get("Cache-Control"))

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr = serve(srv, req)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-ID"))
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")
}
