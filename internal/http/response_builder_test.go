package http

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggers(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	raw := w.Header().Get("HX-Trigger")
	require.NotEmpty(t, raw, "HX-Trigger header not set")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestResponse_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		HTML("<p>ok</p>").
		Write(w)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "<p>ok</p>", w.Body.String())
	assert.Equal(t, "value", w.Header().Get("X-Custom"))
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("HX-Trigger"))
}

func TestResponse_LedgerEvents(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		TransactionRecorded("2024-03", 1950).
		ResetForm().
		Notify(NotificationSuccess, "Saved").
		Write(w)

	got := triggers(t, w)
	assert.Equal(t, map[string]any{"month": "2024-03", "balance": 1950.0}, got["transaction:recorded"])
	assert.Equal(t, map[string]any{}, got["form:reset"])
	assert.Equal(t, map[string]any{"type": "success", "message": "Saved", "duration": 3000.0}, got["show-notification"])
}

func TestResponse_MonthRolledOver(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().MonthRolledOver("2024-04").Write(w)

	assert.JSONEq(t, `{"month:rolled-over":{"month":"2024-04"}}`, w.Header().Get("HX-Trigger"))
}

func TestResponse_JSON(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(map[string]bool{"rolled": true}).Write(w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rolled":true}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = httptest.NewRecorder()
	NewResponse().JSON(math.NaN()).Write(w)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorFragment(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		message   string
		wantBody  string
		wantRetry string
	}{
		{"bad request", http.StatusBadRequest, "Malformed request", `<div class="error">Malformed request</div>`, ""},
		{"unprocessable", http.StatusUnprocessableEntity, "Please choose a category", `<div class="error">Please choose a category</div>`, ""},
		{"storage down", http.StatusServiceUnavailable, "Could not save", `<div class="error">Could not save</div>`, "5"},
		{"escapes html", http.StatusBadRequest, "<script>alert('x')</script>", `<div class="error">&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;</div>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFragment(tt.status, tt.message).Write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))

			note, ok := triggers(t, w)["show-notification"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "error", note["type"])
			assert.Equal(t, 5000.0, note["duration"])
		})
	}
}
