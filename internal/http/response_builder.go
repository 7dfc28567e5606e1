// Package http serves the ledger web page and JSON API.
//
// Writes answer htmx requests with HX-Trigger events so the page refreshes
// its summary without a full reload.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
)

// htmx events the page listens for
const (
	eventTransactionRecorded = "transaction:recorded"
	eventMonthRolledOver     = "month:rolled-over"
	eventFormReset           = "form:reset"
	eventNotification        = "show-notification"
)

// NotificationType selects the style of a toast on the page.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Errors stay on screen longer than confirmations.
func (n NotificationType) duration() int {
	if n == NotificationError || n == NotificationWarning {
		return 5000
	}
	return 3000
}

// Response collects the status, headers, body and htmx events of a reply
// before anything is written.
type Response struct {
	status int
	header http.Header
	events map[string]any
	body   []byte
}

// NewResponse starts a 200 response.
func NewResponse() *Response {
	return &Response{
		status: http.StatusOK,
		header: http.Header{},
		events: map[string]any{},
	}
}

func (r *Response) Status(code int) *Response {
	r.status = code
	return r
}

func (r *Response) Header(name, value string) *Response {
	r.header.Set(name, value)
	return r
}

// Event adds an entry to the HX-Trigger header. detail is sent as the
// event's detail object.
func (r *Response) Event(name string, detail any) *Response {
	r.events[name] = detail
	return r
}

// TransactionRecorded refreshes the summary and carries the new balance.
func (r *Response) TransactionRecorded(month string, balance float64) *Response {
	return r.Event(eventTransactionRecorded, map[string]any{"month": month, "balance": balance})
}

// MonthRolledOver refreshes the summary after the accounting month changed.
func (r *Response) MonthRolledOver(month string) *Response {
	return r.Event(eventMonthRolledOver, map[string]string{"month": month})
}

func (r *Response) ResetForm() *Response {
	return r.Event(eventFormReset, struct{}{})
}

// Notify shows a toast.
func (r *Response) Notify(kind NotificationType, message string) *Response {
	return r.Event(eventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": kind.duration(),
	})
}

// HTML sets an HTML fragment as the body. The caller escapes user data.
func (r *Response) HTML(fragment string) *Response {
	r.header.Set("Content-Type", "text/html; charset=utf-8")
	r.body = []byte(fragment)
	return r
}

// JSON encodes v as the body. An encoding failure turns the response into
// a 500.
func (r *Response) JSON(v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		r.status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal error"}`)
	}
	r.header.Set("Content-Type", "application/json; charset=utf-8")
	r.body = data
	return r
}

// Write sends the response.
func (r *Response) Write(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	if len(r.events) > 0 {
		if triggers, err := json.Marshal(r.events); err == nil {
			w.Header().Set("HX-Trigger", string(triggers))
		}
	}

	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

// ErrorFragment renders message as an escaped error block with an error
// toast. Unavailable storage also asks the client to retry.
func ErrorFragment(status int, message string) *Response {
	r := NewResponse().
		Status(status).
		HTML(`<div class="error">`+template.HTMLEscapeString(message)+`</div>`).
		Notify(NotificationError, message)
	if status == http.StatusServiceUnavailable {
		r.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	return r
}

const retryAfterSeconds = 5
