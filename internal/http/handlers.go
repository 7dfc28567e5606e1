package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"ledgerwidget/internal/core"
	"ledgerwidget/internal/log"
)

type periodView struct {
	Key   string
	Total float64
	Rows  []core.CategoryAmount
}

type pageData struct {
	Month        string
	Currency     string
	Categories   []string
	Balance      float64
	Transactions []core.Transaction
	Weekly       periodView
	Monthly      periodView
	History      []core.MonthOverview
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(amount float64) string { return core.FormatAmount(amount, s.currency) },
		"date": func(t time.Time) string {
			return t.In(s.ledger.Location()).Format("Jan 2, 15:04")
		},
	}
}

func (s *Server) pageData(ctx context.Context, now time.Time) pageData {
	data := pageData{
		Month:        s.ledger.LastMonth(),
		Currency:     s.currency,
		Categories:   s.categories,
		Balance:      s.ledger.CurrentBalance(),
		Transactions: s.ledger.Transactions(),
		History:      s.ledger.History().Overviews(),
	}

	for _, p := range []struct {
		period core.Period
		view   *periodView
	}{{core.Week, &data.Weekly}, {core.Month, &data.Monthly}} {
		totals, key, err := s.totals(ctx, p.period, now)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Totals error", log.FieldPeriod, string(p.period), log.FieldError, err)
			continue
		}
		*p.view = periodView{Key: key, Total: totals.Total(), Rows: totals.Sorted()}
	}

	return data
}

// handleIndex renders the page. Loading the page performs the month check,
// like opening the widget does.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := s.now()
	if _, err := s.CheckRollover(ctx); err != nil {
		logger.ErrorContext(ctx, "Rollover check failed", log.FieldOperation, log.OpRollover, log.FieldError, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", s.pageData(ctx, now)); err != nil {
		logger.ErrorContext(ctx, "Index template execution failed", log.FieldError, err, "template", "index.html")
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

// handleSummary renders the balance, list and totals partial.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "summary", s.pageData(ctx, s.now())); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Summary template execution failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="summary"><div class="placeholder">Could not render summary</div></section>`))
	}
}

type createdResponse struct {
	Transaction core.Transaction `json:"transaction"`
	Balance     float64          `json:"balance"`
	Month       string           `json:"month"`
}

// handleCreateTransaction records a transaction from a form or JSON body.
// Forms are redirected back to the page, htmx requests get a fragment and
// JSON requests get the created transaction.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	in, err := parseTransactionInput(w, r)
	if err == nil {
		var tx core.Transaction
		tx, err = s.ledger.Record(ctx, in.Category, in.Amount, s.now())
		if err == nil {
			s.invalidateTotals()
			s.respondCreated(w, r, in, tx)
			return
		}
	}

	status := statusFor(err)
	if errors.Is(err, errMalformedBody) {
		status = http.StatusBadRequest
	}
	if status >= 500 {
		errType := log.ErrorTypeInternal
		if errors.Is(err, core.ErrStorage) {
			errType = log.ErrorTypeDatabase
		}
		log.NewStructuredLogger(logger).LogError(ctx, "Record failed", err, log.ComponentHTTP, log.OpRecord,
			log.NewFields().WithTransaction(in.Category, in.Amount).WithErrorType(errType))
	} else {
		logger.WarnContext(ctx, "Rejected transaction",
			log.FieldCategory, in.Category,
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldError, err)
	}

	msg := userMessage(err)
	if in.JSON || wantsJSON(r) {
		writeJSONError(w, r, status, msg)
		return
	}
	ErrorFragment(status, msg).Write(w)
}

func (s *Server) respondCreated(w http.ResponseWriter, r *http.Request, in transactionInput, tx core.Transaction) {
	balance := s.ledger.CurrentBalance()
	month := s.ledger.LastMonth()

	switch {
	case in.JSON || wantsJSON(r):
		writeJSON(w, r, http.StatusCreated, createdResponse{Transaction: tx, Balance: balance, Month: month})
	case isHTMX(r):
		kind := "Income"
		if tx.IsExpense() {
			kind = "Expense"
		}
		NewResponse().
			TransactionRecorded(month, balance).
			ResetForm().
			HTML(`<div class="success">` + kind + ` recorded: <strong>` +
				template.HTMLEscapeString(tx.Category) + `</strong> ` +
				template.HTMLEscapeString(core.FormatAmount(tx.Amount, s.currency)) + `</div>`).
			Write(w)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// userMessage hides internal error detail from clients.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errMalformedBody):
		return "Malformed request"
	case errors.Is(err, core.ErrEmptyCategory):
		return "Please choose a category"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Please enter a valid amount"
	case errors.Is(err, core.ErrInvalidInput):
		return strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error()+": ")
	case errors.Is(err, core.ErrStorage):
		return "Could not save, please try again"
	default:
		return "Internal error"
	}
}

type balanceResponse struct {
	Balance   float64 `json:"balance"`
	Formatted string  `json:"formatted"`
	Currency  string  `json:"currency"`
	Month     string  `json:"month"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance := s.ledger.CurrentBalance()
	writeJSON(w, r, http.StatusOK, balanceResponse{
		Balance:   balance,
		Formatted: core.FormatAmount(balance, s.currency),
		Currency:  s.currency,
		Month:     s.ledger.LastMonth(),
	})
}

type transactionsResponse struct {
	Month        string             `json:"month"`
	Transactions []core.Transaction `json:"transactions"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.ledger.Transactions()
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, r, http.StatusOK, transactionsResponse{Month: s.ledger.LastMonth(), Transactions: txs})
}

type totalsResponse struct {
	Period string      `json:"period"`
	Key    string      `json:"key"`
	Totals core.Totals `json:"totals"`
	Total  float64     `json:"total"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("period")
	if strings.TrimSpace(raw) == "" {
		raw = string(core.Month)
	}

	period, err := core.ParsePeriod(raw)
	if err != nil {
		writeJSONError(w, r, statusFor(err), userMessage(err))
		return
	}

	totals, key, err := s.totals(ctx, period, s.now())
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Totals error", log.FieldOperation, log.OpTotals, log.FieldError, err)
		writeJSONError(w, r, statusFor(err), userMessage(err))
		return
	}

	writeJSON(w, r, http.StatusOK, totalsResponse{
		Period: string(period),
		Key:    key,
		Totals: totals,
		Total:  totals.Total(),
	})
}

type historyResponse struct {
	History core.History         `json:"history"`
	Months  []core.MonthOverview `json:"months"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h := s.ledger.History()
	writeJSON(w, r, http.StatusOK, historyResponse{History: h, Months: h.Overviews()})
}

type rolloverResponse struct {
	Rolled bool   `json:"rolled"`
	Month  string `json:"month"`
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rolled, err := s.CheckRollover(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Rollover failed", log.FieldOperation, log.OpRollover, log.FieldError, err)
		writeJSONError(w, r, statusFor(err), userMessage(err))
		return
	}
	resp := NewResponse().JSON(rolloverResponse{Rolled: rolled, Month: s.ledger.LastMonth()})
	if rolled {
		resp.MonthRolledOver(s.ledger.LastMonth())
	}
	resp.Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
