// Package core provides the ledger data model and its arithmetic.
//
// Amounts are float64 at the edges (they come from user input and are stored
// as JSON numbers) but every sum goes through decimal arithmetic so that
// adding the same amounts always yields the exact decimal total.
package core

import (
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO 4217 code used for display when none is configured.
const DefaultCurrency = "INR"

// Totals maps a category to its summed amount.
type Totals map[string]float64

// CategoryAmount is one row of a Totals map.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Sum adds amounts exactly.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}

// Balance sums the amounts of txs.
func Balance(txs []Transaction) float64 {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(decimal.NewFromFloat(tx.Amount))
	}
	return total.InexactFloat64()
}

// TotalsByCategory sums amounts per category for the transactions keep accepts.
// A nil keep accepts everything.
func TotalsByCategory(txs []Transaction, keep func(Transaction) bool) Totals {
	sums := map[string]decimal.Decimal{}
	for _, tx := range txs {
		if keep != nil && !keep(tx) {
			continue
		}
		sums[tx.Category] = sums[tx.Category].Add(decimal.NewFromFloat(tx.Amount))
	}
	out := make(Totals, len(sums))
	for cat, v := range sums {
		out[cat] = v.InexactFloat64()
	}
	return out
}

// Merge adds other into t, category by category.
func (t Totals) Merge(other Totals) {
	for cat, v := range other {
		t[cat] = Sum(t[cat], v)
	}
}

// Total sums every category.
func (t Totals) Total() float64 {
	total := decimal.Zero
	for _, v := range t {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

// Clone returns a copy of t.
func (t Totals) Clone() Totals {
	out := make(Totals, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Sorted returns the rows ordered by category name.
func (t Totals) Sorted() []CategoryAmount {
	rows := make([]CategoryAmount, 0, len(t))
	for name, amount := range t {
		rows = append(rows, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// FormatAmount renders amount with the symbol and separators of currency.
func FormatAmount(amount float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return money.NewFromFloat(amount, currency).Display()
}
