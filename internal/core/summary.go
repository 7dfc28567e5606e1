package core

import "sort"

// MonthOverview is the history entry of one rolled-over month.
type MonthOverview struct {
	Month      string           `json:"month"`
	Total      float64          `json:"total"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// Overviews lists the history newest month first.
func (h History) Overviews() []MonthOverview {
	out := make([]MonthOverview, 0, len(h))
	for month, totals := range h {
		out = append(out, MonthOverview{
			Month:      month,
			Total:      totals.Total(),
			ByCategory: totals.Sorted(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}
