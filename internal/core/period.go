package core

import (
	"fmt"
	"strings"
	"time"
)

// Period selects how transactions are grouped for aggregate queries.
type Period string

const (
	Week  Period = "week"
	Month Period = "month"
)

// ParsePeriod accepts "week"/"weekly" and "month"/"monthly".
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Key returns the period key of t read in loc.
func (p Period) Key(t time.Time, loc *time.Location) (string, error) {
	switch p {
	case Week:
		return WeekKey(t, loc), nil
	case Month:
		return MonthKey(t, loc), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
}

// MonthKey formats the calendar month of t in loc as "YYYY-MM".
func MonthKey(t time.Time, loc *time.Location) string {
	t = inLocation(t, loc)
	return fmt.Sprintf("%d-%02d", t.Year(), int(t.Month()))
}

// WeekKey formats t in loc as "YYYY-W<n>".
//
// Week 1 is the week containing January 1st; weeks start on Sunday:
// n = ceil((daysSinceJan1 + weekday(Jan1) + 1) / 7).
func WeekKey(t time.Time, loc *time.Location) string {
	t = inLocation(t, loc)
	return fmt.Sprintf("%d-W%d", t.Year(), WeekNumber(t))
}

// WeekNumber returns the week of the year for the calendar date of t.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	// ceil(x/7) for positive x
	return (days + int(jan1.Weekday()) + 1 + 6) / 7
}

// ParseMonthKey parses a "YYYY-MM" key.
func ParseMonthKey(key string) (year int, month time.Month, err error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t.Year(), t.Month(), nil
}

// MonthsBetween returns the month keys strictly between from and to.
// It returns nil when to is not after from.
func MonthsBetween(from, to string) ([]string, error) {
	fy, fm, err := ParseMonthKey(from)
	if err != nil {
		return nil, err
	}
	ty, tm, err := ParseMonthKey(to)
	if err != nil {
		return nil, err
	}
	start := time.Date(fy, fm, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, 1, 0, 0, 0, 0, time.UTC)

	var out []string
	for m := start.AddDate(0, 1, 0); m.Before(end); m = m.AddDate(0, 1, 0) {
		out = append(out, MonthKey(m, time.UTC))
	}
	return out, nil
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc)
}
