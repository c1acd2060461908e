package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-day layout used across the ledger.
const DateLayout = "2006-01-02"

// MonthLayout identifies a calendar month, e.g. 2025-10.
const MonthLayout = "2006-01"

// ErrInvalidRange indicates a date range whose end precedes its start.
var ErrInvalidRange = errors.New("date range: end before start")

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a UTC calendar day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", value)
	}
	return t, nil
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange validates and normalises an inclusive range.
func NewDateRange(from, to time.Time) (DateRange, error) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{From: from, To: to}, nil
}

// TrailingRange returns the window of days ending at asOf (inclusive).
func TrailingRange(asOf time.Time, days int) DateRange {
	if days <= 0 {
		days = 1
	}
	end := DateOf(asOf)
	return DateRange{From: end.AddDate(0, 0, -(days - 1)), To: end}
}

// MonthRange returns the calendar month containing day.
func MonthRange(day time.Time) DateRange {
	d := DateOf(day)
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: start, To: start.AddDate(0, 1, -1)}
}

// Days returns the number of days in the range.
func (r DateRange) Days() int {
	if r.From.IsZero() || r.To.Before(r.From) {
		return 0
	}
	return DaysBetween(r.From, r.To) + 1
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(r.From) && !d.After(r.To)
}

// Index returns the zero-based position of day in the range, or -1.
func (r DateRange) Index(day time.Time) int {
	if !r.Contains(day) {
		return -1
	}
	return DaysBetween(r.From, day)
}

// Dates enumerates every day in ascending order.
func (r DateRange) Dates() []time.Time {
	n := r.Days()
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = r.From.AddDate(0, 0, i)
	}
	return out
}

// String formats the range for logs.
func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}
