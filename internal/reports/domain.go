package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Kind identifies a report type.
type Kind string

const (
	// KindDaily refreshes snapshots and the current-inventory view.
	KindDaily Kind = "daily"
	// KindWeekly adds rolling averages and alert levels.
	KindWeekly Kind = "weekly"
	// KindMonthly computes storage and handling charges for a month.
	KindMonthly Kind = "monthly"
)

// ParseKind validates a report kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindDaily, KindWeekly, KindMonthly:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// PeriodKey names the period a run of kind covers for asOf: the day, the
// ISO week or the calendar month.
func (k Kind) PeriodKey(asOf time.Time) string {
	day := shared.DateOf(asOf)
	switch k {
	case KindWeekly:
		year, week := day.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case KindMonthly:
		return day.Format(shared.MonthLayout)
	}
	return day.Format(shared.DateLayout)
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Run records one attempt at generating a report.
type Run struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	PeriodKey  string     `json:"period_key"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Report errors.
var (
	// ErrNotGenerated means no successful run exists for the requested period.
	ErrNotGenerated = errors.New("reports: report not generated")
	// ErrDependencyBusy means a report could not run because one of its
	// dependencies is being generated by another run. Retry later.
	ErrDependencyBusy = errors.New("reports: dependency is being generated")
	// ErrUnknownKind rejects report kinds outside daily, weekly and monthly.
	ErrUnknownKind = errors.New("reports: unknown report kind")
	// ErrMonthStartMismatch means the month walk did not open on the derived
	// month-start quantity.
	ErrMonthStartMismatch = errors.New("reports: month start does not match derived baseline")
)
