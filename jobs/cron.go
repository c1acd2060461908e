package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockrecon/internal/reports"
)

// Schedule holds the cron specs of the periodic triggers. Empty specs are
// not registered.
type Schedule struct {
	Daily    string
	Weekly   string
	Monthly  string
	Validate string
}

// Registrations builds the cron entries for every configured spec. Report
// tasks carry no date so each firing covers the day it runs.
func (s Schedule) Registrations() ([]CronRegistration, error) {
	var out []CronRegistration
	for _, entry := range []struct {
		spec string
		kind reports.Kind
	}{
		{s.Daily, reports.KindDaily},
		{s.Weekly, reports.KindWeekly},
		{s.Monthly, reports.KindMonthly},
	} {
		if entry.spec == "" {
			continue
		}
		task, err := NewReportTask(entry.kind, time.Time{})
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: entry.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if s.Validate != "" {
		task, err := NewValidateTask(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: s.Validate, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	return out, nil
}
