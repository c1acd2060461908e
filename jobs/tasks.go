package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportDaily generates the daily report.
	TaskReportDaily = "report:daily"
	// TaskReportWeekly generates the weekly report.
	TaskReportWeekly = "report:weekly"
	// TaskReportMonthly generates the monthly billing report.
	TaskReportMonthly = "report:monthly"
	// TaskBaselineValidate cross-checks every baseline lineage.
	TaskBaselineValidate = "baseline:validate"
)

// ReportTaskType maps a report kind to its task type.
func ReportTaskType(kind reports.Kind) string {
	return "report:" + string(kind)
}

// ReportKind maps a task type back to its report kind.
func ReportKind(taskType string) (reports.Kind, error) {
	return reports.ParseKind(strings.TrimPrefix(taskType, "report:"))
}

// ReportPayload selects the as-of day. An empty AsOf means the day the task
// is processed, which is what cron registrations use.
type ReportPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewReportTask constructs a report task. A zero asOf defers the date to
// processing time.
func NewReportTask(kind reports.Kind, asOf time.Time) (*asynq.Task, error) {
	if _, err := reports.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	payload := ReportPayload{}
	if !asOf.IsZero() {
		payload.AsOf = shared.DateOf(asOf).Format(shared.DateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(ReportTaskType(kind), body, asynq.Queue(QueueDefault)), nil
}

// ValidatePayload narrows validation to some SKUs; empty means all.
type ValidatePayload struct {
	SKUs []string `json:"skus,omitempty"`
}

// NewValidateTask constructs a baseline validation task.
func NewValidateTask(skus []string) (*asynq.Task, error) {
	body, err := json.Marshal(ValidatePayload{SKUs: skus})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBaselineValidate, body, asynq.Queue(QueueDefault)), nil
}

func decodePayload(task *asynq.Task, dest any) error {
	if len(task.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(task.Payload(), dest); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}
