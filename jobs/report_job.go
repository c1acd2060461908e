package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/runlock"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// ReportRunner runs a report together with its missing dependencies.
type ReportRunner interface {
	Run(ctx context.Context, kind reports.Kind, asOf time.Time) (reports.Run, error)
}

// ReportJob handles the report:* tasks.
type ReportJob struct {
	Runner ReportRunner
	Logger *slog.Logger
	clock  func() time.Time
}

// NewReportJob constructs the job handler.
func NewReportJob(runner ReportRunner, logger *slog.Logger) *ReportJob {
	return &ReportJob{
		Runner: runner,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one report task. A run already in flight for the same
// report type makes the task a logged no-op; asynq must not retry it. A busy
// dependency is returned so asynq retries the task later.
func (j *ReportJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("report job: runner not configured")
	}
	kind, err := ReportKind(task.Type())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	var payload ReportPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	asOf := shared.DateOf(j.clock())
	if payload.AsOf != "" {
		if asOf, err = shared.ParseDate(payload.AsOf); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}

	logger := j.log().With(slog.String("job", task.Type()), slog.String("as_of", asOf.Format(shared.DateLayout)))
	run, err := j.Runner.Run(ctx, kind, asOf)
	switch {
	case errors.Is(err, runlock.ErrConcurrentRun):
		logger.Info("report already running, skipping")
		return nil
	case errors.Is(err, reports.ErrDependencyBusy):
		logger.Warn("report dependency busy, retrying later", slog.Any("error", err))
		return err
	case err != nil:
		logger.Error("report job failed", slog.String("run_id", run.ID), slog.Any("error", err))
		return err
	}
	logger.Info("report job done", slog.String("run_id", run.ID), slog.String("period", run.PeriodKey))
	return nil
}

func (j *ReportJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
