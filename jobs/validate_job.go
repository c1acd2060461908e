package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
)

// Validator cross-checks baseline lineages against the ledger.
type Validator interface {
	ValidateAll(ctx context.Context, skus []string) (reconcile.Report, error)
}

// ValidateJob handles baseline:validate tasks.
type ValidateJob struct {
	Validator Validator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewValidateJob constructs the job handler.
func NewValidateJob(validator Validator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ValidateJob {
	return &ValidateJob{Validator: validator, Logger: logger, Metrics: metrics}
}

// Handle runs the validation. Drift is reported through logs and metrics
// and is not a task failure.
func (j *ValidateJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Validator == nil {
		return errors.New("validate job: validator not configured")
	}
	var payload ValidatePayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskBaselineValidate)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.log().With(slog.String("job", TaskBaselineValidate))
	report, err := j.Validator.ValidateAll(ctx, payload.SKUs)
	if err != nil {
		logger.Error("baseline validation failed", slog.Any("error", err))
		return err
	}
	drifted := report.Drifted()
	skus := make([]string, 0, len(drifted))
	for _, res := range drifted {
		skus = append(skus, res.SKU)
	}
	logger.Info("baseline validation done",
		slog.Int("pairs", len(report.Results)),
		slog.Int("drifted", len(drifted)),
		slog.Any("drifted_skus", skus))
	return nil
}

func (j *ValidateJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
