package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/runlock"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Step generates one report for asOf.
type Step func(ctx context.Context, asOf time.Time) error

// RunStore is the run-history surface the pipeline needs.
type RunStore interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status Status, errText string, at time.Time) error
	LastSucceeded(ctx context.Context, kind Kind, periodKey string) (Run, bool, error)
}

// Dependencies is the report DAG: a kind runs only after each kind it lists
// has succeeded for the same as-of period.
type Dependencies map[Kind][]Kind

// DefaultDependencies is monthly after weekly after daily.
func DefaultDependencies() Dependencies {
	return Dependencies{
		KindMonthly: {KindWeekly},
		KindWeekly:  {KindDaily},
	}
}

// ErrDependencyCycle rejects a dependency graph that is not a DAG.
var ErrDependencyCycle = errors.New("reports: dependency cycle")

// Validate checks that deps is acyclic and names only known steps.
func (d Dependencies) Validate(steps map[Kind]Step) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[Kind]int{}
	var visit func(k Kind) error
	visit = func(k Kind) error {
		switch state[k] {
		case visiting:
			return fmt.Errorf("%w at %s", ErrDependencyCycle, k)
		case done:
			return nil
		}
		if _, ok := steps[k]; !ok {
			return fmt.Errorf("%w: %s has no step", ErrUnknownKind, k)
		}
		state[k] = visiting
		for _, dep := range d[k] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[k] = done
		return nil
	}
	for k := range d {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline runs report steps under a per-kind lock, recording every attempt
// and running missing dependencies first.
type Pipeline struct {
	steps   map[Kind]Step
	deps    Dependencies
	runs    RunStore
	locker  runlock.Locker
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewPipeline validates the graph and builds a Pipeline.
func NewPipeline(steps map[Kind]Step, deps Dependencies, runs RunStore, locker runlock.Locker, metrics *jobmetrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if err := deps.Validate(steps); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{steps: steps, deps: deps, runs: runs, locker: locker, metrics: metrics, logger: logger, now: time.Now}, nil
}

// WithNow overrides the clock for deterministic tests.
func (p *Pipeline) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// WithTimeout bounds a whole Run, dependencies included. Keep it below the
// lock TTL so no lease can lapse while its run still writes.
func (p *Pipeline) WithTimeout(d time.Duration) {
	p.timeout = d
}

// Run generates kind for asOf. A concurrent run of the same kind yields
// runlock.ErrConcurrentRun without touching any state; a dependency held by
// another run yields ErrDependencyBusy. A failed step leaves a FAILED run and
// the previous artifact in place.
func (p *Pipeline) Run(ctx context.Context, kind Kind, asOf time.Time) (Run, error) {
	step, ok := p.steps[kind]
	if !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	asOf = shared.DateOf(asOf)
	job := "report:" + string(kind)
	logger := p.logger.With(slog.String("report", string(kind)), slog.String("period", kind.PeriodKey(asOf)))

	var (
		run     Run
		entered bool
	)
	err := runlock.WithLock(ctx, p.locker, string(kind), logger, func(ctx context.Context) error {
		entered = true
		if err := p.ensureDependencies(ctx, kind, asOf); err != nil {
			return err
		}
		var err error
		run, err = p.execute(ctx, kind, asOf, step, job, logger)
		return err
	})
	if !entered && errors.Is(err, runlock.ErrConcurrentRun) {
		p.metrics.AddConflict(job)
		logger.Warn("report already running")
	}
	return run, err
}

func (p *Pipeline) ensureDependencies(ctx context.Context, kind Kind, asOf time.Time) error {
	for _, dep := range p.deps[kind] {
		_, ok, err := p.runs.LastSucceeded(ctx, dep, dep.PeriodKey(asOf))
		if err != nil {
			return fmt.Errorf("reports: check %s dependency: %w", dep, err)
		}
		if ok {
			continue
		}
		p.logger.Info("running missing dependency", slog.String("report", string(kind)), slog.String("dependency", string(dep)))
		_, err = p.Run(ctx, dep, asOf)
		switch {
		case errors.Is(err, runlock.ErrConcurrentRun):
			return fmt.Errorf("%w: %s waits on %s (%v)", ErrDependencyBusy, kind, dep, err)
		case err != nil:
			return fmt.Errorf("reports: %s dependency %s: %w", kind, dep, err)
		}
	}
	return nil
}

func (p *Pipeline) execute(ctx context.Context, kind Kind, asOf time.Time, step Step, job string, logger *slog.Logger) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		PeriodKey: kind.PeriodKey(asOf),
		Status:    StatusRunning,
		StartedAt: p.now().UTC(),
	}
	if err := p.runs.StartRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("reports: record run: %w", err)
	}

	tracker := p.metrics.Track(job)
	stepErr := tracker.End(step(ctx, asOf))

	finished := p.now().UTC()
	run.FinishedAt = &finished
	run.Status = StatusSucceeded
	if stepErr != nil {
		run.Status = StatusFailed
		run.Error = stepErr.Error()
	}
	// A cancelled run still needs its outcome stored.
	if err := p.runs.FinishRun(context.WithoutCancel(ctx), run.ID, run.Status, run.Error, finished); err != nil {
		logger.Error("record run outcome", slog.String("run_id", run.ID), slog.Any("error", err))
		if stepErr == nil {
			return run, fmt.Errorf("reports: record run outcome: %w", err)
		}
	}
	if stepErr != nil {
		logger.Error("report failed", slog.String("run_id", run.ID), slog.Any("error", stepErr))
		return run, fmt.Errorf("%w: %w", ErrNotGenerated, stepErr)
	}
	logger.Info("report succeeded", slog.String("run_id", run.ID), slog.Duration("duration", finished.Sub(run.StartedAt)))
	return run, nil
}
