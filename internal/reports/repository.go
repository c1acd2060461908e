package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockrecon/internal/platform/db"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Repository persists run history and report artifacts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StartRun records a run in RUNNING state.
func (r *Repository) StartRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO report_runs (id, kind, period_key, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Kind), run.PeriodKey, string(run.Status), run.StartedAt)
	return err
}

// FinishRun stores the outcome of a run.
func (r *Repository) FinishRun(ctx context.Context, id string, status Status, errText string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE report_runs SET status = $2, error = $3, finished_at = $4 WHERE id = $1`, id, string(status), errText, at)
	return err
}

// LastSucceeded returns the most recent successful run of kind. An empty
// periodKey matches any period.
func (r *Repository) LastSucceeded(ctx context.Context, kind Kind, periodKey string) (Run, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id::text, kind, period_key, status, error, started_at, finished_at
FROM report_runs
WHERE kind = $1 AND status = $2 AND ($3::text = '' OR period_key = $3)
ORDER BY period_key DESC, finished_at DESC
LIMIT 1`, string(kind), string(StatusSucceeded), periodKey)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// ListRuns lists recent runs, newest first. An empty kind lists every kind.
func (r *Repository) ListRuns(ctx context.Context, kind Kind, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, kind, period_key, status, error, started_at, finished_at
FROM report_runs
WHERE ($1::text = '' OR kind = $1)
ORDER BY started_at DESC
LIMIT $2`, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const upsertArtifactSQL = `
INSERT INTO report_artifacts (kind, period_key, payload, created_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (kind, period_key) DO UPDATE SET payload = EXCLUDED.payload, created_at = NOW()`

// SaveArtifact replaces the artifact of a period.
func (r *Repository) SaveArtifact(ctx context.Context, kind Kind, periodKey string, payload []byte) error {
	_, err := r.pool.Exec(ctx, upsertArtifactSQL, string(kind), periodKey, payload)
	return err
}

// SaveMonthly replaces the monthly artifact and its charge rows in one
// transaction.
func (r *Repository) SaveMonthly(ctx context.Context, periodKey string, payload []byte, report MonthlyReport) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertArtifactSQL, string(KindMonthly), periodKey, payload); err != nil {
			return fmt.Errorf("save monthly artifact: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM monthly_charges WHERE month = $1`, report.Month); err != nil {
			return fmt.Errorf("clear monthly charges: %w", err)
		}
		for _, day := range report.Days {
			if _, err := tx.Exec(ctx, `INSERT INTO monthly_charges (charge_date, month, orders, packages, pallets, charge) VALUES ($1, $2, $3, $4, $5, $6)`,
				day.Date, report.Month, day.Orders, day.Packages, day.Pallets, day.Charge); err != nil {
				return fmt.Errorf("insert charge %s: %w", day.Date.Format(shared.DateLayout), err)
			}
		}
		return nil
	})
}

// Artifact returns the stored payload or ErrNotGenerated.
func (r *Repository) Artifact(ctx context.Context, kind Kind, periodKey string) ([]byte, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM report_artifacts WHERE kind = $1 AND period_key = $2`, string(kind), periodKey).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotGenerated, kind, periodKey)
	}
	return payload, err
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run          Run
		kind, status string
		finishedAt   *time.Time
	)
	if err := row.Scan(&run.ID, &kind, &run.PeriodKey, &status, &run.Error, &run.StartedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt != nil {
		t := finishedAt.UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
