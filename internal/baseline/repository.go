package baseline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores baselines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const baselineColumns = `id::text, name, sku, as_of, quantity, COALESCE(supersedes::text, ''), reason, created_at`

// Insert stores b. Rows are never updated.
func (r *Repository) Insert(ctx context.Context, b Baseline) error {
	var supersedes any
	if b.Supersedes != "" {
		supersedes = b.Supersedes
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO baselines (id, name, sku, as_of, quantity, supersedes, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, b.ID, b.Name, b.SKU, b.AsOf, b.Quantity, supersedes, b.Reason, b.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// Get loads a baseline by ID.
func (r *Repository) Get(ctx context.Context, id string) (Baseline, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+baselineColumns+` FROM baselines WHERE id::text = $1`, id)
	b, err := scanBaseline(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Baseline{}, ErrNotFound
	}
	return b, err
}

// List returns baselines for the SKUs, or all when skus is empty.
func (r *Repository) List(ctx context.Context, skus []string) ([]Baseline, error) {
	var filter any
	if len(skus) > 0 {
		filter = skus
	}
	rows, err := r.pool.Query(ctx, `SELECT `+baselineColumns+` FROM baselines
WHERE ($1::text[] IS NULL OR sku = ANY($1))
ORDER BY sku, as_of, created_at`, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBaseline(row pgx.Row) (Baseline, error) {
	var b Baseline
	if err := row.Scan(&b.ID, &b.Name, &b.SKU, &b.AsOf, &b.Quantity, &b.Supersedes, &b.Reason, &b.CreatedAt); err != nil {
		return Baseline{}, err
	}
	b.AsOf = b.AsOf.UTC()
	return b, nil
}
