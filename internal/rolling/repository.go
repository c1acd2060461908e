package rolling

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockrecon/internal/platform/db"
)

// Repository stores weekly buckets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes buckets. Final buckets are never rewritten.
func (r *Repository) Upsert(ctx context.Context, buckets []Bucket) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, b := range buckets {
			_, err := tx.Exec(ctx, `INSERT INTO rolling_buckets (sku, period_start, period_end, quantity_shipped, final)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (sku, period_start) DO UPDATE
SET quantity_shipped = EXCLUDED.quantity_shipped, final = EXCLUDED.final
WHERE rolling_buckets.final = FALSE`, b.SKU, b.PeriodStart, b.PeriodEnd, b.QuantityShipped, b.Final)
			if err != nil {
				return fmt.Errorf("upsert bucket %s %s: %w", b.SKU, b.PeriodStart.Format("2006-01-02"), err)
			}
		}
		return nil
	})
}

// History returns buckets starting on or before through.
func (r *Repository) History(ctx context.Context, skus []string, through time.Time) ([]Bucket, error) {
	var filter any
	if len(skus) > 0 {
		filter = skus
	}
	rows, err := r.pool.Query(ctx, `SELECT sku, period_start, period_end, quantity_shipped, final FROM rolling_buckets
WHERE period_start <= $1 AND ($2::text[] IS NULL OR sku = ANY($2))
ORDER BY sku, period_start`, through, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.SKU, &b.PeriodStart, &b.PeriodEnd, &b.QuantityShipped, &b.Final); err != nil {
			return nil, err
		}
		b.PeriodStart, b.PeriodEnd = b.PeriodStart.UTC(), b.PeriodEnd.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
