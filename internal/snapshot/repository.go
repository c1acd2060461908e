package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockrecon/internal/platform/db"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Level is the current-inventory view row for one SKU. RollingAverage stays
// nil until a weekly run has averaged the SKU.
type Level struct {
	SKU            string    `json:"sku"`
	ProductName    string    `json:"product_name"`
	AsOf           time.Time `json:"as_of"`
	Quantity       int64     `json:"current_quantity"`
	RollingAverage *float64  `json:"rolling_average"`
	AlertLevel     string    `json:"alert_level"`
	UpdatedAt      time.Time `json:"last_updated"`
}

// Forecast is the weekly part of a current-view row.
type Forecast struct {
	SKU            string
	RollingAverage *float64
	AlertLevel     string
}

// Repository stores the snapshot cache and current-inventory view.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Replace swaps the cached snapshots of rng for the SKUs in snaps and upserts
// the current view, atomically. A failure leaves the prior cache untouched.
func (r *Repository) Replace(ctx context.Context, rng shared.DateRange, snaps []Snapshot, levels []Level) error {
	skus := make([]string, 0, len(levels))
	for _, l := range levels {
		skus = append(skus, l.SKU)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM daily_snapshots WHERE snapshot_date BETWEEN $1 AND $2 AND sku = ANY($3)`, rng.From, rng.To, skus); err != nil {
			return fmt.Errorf("clear snapshots: %w", err)
		}
		rows := make([][]any, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, []any{s.Date, s.SKU, s.BOD, s.EOD})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_snapshots"}, []string{"snapshot_date", "sku", "bod", "eod"}, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy snapshots: %w", err)
		}
		for _, l := range levels {
			if _, err := tx.Exec(ctx, upsertLevelSQL, l.SKU, l.ProductName, l.AsOf, l.Quantity, l.AlertLevel, l.UpdatedAt); err != nil {
				return fmt.Errorf("upsert current %s: %w", l.SKU, err)
			}
		}
		return nil
	})
}

// Annotate stores the weekly average and alert of each SKU already in the
// current view.
func (r *Repository) Annotate(ctx context.Context, forecasts []Forecast, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, f := range forecasts {
			if _, err := tx.Exec(ctx, `UPDATE current_inventory SET rolling_average = $2, alert_level = $3, updated_at = $4 WHERE sku = $1`,
				f.SKU, f.RollingAverage, f.AlertLevel, at); err != nil {
				return fmt.Errorf("annotate current %s: %w", f.SKU, err)
			}
		}
		return nil
	})
}

// Current lists the current-inventory view ordered by SKU.
func (r *Repository) Current(ctx context.Context) ([]Level, error) {
	rows, err := r.pool.Query(ctx, `SELECT sku, product_name, as_of, quantity, rolling_average, alert_level, updated_at
FROM current_inventory ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Level
	for rows.Next() {
		var l Level
		if err := rows.Scan(&l.SKU, &l.ProductName, &l.AsOf, &l.Quantity, &l.RollingAverage, &l.AlertLevel, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.AsOf = l.AsOf.UTC()
		l.UpdatedAt = l.UpdatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// A daily refresh keeps the weekly average of the row it replaces.
const upsertLevelSQL = `INSERT INTO current_inventory (sku, product_name, as_of, quantity, alert_level, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sku) DO UPDATE SET product_name = EXCLUDED.product_name, as_of = EXCLUDED.as_of,
    quantity = EXCLUDED.quantity, alert_level = EXCLUDED.alert_level, updated_at = EXCLUDED.updated_at`
