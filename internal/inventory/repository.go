package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockrecon/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertTransactionSQL = `
INSERT INTO ledger_transactions (id, tx_date, sku, lot, tx_type, quantity, reference, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tx_date, sku, lot, tx_type, reference) DO NOTHING`

const existingTransactionSQL = `
SELECT quantity, note FROM ledger_transactions
WHERE tx_date = $1 AND sku = $2 AND lot = $3 AND tx_type = $4 AND reference = $5`

// InsertTransactions appends rows in one transaction and returns how many
// were new. A row whose key already exists with a different quantity or note
// fails the whole batch with ErrConflictingEntry.
func (r *Repository) InsertTransactions(ctx context.Context, txs []Transaction) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inserted = 0
		for _, t := range txs {
			tag, err := tx.Exec(ctx, insertTransactionSQL, t.ID, t.Date, t.SKU, t.Lot, string(t.Type), t.Quantity, t.Reference, t.Note, t.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			if tag.RowsAffected() == 1 {
				inserted++
				continue
			}
			existing := t
			if err := tx.QueryRow(ctx, existingTransactionSQL, t.Date, t.SKU, t.Lot, string(t.Type), t.Reference).Scan(&existing.Quantity, &existing.Note); err != nil {
				return fmt.Errorf("load transaction %s: %w", t.NaturalKey(), err)
			}
			if !existing.SameMovement(t) {
				return conflictError(existing, t)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

const insertShipmentSQL = `
INSERT INTO shipment_lines (order_reference, sku, lot, ship_date, quantity, packages)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (order_reference, sku, lot) DO NOTHING`

// InsertShipments records shipment lines; existing lines are immutable.
func (r *Repository) InsertShipments(ctx context.Context, items []ShipmentLineItem) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inserted = 0
		for _, item := range items {
			tag, err := tx.Exec(ctx, insertShipmentSQL, item.OrderReference, item.SKU, item.Lot, item.ShipDate, item.Quantity, item.Packages)
			if err != nil {
				return fmt.Errorf("insert shipment %s: %w", item.NaturalKey(), err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListTransactions returns ledger rows ordered by date then insertion.
func (r *Repository) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, tx_date, sku, lot, tx_type, quantity, reference, note, created_at
FROM ledger_transactions
WHERE ($1::text[] IS NULL OR sku = ANY($1))
  AND ($2::date IS NULL OR tx_date >= $2)
  AND ($3::date IS NULL OR tx_date <= $3)
ORDER BY tx_date, created_at, id`, skuParam(filter.SKUs), nullDate(filter.From), nullDate(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			t      Transaction
			txType string
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.SKU, &t.Lot, &txType, &t.Quantity, &t.Reference, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(txType)
		t.Date = t.Date.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListShipments returns shipment lines ordered by ship date.
func (r *Repository) ListShipments(ctx context.Context, filter Filter) ([]ShipmentLineItem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT order_reference, sku, lot, ship_date, quantity, packages
FROM shipment_lines
WHERE ($1::text[] IS NULL OR sku = ANY($1))
  AND ($2::date IS NULL OR ship_date >= $2)
  AND ($3::date IS NULL OR ship_date <= $3)
ORDER BY ship_date, recorded_at, order_reference, sku, lot`, skuParam(filter.SKUs), nullDate(filter.From), nullDate(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShipmentLineItem
	for rows.Next() {
		var item ShipmentLineItem
		if err := rows.Scan(&item.OrderReference, &item.SKU, &item.Lot, &item.ShipDate, &item.Quantity, &item.Packages); err != nil {
			return nil, err
		}
		item.ShipDate = item.ShipDate.UTC()
		out = append(out, item)
	}
	return out, rows.Err()
}

// FirstActivity returns the earliest ledger or shipment date of each SKU.
// SKUs with no rows are absent.
func (r *Repository) FirstActivity(ctx context.Context, skus []string) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
SELECT sku, MIN(day) FROM (
    SELECT sku, tx_date AS day FROM ledger_transactions
    UNION ALL
    SELECT sku, ship_date FROM shipment_lines
) activity
WHERE ($1::text[] IS NULL OR sku = ANY($1))
GROUP BY sku`, skuParam(skus))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var (
			sku string
			day time.Time
		)
		if err := rows.Scan(&sku, &day); err != nil {
			return nil, err
		}
		out[sku] = day.UTC()
	}
	return out, rows.Err()
}

func skuParam(skus []string) any {
	if len(skus) == 0 {
		return nil
	}
	return skus
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
