package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReconciliationEvent documents a baseline decision: an anchor, an accepted
// successor, a rejected drift or an amendment.
type ReconciliationEvent struct {
	SKU        string         `json:"sku"`
	Kind       string         `json:"kind"`
	BaselineID string         `json:"baseline_id,omitempty"`
	Expected   *int64         `json:"expected,omitempty"`
	Actual     *int64         `json:"actual,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// Reconciliation event kinds.
const (
	EventAnchor    = "anchor"
	EventAccepted  = "accepted"
	EventDrift     = "drift_rejected"
	EventAmendment = "amendment"
)

// EventLog writes records into reconciliation_events.
type EventLog struct {
	pool *pgxpool.Pool
}

// NewEventLog returns a new EventLog.
func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

// Record persists the event.
func (l *EventLog) Record(ctx context.Context, event ReconciliationEvent) error {
	if l == nil {
		return errors.New("event log not initialised")
	}
	if event.SKU == "" || event.Kind == "" {
		return errors.New("reconciliation event requires sku/kind")
	}
	if event.Detail == nil {
		event.Detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(event.Detail)
	if err != nil {
		return err
	}
	var at any
	if !event.At.IsZero() {
		at = event.At
	}
	var baselineID any
	if event.BaselineID != "" {
		baselineID = event.BaselineID
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO reconciliation_events (sku, kind, baseline_id, expected, actual, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		event.SKU, event.Kind, baselineID, event.Expected, event.Actual, detailJSON, at)
	return err
}

// ListEvents returns events for a SKU, newest first.
func (l *EventLog) ListEvents(ctx context.Context, sku string, limit int) ([]ReconciliationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, `SELECT sku, kind, COALESCE(baseline_id::text, ''), expected, actual, detail, created_at
FROM reconciliation_events WHERE sku = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReconciliationEvent
	for rows.Next() {
		var (
			ev     ReconciliationEvent
			detail []byte
		)
		if err := rows.Scan(&ev.SKU, &ev.Kind, &ev.BaselineID, &ev.Expected, &ev.Actual, &detail, &ev.At); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
