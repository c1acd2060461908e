package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// RepositoryPort persists baselines.
type RepositoryPort interface {
	Insert(ctx context.Context, b Baseline) error
	Get(ctx context.Context, id string) (Baseline, error)
	List(ctx context.Context, skus []string) ([]Baseline, error)
}

// EventRecorder documents reconciliation decisions.
type EventRecorder interface {
	Record(ctx context.Context, event shared.ReconciliationEvent) error
	ListEvents(ctx context.Context, sku string, limit int) ([]shared.ReconciliationEvent, error)
}

// Reconciler recomputes quantities through the ledger.
type Reconciler interface {
	// Check returns an error wrapping the drift sentinel when later is not
	// derivable from earlier.
	Check(ctx context.Context, earlier, later Baseline) error
	// Derive walks from forward to asOf and returns the end-of-day quantity.
	Derive(ctx context.Context, from Baseline, asOf time.Time) (int64, error)
}

// Registry is the single write path for baselines.
type Registry struct {
	repo       RepositoryPort
	reconciler Reconciler
	events     EventRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry builds a Registry. events may be nil.
func NewRegistry(repo RepositoryPort, reconciler Reconciler, events EventRecorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, reconciler: reconciler, events: events, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (r *Registry) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Input describes a baseline to introduce.
type Input struct {
	Name     string
	SKU      string
	AsOf     time.Time
	Quantity int64
}

// Introduce adds a baseline to the lineage after checking it against its
// neighbours. A baseline that is not derivable from the lineage is rejected
// and the drift is recorded; it never becomes a second source of truth.
func (r *Registry) Introduce(ctx context.Context, in Input) (Baseline, error) {
	b := Baseline{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		SKU:       strings.ToUpper(strings.TrimSpace(in.SKU)),
		AsOf:      shared.DateOf(in.AsOf),
		Quantity:  in.Quantity,
		CreatedAt: r.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return Baseline{}, err
	}

	all, err := r.repo.List(ctx, []string{b.SKU})
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: list lineage: %w", err)
	}
	for _, existing := range Lineage(all, b.SKU) {
		if existing.AsOf.Equal(b.AsOf) {
			return Baseline{}, fmt.Errorf("%w: %s already anchored on %s by %q", ErrDuplicate, b.SKU, b.AsOf.Format(shared.DateLayout), existing.Name)
		}
	}

	before, after := Neighbours(all, b.SKU, b.AsOf)
	if before != nil {
		if err := r.check(ctx, *before, b); err != nil {
			return Baseline{}, err
		}
	}
	if after != nil {
		if err := r.check(ctx, b, *after); err != nil {
			return Baseline{}, err
		}
	}

	if err := r.repo.Insert(ctx, b); err != nil {
		return Baseline{}, fmt.Errorf("baseline: insert: %w", err)
	}
	kind := shared.EventAccepted
	if before == nil && after == nil {
		kind = shared.EventAnchor
	}
	r.record(ctx, shared.ReconciliationEvent{SKU: b.SKU, Kind: kind, BaselineID: b.ID, Actual: &b.Quantity, Detail: map[string]any{"name": b.Name, "as_of": b.AsOf.Format(shared.DateLayout)}})
	r.logger.Info("baseline introduced", slog.String("sku", b.SKU), slog.String("name", b.Name), slog.String("as_of", b.AsOf.Format(shared.DateLayout)), slog.Int64("quantity", b.Quantity))
	return b, nil
}

// Amend replaces the lineage head with a value recomputed from the nearest
// earlier trusted baseline. The old head stays on record, superseded.
func (r *Registry) Amend(ctx context.Context, headID, reason string) (Baseline, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Baseline{}, ErrReasonRequired
	}
	target, err := r.repo.Get(ctx, headID)
	if err != nil {
		return Baseline{}, err
	}
	all, err := r.repo.List(ctx, []string{target.SKU})
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: list lineage: %w", err)
	}
	head, ok := Head(all, target.SKU)
	if !ok || head.ID != target.ID {
		return Baseline{}, ErrNotLineageHead
	}
	trusted, ok := Anchor(all, target.SKU, target.AsOf)
	if !ok {
		return Baseline{}, ErrNoTrustedAnchor
	}
	derived, err := r.reconciler.Derive(ctx, trusted, target.AsOf)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: derive %s: %w", target.SKU, err)
	}

	amended := Baseline{
		ID:         uuid.NewString(),
		Name:       target.Name,
		SKU:        target.SKU,
		AsOf:       target.AsOf,
		Quantity:   derived,
		Supersedes: target.ID,
		Reason:     reason,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.repo.Insert(ctx, amended); err != nil {
		return Baseline{}, fmt.Errorf("baseline: insert amendment: %w", err)
	}
	r.record(ctx, shared.ReconciliationEvent{
		SKU:        amended.SKU,
		Kind:       shared.EventAmendment,
		BaselineID: amended.ID,
		Expected:   &derived,
		Actual:     &target.Quantity,
		Detail:     map[string]any{"reason": reason, "superseded": target.ID, "trusted": trusted.ID},
	})
	r.logger.Warn("baseline amended", slog.String("sku", amended.SKU), slog.String("as_of", amended.AsOf.Format(shared.DateLayout)), slog.Int64("previous", target.Quantity), slog.Int64("derived", derived), slog.String("reason", reason))
	return amended, nil
}

// List returns every stored baseline for the SKUs (all SKUs when empty).
func (r *Registry) List(ctx context.Context, skus []string) ([]Baseline, error) {
	return r.repo.List(ctx, skus)
}

// Events returns the reconciliation history of a SKU, newest first.
func (r *Registry) Events(ctx context.Context, sku string, limit int) ([]shared.ReconciliationEvent, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, ErrSKURequired
	}
	if r.events == nil {
		return nil, nil
	}
	return r.events.ListEvents(ctx, sku, limit)
}

func (r *Registry) check(ctx context.Context, earlier, later Baseline) error {
	err := r.reconciler.Check(ctx, earlier, later)
	if err == nil {
		return nil
	}
	r.logger.Error("baseline drift", slog.String("sku", later.SKU), slog.String("earlier", earlier.AsOf.Format(shared.DateLayout)), slog.String("later", later.AsOf.Format(shared.DateLayout)), slog.Any("error", err))
	var drift interface{ Quantities() (int64, int64) }
	if errors.As(err, &drift) {
		expected, actual := drift.Quantities()
		r.record(ctx, shared.ReconciliationEvent{
			SKU:      later.SKU,
			Kind:     shared.EventDrift,
			Expected: &expected,
			Actual:   &actual,
			Detail:   map[string]any{"earlier": earlier.AsOf.Format(shared.DateLayout), "later": later.AsOf.Format(shared.DateLayout)},
		})
	}
	return err
}

func (r *Registry) record(ctx context.Context, event shared.ReconciliationEvent) {
	if r.events == nil {
		return
	}
	event.At = r.now().UTC()
	if err := r.events.Record(ctx, event); err != nil {
		r.logger.Error("record reconciliation event", slog.String("sku", event.SKU), slog.String("kind", event.Kind), slog.Any("error", err))
	}
}
