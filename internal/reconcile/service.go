package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/shared"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
)

// BaselineLister reads stored baselines.
type BaselineLister interface {
	List(ctx context.Context, skus []string) ([]baseline.Baseline, error)
}

// LedgerSource reads ledger transactions.
type LedgerSource interface {
	Transactions(ctx context.Context, filter inventory.Filter) ([]inventory.Transaction, error)
}

// Service runs validations against the stores.
type Service struct {
	baselines BaselineLister
	ledger    LedgerSource
	tolerance int64
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewService constructs Service.
func NewService(baselines BaselineLister, ledger LedgerSource, tolerance int64, metrics *jobmetrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{baselines: baselines, ledger: ledger, tolerance: tolerance, metrics: metrics, logger: logger}
}

// Report is the validation report for a set of SKUs.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	OK          bool      `json:"ok"`
	Results     []Result  `json:"results"`
}

// Drifted returns the failing results.
func (r Report) Drifted() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

// Check implements baseline.Reconciler.
func (s *Service) Check(ctx context.Context, earlier, later baseline.Baseline) error {
	txs, err := s.ledger.Transactions(ctx, inventory.Filter{SKUs: []string{later.SKU}, From: earlier.AsOf.AddDate(0, 0, 1), To: later.AsOf})
	if err != nil {
		return fmt.Errorf("reconcile: load ledger: %w", err)
	}
	_, err = ValidateBaseline(earlier, later, txs, s.tolerance)
	if errors.Is(err, ErrBaselineDrift) {
		s.metrics.AddDrift(later.SKU)
	}
	return err
}

// Derive implements baseline.Reconciler.
func (s *Service) Derive(ctx context.Context, from baseline.Baseline, asOf time.Time) (int64, error) {
	txs, err := s.ledger.Transactions(ctx, inventory.Filter{SKUs: []string{from.SKU}, From: from.AsOf.AddDate(0, 0, 1), To: asOf})
	if err != nil {
		return 0, fmt.Errorf("reconcile: load ledger: %w", err)
	}
	qty, _, err := Derive(from, txs, asOf)
	return qty, err
}

// ValidateAll checks every lineage pair for skus (all when empty).
func (s *Service) ValidateAll(ctx context.Context, skus []string) (Report, error) {
	var (
		baselines []baseline.Baseline
		txs       []inventory.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baselines, err = s.baselines.List(gctx, skus)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.ledger.Transactions(gctx, inventory.Filter{SKUs: skus})
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("reconcile: load inputs: %w", err)
	}

	report := Report{GeneratedAt: time.Now().UTC(), OK: true, Results: ValidateAll(baselines, txs, s.tolerance)}
	for _, res := range report.Results {
		if res.OK {
			continue
		}
		report.OK = false
		s.metrics.AddDrift(res.SKU)
		s.logger.Error("baseline drift",
			slog.String("sku", res.SKU),
			slog.String("earlier", res.Earlier),
			slog.String("later", res.Later),
			slog.Int64("expected", res.Expected),
			slog.Int64("actual", res.Actual),
			slog.Int64("delta", res.Delta))
	}
	if report.Results == nil {
		report.Results = []Result{}
	}
	return report, nil
}

// DeriveMonthStart derives the baseline a monthly report walks from: the end
// of the day before month, computed from the lineage anchor. It never reads a
// separately entered month baseline.
func DeriveMonthStart(baselines []baseline.Baseline, txs []inventory.Transaction, sku string, month time.Time) (baseline.Baseline, error) {
	start := shared.MonthRange(month).From
	dayBefore := start.AddDate(0, 0, -1)
	anchor, ok := baseline.Anchor(baselines, sku, start)
	if !ok {
		return baseline.Baseline{}, fmt.Errorf("%w: sku %s has no baseline before %s", snapshot.ErrMissingBaseline, sku, start.Format(shared.DateLayout))
	}
	if anchor.AsOf.Equal(dayBefore) {
		return anchor, nil
	}
	qty, _, err := Derive(anchor, txs, dayBefore)
	if err != nil {
		return baseline.Baseline{}, err
	}
	return baseline.Baseline{
		Name:     "month-start " + start.Format(shared.MonthLayout),
		SKU:      sku,
		AsOf:     dayBefore,
		Quantity: qty,
	}, nil
}
