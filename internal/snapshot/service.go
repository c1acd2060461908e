package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/platform/cache"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// BaselineSource reads the baseline registry.
type BaselineSource interface {
	List(ctx context.Context, skus []string) ([]baseline.Baseline, error)
}

// LedgerSource reads ledger transactions.
type LedgerSource interface {
	Transactions(ctx context.Context, filter inventory.Filter) ([]inventory.Transaction, error)
}

// Store persists derived snapshot state.
type Store interface {
	Replace(ctx context.Context, rng shared.DateRange, snaps []Snapshot, levels []Level) error
	Annotate(ctx context.Context, forecasts []Forecast, at time.Time) error
	Current(ctx context.Context) ([]Level, error)
}

// Describer supplies the product name and alert level of a SKU holding qty.
type Describer interface {
	Describe(sku string, qty int64) (name, alert string)
}

// Service loads inputs, runs the calculator and manages the cache.
type Service struct {
	baselines BaselineSource
	ledger    LedgerSource
	store     Store
	cache     *cache.JSONCache
	metrics   *jobmetrics.Metrics
	describer Describer
	logger    *slog.Logger
	flight    singleflight.Group
	now       func() time.Time
}

// NewService builds Service. cache and metrics may be nil.
func NewService(baselines BaselineSource, ledger LedgerSource, store Store, c *cache.JSONCache, metrics *jobmetrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{baselines: baselines, ledger: ledger, store: store, cache: c, metrics: metrics, logger: logger, now: time.Now}
}

// WithDescriber names and classifies SKUs in the current view.
func (s *Service) WithDescriber(d Describer) *Service {
	s.describer = d
	return s
}

// Inputs are the raw calculator inputs.
type Inputs struct {
	Baselines    []baseline.Baseline
	Transactions []inventory.Transaction
}

// Load reads baselines and the ledger up to through concurrently.
func (s *Service) Load(ctx context.Context, skus []string, through time.Time) (Inputs, error) {
	var in Inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.baselines.List(gctx, skus)
		if err != nil {
			return fmt.Errorf("snapshot: load baselines: %w", err)
		}
		in.Baselines = list
		return nil
	})
	g.Go(func() error {
		txs, err := s.ledger.Transactions(gctx, inventory.Filter{SKUs: skus, To: through})
		if err != nil {
			return fmt.Errorf("snapshot: load ledger: %w", err)
		}
		in.Transactions = txs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

// Compute loads inputs and derives snapshots for rng. Per-SKU failures and
// negative days are logged; only infrastructure errors are returned.
func (s *Service) Compute(ctx context.Context, skus []string, rng shared.DateRange) (Result, error) {
	in, err := s.Load(ctx, skus, rng.To)
	if err != nil {
		return Result{}, err
	}
	res := Compute(in.Baselines, in.Transactions, rng)
	s.report(res)
	return res, nil
}

func (s *Service) report(res Result) {
	for _, f := range res.Failures {
		s.logger.Error("snapshot sku failed", slog.String("sku", f.SKU), slog.String("range", res.Range.String()), slog.Any("error", f.Err))
	}
	negative := map[string]int{}
	for _, a := range res.Alerts {
		negative[a.SKU]++
		s.logger.Warn("negative inventory", slog.String("sku", a.SKU), slog.String("date", a.Date.Format(shared.DateLayout)), slog.Int64("eod", a.EOD))
	}
	for sku, days := range negative {
		s.metrics.AddNegativeInventory(sku, days)
	}
}

// Persist replaces the cache for the result range and refreshes the
// current-inventory view from each SKU's last EOD. The weekly average of an
// existing row is kept.
func (s *Service) Persist(ctx context.Context, res Result) ([]Level, error) {
	at := s.now().UTC()
	levels := make([]Level, 0, len(res.Movements))
	for _, sku := range res.SKUs() {
		eod, _ := res.Final(sku)
		l := Level{SKU: sku, AsOf: res.Range.To, Quantity: eod, UpdatedAt: at}
		if s.describer != nil {
			l.ProductName, l.AlertLevel = s.describer.Describe(sku, eod)
		}
		levels = append(levels, l)
	}
	if err := s.store.Replace(ctx, res.Range, res.Snapshots, levels); err != nil {
		return nil, fmt.Errorf("snapshot: persist: %w", err)
	}
	s.bump(ctx)
	return levels, nil
}

// Annotate records the weekly rolling average and alert level in the
// current view.
func (s *Service) Annotate(ctx context.Context, forecasts []Forecast) error {
	if err := s.store.Annotate(ctx, forecasts, s.now().UTC()); err != nil {
		return fmt.Errorf("snapshot: annotate: %w", err)
	}
	s.bump(ctx)
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("current inventory cache bump failed", slog.Any("error", err))
	}
}

// Current returns the current-inventory view, coalescing concurrent reads.
func (s *Service) Current(ctx context.Context) ([]Level, error) {
	key, err := s.cache.Key(ctx, "current")
	if err != nil {
		s.logger.Warn("current inventory cache unavailable", slog.Any("error", err))
		return s.store.Current(ctx)
	}
	ch := s.flight.DoChan(key, func() (any, error) {
		var levels []Level
		err := s.cache.Fetch(ctx, key, &levels, func(ctx context.Context) (any, error) {
			return s.store.Current(ctx)
		})
		return levels, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Level), nil
	}
}
