package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/catalog"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/internal/rolling"
	"github.com/odyssey-erp/stockrecon/internal/shared"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
)

// Store persists run history and artifacts.
type Store interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status Status, errText string, at time.Time) error
	LastSucceeded(ctx context.Context, kind Kind, periodKey string) (Run, bool, error)
	ListRuns(ctx context.Context, kind Kind, limit int) ([]Run, error)
	SaveArtifact(ctx context.Context, kind Kind, periodKey string, payload []byte) error
	SaveMonthly(ctx context.Context, periodKey string, payload []byte, report MonthlyReport) error
	Artifact(ctx context.Context, kind Kind, periodKey string) ([]byte, error)
}

// Ledger is the ledger surface the generators use.
type Ledger interface {
	SyncShipTransactions(ctx context.Context, rng shared.DateRange) (inventory.AppendResult, error)
	Shipments(ctx context.Context, filter inventory.Filter) ([]inventory.ShipmentLineItem, error)
}

// Snapshots is the snapshot surface the generators use.
type Snapshots interface {
	Load(ctx context.Context, skus []string, through time.Time) (snapshot.Inputs, error)
	Compute(ctx context.Context, skus []string, rng shared.DateRange) (snapshot.Result, error)
	Persist(ctx context.Context, res snapshot.Result) ([]snapshot.Level, error)
	Annotate(ctx context.Context, forecasts []snapshot.Forecast) error
}

// Rolling maintains weekly buckets and averages.
type Rolling interface {
	Refresh(ctx context.Context, skus []string, asOf time.Time) ([]rolling.Bucket, error)
	Averages(ctx context.Context, skus []string, asOf time.Time) (map[string]rolling.Average, error)
}

// Settings tunes the generators.
type Settings struct {
	WindowDays     int
	MonthlyTimeout time.Duration
}

// Service generates the three reports. Each generator assumes its
// dependencies already ran; Pipeline enforces that.
type Service struct {
	store     Store
	ledger    Ledger
	snapshots Snapshots
	rolling   Rolling
	catalog   *catalog.Catalog
	settings  Settings
	logger    *slog.Logger
}

// NewService constructs Service.
func NewService(store Store, ledger Ledger, snapshots Snapshots, roll Rolling, cat *catalog.Catalog, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.WindowDays <= 0 {
		settings.WindowDays = 32
	}
	return &Service{store: store, ledger: ledger, snapshots: snapshots, rolling: roll, catalog: cat, settings: settings, logger: logger}
}

// Daily ingests shipments since the last daily watermark minus the
// correction window, recomputes the trailing window and persists the
// current-inventory view.
func (s *Service) Daily(ctx context.Context, asOf time.Time) (DailyReport, error) {
	asOf = shared.DateOf(asOf)
	window := shared.TrailingRange(asOf, s.settings.WindowDays)

	ingest := shared.DateRange{To: asOf}
	last, ok, err := s.store.LastSucceeded(ctx, KindDaily, "")
	if err != nil {
		return DailyReport{}, fmt.Errorf("reports: daily watermark: %w", err)
	}
	if ok {
		if mark, err := shared.ParseDate(last.PeriodKey); err == nil {
			if mark.After(asOf) {
				mark = asOf
			}
			ingest.From = shared.TrailingRange(mark, s.settings.WindowDays).From
		}
	}
	synced, err := s.ledger.SyncShipTransactions(ctx, ingest)
	if err != nil {
		return DailyReport{}, err
	}

	res, err := s.snapshots.Compute(ctx, nil, window)
	if err != nil {
		return DailyReport{}, err
	}
	if _, err := s.snapshots.Persist(ctx, res); err != nil {
		return DailyReport{}, err
	}
	report := BuildDaily(res)
	report.Ingested = synced.Inserted
	if err := s.saveArtifact(ctx, KindDaily, asOf, report); err != nil {
		return DailyReport{}, err
	}
	s.logger.Info("daily report generated",
		slog.String("as_of", asOf.Format(shared.DateLayout)),
		slog.Int("skus", len(report.Lines)),
		slog.Int("ingested", synced.Inserted),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

// Weekly closes past weekly buckets, refreshes the open one and classifies
// each catalog SKU against its thresholds.
func (s *Service) Weekly(ctx context.Context, asOf time.Time) (WeeklyReport, error) {
	asOf = shared.DateOf(asOf)
	skus := s.catalog.Codes()
	if _, err := s.rolling.Refresh(ctx, skus, asOf); err != nil {
		return WeeklyReport{}, err
	}
	averages, err := s.rolling.Averages(ctx, skus, asOf)
	if err != nil {
		return WeeklyReport{}, err
	}
	res, err := s.snapshots.Compute(ctx, skus, shared.DateRange{From: asOf, To: asOf})
	if err != nil {
		return WeeklyReport{}, err
	}
	levels := make(map[string]int64, len(skus))
	for _, sku := range res.SKUs() {
		levels[sku], _ = res.Final(sku)
	}
	report := BuildWeekly(asOf, levels, averages, s.catalog)
	if err := s.saveArtifact(ctx, KindWeekly, asOf, report); err != nil {
		return WeeklyReport{}, err
	}
	if err := s.snapshots.Annotate(ctx, report.Forecasts()); err != nil {
		return WeeklyReport{}, err
	}
	for _, line := range report.Lines {
		if line.Alert != AlertNormal {
			s.logger.Warn("stock alert", slog.String("sku", line.SKU), slog.String("level", string(line.Alert)), slog.Int64("quantity", line.Quantity))
		}
	}
	return report, nil
}

// Monthly bills the month containing asOf, through asOf. The opening
// quantity of each SKU is derived from the daily baseline lineage; there is
// no separately configured month baseline.
func (s *Service) Monthly(ctx context.Context, asOf time.Time) (MonthlyReport, error) {
	if s.settings.MonthlyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.MonthlyTimeout)
		defer cancel()
	}
	asOf = shared.DateOf(asOf)
	rng := shared.MonthRange(asOf)
	if rng.To.After(asOf) {
		rng.To = asOf
	}

	in, err := s.snapshots.Load(ctx, nil, rng.To)
	if err != nil {
		return MonthlyReport{}, err
	}
	res := snapshot.Compute(in.Baselines, in.Transactions, rng)
	monthStart := make(map[string]int64, len(res.Anchors))
	for _, sku := range res.SKUs() {
		start, err := reconcile.DeriveMonthStart(in.Baselines, in.Transactions, sku, rng.From)
		if err != nil {
			return MonthlyReport{}, fmt.Errorf("reports: month start %s: %w", sku, err)
		}
		monthStart[sku] = start.Quantity
	}

	shipments, err := s.ledger.Shipments(ctx, inventory.Filter{From: rng.From, To: rng.To})
	if err != nil {
		return MonthlyReport{}, err
	}
	report, err := BuildMonthly(res, monthStart, shipments, s.catalog)
	if err != nil {
		return MonthlyReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return MonthlyReport{}, err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return MonthlyReport{}, err
	}
	if err := s.store.SaveMonthly(ctx, KindMonthly.PeriodKey(asOf), payload, report); err != nil {
		return MonthlyReport{}, fmt.Errorf("reports: save monthly: %w", err)
	}
	s.logger.Info("monthly report generated",
		slog.String("month", report.Month),
		slog.Int64("pallet_days", report.PalletDays),
		slog.String("total", report.Total.StringFixed(2)))
	return report, nil
}

// Runs lists recent runs.
func (s *Service) Runs(ctx context.Context, kind Kind, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListRuns(ctx, kind, limit)
}

// Artifact returns the stored JSON of a generated report.
func (s *Service) Artifact(ctx context.Context, kind Kind, periodKey string) (json.RawMessage, error) {
	return s.store.Artifact(ctx, kind, periodKey)
}

// MonthlyReport decodes a stored monthly artifact.
func (s *Service) MonthlyReport(ctx context.Context, month string) (MonthlyReport, error) {
	var report MonthlyReport
	if err := s.decode(ctx, KindMonthly, month, &report); err != nil {
		return MonthlyReport{}, err
	}
	return report, nil
}

// WeeklyReport decodes a stored weekly artifact.
func (s *Service) WeeklyReport(ctx context.Context, periodKey string) (WeeklyReport, error) {
	var report WeeklyReport
	if err := s.decode(ctx, KindWeekly, periodKey, &report); err != nil {
		return WeeklyReport{}, err
	}
	return report, nil
}

func (s *Service) decode(ctx context.Context, kind Kind, periodKey string, dest any) error {
	payload, err := s.store.Artifact(ctx, kind, periodKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("reports: decode %s %s: %w", kind, periodKey, err)
	}
	return nil
}

func (s *Service) saveArtifact(ctx context.Context, kind Kind, asOf time.Time, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := s.store.SaveArtifact(ctx, kind, kind.PeriodKey(asOf), payload); err != nil {
		return fmt.Errorf("reports: save %s: %w", kind, err)
	}
	return nil
}

// Steps exposes the generators as pipeline steps.
func (s *Service) Steps() map[Kind]Step {
	return map[Kind]Step{
		KindDaily: func(ctx context.Context, asOf time.Time) error {
			_, err := s.Daily(ctx, asOf)
			return err
		},
		KindWeekly: func(ctx context.Context, asOf time.Time) error {
			_, err := s.Weekly(ctx, asOf)
			return err
		},
		KindMonthly: func(ctx context.Context, asOf time.Time) error {
			_, err := s.Monthly(ctx, asOf)
			return err
		},
	}
}
