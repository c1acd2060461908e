package rolling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Store persists buckets.
type Store interface {
	Upsert(ctx context.Context, buckets []Bucket) error
	History(ctx context.Context, skus []string, through time.Time) ([]Bucket, error)
}

// ShipmentSource reads shipment lines and the first recorded day of each SKU.
type ShipmentSource interface {
	Shipments(ctx context.Context, filter inventory.Filter) ([]inventory.ShipmentLineItem, error)
	FirstActivity(ctx context.Context, skus []string) (map[string]time.Time, error)
}

// Settings controls the trailing window.
type Settings struct {
	LookbackWeeks int
	MinWeeks      int
}

// Service maintains weekly buckets and rolling averages.
type Service struct {
	store     Store
	shipments ShipmentSource
	settings  Settings
	logger    *slog.Logger
}

// NewService constructs Service.
func NewService(store Store, shipments ShipmentSource, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, shipments: shipments, settings: settings, logger: logger}
}

// Refresh rebuilds the buckets of the lookback window ending with the week
// of asOf. Weeks that ended before asOf are closed; the current week stays
// open. A SKU gets buckets only from the week of its first recorded activity,
// so weeks before it existed never count as zero consumption.
func (s *Service) Refresh(ctx context.Context, skus []string, asOf time.Time) ([]Bucket, error) {
	current := WeekOf(asOf)
	lookback := max(s.settings.LookbackWeeks, 1)
	window := shared.DateRange{From: current.From.AddDate(0, 0, -7*lookback), To: current.To}
	lines, err := s.shipments.Shipments(ctx, inventory.Filter{SKUs: skus, From: window.From, To: window.To})
	if err != nil {
		return nil, fmt.Errorf("rolling: load shipments: %w", err)
	}
	first, err := s.shipments.FirstActivity(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("rolling: load first activity: %w", err)
	}
	var buckets []Bucket
	for _, week := range Weeks(window) {
		final := week.To.Before(shared.DateOf(asOf))
		buckets = append(buckets, BucketsFromShipments(lines, week.From, activeBy(first, week.To), final)...)
	}
	if err := s.store.Upsert(ctx, buckets); err != nil {
		return nil, fmt.Errorf("rolling: store buckets: %w", err)
	}
	return buckets, nil
}

// Averages computes the rolling average for every SKU. SKUs without history
// are omitted and logged.
func (s *Service) Averages(ctx context.Context, skus []string, asOf time.Time) (map[string]Average, error) {
	history, err := s.store.History(ctx, skus, WeekOf(asOf).From)
	if err != nil {
		return nil, fmt.Errorf("rolling: load history: %w", err)
	}
	out := make(map[string]Average, len(skus))
	for _, sku := range skus {
		avg, err := ComputeRollingAverage(sku, history, s.settings.LookbackWeeks, s.settings.MinWeeks)
		if errors.Is(err, ErrNoHistory) {
			s.logger.Info("no rolling history", slog.String("sku", sku))
			continue
		}
		if err != nil {
			return nil, err
		}
		if avg.BelowFloor {
			s.logger.Info("rolling average below floor", slog.String("sku", sku), slog.Int("periods", avg.Periods), slog.Int("min", s.settings.MinWeeks))
		}
		out[sku] = avg
	}
	return out, nil
}

func activeBy(first map[string]time.Time, day time.Time) []string {
	var out []string
	for sku, since := range first {
		if !since.After(day) {
			out = append(out, sku)
		}
	}
	return out
}
