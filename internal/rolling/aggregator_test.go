package rolling

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

func week(start time.Time, qty int64, final bool) Bucket {
	w := WeekOf(start)
	return Bucket{SKU: "X", PeriodStart: w.From, PeriodEnd: w.To, QuantityShipped: qty, Final: final}
}

func TestWeekOfStartsMonday(t *testing.T) {
	w := WeekOf(shared.Date(2025, time.October, 1)) // Wednesday
	require.Equal(t, shared.Date(2025, time.September, 29), w.From)
	require.Equal(t, shared.Date(2025, time.October, 5), w.To)

	sunday := WeekOf(shared.Date(2025, time.October, 5))
	require.Equal(t, w, sunday)
}

func TestRollingAverageUsesAvailableWeeksBelowFloor(t *testing.T) {
	history := []Bucket{
		week(shared.Date(2025, time.October, 6), 100, true),
		week(shared.Date(2025, time.October, 13), 200, true),
	}
	avg, err := ComputeRollingAverage("X", history, 8, 4)
	require.NoError(t, err)
	require.Equal(t, 150.0, avg.Value)
	require.Equal(t, 2, avg.Periods)
	require.True(t, avg.BelowFloor)
}

func TestRollingAverageLookbackAndOpenBucket(t *testing.T) {
	history := []Bucket{
		week(shared.Date(2025, time.September, 29), 1000, true),
		week(shared.Date(2025, time.October, 6), 100, true),
		week(shared.Date(2025, time.October, 13), 200, true),
		week(shared.Date(2025, time.October, 20), 999, false),
	}
	avg, err := ComputeRollingAverage("X", history, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 150.0, avg.Value)
	require.False(t, avg.BelowFloor)
}

func TestRollingAverageNoHistory(t *testing.T) {
	_, err := ComputeRollingAverage("X", []Bucket{week(shared.Date(2025, time.October, 20), 5, false)}, 4, 4)
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestDaysOfSupply(t *testing.T) {
	days, ok := DaysOfSupply(1237, Average{Value: 700}, 7)
	require.True(t, ok)
	require.Equal(t, 12.4, days)

	_, ok = DaysOfSupply(1237, Average{Value: 0}, 7)
	require.False(t, ok)
}

func TestBucketsFromShipments(t *testing.T) {
	shipments := []inventory.ShipmentLineItem{
		{ShipDate: shared.Date(2025, time.October, 6), SKU: "A", Quantity: 5},
		{ShipDate: shared.Date(2025, time.October, 12), SKU: "A", Quantity: 7},
		{ShipDate: shared.Date(2025, time.October, 13), SKU: "A", Quantity: 100},
	}
	buckets := BucketsFromShipments(shipments, shared.Date(2025, time.October, 8), []string{"A", "B"}, true)
	require.Equal(t, []Bucket{
		{SKU: "A", PeriodStart: shared.Date(2025, time.October, 6), PeriodEnd: shared.Date(2025, time.October, 12), QuantityShipped: 12, Final: true},
		{SKU: "B", PeriodStart: shared.Date(2025, time.October, 6), PeriodEnd: shared.Date(2025, time.October, 12), QuantityShipped: 0, Final: true},
	}, buckets)
}

type memoryStore struct {
	buckets map[string]Bucket
}

func (m *memoryStore) Upsert(_ context.Context, buckets []Bucket) error {
	for _, b := range buckets {
		key := b.SKU + b.PeriodStart.Format(shared.DateLayout)
		if existing, ok := m.buckets[key]; ok && existing.Final {
			continue
		}
		m.buckets[key] = b
	}
	return nil
}

func (m *memoryStore) History(_ context.Context, _ []string, through time.Time) ([]Bucket, error) {
	var out []Bucket
	for _, b := range m.buckets {
		if !b.PeriodStart.After(through) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeShipments []inventory.ShipmentLineItem

func (f fakeShipments) Shipments(_ context.Context, filter inventory.Filter) ([]inventory.ShipmentLineItem, error) {
	var out []inventory.ShipmentLineItem
	for _, s := range f {
		if filter.From.IsZero() || !s.ShipDate.Before(filter.From) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fakeShipments) FirstActivity(_ context.Context, skus []string) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	for _, s := range f {
		if len(skus) > 0 && !slices.Contains(skus, s.SKU) {
			continue
		}
		if first, ok := out[s.SKU]; !ok || s.ShipDate.Before(first) {
			out[s.SKU] = s.ShipDate
		}
	}
	return out, nil
}

func TestServiceRefreshClosesPastWeeksOnly(t *testing.T) {
	store := &memoryStore{buckets: map[string]Bucket{}}
	lines := fakeShipments{
		{ShipDate: shared.Date(2025, time.October, 7), SKU: "X", Quantity: 70},
		{ShipDate: shared.Date(2025, time.October, 14), SKU: "X", Quantity: 140},
		{ShipDate: shared.Date(2025, time.October, 21), SKU: "X", Quantity: 999},
	}
	svc := NewService(store, lines, Settings{LookbackWeeks: 2, MinWeeks: 4}, nil)
	ctx := context.Background()
	asOf := shared.Date(2025, time.October, 22)

	buckets, err := svc.Refresh(ctx, []string{"X"}, asOf)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	require.False(t, buckets[2].Final)

	avgs, err := svc.Averages(ctx, []string{"X", "Y"}, asOf)
	require.NoError(t, err)
	require.Equal(t, 105.0, avgs["X"].Value)
	require.True(t, avgs["X"].BelowFloor)
	_, ok := avgs["Y"]
	require.False(t, ok)
}

func TestServiceRefreshStartsAtFirstActivity(t *testing.T) {
	store := &memoryStore{buckets: map[string]Bucket{}}
	lines := fakeShipments{
		{ShipDate: shared.Date(2025, time.October, 7), SKU: "X", Quantity: 100},
		{ShipDate: shared.Date(2025, time.October, 14), SKU: "X", Quantity: 200},
	}
	svc := NewService(store, lines, Settings{LookbackWeeks: 8, MinWeeks: 4}, nil)
	ctx := context.Background()
	asOf := shared.Date(2025, time.October, 22)

	buckets, err := svc.Refresh(ctx, []string{"X", "NEW"}, asOf)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	for _, b := range buckets {
		require.Equal(t, "X", b.SKU)
		require.False(t, b.PeriodStart.Before(shared.Date(2025, time.October, 6)))
	}

	avgs, err := svc.Averages(ctx, []string{"X", "NEW"}, asOf)
	require.NoError(t, err)
	require.Equal(t, 150.0, avgs["X"].Value)
	require.Equal(t, 2, avgs["X"].Periods)
	require.True(t, avgs["X"].BelowFloor)
	_, ok := avgs["NEW"]
	require.False(t, ok)
}

func TestServiceRefreshKeepsQuietWeeksAfterFirstActivity(t *testing.T) {
	store := &memoryStore{buckets: map[string]Bucket{}}
	lines := fakeShipments{
		{ShipDate: shared.Date(2025, time.September, 30), SKU: "X", Quantity: 300},
	}
	svc := NewService(store, lines, Settings{LookbackWeeks: 8, MinWeeks: 4}, nil)
	ctx := context.Background()
	asOf := shared.Date(2025, time.October, 22)

	_, err := svc.Refresh(ctx, []string{"X"}, asOf)
	require.NoError(t, err)
	avgs, err := svc.Averages(ctx, []string{"X"}, asOf)
	require.NoError(t, err)
	require.Equal(t, 3, avgs["X"].Periods)
	require.Equal(t, 100.0, avgs["X"].Value)
	require.True(t, avgs["X"].BelowFloor)
}
