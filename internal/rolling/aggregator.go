package rolling

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// ErrNoHistory means a SKU has no closed weekly bucket yet.
var ErrNoHistory = errors.New("rolling: no shipment history")

// Bucket is one SKU's shipped quantity over a Monday to Sunday week. Only
// the open (non-final) bucket may still change.
type Bucket struct {
	SKU             string    `json:"sku"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	QuantityShipped int64     `json:"quantity_shipped"`
	Final           bool      `json:"final"`
}

// Average is a trailing mean of weekly shipments.
type Average struct {
	SKU        string  `json:"sku"`
	Value      float64 `json:"value"`
	Periods    int     `json:"periods"`
	BelowFloor bool    `json:"below_floor"`
}

// WeekOf returns the Monday to Sunday period containing day.
func WeekOf(day time.Time) shared.DateRange {
	d := shared.DateOf(day)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return shared.DateRange{From: start, To: start.AddDate(0, 0, 6)}
}

// ComputeRollingAverage averages the most recent lookback final buckets of
// sku. With fewer than minPeriods buckets it averages what exists and sets
// BelowFloor; with none it returns ErrNoHistory rather than zero.
func ComputeRollingAverage(sku string, history []Bucket, lookback, minPeriods int) (Average, error) {
	var closed []Bucket
	for _, b := range history {
		if b.SKU == sku && b.Final {
			closed = append(closed, b)
		}
	}
	if len(closed) == 0 {
		return Average{SKU: sku}, ErrNoHistory
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].PeriodStart.Before(closed[j].PeriodStart) })
	if lookback > 0 && len(closed) > lookback {
		closed = closed[len(closed)-lookback:]
	}
	var sum int64
	for _, b := range closed {
		sum += b.QuantityShipped
	}
	return Average{
		SKU:        sku,
		Value:      float64(sum) / float64(len(closed)),
		Periods:    len(closed),
		BelowFloor: len(closed) < minPeriods,
	}, nil
}

// DaysOfSupply converts current stock into days at the average weekly rate.
// It reports false when the rate is zero, which callers render as N/A.
func DaysOfSupply(current int64, avg Average, periodDays int) (float64, bool) {
	if avg.Value <= 0 || periodDays <= 0 {
		return 0, false
	}
	daily := avg.Value / float64(periodDays)
	days := float64(current) / daily
	return math.Round(days*10) / 10, true
}

// BucketsFromShipments sums the shipments of the week containing weekStart
// into one bucket per SKU, sorted by SKU. Every SKU in skus gets a bucket,
// zero when nothing shipped. final marks the week closed.
func BucketsFromShipments(shipments []inventory.ShipmentLineItem, weekStart time.Time, skus []string, final bool) []Bucket {
	week := WeekOf(weekStart)
	totals := map[string]int64{}
	for _, sku := range skus {
		totals[sku] = 0
	}
	for _, s := range shipments {
		if week.Contains(s.ShipDate) {
			totals[s.SKU] += s.Quantity
		}
	}
	keys := make([]string, 0, len(totals))
	for sku := range totals {
		keys = append(keys, sku)
	}
	sort.Strings(keys)
	out := make([]Bucket, 0, len(keys))
	for _, sku := range keys {
		out = append(out, Bucket{SKU: sku, PeriodStart: week.From, PeriodEnd: week.To, QuantityShipped: totals[sku], Final: final})
	}
	return out
}

// Weeks lists the Monday-based periods overlapping rng, oldest first.
func Weeks(rng shared.DateRange) []shared.DateRange {
	var out []shared.DateRange
	for w := WeekOf(rng.From); !w.From.After(rng.To); w = WeekOf(w.To.AddDate(0, 0, 1)) {
		out = append(out, w)
	}
	return out
}
