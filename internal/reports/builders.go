package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockrecon/internal/catalog"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/rolling"
	"github.com/odyssey-erp/stockrecon/internal/shared"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
)

// DailyLine is one SKU's closing quantity.
type DailyLine struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// DailyReport is the daily operational snapshot.
type DailyReport struct {
	AsOf      time.Time                `json:"as_of"`
	From      time.Time                `json:"from"`
	Ingested  int                      `json:"ingested"`
	Lines     []DailyLine              `json:"lines"`
	Failures  []snapshot.Failure       `json:"failures"`
	Negatives []snapshot.NegativeAlert `json:"negatives"`
}

// BuildDaily renders the closing quantities of res.
func BuildDaily(res snapshot.Result) DailyReport {
	out := DailyReport{
		AsOf:      res.Range.To,
		From:      res.Range.From,
		Lines:     []DailyLine{},
		Failures:  nonNil(res.Failures),
		Negatives: nonNil(res.Alerts),
	}
	for _, sku := range res.SKUs() {
		eod, _ := res.Final(sku)
		out.Lines = append(out.Lines, DailyLine{SKU: sku, Quantity: eod})
	}
	return out
}

// AlertLevel classifies a SKU's stock position.
type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertLow      AlertLevel = "low"
	AlertCritical AlertLevel = "critical"
)

// Classify compares qty to the SKU's thresholds. Anything at or below zero
// is critical whatever the thresholds say.
func Classify(qty int64, sku catalog.SKU) AlertLevel {
	switch {
	case qty <= 0 || qty < sku.CriticalThreshold:
		return AlertCritical
	case qty < sku.ReorderThreshold:
		return AlertLow
	}
	return AlertNormal
}

// ViewDescriber names catalog SKUs and classifies their quantity for the
// current-inventory view. Unknown SKUs get empty fields.
type ViewDescriber struct {
	Catalog *catalog.Catalog
}

// Describe implements snapshot.Describer.
func (d ViewDescriber) Describe(code string, qty int64) (string, string) {
	sku, err := d.Catalog.Lookup(code)
	if err != nil {
		return "", ""
	}
	return sku.Name, string(Classify(qty, sku))
}

// WeeklyLine is one SKU row of the weekly report. Nil pointers render as
// null: no rolling history, or days of supply undefined for a zero average.
type WeeklyLine struct {
	SKU            string     `json:"sku"`
	Quantity       int64      `json:"quantity"`
	RollingAverage *float64   `json:"rolling_average"`
	Periods        int        `json:"periods"`
	BelowFloor     bool       `json:"below_floor"`
	DaysOfSupply   *float64   `json:"days_of_supply"`
	Alert          AlertLevel `json:"alert"`
}

// WeeklyReport is the forecast and reorder view.
type WeeklyReport struct {
	AsOf      time.Time    `json:"as_of"`
	WeekStart time.Time    `json:"week_start"`
	WeekEnd   time.Time    `json:"week_end"`
	Lines     []WeeklyLine `json:"lines"`
	Skipped   []string     `json:"skipped"`
}

// Forecasts lists the rolling average and alert of every line.
func (r WeeklyReport) Forecasts() []snapshot.Forecast {
	out := make([]snapshot.Forecast, 0, len(r.Lines))
	for _, line := range r.Lines {
		out = append(out, snapshot.Forecast{SKU: line.SKU, RollingAverage: line.RollingAverage, AlertLevel: string(line.Alert)})
	}
	return out
}

// BuildWeekly joins current levels with rolling averages and thresholds.
// SKUs absent from the catalog are listed in Skipped.
func BuildWeekly(asOf time.Time, levels map[string]int64, averages map[string]rolling.Average, cat *catalog.Catalog) WeeklyReport {
	week := rolling.WeekOf(asOf)
	out := WeeklyReport{AsOf: shared.DateOf(asOf), WeekStart: week.From, WeekEnd: week.To, Lines: []WeeklyLine{}, Skipped: []string{}}
	skus := make([]string, 0, len(levels))
	for sku := range levels {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	for _, code := range skus {
		sku, err := cat.Lookup(code)
		if err != nil {
			out.Skipped = append(out.Skipped, code)
			continue
		}
		qty := levels[code]
		line := WeeklyLine{SKU: code, Quantity: qty, Alert: Classify(qty, sku)}
		if avg, ok := averages[code]; ok {
			value := avg.Value
			line.RollingAverage = &value
			line.Periods = avg.Periods
			line.BelowFloor = avg.BelowFloor
			if days, ok := rolling.DaysOfSupply(qty, avg, 7); ok {
				line.DaysOfSupply = &days
			}
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

// MonthlyDay is one calendar day of the billing walk.
type MonthlyDay struct {
	Date     time.Time        `json:"date"`
	Orders   int              `json:"orders"`
	Packages int              `json:"packages"`
	Pallets  int64            `json:"pallets"`
	BySKU    map[string]int64 `json:"pallets_by_sku"`
	Charge   decimal.Decimal  `json:"charge"`
}

// MonthlyReport is the billing artifact for one calendar month.
type MonthlyReport struct {
	Month      string             `json:"month"`
	MonthStart map[string]int64   `json:"month_start"`
	Days       []MonthlyDay       `json:"days"`
	Orders     int                `json:"orders"`
	Packages   int                `json:"packages"`
	PalletDays int64              `json:"pallet_days"`
	Total      decimal.Decimal    `json:"total"`
	Failures   []snapshot.Failure `json:"failures"`
}

// Pallets converts a quantity to whole pallets, rounding up. Negative stock
// occupies no pallets.
func Pallets(qty, unitsPerPallet int64) int64 {
	if qty <= 0 || unitsPerPallet <= 0 {
		return 0
	}
	return (qty + unitsPerPallet - 1) / unitsPerPallet
}

// BuildMonthly walks the month in res day by day. monthStart holds the
// derived opening quantity of each SKU; a walk that opens anywhere else is
// rejected. SKUs that failed in res or are missing from the catalog are
// reported as failures and left out of the charges.
func BuildMonthly(res snapshot.Result, monthStart map[string]int64, shipments []inventory.ShipmentLineItem, cat *catalog.Catalog) (MonthlyReport, error) {
	out := MonthlyReport{
		Month:      res.Range.From.Format(shared.MonthLayout),
		MonthStart: monthStart,
		Total:      decimal.Zero,
		Failures:   append([]snapshot.Failure{}, res.Failures...),
	}

	units := map[string]int64{}
	for _, sku := range res.SKUs() {
		cfg, err := cat.Lookup(sku)
		if err != nil {
			out.Failures = append(out.Failures, snapshot.Failure{SKU: sku, Err: err})
			continue
		}
		opening, ok := monthStart[sku]
		first, _ := res.At(sku, res.Range.From)
		if !ok || first.BOD != opening {
			return MonthlyReport{}, fmt.Errorf("%w: sku %s opens at %d, derived %d", ErrMonthStartMismatch, sku, first.BOD, opening)
		}
		units[sku] = cfg.UnitsPerPallet
	}

	type activity struct {
		orders   map[string]struct{}
		packages int
	}
	byDay := map[time.Time]*activity{}
	for _, line := range shipments {
		day := shared.DateOf(line.ShipDate)
		if !res.Range.Contains(day) {
			continue
		}
		a := byDay[day]
		if a == nil {
			a = &activity{orders: map[string]struct{}{}}
			byDay[day] = a
		}
		a.orders[line.OrderReference] = struct{}{}
		a.packages += line.PackageCount()
	}

	skus := make([]string, 0, len(units))
	for sku := range units {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, day := range res.Range.Dates() {
		md := MonthlyDay{Date: day, BySKU: map[string]int64{}}
		for _, sku := range skus {
			snap, ok := res.At(sku, day)
			if !ok {
				continue
			}
			p := Pallets(snap.EOD, units[sku])
			md.BySKU[sku] = p
			md.Pallets += p
		}
		if a := byDay[day]; a != nil {
			md.Orders = len(a.orders)
			md.Packages = a.packages
		}
		md.Charge = DayCharge(md, cat.Rates)
		out.Days = append(out.Days, md)
		out.Orders += md.Orders
		out.Packages += md.Packages
		out.PalletDays += md.Pallets
		out.Total = out.Total.Add(md.Charge)
	}
	return out, nil
}

// DayCharge prices one day, rounded to cents so that the month total equals
// the sum of the exported rows.
func DayCharge(day MonthlyDay, rates catalog.Rates) decimal.Decimal {
	charge := rates.PalletDay.Mul(decimal.NewFromInt(day.Pallets)).
		Add(rates.PerOrder.Mul(decimal.NewFromInt(int64(day.Orders)))).
		Add(rates.PerPackage.Mul(decimal.NewFromInt(int64(day.Packages))))
	return charge.Round(2)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
