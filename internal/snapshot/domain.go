package snapshot

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// ErrMissingBaseline means a SKU has no lineage baseline before the first
// requested day. The SKU is skipped, never defaulted to zero.
var ErrMissingBaseline = errors.New("snapshot: missing baseline")

// Snapshot is the derived beginning and end of day quantity for one SKU.
type Snapshot struct {
	Date time.Time `json:"date"`
	SKU  string    `json:"sku"`
	BOD  int64     `json:"bod"`
	EOD  int64     `json:"eod"`
}

// MarshalJSON renders the date as a calendar day.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date string `json:"date"`
		SKU  string `json:"sku"`
		BOD  int64  `json:"bod"`
		EOD  int64  `json:"eod"`
	}{s.Date.Format(shared.DateLayout), s.SKU, s.BOD, s.EOD})
}

// NegativeAlert flags a day that closed below zero. The value is kept as is.
type NegativeAlert struct {
	SKU  string    `json:"sku"`
	Date time.Time `json:"date"`
	EOD  int64     `json:"eod"`
}

// Failure isolates a per-SKU computation error.
type Failure struct {
	SKU string
	Err error
}

// MarshalJSON renders the error as text.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SKU   string `json:"sku"`
		Error string `json:"error"`
	}{f.SKU, f.Err.Error()})
}

// UnmarshalJSON restores a failure read back from a stored artifact.
func (f *Failure) UnmarshalJSON(data []byte) error {
	var raw struct {
		SKU   string `json:"sku"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.SKU = raw.SKU
	f.Err = errors.New(raw.Error)
	return nil
}

// Movements totals ledger quantities per transaction type.
type Movements struct {
	Receive    int64 `json:"receive"`
	Ship       int64 `json:"ship"`
	Repack     int64 `json:"repack"`
	AdjustUp   int64 `json:"adjust_up"`
	AdjustDown int64 `json:"adjust_down"`
}

// Add accumulates one transaction.
func (m *Movements) Add(t inventory.TransactionType, qty int64) {
	switch t {
	case inventory.TransactionTypeReceive:
		m.Receive += qty
	case inventory.TransactionTypeShip:
		m.Ship += qty
	case inventory.TransactionTypeRepack:
		m.Repack += qty
	case inventory.TransactionTypeAdjustUp:
		m.AdjustUp += qty
	case inventory.TransactionTypeAdjustDown:
		m.AdjustDown += qty
	}
}

// Net is the signed change produced by the movements.
func (m Movements) Net() int64 {
	return m.Receive + m.Repack + m.AdjustUp - m.Ship - m.AdjustDown
}

// Sub returns m - o per type.
func (m Movements) Sub(o Movements) Movements {
	return Movements{
		Receive:    m.Receive - o.Receive,
		Ship:       m.Ship - o.Ship,
		Repack:     m.Repack - o.Repack,
		AdjustUp:   m.AdjustUp - o.AdjustUp,
		AdjustDown: m.AdjustDown - o.AdjustDown,
	}
}

// Result is the output of Compute.
type Result struct {
	Range     shared.DateRange             `json:"-"`
	Snapshots []Snapshot                   `json:"snapshots"`
	Failures  []Failure                    `json:"failures"`
	Alerts    []NegativeAlert              `json:"alerts"`
	Movements map[string]Movements         `json:"movements"`
	Anchors   map[string]baseline.Baseline `json:"-"`
}

// SKUs lists the SKUs with snapshots, in output order.
func (r Result) SKUs() []string {
	var out []string
	for i, s := range r.Snapshots {
		if i == 0 || r.Snapshots[i-1].SKU != s.SKU {
			out = append(out, s.SKU)
		}
	}
	return out
}

// Series returns the snapshots of one SKU.
func (r Result) Series(sku string) []Snapshot {
	var out []Snapshot
	for _, s := range r.Snapshots {
		if s.SKU == sku {
			out = append(out, s)
		}
	}
	return out
}

// At returns the snapshot for sku on day.
func (r Result) At(sku string, day time.Time) (Snapshot, bool) {
	idx := r.Range.Index(day)
	if idx < 0 {
		return Snapshot{}, false
	}
	series := r.Series(sku)
	if idx >= len(series) {
		return Snapshot{}, false
	}
	return series[idx], true
}

// Final returns the EOD of the last day in range for sku.
func (r Result) Final(sku string) (int64, bool) {
	series := r.Series(sku)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].EOD, true
}

// Failed reports whether sku failed.
func (r Result) Failed(sku string) error {
	for _, f := range r.Failures {
		if f.SKU == sku {
			return f.Err
		}
	}
	return nil
}
