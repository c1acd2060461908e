package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
)

// ErrBaselineDrift means a stored baseline is not derivable from an earlier
// one through the ledger. Drift is reported, never corrected automatically.
var ErrBaselineDrift = errors.New("reconcile: baseline drift detected")

// ErrNotOrdered indicates the earlier baseline is not before the later one.
var ErrNotOrdered = errors.New("reconcile: earlier baseline must precede later baseline")

// Result is the outcome of checking one pair of baselines.
type Result struct {
	SKU         string             `json:"sku"`
	Earlier     string             `json:"earlier"`
	Later       string             `json:"later"`
	OK          bool               `json:"ok"`
	Expected    int64              `json:"expected"`
	Actual      int64              `json:"actual"`
	Delta       int64              `json:"delta"`
	DeltaByType snapshot.Movements `json:"delta_by_type"`
	Error       string             `json:"error,omitempty"`
}

// DriftError wraps ErrBaselineDrift with the offending result.
type DriftError struct {
	Result Result
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("%v: sku %s %s..%s expected %d, stored %d (delta %d)", ErrBaselineDrift, e.Result.SKU, e.Result.Earlier, e.Result.Later, e.Result.Expected, e.Result.Actual, e.Result.Delta)
}

// Unwrap returns ErrBaselineDrift.
func (e *DriftError) Unwrap() error { return ErrBaselineDrift }

// Quantities returns the expected and stored quantities.
func (e *DriftError) Quantities() (int64, int64) {
	return e.Result.Expected, e.Result.Actual
}

// ValidateBaseline recomputes later.Quantity from earlier through the ledger
// and compares it with the stored value. Delta is stored minus expected;
// DeltaByType holds the ledger movements between the two dates so an
// operator can see which flows the gap could belong to. A mismatch larger
// than tolerance returns a *DriftError alongside the result.
func ValidateBaseline(earlier, later baseline.Baseline, txs []inventory.Transaction, tolerance int64) (Result, error) {
	res := Result{
		SKU:     later.SKU,
		Earlier: earlier.AsOf.Format(shared.DateLayout),
		Later:   later.AsOf.Format(shared.DateLayout),
		Actual:  later.Quantity,
	}
	if earlier.SKU != later.SKU || !earlier.AsOf.Before(later.AsOf) {
		res.Error = ErrNotOrdered.Error()
		return res, ErrNotOrdered
	}
	expected, moves, err := Derive(earlier, txs, later.AsOf)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.Expected = expected
	res.DeltaByType = moves
	res.Delta = later.Quantity - expected
	res.OK = abs(res.Delta) <= tolerance
	if !res.OK {
		return res, &DriftError{Result: res}
	}
	return res, nil
}

// Derive walks from forward through asOf with the snapshot calculator and
// returns the closing quantity and movements.
func Derive(from baseline.Baseline, txs []inventory.Transaction, asOf time.Time) (int64, snapshot.Movements, error) {
	rng, err := shared.NewDateRange(from.AsOf.AddDate(0, 0, 1), asOf)
	if err != nil {
		return 0, snapshot.Movements{}, ErrNotOrdered
	}
	own := make([]inventory.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.SKU == from.SKU {
			own = append(own, tx)
		}
	}
	res := snapshot.Compute([]baseline.Baseline{from}, own, rng)
	if err := res.Failed(from.SKU); err != nil {
		return 0, snapshot.Movements{}, err
	}
	eod, ok := res.Final(from.SKU)
	if !ok {
		return 0, snapshot.Movements{}, fmt.Errorf("%w: sku %s", snapshot.ErrMissingBaseline, from.SKU)
	}
	return eod, res.Movements[from.SKU], nil
}

// ValidateAll checks every adjacent pair of each SKU's lineage. Failures of
// one SKU never stop the others.
func ValidateAll(baselines []baseline.Baseline, txs []inventory.Transaction, tolerance int64) []Result {
	bySKU := map[string][]inventory.Transaction{}
	for _, tx := range txs {
		bySKU[tx.SKU] = append(bySKU[tx.SKU], tx)
	}
	var out []Result
	for _, sku := range baseline.SKUs(baselines) {
		chain := baseline.Lineage(baselines, sku)
		for i := 1; i < len(chain); i++ {
			res, _ := ValidateBaseline(chain[i-1], chain[i], bySKU[sku], tolerance)
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].Later < out[j].Later
	})
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
