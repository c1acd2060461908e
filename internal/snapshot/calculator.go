package snapshot

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// cell is one (sku, day) slot of the arena.
type cell struct {
	delta int64
	bod   int64
	eod   int64
}

// arena holds exactly one cell per (skuIndex, dayIndex).
type arena struct {
	days  int
	cells []cell
}

func newArena(skus, days int) *arena {
	return &arena{days: days, cells: make([]cell, skus*days)}
}

func (a *arena) at(sku, day int) *cell {
	return &a.cells[sku*a.days+day]
}

// Compute walks each SKU's lineage anchor forward through the ledger and
// returns BOD/EOD for every day of rng. It has no side effects and the same
// inputs always produce the same output.
//
// Transactions dated on or before a SKU's anchor are already counted in the
// anchor quantity. Days between the anchor and rng.From are applied but not
// emitted.
func Compute(baselines []baseline.Baseline, txs []inventory.Transaction, rng shared.DateRange) Result {
	days := rng.Days()
	skus := collectSKUs(baselines, txs)
	index := make(map[string]int, len(skus))
	for i, sku := range skus {
		index[sku] = i
	}

	res := Result{
		Range:     rng,
		Movements: make(map[string]Movements, len(skus)),
		Anchors:   make(map[string]baseline.Baseline, len(skus)),
	}
	failed := make([]error, len(skus))
	opening := make([]int64, len(skus))
	for i, sku := range skus {
		anchor, ok := baseline.Anchor(baselines, sku, rng.From)
		if !ok {
			failed[i] = fmt.Errorf("%w: sku %s has no baseline before %s", ErrMissingBaseline, sku, rng.From.Format(shared.DateLayout))
			continue
		}
		res.Anchors[sku] = anchor
		opening[i] = anchor.Quantity
	}

	grid := newArena(len(skus), days)
	moves := make([]Movements, len(skus))
	for _, tx := range txs {
		i := index[tx.SKU]
		if failed[i] != nil {
			continue
		}
		day := shared.DateOf(tx.Date)
		// An unknown type fails the SKU wherever the row is dated.
		if !tx.Type.Valid() {
			failed[i] = fmt.Errorf("%w: %q on %s (sku %s, ref %q)", inventory.ErrUnknownTransactionType, string(tx.Type), day.Format(shared.DateLayout), tx.SKU, tx.Reference)
			continue
		}
		anchor := res.Anchors[tx.SKU]
		if !day.After(anchor.AsOf) || day.After(rng.To) {
			continue
		}
		if day.Before(rng.From) {
			opening[i] += tx.Delta()
			continue
		}
		grid.at(i, rng.Index(day)).delta += tx.Delta()
		moves[i].Add(tx.Type, tx.Quantity)
	}

	for i, sku := range skus {
		if failed[i] != nil {
			res.Failures = append(res.Failures, Failure{SKU: sku, Err: failed[i]})
			continue
		}
		running := opening[i]
		for d := 0; d < days; d++ {
			c := grid.at(i, d)
			c.bod = running
			c.eod = running + c.delta
			running = c.eod
		}
		res.Movements[sku] = moves[i]
	}

	for i, sku := range skus {
		if failed[i] != nil {
			continue
		}
		for d := 0; d < days; d++ {
			c := grid.at(i, d)
			day := rng.From.AddDate(0, 0, d)
			res.Snapshots = append(res.Snapshots, Snapshot{Date: day, SKU: sku, BOD: c.bod, EOD: c.eod})
			if c.eod < 0 {
				res.Alerts = append(res.Alerts, NegativeAlert{SKU: sku, Date: day, EOD: c.eod})
			}
		}
	}
	return res
}

func collectSKUs(baselines []baseline.Baseline, txs []inventory.Transaction) []string {
	seen := make(map[string]struct{})
	for _, b := range baselines {
		seen[b.SKU] = struct{}{}
	}
	for _, tx := range txs {
		seen[tx.SKU] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sku := range seen {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out
}
