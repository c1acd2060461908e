package lots

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// ErrInsufficientLotInventory means the lots of a SKU cannot cover a shipment.
var ErrInsufficientLotInventory = errors.New("lots: insufficient lot inventory")

// Lot is a received production lot.
type Lot struct {
	SKU              string    `json:"sku"`
	LotID            string    `json:"lot_id"`
	ReceivedDate     time.Time `json:"received_date"`
	ReceivedQuantity int64     `json:"received_quantity"`
	Seq              int       `json:"-"`
}

// Balance is a lot with what is left of it.
type Balance struct {
	Lot
	Remaining int64 `json:"remaining"`
}

// Allocation attributes part of a shipment to one lot.
type Allocation struct {
	LotID    string `json:"lot_id"`
	Quantity int64  `json:"quantity"`
}

// ShortageError carries the shortfall behind ErrInsufficientLotInventory.
type ShortageError struct {
	SKU       string
	Requested int64
	Available int64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("%v: sku %s requested %d, available %d", ErrInsufficientLotInventory, e.SKU, e.Requested, e.Available)
}

// Unwrap returns ErrInsufficientLotInventory.
func (e *ShortageError) Unwrap() error {
	return ErrInsufficientLotInventory
}

// SortFIFO orders balances oldest first: received date, then insertion order.
func SortFIFO(balances []Balance) {
	sort.SliceStable(balances, func(i, j int) bool {
		a, b := balances[i], balances[j]
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		return a.Seq < b.Seq
	})
}

// Allocate draws qty of sku from available, oldest lot first, and returns the
// per-lot split. available is not modified. When the lots cannot cover qty
// nothing is allocated and a *ShortageError is returned.
func Allocate(sku string, qty int64, available []Balance) ([]Allocation, error) {
	candidates := make([]Balance, 0, len(available))
	var total int64
	for _, b := range available {
		if b.SKU != sku || b.Remaining <= 0 {
			continue
		}
		candidates = append(candidates, b)
		total += b.Remaining
	}
	if qty <= 0 {
		return nil, nil
	}
	if total < qty {
		return nil, &ShortageError{SKU: sku, Requested: qty, Available: total}
	}
	SortFIFO(candidates)

	var out []Allocation
	need := qty
	for _, b := range candidates {
		if need == 0 {
			break
		}
		take := min(b.Remaining, need)
		out = append(out, Allocation{LotID: b.LotID, Quantity: take})
		need -= take
	}
	return out, nil
}

// Apply subtracts allocations from balances in place.
func Apply(balances []Balance, sku string, allocs []Allocation) {
	for _, a := range allocs {
		for i := range balances {
			if balances[i].SKU == sku && balances[i].LotID == a.LotID {
				balances[i].Remaining -= a.Quantity
				break
			}
		}
	}
}

// NormalizeLotID canonicalises a lot identifier the same way ingestion does.
func NormalizeLotID(raw string) string {
	return inventory.NormalizeLot(raw)
}

// LotsFromTransactions builds lots from lot-tagged RECEIVE and REPACK rows,
// in ledger order. Rows without a lot are not lot-tracked.
func LotsFromTransactions(txs []inventory.Transaction) []Lot {
	index := map[string]int{}
	var out []Lot
	for _, tx := range txs {
		if tx.Lot == "" {
			continue
		}
		if tx.Type != inventory.TransactionTypeReceive && tx.Type != inventory.TransactionTypeRepack {
			continue
		}
		key := tx.SKU + "|" + tx.Lot
		if i, ok := index[key]; ok {
			out[i].ReceivedQuantity += tx.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, Lot{
			SKU:              tx.SKU,
			LotID:            tx.Lot,
			ReceivedDate:     shared.DateOf(tx.Date),
			ReceivedQuantity: tx.Quantity,
			Seq:              len(out),
		})
	}
	return out
}
