package lots

import (
	"errors"
	"sort"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
)

// ShipmentFailure records a shipment line the lots could not cover. It does
// not affect SKU-level inventory.
type ShipmentFailure struct {
	Shipment inventory.ShipmentLineItem `json:"shipment"`
	Error    string                     `json:"error"`
	Err      error                      `json:"-"`
}

// Attribution is the lot split of one shipment line.
type Attribution struct {
	Shipment    inventory.ShipmentLineItem `json:"shipment"`
	Allocations []Allocation               `json:"allocations"`
}

// Remaining is the lot-remaining report.
type Remaining struct {
	Balances     []Balance         `json:"balances"`
	Attributions []Attribution     `json:"attributions"`
	Failures     []ShipmentFailure `json:"failures"`
}

// Replay consumes lots with shipments in ship-date order. A shipment naming
// a lot draws from that lot first and falls back to FIFO for the rest. Only
// lots received on or before the ship date can be drawn from.
func Replay(lots []Lot, shipments []inventory.ShipmentLineItem) Remaining {
	balances := make([]Balance, len(lots))
	for i, l := range lots {
		balances[i] = Balance{Lot: l, Remaining: l.ReceivedQuantity}
	}
	SortFIFO(balances)

	ordered := append([]inventory.ShipmentLineItem(nil), shipments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ShipDate.Before(ordered[j].ShipDate) })

	var rep Remaining
	for _, s := range ordered {
		allocs, err := allocateShipment(balances, s)
		if err != nil {
			rep.Failures = append(rep.Failures, ShipmentFailure{Shipment: s, Error: err.Error(), Err: err})
			continue
		}
		Apply(balances, s.SKU, allocs)
		rep.Attributions = append(rep.Attributions, Attribution{Shipment: s, Allocations: allocs})
	}
	rep.Balances = balances
	return rep
}

func allocateShipment(all []Balance, s inventory.ShipmentLineItem) ([]Allocation, error) {
	balances := make([]Balance, 0, len(all))
	for _, b := range all {
		if !b.ReceivedDate.After(s.ShipDate) {
			balances = append(balances, b)
		}
	}
	if s.Lot == "" {
		return Allocate(s.SKU, s.Quantity, balances)
	}
	var pinned []Allocation
	need := s.Quantity
	rest := make([]Balance, 0, len(balances))
	for _, b := range balances {
		if b.SKU == s.SKU && b.LotID == s.Lot && b.Remaining > 0 {
			take := min(b.Remaining, need)
			pinned = append(pinned, Allocation{LotID: b.LotID, Quantity: take})
			need -= take
			b.Remaining -= take
		}
		rest = append(rest, b)
	}
	if need == 0 {
		return pinned, nil
	}
	more, err := Allocate(s.SKU, need, rest)
	if err != nil {
		var short *ShortageError
		if errors.As(err, &short) {
			short.Requested = s.Quantity
			short.Available += s.Quantity - need
		}
		return nil, err
	}
	return append(pinned, more...), nil
}
