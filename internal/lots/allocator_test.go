package lots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

func balance(sku, lot string, received time.Time, qty int64, seq int) Balance {
	return Balance{Lot: Lot{SKU: sku, LotID: lot, ReceivedDate: received, ReceivedQuantity: qty, Seq: seq}, Remaining: qty}
}

func TestAllocateFIFOSplitsAcrossLots(t *testing.T) {
	available := []Balance{
		balance("X", "L2", shared.Date(2025, 1, 2), 5, 1),
		balance("X", "L1", shared.Date(2025, 1, 1), 5, 0),
	}
	allocs, err := Allocate("X", 7, available)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: "L1", Quantity: 5}, {LotID: "L2", Quantity: 2}}, allocs)
	require.Equal(t, int64(5), available[1].Remaining)
}

func TestAllocateScenarioTwoLots(t *testing.T) {
	available := []Balance{
		balance("X", "L1", shared.Date(2025, 1, 1), 576, 0),
		balance("X", "L2", shared.Date(2025, 1, 5), 576, 1),
	}
	allocs, err := Allocate("X", 600, available)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: "L1", Quantity: 576}, {LotID: "L2", Quantity: 24}}, allocs)
}

func TestAllocateTiesUseInsertionOrder(t *testing.T) {
	d := shared.Date(2025, 1, 1)
	available := []Balance{balance("X", "B", d, 3, 1), balance("X", "A", d, 3, 0)}
	allocs, err := Allocate("X", 4, available)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: "A", Quantity: 3}, {LotID: "B", Quantity: 1}}, allocs)
}

func TestAllocateInsufficient(t *testing.T) {
	available := []Balance{balance("X", "L1", shared.Date(2025, 1, 1), 5, 0), balance("Y", "L9", shared.Date(2025, 1, 1), 50, 1)}
	allocs, err := Allocate("X", 7, available)
	require.ErrorIs(t, err, ErrInsufficientLotInventory)
	require.Nil(t, allocs)

	var short *ShortageError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(7), short.Requested)
	require.Equal(t, int64(5), short.Available)
}

func TestLotsFromTransactions(t *testing.T) {
	txs := []inventory.Transaction{
		{Date: shared.Date(2025, 1, 5), SKU: "X", Lot: "X-2", Type: inventory.TransactionTypeReceive, Quantity: 576},
		{Date: shared.Date(2025, 1, 1), SKU: "X", Lot: "X-1", Type: inventory.TransactionTypeReceive, Quantity: 576},
		{Date: shared.Date(2025, 1, 6), SKU: "X", Type: inventory.TransactionTypeReceive, Quantity: 10},
		{Date: shared.Date(2025, 1, 7), SKU: "X", Lot: "X-1", Type: inventory.TransactionTypeShip, Quantity: 1},
	}
	lots := LotsFromTransactions(txs)
	require.Len(t, lots, 2)
	require.Equal(t, "X-2", lots[0].LotID)
	require.Equal(t, 0, lots[0].Seq)
	require.Equal(t, "17612-250300", NormalizeLotID("17612 - 250300"))
}

func TestReplayReportsShortagesPerShipment(t *testing.T) {
	lots := []Lot{
		{SKU: "X", LotID: "L1", ReceivedDate: shared.Date(2025, 1, 1), ReceivedQuantity: 576, Seq: 0},
		{SKU: "X", LotID: "L2", ReceivedDate: shared.Date(2025, 1, 5), ReceivedQuantity: 576, Seq: 1},
	}
	shipments := []inventory.ShipmentLineItem{
		{ShipDate: shared.Date(2025, 1, 12), OrderReference: "SO-2", SKU: "X", Quantity: 1000},
		{ShipDate: shared.Date(2025, 1, 10), OrderReference: "SO-1", SKU: "X", Quantity: 600},
		{ShipDate: shared.Date(2025, 1, 11), OrderReference: "SO-3", SKU: "X", Lot: "L2", Quantity: 100},
	}
	rep := Replay(lots, shipments)

	require.Len(t, rep.Attributions, 2)
	require.Equal(t, []Allocation{{LotID: "L1", Quantity: 576}, {LotID: "L2", Quantity: 24}}, rep.Attributions[0].Allocations)
	require.Equal(t, []Allocation{{LotID: "L2", Quantity: 100}}, rep.Attributions[1].Allocations)

	require.Len(t, rep.Failures, 1)
	require.Equal(t, "SO-2", rep.Failures[0].Shipment.OrderReference)
	require.ErrorIs(t, rep.Failures[0].Err, ErrInsufficientLotInventory)

	require.Equal(t, int64(0), rep.Balances[0].Remaining)
	require.Equal(t, int64(452), rep.Balances[1].Remaining)
}

func TestReplayIgnoresLotsReceivedAfterShipDate(t *testing.T) {
	lots := []Lot{
		{SKU: "X", LotID: "X-L1", ReceivedDate: shared.Date(2025, 1, 1), ReceivedQuantity: 2, Seq: 0},
		{SKU: "X", LotID: "X-L2", ReceivedDate: shared.Date(2025, 1, 5), ReceivedQuantity: 10, Seq: 1},
	}
	shipments := []inventory.ShipmentLineItem{
		{ShipDate: shared.Date(2025, 1, 1), OrderReference: "SO-1", SKU: "X", Quantity: 4},
		{ShipDate: shared.Date(2025, 1, 2), OrderReference: "SO-2", SKU: "X", Lot: "X-L2", Quantity: 3},
		{ShipDate: shared.Date(2025, 1, 5), OrderReference: "SO-3", SKU: "X", Quantity: 4},
	}
	rep := Replay(lots, shipments)

	require.Len(t, rep.Failures, 2)
	require.Equal(t, "SO-1", rep.Failures[0].Shipment.OrderReference)
	require.ErrorIs(t, rep.Failures[0].Err, ErrInsufficientLotInventory)
	require.Equal(t, "SO-2", rep.Failures[1].Shipment.OrderReference)

	require.Len(t, rep.Attributions, 1)
	require.Equal(t, []Allocation{{LotID: "X-L1", Quantity: 2}, {LotID: "X-L2", Quantity: 2}}, rep.Attributions[0].Allocations)
	require.Equal(t, int64(8), rep.Balances[1].Remaining)
}
