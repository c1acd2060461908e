package inventory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

type memoryRepo struct {
	txs       []Transaction
	shipments []ShipmentLineItem
	txKeys    map[string]Transaction
	shipKeys  map[string]struct{}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{txKeys: map[string]Transaction{}, shipKeys: map[string]struct{}{}}
}

func (r *memoryRepo) InsertTransactions(_ context.Context, txs []Transaction) (int, error) {
	for _, tx := range txs {
		if existing, ok := r.txKeys[tx.NaturalKey()]; ok && !existing.SameMovement(tx) {
			return 0, conflictError(existing, tx)
		}
	}
	n := 0
	for _, tx := range txs {
		if _, ok := r.txKeys[tx.NaturalKey()]; ok {
			continue
		}
		r.txKeys[tx.NaturalKey()] = tx
		r.txs = append(r.txs, tx)
		n++
	}
	return n, nil
}

func (r *memoryRepo) InsertShipments(_ context.Context, items []ShipmentLineItem) (int, error) {
	n := 0
	for _, item := range items {
		if _, ok := r.shipKeys[item.NaturalKey()]; ok {
			continue
		}
		r.shipKeys[item.NaturalKey()] = struct{}{}
		r.shipments = append(r.shipments, item)
		n++
	}
	return n, nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, filter Filter) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range r.txs {
		if inFilter(filter, tx.SKU, tx.Date) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memoryRepo) ListShipments(_ context.Context, filter Filter) ([]ShipmentLineItem, error) {
	var out []ShipmentLineItem
	for _, item := range r.shipments {
		if inFilter(filter, item.SKU, item.ShipDate) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryRepo) FirstActivity(_ context.Context, skus []string) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	note := func(sku string, day time.Time) {
		if !inFilter(Filter{SKUs: skus}, sku, day) {
			return
		}
		if first, ok := out[sku]; !ok || day.Before(first) {
			out[sku] = day
		}
	}
	for _, tx := range r.txs {
		note(tx.SKU, tx.Date)
	}
	for _, item := range r.shipments {
		note(item.SKU, item.ShipDate)
	}
	return out, nil
}

func inFilter(filter Filter, sku string, date time.Time) bool {
	if len(filter.SKUs) > 0 {
		found := false
		for _, s := range filter.SKUs {
			if s == sku {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if !filter.From.IsZero() && date.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && date.After(filter.To) {
		return false
	}
	return true
}

func TestAppendTransactionsIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	inputs := []TransactionInput{
		{Date: shared.Date(2025, time.October, 1), SKU: "17612", Quantity: 3300, Type: "Receive", Lot: "17612 - 250300", Reference: "PO-1"},
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 20, Type: "AdjustDown", Reference: "CC-7"},
	}
	first, err := svc.AppendTransactions(ctx, inputs)
	require.NoError(t, err)
	require.Equal(t, AppendResult{Received: 2, Inserted: 2}, first)

	second, err := svc.AppendTransactions(ctx, inputs)
	require.NoError(t, err)
	require.Equal(t, AppendResult{Received: 2, Inserted: 0, Duplicates: 2}, second)
	require.Len(t, repo.txs, 2)
	require.Equal(t, "17612-250300", repo.txs[0].Lot)
	require.Equal(t, TransactionTypeAdjustDown, repo.txs[1].Type)
	require.NotEmpty(t, repo.txs[0].ID)
}

func TestAppendTransactionsRejectsUnknownTypeWithoutWriting(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.AppendTransactions(context.Background(), []TransactionInput{
		{Date: shared.Date(2025, time.October, 1), SKU: "17612", Quantity: 5, Type: "Receive"},
		{Date: shared.Date(2025, time.October, 1), SKU: "17612", Quantity: 5, Type: "Transfer"},
	})
	require.ErrorIs(t, err, ErrUnknownTransactionType)
	require.True(t, IsRejection(err))

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Rows, 1)
	require.Equal(t, 1, batch.Rows[0].Row)
	require.Empty(t, repo.txs)
}

func TestAppendTransactionsRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.AppendTransactions(context.Background(), []TransactionInput{
		{Date: shared.Date(2025, time.October, 1), SKU: "17612", Quantity: 0, Type: "Ship"},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSyncShipTransactionsDerivesShipMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	lines := []ShipmentLineItem{
		{ShipDate: shared.Date(2025, time.October, 3), OrderReference: "SO-1", SKU: "17612", Lot: "17612 -250300", Quantity: 24, Packages: 2},
		{ShipDate: shared.Date(2025, time.October, 3), OrderReference: "SO-2", SKU: "17904", Quantity: 6},
	}
	recorded, err := svc.RecordShipments(ctx, lines)
	require.NoError(t, err)
	require.Equal(t, 2, recorded.Inserted)

	again, err := svc.RecordShipments(ctx, lines)
	require.NoError(t, err)
	require.Equal(t, 2, again.Duplicates)

	rng := shared.DateRange{From: shared.Date(2025, time.October, 1), To: shared.Date(2025, time.October, 31)}
	synced, err := svc.SyncShipTransactions(ctx, rng)
	require.NoError(t, err)
	require.Equal(t, 2, synced.Inserted)

	resynced, err := svc.SyncShipTransactions(ctx, rng)
	require.NoError(t, err)
	require.Equal(t, 0, resynced.Inserted)

	txs, err := svc.Transactions(ctx, Filter{SKUs: []string{"17612"}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, TransactionTypeShip, txs[0].Type)
	require.Equal(t, "SO-1", txs[0].Reference)
	require.Equal(t, "17612-250300", txs[0].Lot)
	require.Equal(t, int64(-24), txs[0].Delta())
}

func TestRecordShipmentsRequiresOrderReference(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.RecordShipments(context.Background(), []ShipmentLineItem{
		{ShipDate: shared.Date(2025, time.October, 3), SKU: "17612", Quantity: 1},
	})
	require.ErrorIs(t, err, ErrOrderReferenceRequired)
}

func TestAppendTransactionsRejectsConflictingRepeatInBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.AppendTransactions(context.Background(), []TransactionInput{
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 20, Type: "AdjustDown"},
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 20, Type: "AdjustDown"},
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 5, Type: "AdjustDown"},
	})
	require.ErrorIs(t, err, ErrConflictingEntry)

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Rows, 1)
	require.Equal(t, 2, batch.Rows[0].Row)
	require.Empty(t, repo.txs)
}

func TestAppendTransactionsRejectsConflictingRepeatAcrossBatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.AppendTransactions(ctx, []TransactionInput{
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 20, Type: "AdjustDown", Note: "cycle count"},
	})
	require.NoError(t, err)

	_, err = svc.AppendTransactions(ctx, []TransactionInput{
		{Date: shared.Date(2025, time.October, 3), SKU: "17612", Quantity: 7, Type: "Receive"},
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 8, Type: "AdjustDown", Note: "damaged"},
	})
	require.ErrorIs(t, err, ErrConflictingEntry)
	require.False(t, IsRejection(err))
	require.Len(t, repo.txs, 1)
	require.Equal(t, int64(20), repo.txs[0].Quantity)

	repeat, err := svc.AppendTransactions(ctx, []TransactionInput{
		{Date: shared.Date(2025, time.October, 2), SKU: "17612", Quantity: 20, Type: "AdjustDown", Note: "cycle count"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, repeat.Duplicates)
}

func TestFirstActivitySpansLedgerAndShipments(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.AppendTransactions(ctx, []TransactionInput{
		{Date: shared.Date(2025, time.October, 9), SKU: "17612", Quantity: 10, Type: "Receive"},
	})
	require.NoError(t, err)
	_, err = svc.RecordShipments(ctx, []ShipmentLineItem{
		{ShipDate: shared.Date(2025, time.October, 4), OrderReference: "SO-1", SKU: "17612", Quantity: 1},
		{ShipDate: shared.Date(2025, time.October, 6), OrderReference: "SO-2", SKU: "17904", Quantity: 1},
	})
	require.NoError(t, err)

	first, err := svc.FirstActivity(ctx, []string{"17612"})
	require.NoError(t, err)
	require.Equal(t, map[string]time.Time{"17612": shared.Date(2025, time.October, 4)}, first)
}
