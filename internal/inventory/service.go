package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// RepositoryPort abstracts ledger persistence for the service.
type RepositoryPort interface {
	InsertTransactions(ctx context.Context, txs []Transaction) (int, error)
	InsertShipments(ctx context.Context, items []ShipmentLineItem) (int, error)
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error)
	ListShipments(ctx context.Context, filter Filter) ([]ShipmentLineItem, error)
	FirstActivity(ctx context.Context, skus []string) (map[string]time.Time, error)
}

// Service is the only write path into the ledger store.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TransactionInput is a raw row from the transaction feed.
type TransactionInput struct {
	Date      time.Time
	SKU       string
	Quantity  int64
	Type      string
	Lot       string
	Reference string
	Note      string
}

// AppendResult summarises an idempotent append.
type AppendResult struct {
	Received   int `json:"received"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// RowError pins a rejection to its position in the submitted batch.
type RowError struct {
	Row int
	Err error
}

// BatchError is returned when any row of a batch is rejected. Nothing from
// the batch is written in that case.
type BatchError struct {
	Rows []RowError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, row := range e.Rows {
		parts = append(parts, fmt.Sprintf("row %d: %v", row.Row, row.Err))
	}
	return fmt.Sprintf("inventory: %d row(s) rejected: %s", len(e.Rows), strings.Join(parts, "; "))
}

// Unwrap exposes the row errors to errors.Is.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Rows))
	for _, row := range e.Rows {
		out = append(out, row.Err)
	}
	return out
}

// AppendTransactions validates and appends a batch of ledger rows. Unknown
// types reject the batch; exact repeats of a natural key are skipped, while a
// repeat with a different quantity or note fails with ErrConflictingEntry.
func (s *Service) AppendTransactions(ctx context.Context, inputs []TransactionInput) (AppendResult, error) {
	result := AppendResult{Received: len(inputs)}
	if len(inputs) == 0 {
		return result, nil
	}
	now := s.now().UTC()
	txs := make([]Transaction, 0, len(inputs))
	seen := make(map[string]Transaction, len(inputs))
	var rejected []RowError
	for i, in := range inputs {
		tx, err := prepareTransaction(in)
		if err != nil {
			rejected = append(rejected, RowError{Row: i, Err: err})
			continue
		}
		if prior, dup := seen[tx.NaturalKey()]; dup {
			if !prior.SameMovement(tx) {
				rejected = append(rejected, RowError{Row: i, Err: conflictError(prior, tx)})
			}
			continue
		}
		seen[tx.NaturalKey()] = tx
		tx.ID = uuid.NewString()
		tx.CreatedAt = now
		txs = append(txs, tx)
	}
	if len(rejected) > 0 {
		err := &BatchError{Rows: rejected}
		s.logger.Error("ledger append rejected", slog.Int("rows", len(inputs)), slog.Int("rejected", len(rejected)), slog.Any("error", err))
		return result, err
	}
	inserted, err := s.repo.InsertTransactions(ctx, txs)
	if err != nil {
		return result, fmt.Errorf("inventory: append transactions: %w", err)
	}
	result.Inserted = inserted
	result.Duplicates = result.Received - inserted
	s.logger.Info("ledger append", slog.Int("received", result.Received), slog.Int("inserted", inserted))
	return result, nil
}

// RecordShipments stores shipped order lines. Lines already recorded are left
// untouched.
func (s *Service) RecordShipments(ctx context.Context, items []ShipmentLineItem) (AppendResult, error) {
	result := AppendResult{Received: len(items)}
	if len(items) == 0 {
		return result, nil
	}
	lines := make([]ShipmentLineItem, 0, len(items))
	var rejected []RowError
	for i, item := range items {
		item.SKU = NormalizeSKU(item.SKU)
		item.Lot = NormalizeLot(item.Lot)
		item.OrderReference = strings.TrimSpace(item.OrderReference)
		item.ShipDate = shared.DateOf(item.ShipDate)
		if err := item.Validate(); err != nil {
			rejected = append(rejected, RowError{Row: i, Err: err})
			continue
		}
		lines = append(lines, item)
	}
	if len(rejected) > 0 {
		return result, &BatchError{Rows: rejected}
	}
	inserted, err := s.repo.InsertShipments(ctx, lines)
	if err != nil {
		return result, fmt.Errorf("inventory: record shipments: %w", err)
	}
	result.Inserted = inserted
	result.Duplicates = result.Received - inserted
	return result, nil
}

// SyncShipTransactions derives SHIP movements for every shipment line in the
// range. The natural key (date, sku, lot, SHIP, order) makes re-runs no-ops.
func (s *Service) SyncShipTransactions(ctx context.Context, rng shared.DateRange) (AppendResult, error) {
	items, err := s.repo.ListShipments(ctx, Filter{From: rng.From, To: rng.To})
	if err != nil {
		return AppendResult{}, fmt.Errorf("inventory: list shipments: %w", err)
	}
	now := s.now().UTC()
	txs := make([]Transaction, 0, len(items))
	for _, item := range items {
		tx := item.ShipTransaction()
		tx.ID = uuid.NewString()
		tx.CreatedAt = now
		txs = append(txs, tx)
	}
	result := AppendResult{Received: len(txs)}
	if len(txs) == 0 {
		return result, nil
	}
	inserted, err := s.repo.InsertTransactions(ctx, txs)
	if err != nil {
		return result, fmt.Errorf("inventory: sync ship transactions: %w", err)
	}
	result.Inserted = inserted
	result.Duplicates = result.Received - inserted
	s.logger.Info("shipments synced", slog.String("range", rng.String()), slog.Int("lines", len(items)), slog.Int("inserted", inserted))
	return result, nil
}

// FirstActivity returns the first day each SKU appears in the ledger or the
// shipment log.
func (s *Service) FirstActivity(ctx context.Context, skus []string) (map[string]time.Time, error) {
	return s.repo.FirstActivity(ctx, skus)
}

// Transactions lists ledger rows ordered by date.
func (s *Service) Transactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// Shipments lists shipment lines ordered by ship date.
func (s *Service) Shipments(ctx context.Context, filter Filter) ([]ShipmentLineItem, error) {
	return s.repo.ListShipments(ctx, filter)
}

func prepareTransaction(in TransactionInput) (Transaction, error) {
	txType, err := ParseTransactionType(in.Type)
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{
		Date:      shared.DateOf(in.Date),
		SKU:       NormalizeSKU(in.SKU),
		Quantity:  in.Quantity,
		Type:      txType,
		Lot:       NormalizeLot(in.Lot),
		Reference: strings.TrimSpace(in.Reference),
		Note:      strings.TrimSpace(in.Note),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// IsRejection reports whether err came from input validation rather than
// the store.
func IsRejection(err error) bool {
	var batch *BatchError
	return errors.As(err, &batch)
}
