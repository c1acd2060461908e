package lots

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// LedgerSource reads ledger rows and shipment lines.
type LedgerSource interface {
	Transactions(ctx context.Context, filter inventory.Filter) ([]inventory.Transaction, error)
	Shipments(ctx context.Context, filter inventory.Filter) ([]inventory.ShipmentLineItem, error)
}

// Service builds lot-remaining reports from the ledger.
type Service struct {
	ledger LedgerSource
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(ledger LedgerSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger}
}

// Remaining replays every lot and shipment through asOf.
func (s *Service) Remaining(ctx context.Context, skus []string, asOf time.Time) (Remaining, error) {
	filter := inventory.Filter{SKUs: skus, To: shared.DateOf(asOf)}
	var (
		txs       []inventory.Transaction
		shipments []inventory.ShipmentLineItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.ledger.Transactions(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		shipments, err = s.ledger.Shipments(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return Remaining{}, fmt.Errorf("lots: load ledger: %w", err)
	}
	rep := Replay(LotsFromTransactions(txs), shipments)
	for _, f := range rep.Failures {
		s.logger.Warn("lot allocation failed",
			slog.String("sku", f.Shipment.SKU),
			slog.String("order", f.Shipment.OrderReference),
			slog.String("date", f.Shipment.ShipDate.Format(shared.DateLayout)),
			slog.Any("error", f.Err))
	}
	return rep, nil
}
