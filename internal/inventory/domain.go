package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// TransactionType enumerates the closed set of ledger movements.
type TransactionType string

const (
	// TransactionTypeReceive represents inbound stock from a supplier or production.
	TransactionTypeReceive TransactionType = "RECEIVE"
	// TransactionTypeShip represents stock leaving with a customer order.
	TransactionTypeShip TransactionType = "SHIP"
	// TransactionTypeRepack represents stock returned to sellable state after repacking.
	TransactionTypeRepack TransactionType = "REPACK"
	// TransactionTypeAdjustUp indicates a manual positive correction.
	TransactionTypeAdjustUp TransactionType = "ADJUST_UP"
	// TransactionTypeAdjustDown indicates a manual negative correction.
	TransactionTypeAdjustDown TransactionType = "ADJUST_DOWN"
)

// TransactionTypes lists every supported type in reporting order.
var TransactionTypes = []TransactionType{
	TransactionTypeReceive,
	TransactionTypeShip,
	TransactionTypeRepack,
	TransactionTypeAdjustUp,
	TransactionTypeAdjustDown,
}

// ParseTransactionType accepts the canonical names plus the spellings used by
// upstream feeds ("AdjustUp", "adjust up", "adjust-down").
func ParseTransactionType(raw string) (TransactionType, error) {
	folded := strings.ToUpper(strings.TrimSpace(raw))
	folded = strings.NewReplacer("_", "", "-", "", " ", "").Replace(folded)
	switch folded {
	case "RECEIVE":
		return TransactionTypeReceive, nil
	case "SHIP":
		return TransactionTypeShip, nil
	case "REPACK":
		return TransactionTypeRepack, nil
	case "ADJUSTUP":
		return TransactionTypeAdjustUp, nil
	case "ADJUSTDOWN":
		return TransactionTypeAdjustDown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransactionType, raw)
}

// Valid reports whether t belongs to the closed set.
func (t TransactionType) Valid() bool {
	return t.Sign() != 0
}

// Sign returns +1 for movements that add stock, -1 for those that remove it
// and 0 for anything outside the closed set.
func (t TransactionType) Sign() int64 {
	switch t {
	case TransactionTypeReceive, TransactionTypeRepack, TransactionTypeAdjustUp:
		return 1
	case TransactionTypeShip, TransactionTypeAdjustDown:
		return -1
	}
	return 0
}

// Transaction is a single immutable ledger row.
type Transaction struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	SKU       string          `json:"sku"`
	Quantity  int64           `json:"quantity"`
	Type      TransactionType `json:"type"`
	Lot       string          `json:"lot,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Delta returns the signed quantity change applied by the transaction.
func (t Transaction) Delta() int64 {
	return t.Type.Sign() * t.Quantity
}

// NaturalKey identifies a transaction for idempotent appends.
func (t Transaction) NaturalKey() string {
	return strings.Join([]string{t.Date.Format(shared.DateLayout), t.SKU, t.Lot, string(t.Type), t.Reference}, "|")
}

// SameMovement reports whether o repeats t rather than contradicting it.
// Both are assumed to share a natural key.
func (t Transaction) SameMovement(o Transaction) bool {
	return t.Quantity == o.Quantity && t.Note == o.Note
}

func conflictError(existing, incoming Transaction) error {
	return fmt.Errorf("%w: %s recorded as %d, submitted as %d", ErrConflictingEntry, incoming.NaturalKey(), existing.Quantity, incoming.Quantity)
}

// Validate checks the row before it reaches the ledger.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.SKU) == "" {
		return ErrSKURequired
	}
	if t.Date.IsZero() {
		return ErrDateRequired
	}
	if t.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTransactionType, string(t.Type))
	}
	return nil
}

// ShipmentLineItem is one SKU/lot line of a shipped order.
type ShipmentLineItem struct {
	ShipDate       time.Time `json:"ship_date"`
	OrderReference string    `json:"order_reference"`
	SKU            string    `json:"sku"`
	Lot            string    `json:"lot,omitempty"`
	Quantity       int64     `json:"quantity"`
	Packages       int       `json:"packages,omitempty"`
}

// NaturalKey identifies a shipment line for idempotent upserts.
func (s ShipmentLineItem) NaturalKey() string {
	return strings.Join([]string{s.OrderReference, s.SKU, s.Lot}, "|")
}

// PackageCount treats an unspecified package count as a single package.
func (s ShipmentLineItem) PackageCount() int {
	if s.Packages <= 0 {
		return 1
	}
	return s.Packages
}

// Validate checks the shipment line before it is recorded.
func (s ShipmentLineItem) Validate() error {
	if strings.TrimSpace(s.OrderReference) == "" {
		return ErrOrderReferenceRequired
	}
	if strings.TrimSpace(s.SKU) == "" {
		return ErrSKURequired
	}
	if s.ShipDate.IsZero() {
		return ErrDateRequired
	}
	if s.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ShipTransaction converts a shipped line into its ledger movement.
func (s ShipmentLineItem) ShipTransaction() Transaction {
	return Transaction{
		Date:      shared.DateOf(s.ShipDate),
		SKU:       s.SKU,
		Quantity:  s.Quantity,
		Type:      TransactionTypeShip,
		Lot:       s.Lot,
		Reference: s.OrderReference,
		Note:      "shipment " + s.OrderReference,
	}
}

// NormalizeLot canonicalises "BASE-LOT" identifiers so that separator
// spacing variants ("17612 - 250300") collapse onto one key.
func NormalizeLot(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "-")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.Join(strings.Fields(part), " ")
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.ToUpper(strings.Join(kept, "-"))
}

// NormalizeSKU trims whitespace around a SKU code.
func NormalizeSKU(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Filter narrows ledger reads.
type Filter struct {
	SKUs []string
	From time.Time
	To   time.Time
}

// Ledger errors.
var (
	// ErrUnknownTransactionType rejects movements outside the closed set.
	ErrUnknownTransactionType = errors.New("inventory: unknown transaction type")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrSKURequired indicates a missing SKU.
	ErrSKURequired = errors.New("inventory: sku required")
	// ErrDateRequired indicates a missing date.
	ErrDateRequired = errors.New("inventory: date required")
	// ErrOrderReferenceRequired indicates a shipment line without its order.
	ErrOrderReferenceRequired = errors.New("inventory: order reference required")
	// ErrConflictingEntry indicates a row whose natural key is already taken
	// by a different movement. Give it a distinct reference instead.
	ErrConflictingEntry = errors.New("inventory: conflicting entry for natural key")
)
