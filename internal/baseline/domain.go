package baseline

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Baseline is a named anchor quantity for a SKU as of the end of a day.
// Baselines are never edited; an amendment is a new row that supersedes the
// head of the lineage.
type Baseline struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	AsOf       time.Time `json:"as_of"`
	Quantity   int64     `json:"quantity"`
	Supersedes string    `json:"supersedes,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Baseline errors.
var (
	ErrNameRequired    = errors.New("baseline: name required")
	ErrSKURequired     = errors.New("baseline: sku required")
	ErrAsOfRequired    = errors.New("baseline: as_of required")
	ErrNotFound        = errors.New("baseline: not found")
	ErrDuplicate       = errors.New("baseline: already exists for sku, date and name")
	ErrNotLineageHead  = errors.New("baseline: only the lineage head can be amended")
	ErrReasonRequired  = errors.New("baseline: amendment requires a reason")
	ErrNoTrustedAnchor = errors.New("baseline: amendment requires an earlier trusted baseline")
)

// Validate checks required fields.
func (b Baseline) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(b.SKU) == "" {
		return ErrSKURequired
	}
	if b.AsOf.IsZero() {
		return ErrAsOfRequired
	}
	return nil
}

// Lineage returns the authoritative chain for sku: every baseline that has
// not been superseded, ordered by AsOf. When two rows share a date the most
// recently created one wins.
func Lineage(all []Baseline, sku string) []Baseline {
	superseded := make(map[string]struct{})
	for _, b := range all {
		if b.Supersedes != "" {
			superseded[b.Supersedes] = struct{}{}
		}
	}
	var chain []Baseline
	for _, b := range all {
		if b.SKU != sku {
			continue
		}
		if _, gone := superseded[b.ID]; gone {
			continue
		}
		chain = append(chain, b)
	}
	sort.SliceStable(chain, func(i, j int) bool {
		if !chain[i].AsOf.Equal(chain[j].AsOf) {
			return chain[i].AsOf.Before(chain[j].AsOf)
		}
		return chain[i].CreatedAt.Before(chain[j].CreatedAt)
	})
	out := chain[:0]
	for i, b := range chain {
		if i+1 < len(chain) && chain[i+1].AsOf.Equal(b.AsOf) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Anchor returns the latest lineage baseline whose AsOf is strictly before
// day, i.e. the one a computation starting on day walks forward from.
func Anchor(all []Baseline, sku string, day time.Time) (Baseline, bool) {
	chain := Lineage(all, sku)
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].AsOf.Before(day) {
			return chain[i], true
		}
	}
	return Baseline{}, false
}

// Head returns the most recent lineage baseline for sku.
func Head(all []Baseline, sku string) (Baseline, bool) {
	chain := Lineage(all, sku)
	if len(chain) == 0 {
		return Baseline{}, false
	}
	return chain[len(chain)-1], true
}

// Neighbours returns the lineage baselines immediately before and after day.
func Neighbours(all []Baseline, sku string, day time.Time) (before, after *Baseline) {
	for _, b := range Lineage(all, sku) {
		b := b
		switch {
		case b.AsOf.Before(day):
			before = &b
		case b.AsOf.After(day) && after == nil:
			after = &b
		}
	}
	return before, after
}

// SKUs lists the distinct SKUs in sorted order.
func SKUs(all []Baseline) []string {
	seen := make(map[string]struct{}, len(all))
	var out []string
	for _, b := range all {
		if _, ok := seen[b.SKU]; ok {
			continue
		}
		seen[b.SKU] = struct{}{}
		out = append(out, b.SKU)
	}
	sort.Strings(out)
	return out
}
