// Package catalog loads the per-SKU business configuration: pallet sizes,
// reorder thresholds, billing rates and the rolling-average window.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnknownSKU indicates a SKU missing from the catalog.
var ErrUnknownSKU = errors.New("catalog: unknown sku")

// SKU is the configuration of one stock-keeping unit.
type SKU struct {
	Code              string `yaml:"sku" validate:"required"`
	Name              string `yaml:"name"`
	UnitsPerPallet    int64  `yaml:"units_per_pallet" validate:"required,gt=0"`
	ReorderThreshold  int64  `yaml:"reorder_threshold" validate:"gte=0"`
	CriticalThreshold int64  `yaml:"critical_threshold" validate:"gte=0,ltefield=ReorderThreshold"`
}

// Rolling configures the rolling-average window.
type Rolling struct {
	LookbackWeeks int `yaml:"lookback_weeks" validate:"required,gt=0"`
	MinWeeks      int `yaml:"min_weeks" validate:"required,gt=0,ltefield=LookbackWeeks"`
}

type billingFile struct {
	PalletDayRate string `yaml:"pallet_day_rate" validate:"required,numeric"`
	PerOrder      string `yaml:"per_order" validate:"required,numeric"`
	PerPackage    string `yaml:"per_package" validate:"required,numeric"`
}

type file struct {
	Rolling Rolling     `yaml:"rolling"`
	Billing billingFile `yaml:"billing"`
	SKUs    []SKU       `yaml:"skus" validate:"required,min=1,unique=Code,dive"`
}

// Rates are the billing rates in the billing currency.
type Rates struct {
	PalletDay  decimal.Decimal
	PerOrder   decimal.Decimal
	PerPackage decimal.Decimal
}

// Catalog is the validated configuration.
type Catalog struct {
	Rolling Rolling
	Rates   Rates
	skus    map[string]SKU
	codes   []string
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("catalog: invalid: %w", describe(err))
	}

	var rates Rates
	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{f.Billing.PalletDayRate, &rates.PalletDay},
		{f.Billing.PerOrder, &rates.PerOrder},
		{f.Billing.PerPackage, &rates.PerPackage},
	} {
		v, err := decimal.NewFromString(field.raw)
		if err != nil {
			return nil, fmt.Errorf("catalog: rate %q: %w", field.raw, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("catalog: rate %q must not be negative", field.raw)
		}
		*field.dst = v
	}

	c := &Catalog{Rolling: f.Rolling, Rates: rates, skus: make(map[string]SKU, len(f.SKUs))}
	for _, s := range f.SKUs {
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		c.skus[s.Code] = s
		c.codes = append(c.codes, s.Code)
	}
	sort.Strings(c.codes)
	return c, nil
}

// Lookup returns the configuration of sku.
func (c *Catalog) Lookup(sku string) (SKU, error) {
	s, ok := c.skus[sku]
	if !ok {
		return SKU{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}
	return s, nil
}

// Codes lists the configured SKUs in sorted order.
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.codes...)
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
