package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odyssey-erp/stockrecon/internal/reconcile"
)

// ValidateOptions defines the flags of the validate command.
type ValidateOptions struct {
	SKUs       []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ParseValidateFlags parses `reconctl validate` arguments.
func ParseValidateFlags(args []string, stdout, stderr io.Writer) (ValidateOptions, error) {
	opts := ValidateOptions{}
	opts.Stdout, opts.Stderr = writers(stdout, stderr)
	fs := newFlagSet("validate", opts.Stderr)
	fs.StringSliceVar(&opts.SKUs, "sku", nil, "limit validation to these SKUs (repeatable or comma separated)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return opts, nil
}

// ValidateSummary is the JSON document printed by validate --json.
type ValidateSummary struct {
	OK      bool               `json:"ok"`
	Checked int                `json:"checked"`
	Drifts  []reconcile.Result `json:"drifts"`
}

// ValidateCommand checks every baseline pair and returns ExitOK when the
// lineage is consistent, ExitDrift on any drift and ExitError otherwise.
func (c *ReconCLI) ValidateCommand(ctx context.Context, opts ValidateOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if c == nil || c.validator == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "validate: validator not configured")
		return ExitError
	}
	skus := make([]string, 0, len(opts.SKUs))
	for _, sku := range opts.SKUs {
		if sku = strings.ToUpper(strings.TrimSpace(sku)); sku != "" {
			skus = append(skus, sku)
		}
	}
	report, err := c.validator.ValidateAll(ctx, skus)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: %v\n", err)
		return ExitError
	}
	drifts := report.Drifted()
	sort.SliceStable(drifts, func(i, j int) bool { return drifts[i].SKU < drifts[j].SKU })
	if opts.JSONOutput {
		summary := ValidateSummary{OK: len(drifts) == 0, Checked: len(report.Results), Drifts: drifts}
		if summary.Drifts == nil {
			summary.Drifts = []reconcile.Result{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "validate: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderValidateHuman(opts.Stdout, report, drifts)
	}
	if len(drifts) > 0 {
		return ExitDrift
	}
	return ExitOK
}

func renderValidateHuman(out io.Writer, report reconcile.Report, drifts []reconcile.Result) {
	_, _ = fmt.Fprintf(out, "Baseline validation: %d pair(s) checked\n", len(report.Results))
	if len(drifts) == 0 {
		_, _ = fmt.Fprintln(out, "All baselines are derivable from the ledger.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d drift(s) detected:\n", len(drifts))
	for _, d := range drifts {
		if d.Error != "" {
			_, _ = fmt.Fprintf(out, " - %s %s -> %s: %s\n", d.SKU, d.Earlier, d.Later, d.Error)
			continue
		}
		_, _ = fmt.Fprintf(out, " - %s %s -> %s: expected %d, recorded %d (delta %+d)\n", d.SKU, d.Earlier, d.Later, d.Expected, d.Actual, d.Delta)
	}
}
