package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// TriggerOptions defines the flags of the trigger command.
type TriggerOptions struct {
	Report string
	AsOf   string
	SKUs   []string
	Stdout io.Writer
	Stderr io.Writer
}

// ParseTriggerFlags parses `reconctl trigger` arguments. The job name is
// either a report kind or "validate".
func ParseTriggerFlags(args []string, stdout, stderr io.Writer) (TriggerOptions, error) {
	opts := TriggerOptions{}
	opts.Stdout, opts.Stderr = writers(stdout, stderr)
	fs := newFlagSet("trigger", opts.Stderr)
	fs.StringVar(&opts.AsOf, "as-of", "", "as-of date (YYYY-MM-DD); defaults to the day the worker runs it")
	fs.StringSliceVar(&opts.SKUs, "sku", nil, "SKUs for a validate trigger")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return opts, fmt.Errorf("%w: trigger expects one of daily, weekly, monthly, validate", ErrUsage)
	}
	opts.Report = fs.Arg(0)
	return opts, nil
}

// TriggerCommand enqueues the named job and prints its task id.
func (c *ReconCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if c == nil || c.enqueuer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "trigger: queue client not configured")
		return ExitError
	}
	if opts.Report == "validate" {
		info, err := c.enqueuer.EnqueueValidate(ctx, opts.SKUs)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "trigger: %v\n", err)
			return ExitError
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s)\n", info.Type, info.ID)
		return ExitOK
	}
	kind, err := reports.ParseKind(opts.Report)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "trigger: %v\n", err)
		return ExitError
	}
	var asOf time.Time
	if opts.AsOf != "" {
		if asOf, err = shared.ParseDate(opts.AsOf); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "trigger: %v\n", err)
			return ExitError
		}
	}
	info, err := c.enqueuer.EnqueueReport(ctx, kind, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "trigger: %v\n", err)
		return ExitError
	}
	period := "processing day"
	if !asOf.IsZero() {
		period = kind.PeriodKey(asOf)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s for %s (%s)\n", info.Type, period, info.ID)
	return ExitOK
}
