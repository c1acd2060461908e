package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockrecon/cmd/reconctl/cli"
	"github.com/odyssey-erp/stockrecon/internal/app"
	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/platform/db"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/jobs"
)

const usage = `usage: reconctl <command> [flags]

commands:
  validate [--sku SKU]... [--json]          check every baseline against the ledger
  trigger <daily|weekly|monthly|validate>   enqueue a job for the worker
          [--as-of YYYY-MM-DD] [--sku SKU]...
`

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return cli.ExitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return cli.ExitError
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "reconctl"))

	switch os.Args[1] {
	case "validate":
		opts, err := cli.ParseValidateFlags(os.Args[2:], os.Stdout, os.Stderr)
		if err != nil {
			return usageError(err)
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "validate: %v\n", err)
			return cli.ExitError
		}
		defer pool.Close()
		ledger := inventory.NewService(inventory.NewRepository(pool), logger)
		validator := reconcile.NewService(baseline.NewRepository(pool), ledger, cfg.DriftTolerance, nil, logger)
		return cli.NewReconCLI(validator, nil).ValidateCommand(ctx, opts)
	case "trigger":
		opts, err := cli.ParseTriggerFlags(os.Args[2:], os.Stdout, os.Stderr)
		if err != nil {
			return usageError(err)
		}
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "trigger: %v\n", err)
			return cli.ExitError
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		return cli.NewReconCLI(nil, client).TriggerCommand(ctx, opts)
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(os.Stdout, usage)
		return cli.ExitOK
	}
	_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
	return cli.ExitError
}

func usageError(err error) int {
	if errors.Is(err, cli.ErrUsage) {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
	}
	return cli.ExitError
}
