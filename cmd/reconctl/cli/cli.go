package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/internal/reports"
)

// Exit codes shared by every command.
const (
	ExitOK    = 0
	ExitError = 1
	ExitDrift = 10
)

// Validator cross-checks baseline lineages.
type Validator interface {
	ValidateAll(ctx context.Context, skus []string) (reconcile.Report, error)
}

// Enqueuer submits report tasks to the worker queue.
type Enqueuer interface {
	EnqueueReport(ctx context.Context, kind reports.Kind, asOf time.Time) (*asynq.TaskInfo, error)
	EnqueueValidate(ctx context.Context, skus []string) (*asynq.TaskInfo, error)
}

// ReconCLI offers operational helpers around baseline validation and
// report runs.
type ReconCLI struct {
	validator Validator
	enqueuer  Enqueuer
}

// NewReconCLI constructs the helper. Either dependency may be nil when the
// invoked command does not need it.
func NewReconCLI(validator Validator, enqueuer Enqueuer) *ReconCLI {
	return &ReconCLI{validator: validator, enqueuer: enqueuer}
}

// ErrUsage marks invalid command-line input.
var ErrUsage = errors.New("reconctl: usage")

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if stderr == nil {
		stderr = os.Stderr
	}
	fs.SetOutput(stderr)
	return fs
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
