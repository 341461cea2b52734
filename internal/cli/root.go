// Package cli implements the ledgerctl operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"opledger/internal/audit"
	"opledger/internal/bootstrap"
	"opledger/internal/config"
	"opledger/internal/model"
	"opledger/internal/worker"
)

const actorCLI = "ledgerctl"

// App holds what commands need. Fields are replaceable in tests.
type App struct {
	Open        func(ctx context.Context) (*bootstrap.Deps, error)
	NewExecutor func() worker.Executor
	Poll        worker.Config
	Now         func() time.Time
	Out         io.Writer
}

// New returns an App backed by cfg.
func New(cfg *config.AppConfig) *App {
	sink := audit.NewJSONSink(os.Stderr, cfg.Location())
	return &App{
		Open: func(ctx context.Context) (*bootstrap.Deps, error) {
			return bootstrap.Open(ctx, cfg, sink, bootstrap.Options{})
		},
		NewExecutor: func() worker.Executor {
			return worker.NewHTTPExecutor(cfg.Ledger.ExecutorTimeout)
		},
		Poll: worker.Config{
			Interval:  cfg.Ledger.PollInterval,
			BatchSize: cfg.Ledger.BatchSize,
			Sink:      sink,
		},
		Now: func() time.Time { return time.Now().UTC() },
		Out: os.Stdout,
	}
}

// Command builds the root cobra command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and drive the retryable operation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.Out)

	root.AddCommand(
		a.migrateCmd(),
		a.listCmd(),
		a.readyCmd(),
		a.statsCmd(),
		a.showCmd(),
		a.succeedCmd(),
		a.failCmd(),
		a.retryCmd(),
		a.archiveCmd(),
		a.pollCmd(),
	)
	return root
}

// Execute runs the CLI with os.Args and prints any error to stderr.
func (a *App) Execute(ctx context.Context) error {
	err := a.Command().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

// withDeps opens the ledger, runs fn and closes it again.
func (a *App) withDeps(cmd *cobra.Command, fn func(ctx context.Context, d *bootstrap.Deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := a.Open(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(ctx, deps)
}

func statusColor(s model.Status) *color.Color {
	switch s {
	case model.StatusSuccess:
		return color.New(color.FgGreen)
	case model.StatusFailed:
		return color.New(color.FgRed, color.Bold)
	case model.StatusRetrying:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
