package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"opledger/internal/bootstrap"
	"opledger/internal/model"
	"opledger/internal/service"
	"opledger/internal/worker"
)

func (a *App) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDeps(cmd, func(context.Context, *bootstrap.Deps) error {
				color.New(color.FgGreen).Fprintln(a.Out, "Schema is up to date")
				return nil
			})
		},
	}
}

func (a *App) listCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations in a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				var (
					res *service.OperationListResult
					err error
				)
				switch model.Status(status) {
				case model.StatusPending:
					res, err = d.Service.ListPending(ctx, limit, offset)
				case model.StatusFailed:
					res, err = d.Service.ListFailed(ctx, limit, offset)
				default:
					res, err = d.Service.ListByStatus(ctx, model.Status(status), limit, offset)
				}
				if err != nil {
					return err
				}
				if len(res.Items) == 0 {
					fmt.Fprintf(a.Out, "No %s operations\n", status)
					return nil
				}
				printTable(a.Out, res.Items)
				fmt.Fprintf(a.Out, "%d of %d\n", len(res.Items), res.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", string(model.StatusPending), "pending, retrying, failed or success")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of operations to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of operations to skip")
	return cmd
}

func (a *App) readyCmd() *cobra.Command {
	var (
		at    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List retrying operations that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t.UTC()
			}
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				ops, err := d.Service.ListReadyForRetry(ctx, now, limit)
				if err != nil {
					return err
				}
				if len(ops) == 0 {
					fmt.Fprintln(a.Out, "Nothing is due")
					return nil
				}
				printTable(a.Out, ops)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate readiness at this RFC3339 time instead of now")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of operations to show")
	return cmd
}

func (a *App) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count operations per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				counts, err := d.Service.Stats(ctx)
				if err != nil {
					return err
				}
				statuses := make([]string, 0, len(counts))
				for s := range counts {
					statuses = append(statuses, string(s))
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					statusColor(model.Status(s)).Fprintf(a.Out, "%-9s", s)
					fmt.Fprintf(a.Out, " %d\n", counts[model.Status(s)])
				}
				return nil
			})
		},
	}
}

func (a *App) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				op, err := d.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printDetail(a.Out, op)
				return nil
			})
		},
	}
}

func (a *App) succeedCmd() *cobra.Command {
	var code int
	cmd := &cobra.Command{
		Use:   "succeed <id>",
		Short: "Mark an operation successful",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				in := service.SuccessInput{ActorID: actorCLI}
				if cmd.Flags().Changed("code") {
					in.StatusCode = &code
				}
				op, err := d.Service.RecordSuccess(ctx, args[0], in)
				if err != nil {
					return err
				}
				printTransition(a.Out, op)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&code, "code", 0, "Response status code to record")
	return cmd
}

func (a *App) failCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark an operation permanently failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return errors.New("--message is required")
			}
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				op, err := d.Service.RecordFailure(ctx, args[0], service.FailureInput{Message: message, ActorID: actorCLI})
				if err != nil {
					return err
				}
				printTransition(a.Out, op)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Failure reason")
	return cmd
}

func (a *App) retryCmd() *cobra.Command {
	var (
		delay  time.Duration
		reason string
	)
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Schedule another attempt",
		Long: `Schedule another attempt using 2^retry_count minutes of backoff,
or --delay when given. An operation without retries left is failed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				in := service.RetryInput{Reason: reason, ActorID: actorCLI}
				if cmd.Flags().Changed("delay") {
					in.Delay = &delay
				}
				op, scheduled, err := d.Service.ScheduleRetry(ctx, args[0], in)
				if err != nil {
					return err
				}
				if !scheduled {
					color.New(color.FgRed).Fprintln(a.Out, "No retries left")
				}
				printTransition(a.Out, op)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Override the backoff delay (e.g. 30s)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the last attempt failed")
	return cmd
}

func (a *App) archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a completed operation to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				res, err := d.Service.Archive(ctx, args[0], actorCLI)
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(a.Out, "Archived to %s\n", res.Key)
				fmt.Fprintf(a.Out, "Download (until %s): %s\n", res.ExpiresAt.Format(time.RFC3339), res.URL)
				return nil
			})
		},
	}
}

func (a *App) pollCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Replay operations that are due for retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				cfg := a.Poll
				if cfg.Now == nil {
					cfg.Now = a.Now
				}
				p := worker.NewPoller(d.Service, a.NewExecutor(), cfg)
				if !once {
					fmt.Fprintln(a.Out, "Poller started. Ctrl+C to stop.")
					return p.Run(ctx)
				}

				counts, err := p.RunOnce(ctx)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Fprintln(a.Out, "Nothing is due")
					return nil
				}
				outcomes := make([]string, 0, len(counts))
				for o := range counts {
					outcomes = append(outcomes, o)
				}
				sort.Strings(outcomes)
				for _, o := range outcomes {
					fmt.Fprintf(a.Out, "%-9s %d\n", o, counts[o])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process one batch and exit")
	return cmd
}

func printTable(w io.Writer, ops []model.Operation) {
	yellow := color.New(color.FgYellow)
	for i := range ops {
		op := &ops[i]
		yellow.Fprintf(w, "%s ", shortID(op.ID))
		statusColor(op.Status).Fprintf(w, "%-9s", op.Status)
		fmt.Fprintf(w, " %d/%d  %s  %s", op.RetryCount, op.MaxRetries, op.OperationType, op.OperationID)
		if op.NextRetryAt != nil {
			fmt.Fprintf(w, "  next %s", op.NextRetryAt.Format(time.RFC3339))
		}
		fmt.Fprintln(w)
	}
}

func printDetail(w io.Writer, op *model.Operation) {
	color.New(color.FgYellow).Fprintf(w, "operation %s\n", op.ID)
	fmt.Fprint(w, "Status:    ")
	statusColor(op.Status).Fprintln(w, op.Status)
	fmt.Fprintf(w, "Type:      %s\n", op.OperationType)
	fmt.Fprintf(w, "Ref:       %s\n", op.OperationID)
	fmt.Fprintf(w, "Endpoint:  %s %s\n", op.Method, op.Endpoint)
	fmt.Fprintf(w, "Retries:   %d/%d\n", op.RetryCount, op.MaxRetries)
	if op.NextRetryAt != nil {
		fmt.Fprintf(w, "Next try:  %s\n", op.NextRetryAt.Format(time.RFC3339))
	}
	if op.ResponseCode != nil {
		fmt.Fprintf(w, "Response:  %d\n", *op.ResponseCode)
	}
	if op.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:     %s\n", *op.ErrorMessage)
	}
	fmt.Fprintf(w, "Created:   %s\n", op.CreatedAt.Format(time.RFC3339))
	if op.CompletedAt != nil {
		fmt.Fprintf(w, "Completed: %s\n", op.CompletedAt.Format(time.RFC3339))
	}
}

func printTransition(w io.Writer, op *model.Operation) {
	fmt.Fprintf(w, "%s is now ", shortID(op.ID))
	statusColor(op.Status).Fprint(w, op.Status)
	if op.Status == model.StatusRetrying && op.NextRetryAt != nil {
		fmt.Fprintf(w, " (attempt %d/%d at %s)", op.RetryCount, op.MaxRetries, op.NextRetryAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
}
