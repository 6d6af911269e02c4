package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/reconcile"
	"github.com/gabapcia/mintwatch/internal/scheduler"

	"github.com/urfave/cli/v3"
)

// watched returns the allow-listed and greylisted addresses.
func (a App) watched(ctx context.Context) (allow, greylist types.Set[string], err error) {
	allow, err = a.AllowList.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load allowlist: %w", err)
	}

	state, err := a.State.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load sync state: %w", err)
	}

	return allow, state.Normalize().Greylist, nil
}

func (a App) validate(ctx context.Context) (reconcile.Report, error) {
	allow, greylist, err := a.watched(ctx)
	if err != nil {
		return reconcile.Report{}, err
	}

	report, err := a.Validator.Validate(ctx, allow.Union(greylist))
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("validate: %w", err)
	}
	return report, nil
}

// audit performs one run and, when validate is set, a reconciliation. A
// mismatch is reported as ErrReconciliationMismatch.
func (a App) audit(ctx context.Context, validate bool) error {
	summary, err := a.Runs.Run(ctx)
	if err != nil {
		return err
	}
	if err := a.printJSON(summary); err != nil {
		return err
	}

	if !validate {
		return nil
	}

	report, err := a.validate(ctx)
	if err != nil {
		return err
	}
	if err := a.printJSON(report); err != nil {
		return err
	}

	if report.Status == reconcile.StatusMismatch {
		return fmt.Errorf("%w: magnitude %s", ErrReconciliationMismatch, report.Magnitude)
	}
	return nil
}

// runCommand executes a single audit run.
//
// Usage example:
//
//	mintwatch run --validate
func runCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "Syncs every watched address until the watch set converges and appends new events to the log.",
		Usage:       "Runs one audit. With --validate, reconciles balances afterwards and fails on mismatch.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "validate",
				Usage: "Reconcile watched balances after the run",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.audit(ctx, c.Bool("validate"))
		},
	}
}

// watchCommand runs audits on a fixed interval until SIGINT or SIGTERM.
//
// Usage example:
//
//	mintwatch watch --interval 10m --validate
func watchCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Description: "Runs the audit immediately and then on a fixed interval. Overlapping runs are skipped.",
		Usage:       "Schedules audit runs. Terminates gracefully on Ctrl+C or termination signals.",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between runs",
				Value: app.Interval,
				Validator: func(d time.Duration) error {
					if d < time.Second {
						return fmt.Errorf("interval must be at least 1s, got %s", d)
					}
					return nil
				},
			},
			&cli.BoolFlag{
				Name:  "validate",
				Usage: "Reconcile watched balances after every run",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			validate := c.Bool("validate")
			job := func(ctx context.Context) error {
				err := app.audit(ctx, validate)
				if errors.Is(err, ErrReconciliationMismatch) {
					// Retrying does not change the books; wait for the next tick.
					logger.Error(ctx, "reconciliation mismatch", "error", err)
					return nil
				}
				return err
			}

			return scheduler.New(job, c.Duration("interval"), scheduler.WithErrorBackoff(app.ErrorBackoff)).Run(ctx)
		},
	}
}
