package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gabapcia/mintwatch/internal/graph"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/reconcile"

	"github.com/urfave/cli/v3"
)

// validateCommand reconciles balances without syncing.
//
// Usage example:
//
//	mintwatch validate
func validateCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Description: "Compares the tokens distributed by the payer with the balances held by watched addresses.",
		Usage:       "Prints a reconciliation report and fails on mismatch.",
		Action: func(ctx context.Context, c *cli.Command) error {
			report, err := app.validate(ctx)
			if err != nil {
				return err
			}
			if err := app.printJSON(report); err != nil {
				return err
			}

			if report.Status == reconcile.StatusMismatch {
				return fmt.Errorf("%w: magnitude %s", ErrReconciliationMismatch, report.Magnitude)
			}
			return nil
		},
	}
}

// greylistCommand prints the persisted greylist, one address per line.
//
// Usage example:
//
//	mintwatch greylist
func greylistCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "greylist",
		Description: "Lists addresses that received tokens through unauthorized transfers.",
		Usage:       "Prints the greylist, sorted.",
		Action: func(ctx context.Context, c *cli.Command) error {
			state, err := app.State.Load(ctx)
			if err != nil {
				return fmt.Errorf("load sync state: %w", err)
			}

			for _, addr := range types.Sorted(state.Normalize().Greylist) {
				if _, err := fmt.Fprintln(app.out(), addr); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// graphCommand exports the transfer graph built from the event log.
//
// Usage example:
//
//	mintwatch graph --out graph.json
func graphCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "graph",
		Description: "Aggregates the event log into nodes and edges with roles, net flows and freeze state.",
		Usage:       "Writes the transfer graph as JSON to --out, or stdout.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output file; - for stdout",
				Value: "-",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			allow, greylist, err := app.watched(ctx)
			if err != nil {
				return err
			}

			g, err := graph.Build(ctx, app.Log, graph.Roles{
				Payer:    app.Payer,
				Allowed:  allow,
				Greylist: greylist,
			})
			if err != nil {
				return fmt.Errorf("build graph: %w", err)
			}

			return writeGraph(g, c.String("out"), app.out())
		},
	}
}

func writeGraph(g graph.Graph, path string, stdout io.Writer) error {
	if path == "-" || path == "" {
		return g.WriteJSON(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := g.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
