package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/reconcile"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/watchset"

	"github.com/urfave/cli/v3"
)

// ErrReconciliationMismatch is returned by commands whose validation found the
// watched supply off the distributed amount.
var ErrReconciliationMismatch = errors.New("reconciliation mismatch")

// Validator checks watched balances against the distributed total.
type Validator interface {
	Validate(ctx context.Context, watched types.Set[string]) (reconcile.Report, error)
}

// App holds what the commands act on.
type App struct {
	Runs      watchset.Service
	Validator Validator
	State     syncstate.Store
	AllowList watchset.AllowList
	Log       eventlog.Log
	Payer     string

	// Interval and ErrorBackoff are the watch command defaults.
	Interval     time.Duration
	ErrorBackoff time.Duration

	// Out receives command output; os.Stdout when nil.
	Out io.Writer
}

func (a App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a App) printJSON(v any) error {
	enc := json.NewEncoder(a.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Run parses os.Args and executes the matching mintwatch command.
//
// Commands:
//
//   - `run`: one audit run, optionally followed by a reconciliation.
//   - `watch`: audit runs on a fixed interval until interrupted.
//   - `validate`: reconciliation only.
//   - `greylist`: prints the persisted greylist.
//   - `graph`: exports the transfer graph as JSON.
func Run(ctx context.Context, app App) error {
	return newCommand(app).Run(ctx, os.Args)
}

func newCommand(app App) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "mintwatch",
		Description:           "Audits the movements of a token mint away from its distribution wallet.",
		Usage:                 "mintwatch [command] [flags]",
		Commands: []*cli.Command{
			runCommand(app),
			watchCommand(app),
			validateCommand(app),
			greylistCommand(app),
			graphCommand(app),
		},
	}
}
