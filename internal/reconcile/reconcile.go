// Package reconcile checks that what the payer distributed matches what the
// watched holders hold. The check is a finding: a mismatch is reported, never
// raised as an error.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/mintwatch/internal/pkg/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultTolerance is the largest accepted gap between circulation and
// distribution, in token units.
var DefaultTolerance = decimal.New(1, -4)

// Status is the reconciliation verdict.
type Status string

const (
	StatusOK       Status = "ok"
	StatusMismatch Status = "mismatch"
)

// BalanceReader reads live token balances.
type BalanceReader interface {
	GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)
}

// Report is the outcome of one validation.
type Report struct {
	Status        Status          `json:"status"`
	Distributed   decimal.Decimal `json:"distributed"`
	WatchedSupply decimal.Decimal `json:"watched_supply"`
	PayerBalance  decimal.Decimal `json:"payer_balance"`
	Circulation   decimal.Decimal `json:"circulation"`
	Magnitude     decimal.Decimal `json:"magnitude"`
	Holders       int             `json:"holders"`
	// Unreachable lists addresses whose balance could not be read; they count
	// as zero.
	Unreachable []string `json:"unreachable,omitempty"`
}

// Validator computes Reports.
type Validator struct {
	balances       BalanceReader
	log            eventlog.Log
	mint           string
	payer          string
	retry          retry.Retry
	tolerance      decimal.Decimal
	maxConcurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerance overrides DefaultTolerance.
func WithTolerance(t decimal.Decimal) Option {
	return func(v *Validator) {
		v.tolerance = t
	}
}

// WithRetry sets the retry policy for balance reads.
func WithRetry(r retry.Retry) Option {
	return func(v *Validator) {
		v.retry = r
	}
}

// WithMaxConcurrency bounds concurrent balance reads.
func WithMaxConcurrency(n int) Option {
	return func(v *Validator) {
		v.maxConcurrency = max(n, 1)
	}
}

// New returns a Validator for the mint distributed by payer.
func New(balances BalanceReader, log eventlog.Log, mint, payer string, opts ...Option) *Validator {
	v := &Validator{
		balances:       balances,
		log:            log,
		mint:           mint,
		payer:          payer,
		retry:          retry.New(retry.WithRetryIf(ledger.IsRetryable)),
		tolerance:      DefaultTolerance,
		maxConcurrency: 4,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// distributed sums every transfer the payer sent, authorized or not.
func (v *Validator) distributed(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	err := v.log.Iterate(ctx, func(r eventlog.Record) error {
		ev, ok := r.Transfer()
		if !ok {
			return nil
		}
		if sender, exact := ev.Sender.Exact(); exact && sender == v.payer {
			total = total.Add(ev.Amount)
		}
		return nil
	})
	return total, err
}

func (v *Validator) balance(ctx context.Context, owner string) (decimal.Decimal, error) {
	var b decimal.Decimal
	err := v.retry.Execute(ctx, func() error {
		var err error
		b, err = v.balances.GetTokenBalance(ctx, owner, v.mint)
		return err
	})
	if errors.Is(err, ledger.ErrNoTokenAccount) {
		return decimal.Zero, nil
	}
	return b, err
}

// Validate compares the payer's distribution with the live supply held by
// watched, which should be allow-list ∪ greylist. The payer is always included
// and every address is counted once. An error is returned only when the event
// log cannot be read or ctx ends.
func (v *Validator) Validate(ctx context.Context, watched types.Set[string]) (Report, error) {
	distributed, err := v.distributed(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read event log: %w", err)
	}

	addresses := watched.Union(types.NewSet(v.payer))

	var (
		mu          sync.Mutex
		balances    = make(map[string]decimal.Decimal, addresses.Len())
		unreachable = types.NewSet[string]()
		g           errgroup.Group
	)
	g.SetLimit(v.maxConcurrency)

	for addr := range addresses {
		g.Go(func() error {
			b, err := v.balance(ctx, addr)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logger.Warn(ctx, "balance unavailable for reconciliation", "address", addr, "error", err)
				unreachable.Add(addr)
				return nil
			}
			balances[addr] = b
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{
		Distributed:   distributed,
		WatchedSupply: decimal.Zero,
		PayerBalance:  balances[v.payer],
		Unreachable:   types.Sorted(unreachable),
	}
	for addr, b := range balances {
		report.WatchedSupply = report.WatchedSupply.Add(b)
		if addr != v.payer && b.IsPositive() {
			report.Holders++
		}
	}

	report.Circulation = report.WatchedSupply.Sub(report.PayerBalance)
	report.Magnitude = report.Circulation.Sub(report.Distributed).Abs()
	report.Status = StatusOK
	if report.Magnitude.GreaterThan(v.tolerance) {
		report.Status = StatusMismatch
	}

	if len(report.Unreachable) == 0 {
		report.Unreachable = nil
	}
	return report, nil
}
