package watchset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/syncstate"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Run executes one audit run until convergence and persists its progress.
//
// Errors from the allow-list, the state store, the event log or a canceled
// context end the run without saving. Per-address sync failures do not: they are
// reported in Summary.Failed.
func (s *service) Run(ctx context.Context) (Summary, error) {
	if !s.mu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer s.mu.Unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, s.lockTTL)
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "could not release run lock", "error", err)
			}
		}()
	}

	start := time.Now()
	rs := newRunState(uuid.Must(uuid.NewV7()).String())

	ctx = logger.Derive(ctx, "run.id", rs.id)
	ctx, span := s.tracer.Start(ctx, "watchset.Run", trace.WithAttributes(attribute.String("run.id", rs.id)))
	defer span.End()

	summary, err := s.run(ctx, rs)
	summary.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.recordRun(ctx, "failed", rs.pass)
		return summary, err
	}

	s.metrics.recordRun(ctx, "converged", rs.pass)
	logger.Info(ctx, "run converged",
		"passes", summary.Passes,
		"scanned", summary.Scanned,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed),
		"transfers", summary.Transfers,
		"violations", summary.Violations,
		"greylisted", len(summary.NewlyGreylisted),
		"duration", summary.Duration.String(),
	)
	return summary, nil
}

func (s *service) run(ctx context.Context, rs *runState) (Summary, error) {
	allow, err := s.allowList.Load(ctx)
	if err != nil {
		return rs.summary(nil), fmt.Errorf("load allow-list: %w", err)
	}

	state, err := s.store.Load(ctx)
	if err != nil {
		return rs.summary(nil), fmt.Errorf("load sync state: %w", err)
	}
	state = state.Normalize()

	watch := allow.Union(state.Greylist, types.NewSet(s.payer))
	pending := rs.pending(watch)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return rs.summary(state.Greylist), err
		}

		newly, err := s.pass(ctx, rs, state, allow, pending)
		if err != nil {
			return rs.summary(state.Greylist), err
		}

		pending = rs.pending(types.NewSet(newly...))
	}
	rs.phase = PhaseConverged

	if err := ctx.Err(); err != nil {
		return rs.summary(state.Greylist), err
	}

	s.refreshBalances(ctx, rs, state)

	if err := s.store.Save(ctx, state); err != nil {
		return rs.summary(state.Greylist), errors.Join(ErrPersistState, err)
	}

	return rs.summary(state.Greylist), nil
}

// pass runs one Scanning and Classifying round over pending.
func (s *service) pass(ctx context.Context, rs *runState, state syncstate.State, allow types.Set[string], pending []string) ([]string, error) {
	rs.pass++
	ctx = logger.Derive(ctx, "pass", rs.pass)
	ctx, span := s.tracer.Start(ctx, "watchset.pass", trace.WithAttributes(
		attribute.Int("pass", rs.pass),
		attribute.Int("addresses", len(pending)),
	))
	defer span.End()

	rs.phase = PhaseScanning
	logger.Debug(ctx, "scanning", "addresses", len(pending))
	results := s.scan(ctx, rs, state, pending)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rs.phase = PhaseClassifying
	newly, violations, err := s.apply(ctx, rs, state, allow, results)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(violations) > 0 {
		s.violationHandler(ctx, violations)
	}

	span.SetAttributes(attribute.Int("greylisted", len(newly)))
	return newly, nil
}

// refreshBalances reads the live balance of every successfully synced address
// and stores it in its cursor. Addresses whose read fails keep their previous
// balance.
func (s *service) refreshBalances(ctx context.Context, rs *runState, state syncstate.State) {
	var (
		mu       sync.Mutex
		balances = make(map[string]decimal.Decimal, rs.synced.Len())
		g        errgroup.Group
	)
	g.SetLimit(s.maxConcurrency)

	for addr := range rs.synced {
		if _, ok := rs.balances[addr]; ok {
			continue
		}

		g.Go(func() error {
			var balance decimal.Decimal
			err := s.retry.Execute(ctx, func() error {
				var err error
				balance, err = s.ledger.GetTokenBalance(ctx, addr, s.mint)
				return err
			})
			if errors.Is(err, ledger.ErrNoTokenAccount) {
				balance, err = decimal.Zero, nil
			}
			if err != nil {
				logger.Warn(ctx, "balance refresh failed", "address", addr, "error", err)
				return nil
			}

			mu.Lock()
			balances[addr] = balance
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for addr, b := range rs.balances {
		balances[addr] = b
	}
	for addr, b := range balances {
		c := state.Cursor(addr)
		c.LastBalance, c.HasBalance = b, true
		state.SetCursor(addr, c)
	}
}

func (rs *runState) summary(greylist types.Set[string]) Summary {
	return Summary{
		RunID:           rs.id,
		Passes:          rs.pass,
		Scanned:         rs.scanned.Len(),
		Skipped:         rs.skipped,
		Failed:          types.Sorted(rs.failed),
		Transactions:    rs.transactions,
		Transfers:       rs.transfers,
		Violations:      rs.violations,
		Freezes:         rs.freezes,
		Appended:        rs.appended,
		NewlyGreylisted: rs.newlyGreylisted,
		Greylist:        types.Sorted(greylist),
	}
}
