package watchset

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/pkg/x/chflow"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// analyzedTx is one transaction derived during a pass.
type analyzedTx struct {
	info   ledger.SignatureInfo
	result transfer.Result
}

// addressResult is what syncing one address produced. It is built by a worker
// and applied by the single writer.
type addressResult struct {
	address string
	skipped bool
	err     error

	// newest becomes the address cursor when the sync succeeded.
	newest string

	// balance is set when the address was skipped; it is the live balance the
	// skip check read.
	balance    decimal.Decimal
	hasBalance bool

	txs []analyzedTx // oldest first
}

// scan syncs addresses concurrently and returns one result per address. A
// failing address never cancels the others.
func (s *service) scan(ctx context.Context, rs *runState, state syncstate.State, addresses []string) []addressResult {
	ch := make(chan addressResult, len(addresses))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	for _, addr := range addresses {
		rs.scanned.Add(addr)
		cursor := state.Cursor(addr)
		greylisted := state.Greylist.Has(addr)

		g.Go(func() error {
			res := s.syncAddress(logger.Derive(ctx, "address", addr), addr, cursor, greylisted, rs.analyzed)
			chflow.Send(ctx, ch, res)
			return nil
		})
	}

	_ = g.Wait()
	close(ch)

	return chflow.Collect(ctx, ch)
}

// syncAddress runs the fetch side of one address: optional skip check,
// signature fetch and transaction analysis. analyzed is only read here; it is
// mutated by the writer between passes.
func (s *service) syncAddress(ctx context.Context, address string, cursor syncstate.Cursor, greylisted bool, analyzed types.Set[string]) addressResult {
	ctx, span := s.tracer.Start(ctx, "watchset.syncAddress", trace.WithAttributes(attribute.String("address", address)))
	defer span.End()

	res := addressResult{address: address}

	if greylisted && cursor.LastSignature != "" && cursor.HasBalance {
		skip, balance, err := s.canSkip(ctx, address, cursor)
		switch {
		case err != nil:
			logger.Debug(ctx, "skip check failed, running full fetch", "error", err)
		case skip:
			res.skipped = true
			res.newest = cursor.LastSignature
			res.balance, res.hasBalance = balance, true
			return res
		}
	}

	infos, newest, err := s.fetcher.FetchNewSignatures(ctx, address, cursor.LastSignature)
	if err != nil {
		res.err = err
		span.RecordError(err)
		return res
	}
	res.newest = newest

	for _, info := range infos {
		if info.Failed || analyzed.Has(info.Signature) {
			continue
		}

		var tx ledger.Transaction
		err := s.retry.Execute(ctx, func() error {
			var err error
			tx, err = s.ledger.GetTransaction(ctx, info.Signature)
			return err
		})
		if err != nil {
			res.err = fmt.Errorf("get transaction %s: %w", info.Signature, err)
			span.RecordError(res.err)
			return res
		}

		result := s.analyzer.Analyze(tx)
		s.resolveFreezeOwners(ctx, result.Freezes)
		res.txs = append(res.txs, analyzedTx{info: info, result: result})
	}

	return res
}

// canSkip reports whether a greylisted address had no activity since its
// cursor. An unchanged balance alone is not enough: balance-neutral
// transactions exist, so the latest signature must also equal the cursor.
func (s *service) canSkip(ctx context.Context, address string, cursor syncstate.Cursor) (bool, decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.retry.Execute(ctx, func() error {
		var err error
		balance, err = s.ledger.GetTokenBalance(ctx, address, s.mint)
		return err
	})
	if errors.Is(err, ledger.ErrNoTokenAccount) {
		balance, err = decimal.Zero, nil
	}
	if err != nil {
		return false, decimal.Zero, err
	}

	if balance.Sub(cursor.LastBalance).Abs().GreaterThanOrEqual(s.skipEpsilon) {
		return false, balance, nil
	}

	latest, err := s.fetcher.LatestSignature(ctx, address)
	if err != nil {
		return false, balance, err
	}
	if latest != cursor.LastSignature {
		logger.Debug(ctx, "balance unchanged but new activity found", "cursor", cursor.LastSignature, "latest", latest)
		return false, balance, nil
	}

	return true, balance, nil
}

// resolveFreezeOwners fills the owner of freeze events whose token account did
// not appear in the balance snapshots. Resolution is best effort.
func (s *service) resolveFreezeOwners(ctx context.Context, freezes []transfer.FreezeEvent) {
	for i := range freezes {
		if freezes[i].Owner != "" {
			continue
		}

		err := s.retry.Execute(ctx, func() error {
			owner, err := s.ledger.GetAccountOwner(ctx, freezes[i].Account)
			freezes[i].Owner = owner
			return err
		})
		if err != nil {
			logger.Warn(ctx, "could not resolve frozen account owner",
				"account", freezes[i].Account,
				"signature", freezes[i].Signature,
				"error", err,
			)
		}
	}
}
