package watchset

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/transfer"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ordered flattens the successful results into one chronological stream.
// Transactions seen from several addresses appear once. Ties on slot keep
// address order, then per-address signature order.
func ordered(results []addressResult, analyzed types.Set[string]) []analyzedTx {
	slices.SortFunc(results, func(a, b addressResult) int { return cmp.Compare(a.address, b.address) })

	seen := types.NewSet[string]()
	var txs []analyzedTx
	for _, r := range results {
		if r.err != nil {
			continue
		}
		for _, tx := range r.txs {
			if analyzed.Has(tx.info.Signature) || seen.Add(tx.info.Signature) == 0 {
				continue
			}
			txs = append(txs, tx)
		}
	}

	slices.SortStableFunc(txs, func(a, b analyzedTx) int { return cmp.Compare(a.info.Slot, b.info.Slot) })
	return txs
}

// apply is the single writer of a pass. It advances cursors of synced addresses,
// classifies every transfer against the watch set as it grows, appends the
// pass records to the event log and returns the addresses greylisted by this
// pass and the violations found.
func (s *service) apply(ctx context.Context, rs *runState, state syncstate.State, allow types.Set[string], results []addressResult) ([]string, []transfer.Event, error) {
	for _, r := range results {
		if r.err != nil {
			rs.failed.Add(r.address)
			s.metrics.syncFailures.Add(ctx, 1)
			logger.Warn(ctx, "address sync failed, cursor left untouched", "address", r.address, "error", r.err)
			continue
		}

		rs.synced.Add(r.address)
		if r.skipped {
			rs.skipped++
		}
		if r.hasBalance {
			rs.balances[r.address] = r.balance
		}

		c := state.Cursor(r.address)
		c.LastSignature = r.newest
		state.SetCursor(r.address, c)
	}

	var (
		records    []eventlog.Record
		newly      []string
		violations []transfer.Event
	)

	for _, tx := range ordered(results, rs.analyzed) {
		rs.analyzed.Add(tx.info.Signature)
		rs.transactions++
		s.metrics.transactions.Add(ctx, 1)

		for _, ev := range tx.result.Transfers {
			if s.authorized(ev.Recipient, allow, state) {
				ev.Classification = transfer.Authorized
			} else {
				ev.Classification = transfer.Violation
				state.AddGreylist(ev.Recipient)
				state.ResetCursor(ev.Recipient)
				newly = append(newly, ev.Recipient)
				violations = append(violations, ev)
			}
			records = append(records, eventlog.FromTransfer(ev))
		}

		for _, fz := range tx.result.Freezes {
			records = append(records, eventlog.FromFreeze(fz, eventlog.InitiatorObserved))
			s.metrics.freezes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(fz.Action))))
		}
		rs.transfers += len(tx.result.Transfers)
		rs.freezes += len(tx.result.Freezes)
	}

	rs.violations += len(violations)
	rs.newlyGreylisted = append(rs.newlyGreylisted, newly...)
	s.metrics.violations.Add(ctx, int64(len(violations)))

	if len(records) > 0 {
		n, err := s.log.Append(ctx, records...)
		if err != nil {
			return nil, nil, fmt.Errorf("append %d records: %w", len(records), err)
		}
		rs.appended += n
	}

	return newly, violations, nil
}

// authorized reports whether address belongs to the watch set as it stands.
func (s *service) authorized(address string, allow types.Set[string], state syncstate.State) bool {
	return address == s.payer || allow.Has(address) || state.Greylist.Has(address)
}
