// Package sanction turns violations into freezes. Each offending address is
// frozen at most once per process; every submitted freeze is recorded in the
// event log with the engine as initiator.
package sanction

import (
	"context"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/transfer"
)

// Freezer submits freeze transactions.
type Freezer interface {
	SubmitFreeze(ctx context.Context, owner, mint string, action ledger.FreezeAction) ([]string, error)
}

// Policy selects who gets frozen on a violation.
type Policy struct {
	FreezeRecipient bool
	// FreezeSender only applies to exactly attributed senders.
	FreezeSender bool
}

// Enabled reports whether the policy can freeze anyone.
func (p Policy) Enabled() bool {
	return p.FreezeRecipient || p.FreezeSender
}

// Service applies a Policy.
type Service struct {
	freezer Freezer
	log     eventlog.Log
	mint    string
	policy  Policy
	retry   retry.Retry
	now     func() time.Time

	mu     sync.Mutex
	frozen types.Set[string]
}

// New returns a Service freezing accounts of mint.
func New(freezer Freezer, log eventlog.Log, mint string, policy Policy, r retry.Retry) *Service {
	return &Service{
		freezer: freezer,
		log:     log,
		mint:    mint,
		policy:  policy,
		retry:   r,
		now:     time.Now,
		frozen:  types.NewSet[string](),
	}
}

// targets lists the addresses to freeze for violations, in order of first
// appearance, excluding the ones already frozen.
func (s *Service) targets(violations []transfer.Event) []string {
	var out []string
	seen := types.NewSet[string]()
	add := func(addr string) {
		if addr == "" || s.frozen.Has(addr) || seen.Add(addr) == 0 {
			return
		}
		out = append(out, addr)
	}

	for _, v := range violations {
		if s.policy.FreezeRecipient {
			add(v.Recipient)
		}
		if s.policy.FreezeSender {
			if sender, ok := v.Sender.Exact(); ok {
				add(sender)
			}
		}
	}
	return out
}

// HandleViolations freezes the addresses selected by the policy. Failures are
// logged and the address stays eligible for a later attempt.
func (s *Service) HandleViolations(ctx context.Context, violations []transfer.Event) {
	if !s.policy.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addr := range s.targets(violations) {
		ctx := logger.Derive(ctx, "freeze.owner", addr)

		var sigs []string
		err := s.retry.Execute(ctx, func() error {
			accepted, err := s.freezer.SubmitFreeze(ctx, addr, s.mint, ledger.ActionFreeze)
			sigs = append(sigs, accepted...)
			return err
		})
		s.record(ctx, addr, sigs)
		if err != nil {
			logger.Error(ctx, "freeze submission failed", "error", err, "signatures", sigs)
			continue
		}

		s.frozen.Add(addr)
		logger.Warn(ctx, "holder frozen", "signatures", sigs)
	}
}

// record appends an engine freeze record per accepted signature, including the
// ones of a submission that failed part way.
func (s *Service) record(ctx context.Context, addr string, sigs []string) {
	if len(sigs) == 0 {
		return
	}

	records := make([]eventlog.Record, 0, len(sigs))
	for _, sig := range sigs {
		records = append(records, eventlog.FromFreeze(transfer.FreezeEvent{
			Signature: sig,
			Timestamp: s.now().UTC(),
			Account:   addr,
			Owner:     addr,
			Action:    transfer.Frozen,
		}, eventlog.InitiatorEngine))
	}
	if _, err := s.log.Append(ctx, records...); err != nil {
		logger.Error(ctx, "could not record submitted freeze", "error", err)
	}
}
