// Package transfer turns transaction snapshots into logical token movements.
//
// The Analyzer is a pure function of its input: the same transaction always
// yields the same events, in the same order, so replays are idempotent.
package transfer

import (
	"slices"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest magnitude difference, in token units, under which a
// single debit and a single credit are treated as the same movement.
var Tolerance = decimal.New(1, -9)

// Classification is the policy verdict attached to a transfer.
type Classification string

const (
	Unclassified Classification = ""
	Authorized   Classification = "authorized"
	Violation    Classification = "violation"
)

// Event is one token inflow to a single recipient.
type Event struct {
	Signature      string          `json:"signature"`
	Slot           uint64          `json:"slot"`
	Timestamp      time.Time       `json:"timestamp"`
	Sender         Sender          `json:"sender"`
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Classification Classification  `json:"classification,omitempty"`

	// NeedsReview marks transfers whose topology the analyzer cannot attribute
	// precisely (several debited owners).
	NeedsReview bool `json:"needs_review,omitempty"`
}

// FreezeAction is the outcome of a freeze or thaw instruction.
type FreezeAction string

const (
	Frozen FreezeAction = "frozen"
	Thawed FreezeAction = "thawed"
)

// FreezeEvent is a freeze or thaw of a token account of the monitored mint.
type FreezeEvent struct {
	Signature string       `json:"signature"`
	Slot      uint64       `json:"slot"`
	Timestamp time.Time    `json:"timestamp"`
	Account   string       `json:"account"`
	Owner     string       `json:"owner,omitempty"`
	Action    FreezeAction `json:"action"`
}

// Result groups what one transaction yielded.
type Result struct {
	Transfers []Event
	Freezes   []FreezeEvent
}

// Analyzer derives events for one mint.
type Analyzer struct {
	mint     string
	decimals int32
}

// NewAnalyzer returns an Analyzer for mint whose base units carry decimals
// fractional digits.
func NewAnalyzer(mint string, decimals uint8) Analyzer {
	return Analyzer{mint: mint, decimals: int32(decimals)}
}

// Analyze derives transfers and freeze events from tx. Failed transactions
// yield nothing.
func (a Analyzer) Analyze(tx ledger.Transaction) Result {
	if !tx.Success {
		return Result{}
	}

	return Result{
		Transfers: a.transfers(tx),
		Freezes:   a.freezes(tx),
	}
}

func (a Analyzer) hasMint(balances []ledger.TokenBalance) bool {
	return slices.ContainsFunc(balances, func(b ledger.TokenBalance) bool { return b.Mint == a.mint })
}

// holder keys a balance by owner, falling back to the token account when the
// node did not report one.
func holder(b ledger.TokenBalance) string {
	if b.Owner != "" {
		return b.Owner
	}
	return b.Account
}

// deltas returns post - pre per holder in token units, only for holders whose
// balance changed.
func (a Analyzer) deltas(tx ledger.Transaction) map[string]decimal.Decimal {
	raw := make(map[string]decimal.Decimal)
	for _, b := range tx.PreTokenBalances {
		if b.Mint == a.mint {
			raw[holder(b)] = raw[holder(b)].Sub(b.RawAmount)
		}
	}
	for _, b := range tx.PostTokenBalances {
		if b.Mint == a.mint {
			raw[holder(b)] = raw[holder(b)].Add(b.RawAmount)
		}
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for owner, d := range raw {
		if !d.IsZero() {
			out[owner] = d.Shift(-a.decimals)
		}
	}
	return out
}

func (a Analyzer) transfers(tx ledger.Transaction) []Event {
	if !a.hasMint(tx.PreTokenBalances) || !a.hasMint(tx.PostTokenBalances) {
		return nil
	}

	var senders, recipients []string
	deltas := a.deltas(tx)
	for owner, d := range deltas {
		if d.IsNegative() {
			senders = append(senders, owner)
		} else {
			recipients = append(recipients, owner)
		}
	}

	if len(senders) == 0 || len(recipients) == 0 {
		return nil
	}

	slices.Sort(senders)
	slices.Sort(recipients)

	base := Event{
		Signature: tx.Signature,
		Slot:      tx.Slot,
		Timestamp: tx.BlockTime,
	}

	if len(senders) == 1 && len(recipients) == 1 {
		debit, credit := deltas[senders[0]].Abs(), deltas[recipients[0]]
		if debit.Sub(credit).Abs().LessThanOrEqual(Tolerance) {
			ev := base
			ev.Sender = ExactSender(senders[0])
			ev.Recipient = recipients[0]
			ev.Amount = credit
			return []Event{ev}
		}
	}

	sender := ExactSender(senders[0])
	if len(senders) > 1 {
		sender = AmbiguousSenders(senders...)
	}

	events := make([]Event, 0, len(recipients))
	for _, r := range recipients {
		ev := base
		ev.Sender = sender
		ev.Recipient = r
		ev.Amount = deltas[r]
		ev.NeedsReview = sender.IsAmbiguous()
		events = append(events, ev)
	}
	return events
}

func (a Analyzer) freezes(tx ledger.Transaction) []FreezeEvent {
	var events []FreezeEvent
	for _, ix := range tx.Instructions {
		var action FreezeAction
		switch ix.Kind {
		case ledger.InstructionFreezeAccount:
			action = Frozen
		case ledger.InstructionThawAccount:
			action = Thawed
		default:
			continue
		}

		if ix.Mint != a.mint {
			continue
		}

		events = append(events, FreezeEvent{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			Timestamp: tx.BlockTime,
			Account:   ix.Account,
			Owner:     ownerOf(tx, ix.Account),
			Action:    action,
		})
	}
	return events
}

// ownerOf looks the token account up in the balance snapshots. An empty result
// means the owner has to be resolved against the ledger.
func ownerOf(tx ledger.Transaction, account string) string {
	for _, balances := range [][]ledger.TokenBalance{tx.PostTokenBalances, tx.PreTokenBalances} {
		for _, b := range balances {
			if b.Account == account && b.Owner != "" {
				return b.Owner
			}
		}
	}
	return ""
}
