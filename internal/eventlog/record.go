// Package eventlog defines the append-only audit trail: every classified
// transfer and every freeze or thaw, in the order the engine observed them.
// Records carry a natural key so that replaying a transaction never duplicates
// a fact already written.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
)

// ErrUnknownRecordType is returned when decoding a record of an unknown type.
var ErrUnknownRecordType = errors.New("unknown record type")

// Type tags a Record.
type Type string

const (
	TypeTransfer Type = "transfer"
	TypeFreeze   Type = "freeze"
	TypeThaw     Type = "thaw"
)

// Initiator tells who issued a freeze or thaw.
type Initiator string

const (
	// InitiatorObserved marks instructions found while scanning the ledger.
	InitiatorObserved Initiator = "observed"

	// InitiatorEngine marks freezes submitted by this system's sanction policy.
	InitiatorEngine Initiator = "engine"
)

// Record is one entry of the log. Transfer fields and freeze fields are
// mutually exclusive depending on Type.
type Record struct {
	Type      Type      `json:"type"`
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Sender         *transfer.Sender        `json:"sender,omitempty"`
	Recipient      string                  `json:"recipient,omitempty"`
	Amount         *decimal.Decimal        `json:"amount,omitempty"`
	Classification transfer.Classification `json:"classification,omitempty"`
	NeedsReview    bool                    `json:"needs_review,omitempty"`

	Account   string    `json:"account,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Initiator Initiator `json:"initiator,omitempty"`
}

// FromTransfer builds a transfer record.
func FromTransfer(ev transfer.Event) Record {
	sender, amount := ev.Sender, ev.Amount

	return Record{
		Type:           TypeTransfer,
		Signature:      ev.Signature,
		Slot:           ev.Slot,
		Timestamp:      ev.Timestamp,
		Sender:         &sender,
		Recipient:      ev.Recipient,
		Amount:         &amount,
		Classification: ev.Classification,
		NeedsReview:    ev.NeedsReview,
	}
}

// FromFreeze builds a freeze or thaw record.
func FromFreeze(ev transfer.FreezeEvent, initiator Initiator) Record {
	t := TypeFreeze
	if ev.Action == transfer.Thawed {
		t = TypeThaw
	}

	return Record{
		Type:      t,
		Signature: ev.Signature,
		Slot:      ev.Slot,
		Timestamp: ev.Timestamp,
		Account:   ev.Account,
		Owner:     ev.Owner,
		Initiator: initiator,
	}
}

// Key identifies the fact a record states: one transfer per signature and
// recipient, one freeze or thaw per signature and token account.
func (r Record) Key() string {
	if r.Type == TypeTransfer {
		return fmt.Sprintf("%s:%s:%s", r.Type, r.Signature, r.Recipient)
	}
	return fmt.Sprintf("%s:%s:%s", r.Type, r.Signature, r.Account)
}

// Transfer converts a transfer record back into an event.
func (r Record) Transfer() (transfer.Event, bool) {
	if r.Type != TypeTransfer || r.Sender == nil || r.Amount == nil {
		return transfer.Event{}, false
	}

	return transfer.Event{
		Signature:      r.Signature,
		Slot:           r.Slot,
		Timestamp:      r.Timestamp,
		Sender:         *r.Sender,
		Recipient:      r.Recipient,
		Amount:         *r.Amount,
		Classification: r.Classification,
		NeedsReview:    r.NeedsReview,
	}, true
}

// Validate checks the fields required by the record type.
func (r Record) Validate() error {
	switch r.Type {
	case TypeTransfer:
		if r.Sender == nil || r.Amount == nil || r.Recipient == "" || !r.Amount.IsPositive() {
			return fmt.Errorf("transfer record %s: missing sender, recipient or positive amount", r.Signature)
		}
	case TypeFreeze, TypeThaw:
		if r.Account == "" {
			return fmt.Errorf("%s record %s: missing account", r.Type, r.Signature)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, r.Type)
	}
	return nil
}

// Log is an append-only record store.
type Log interface {
	// Append writes records in order, skipping those whose Key is already
	// present, and returns how many were written.
	Append(ctx context.Context, records ...Record) (int, error)

	// Iterate calls fn for every record in append order. Iteration stops at the
	// first error fn returns.
	Iterate(ctx context.Context, fn func(Record) error) error
}
