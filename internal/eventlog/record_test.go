package eventlog

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Unix(1_700_000_000, 0).UTC()

func transferEvent(sig, recipient string) transfer.Event {
	return transfer.Event{
		Signature:      sig,
		Slot:           3,
		Timestamp:      ts,
		Sender:         transfer.ExactSender("payer"),
		Recipient:      recipient,
		Amount:         decimal.RequireFromString("1.25"),
		Classification: transfer.Violation,
	}
}

func TestRecord(t *testing.T) {
	t.Run("transfer wire format", func(t *testing.T) {
		raw, err := json.Marshal(FromTransfer(transferEvent("s1", "A")))
		require.NoError(t, err)

		assert.JSONEq(t, `{
			"type": "transfer",
			"signature": "s1",
			"slot": 3,
			"timestamp": "2023-11-14T22:13:20Z",
			"sender": {"kind": "exact", "address": "payer"},
			"recipient": "A",
			"amount": "1.25",
			"classification": "violation"
		}`, string(raw))
	})

	t.Run("transfer survives a round trip", func(t *testing.T) {
		ev := transferEvent("s1", "A")
		raw, err := json.Marshal(FromTransfer(ev))
		require.NoError(t, err)

		var back Record
		require.NoError(t, json.Unmarshal(raw, &back))

		got, ok := back.Transfer()
		require.True(t, ok)
		assert.Equal(t, ev.Recipient, got.Recipient)
		assert.True(t, ev.Amount.Equal(got.Amount))
		assert.True(t, got.Sender.Is("payer"))
		assert.Equal(t, transfer.Violation, got.Classification)
	})

	t.Run("thaw record", func(t *testing.T) {
		r := FromFreeze(transfer.FreezeEvent{Signature: "s2", Timestamp: ts, Account: "acc", Owner: "A", Action: transfer.Thawed}, InitiatorObserved)

		assert.Equal(t, TypeThaw, r.Type)
		assert.Equal(t, "thaw:s2:acc", r.Key())
		assert.NoError(t, r.Validate())

		_, ok := r.Transfer()
		assert.False(t, ok)
	})

	t.Run("keys separate recipients of one signature", func(t *testing.T) {
		assert.NotEqual(t, FromTransfer(transferEvent("s", "A")).Key(), FromTransfer(transferEvent("s", "B")).Key())
	})

	t.Run("validation", func(t *testing.T) {
		bad := FromTransfer(transferEvent("s", "A"))
		zero := decimal.Zero
		bad.Amount = &zero
		assert.Error(t, bad.Validate())

		assert.Error(t, Record{Type: TypeFreeze, Signature: "s"}.Validate())
		assert.True(t, errors.Is(Record{Type: "mint"}.Validate(), ErrUnknownRecordType))
	})
}

func TestMemory(t *testing.T) {
	log := NewMemory()
	a := FromTransfer(transferEvent("s1", "A"))
	b := FromTransfer(transferEvent("s1", "B"))

	n, err := log.Append(t.Context(), a, b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = log.Append(t.Context(), b)
	require.NoError(t, err)
	assert.Zero(t, n)

	var seen []string
	require.NoError(t, log.Iterate(t.Context(), func(r Record) error {
		seen = append(seen, r.Recipient)
		return nil
	}))
	assert.Equal(t, []string{"A", "B"}, seen)

	stop := errors.New("stop")
	assert.ErrorIs(t, log.Iterate(t.Context(), func(Record) error { return stop }), stop)
}
