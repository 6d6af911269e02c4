package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/ledger/ledgertest"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payer = "PAYER"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sent(t *testing.T, log eventlog.Log, sig string, sender transfer.Sender, recipient, amount string) {
	t.Helper()

	_, err := log.Append(t.Context(), eventlog.FromTransfer(transfer.Event{
		Signature: sig,
		Sender:    sender,
		Recipient: recipient,
		Amount:    d(amount),
	}))
	require.NoError(t, err)
}

func newValidator(l *ledgertest.Ledger, log eventlog.Log) *Validator {
	return New(l, log, "MINT", payer, WithRetry(retry.New(
		retry.WithAttempts(2),
		retry.WithDelay(time.Millisecond),
		retry.WithRetryIf(ledger.IsRetryable),
	)))
}

func TestValidate(t *testing.T) {
	t.Run("distribution matches circulation", func(t *testing.T) {
		l, log := ledgertest.New(), eventlog.NewMemory()
		sent(t, log, "s1", transfer.ExactSender(payer), "A", "100")
		sent(t, log, "s2", transfer.ExactSender(payer), "B", "50.5")
		sent(t, log, "s3", transfer.ExactSender("A"), "B", "30")
		sent(t, log, "s4", transfer.AmbiguousSenders(payer, "A"), "C", "7")

		l.SetBalance(payer, d("849.5"))
		l.SetBalance("A", d("70"))
		l.SetBalance("B", d("80.5"))

		report, err := newValidator(l, log).Validate(t.Context(), types.NewSet("A", "B"))
		require.NoError(t, err)

		assert.Equal(t, StatusOK, report.Status)
		assert.True(t, d("150.5").Equal(report.Distributed))
		assert.True(t, d("1000").Equal(report.WatchedSupply))
		assert.True(t, d("150.5").Equal(report.Circulation))
		assert.True(t, report.Magnitude.IsZero())
		assert.Equal(t, 2, report.Holders)
		assert.Nil(t, report.Unreachable)
	})

	t.Run("payer in the watch set is counted once", func(t *testing.T) {
		l, log := ledgertest.New(), eventlog.NewMemory()
		sent(t, log, "s1", transfer.ExactSender(payer), "A", "10")
		l.SetBalance(payer, d("90"))
		l.SetBalance("A", d("10"))

		report, err := newValidator(l, log).Validate(t.Context(), types.NewSet(payer, "A"))
		require.NoError(t, err)

		assert.True(t, d("100").Equal(report.WatchedSupply))
		assert.Equal(t, StatusOK, report.Status)
	})

	t.Run("tolerance boundary", func(t *testing.T) {
		cases := []struct {
			held string
			want Status
		}{
			{"10.0001", StatusOK},
			{"9.9999", StatusOK},
			{"10.00011", StatusMismatch},
			{"9.9998", StatusMismatch},
		}

		for _, tc := range cases {
			t.Run(tc.held, func(t *testing.T) {
				l, log := ledgertest.New(), eventlog.NewMemory()
				sent(t, log, "s1", transfer.ExactSender(payer), "A", "10")
				l.SetBalance("A", d(tc.held))

				report, err := newValidator(l, log).Validate(t.Context(), types.NewSet("A"))
				require.NoError(t, err)
				assert.Equal(t, tc.want, report.Status)
			})
		}
	})

	t.Run("leak to an unwatched address is a mismatch", func(t *testing.T) {
		l, log := ledgertest.New(), eventlog.NewMemory()
		sent(t, log, "s1", transfer.ExactSender(payer), "A", "10")
		l.SetBalance("A", d("4"))
		l.SetBalance("OUTSIDER", d("6"))

		report, err := newValidator(l, log).Validate(t.Context(), types.NewSet("A"))
		require.NoError(t, err)

		assert.Equal(t, StatusMismatch, report.Status)
		assert.True(t, d("6").Equal(report.Magnitude))
	})

	t.Run("unreachable balances are listed", func(t *testing.T) {
		l, log := ledgertest.New(), eventlog.NewMemory()
		l.FailNext("GetTokenBalance", "A", 5, errors.New("connection reset"))

		report, err := newValidator(l, log).Validate(t.Context(), types.NewSet("A", "B"))
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, report.Unreachable)
	})

	t.Run("canceled context is an error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := newValidator(ledgertest.New(), eventlog.NewMemory()).Validate(ctx, types.NewSet("A"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
