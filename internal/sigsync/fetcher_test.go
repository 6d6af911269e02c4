package sigsync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/ledger/ledgertest"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "wallet"

func fastRetry() retry.Retry {
	return retry.New(
		retry.WithDelay(time.Millisecond),
		retry.WithMaxDelay(time.Millisecond),
		retry.WithRetryIf(ledger.IsRetryable),
	)
}

func sigs(from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("sig-%05d", i))
	}
	return out
}

func names(infos []ledger.SignatureInfo) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Signature)
	}
	return out
}

func TestFetchNewSignatures(t *testing.T) {
	t.Run("never synced address returns full history oldest first", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 2500)...)

		got, newest, err := New(l, WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "")
		require.NoError(t, err)

		assert.Equal(t, sigs(0, 2500), names(got))
		assert.Equal(t, "sig-02499", newest)
		assert.Equal(t, 3, l.Calls("ListSignatures"))
	})

	t.Run("stops at the last known signature", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 10)...)

		got, newest, err := New(l, WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "sig-00006")
		require.NoError(t, err)

		assert.Equal(t, []string{"sig-00007", "sig-00008", "sig-00009"}, names(got))
		assert.Equal(t, "sig-00009", newest)
		assert.Equal(t, 1, l.Calls("ListSignatures"))
	})

	t.Run("no new activity keeps the cursor", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 5)...)

		got, newest, err := New(l, WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "sig-00004")
		require.NoError(t, err)

		assert.Empty(t, got)
		assert.Equal(t, "sig-00004", newest)
	})

	t.Run("address without history", func(t *testing.T) {
		got, newest, err := New(ledgertest.New(), WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "")
		require.NoError(t, err)

		assert.Empty(t, got)
		assert.Empty(t, newest)
	})

	t.Run("page boundary landing exactly on the cursor", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 20)...)

		got, _, err := New(l, WithPageSize(5), WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "sig-00014")
		require.NoError(t, err)

		assert.Equal(t, sigs(15, 20), names(got))
		assert.Equal(t, 2, l.Calls("ListSignatures"))
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 3)...)
		l.FailNext("ListSignatures", addr, 2, errors.New("429 too many requests"))

		got, _, err := New(l, WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "")
		require.NoError(t, err)
		assert.Equal(t, sigs(0, 3), names(got))
	})

	t.Run("exhausted retries return no signatures and the old cursor", func(t *testing.T) {
		l := ledgertest.New()
		l.AddSignatures(addr, sigs(0, 3)...)
		boom := errors.New("connection reset")
		l.FailNext("ListSignatures", addr, 10, boom)

		got, newest, err := New(l, WithRetry(fastRetry())).FetchNewSignatures(t.Context(), addr, "sig-00000")
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
		assert.Equal(t, "sig-00000", newest)
	})
}

// Fetching across several runs, with the cursor stale by more than a page, must
// reproduce the complete history exactly once.
func TestFetchNewSignatures_NoGapAcrossRuns(t *testing.T) {
	l := ledgertest.New()
	f := New(l, WithRetry(fastRetry()))

	var (
		all    []string
		cursor string
	)
	for _, batch := range [][2]int{{0, 3}, {3, 1503}, {1503, 1504}, {1504, 1504}, {1504, 3700}} {
		l.AddSignatures(addr, sigs(batch[0], batch[1])...)

		got, newest, err := f.FetchNewSignatures(t.Context(), addr, cursor)
		require.NoError(t, err)

		all = append(all, names(got)...)
		cursor = newest
	}

	assert.Equal(t, sigs(0, 3700), all)
	assert.Equal(t, "sig-03699", cursor)
}

func TestLatestSignature(t *testing.T) {
	l := ledgertest.New()
	f := New(l, WithRetry(fastRetry()))

	latest, err := f.LatestSignature(t.Context(), addr)
	require.NoError(t, err)
	assert.Empty(t, latest)

	l.AddSignatures(addr, sigs(0, 4)...)
	latest, err = f.LatestSignature(t.Context(), addr)
	require.NoError(t, err)
	assert.Equal(t, "sig-00003", latest)
}

func TestWithPageSize(t *testing.T) {
	assert.Equal(t, ledger.MaxSignaturesPerPage, New(nil, WithPageSize(5000)).pageSize)
	assert.Equal(t, 1, New(nil, WithPageSize(0)).pageSize)
}
