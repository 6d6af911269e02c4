package transfer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/ledger/ledgertest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mint  = "MintAddress"
	other = "OtherMint"
)

func bal(idx int, owner string, raw int64) ledger.TokenBalance {
	return ledger.TokenBalance{
		AccountIndex: idx,
		Account:      owner + "-ata",
		Mint:         mint,
		Owner:        owner,
		RawAmount:    decimal.NewFromInt(raw),
	}
}

func tx(pre, post []ledger.TokenBalance) ledger.Transaction {
	return ledger.Transaction{
		Signature:         "sig",
		Slot:              10,
		BlockTime:         time.Unix(1_700_000_000, 0).UTC(),
		Success:           true,
		PreTokenBalances:  pre,
		PostTokenBalances: post,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAnalyze_Transfers(t *testing.T) {
	a := NewAnalyzer(mint, 9)

	t.Run("one sender one recipient conserves the amount", func(t *testing.T) {
		res := a.Analyze(ledgertest.TransferTx("sig", 10, mint, "payer", "A", 2_500_000_000))

		require.Len(t, res.Transfers, 1)
		ev := res.Transfers[0]
		assert.Equal(t, "A", ev.Recipient)
		assert.True(t, ev.Sender.Is("payer"))
		assert.True(t, dec("2.5").Equal(ev.Amount))
		assert.False(t, ev.NeedsReview)
		assert.Equal(t, Unclassified, ev.Classification)
		assert.Empty(t, res.Freezes)
	})

	t.Run("failed transactions are skipped", func(t *testing.T) {
		in := ledgertest.TransferTx("sig", 10, mint, "payer", "A", 1)
		in.Success = false

		assert.Equal(t, Result{}, a.Analyze(in))
	})

	t.Run("mint must appear before and after", func(t *testing.T) {
		in := tx(nil, []ledger.TokenBalance{bal(1, "A", 5)})
		assert.Empty(t, a.Analyze(in).Transfers)
	})

	t.Run("other mints are ignored", func(t *testing.T) {
		in := ledgertest.TransferTx("sig", 10, other, "payer", "A", 1)
		assert.Empty(t, a.Analyze(in).Transfers)
	})

	t.Run("single sender to several recipients", func(t *testing.T) {
		in := tx(
			[]ledger.TokenBalance{bal(1, "S", 100), bal(2, "B", 0), bal(3, "A", 0)},
			[]ledger.TokenBalance{bal(1, "S", 30), bal(2, "B", 50), bal(3, "A", 20)},
		)
		res := NewAnalyzer(mint, 0).Analyze(in)

		require.Len(t, res.Transfers, 2)
		assert.Equal(t, "A", res.Transfers[0].Recipient)
		assert.True(t, dec("20").Equal(res.Transfers[0].Amount))
		assert.Equal(t, "B", res.Transfers[1].Recipient)
		assert.True(t, dec("50").Equal(res.Transfers[1].Amount))
		for _, ev := range res.Transfers {
			assert.True(t, ev.Sender.Is("S"))
			assert.False(t, ev.NeedsReview)
		}
	})

	t.Run("several senders are ambiguous and flagged", func(t *testing.T) {
		in := tx(
			[]ledger.TokenBalance{bal(1, "S2", 10), bal(2, "S1", 10), bal(3, "R", 0)},
			[]ledger.TokenBalance{bal(1, "S2", 0), bal(2, "S1", 5), bal(3, "R", 15)},
		)
		res := NewAnalyzer(mint, 0).Analyze(in)

		require.Len(t, res.Transfers, 1)
		ev := res.Transfers[0]
		assert.True(t, ev.Sender.IsAmbiguous())
		assert.Equal(t, []string{"S1", "S2"}, ev.Sender.Candidates())
		assert.True(t, ev.NeedsReview)
		assert.True(t, dec("15").Equal(ev.Amount))
	})

	t.Run("one to one with unequal magnitudes keeps the recipient side", func(t *testing.T) {
		in := tx(
			[]ledger.TokenBalance{bal(1, "S", 100), bal(2, "R", 0)},
			[]ledger.TokenBalance{bal(1, "S", 0), bal(2, "R", 99)},
		)
		res := NewAnalyzer(mint, 0).Analyze(in)

		require.Len(t, res.Transfers, 1)
		assert.True(t, dec("99").Equal(res.Transfers[0].Amount))
		assert.True(t, res.Transfers[0].Sender.Is("S"))
	})

	t.Run("mint and burn yield no transfers", func(t *testing.T) {
		minted := tx([]ledger.TokenBalance{bal(1, "A", 0)}, []ledger.TokenBalance{bal(1, "A", 10)})
		burned := tx([]ledger.TokenBalance{bal(1, "A", 10)}, []ledger.TokenBalance{bal(1, "A", 0)})

		assert.Empty(t, a.Analyze(minted).Transfers)
		assert.Empty(t, a.Analyze(burned).Transfers)
	})

	t.Run("accounts of the same owner are netted", func(t *testing.T) {
		second := bal(4, "S", 0)
		second.Account = "S-second"
		secondAfter := second
		secondAfter.RawAmount = decimal.NewFromInt(40)

		in := tx(
			[]ledger.TokenBalance{bal(1, "S", 100), second, bal(2, "R", 0)},
			[]ledger.TokenBalance{bal(1, "S", 50), secondAfter, bal(2, "R", 10)},
		)
		res := NewAnalyzer(mint, 0).Analyze(in)

		require.Len(t, res.Transfers, 1)
		assert.True(t, dec("10").Equal(res.Transfers[0].Amount))
	})

	t.Run("token account stands in for a missing owner", func(t *testing.T) {
		pre := []ledger.TokenBalance{bal(1, "S", 7), {AccountIndex: 2, Account: "orphan", Mint: mint, RawAmount: decimal.Zero}}
		post := []ledger.TokenBalance{bal(1, "S", 0), {AccountIndex: 2, Account: "orphan", Mint: mint, RawAmount: decimal.NewFromInt(7)}}

		res := NewAnalyzer(mint, 0).Analyze(tx(pre, post))
		require.Len(t, res.Transfers, 1)
		assert.Equal(t, "orphan", res.Transfers[0].Recipient)
	})
}

func TestAnalyze_Freezes(t *testing.T) {
	a := NewAnalyzer(mint, 9)

	in := tx([]ledger.TokenBalance{bal(1, "A", 5)}, []ledger.TokenBalance{bal(1, "A", 5)})
	in.Instructions = []ledger.Instruction{
		{ProgramID: "token", Kind: ledger.InstructionFreezeAccount, Account: "A-ata", Mint: mint, Authority: "payer"},
		{ProgramID: "token", Kind: ledger.InstructionThawAccount, Account: "unknown-ata", Mint: mint, Authority: "payer"},
		{ProgramID: "token", Kind: ledger.InstructionFreezeAccount, Account: "X-ata", Mint: other},
		{ProgramID: "system", Kind: ledger.InstructionOther},
	}

	res := a.Analyze(in)
	assert.Empty(t, res.Transfers)
	require.Len(t, res.Freezes, 2)

	assert.Equal(t, FreezeEvent{
		Signature: "sig", Slot: 10, Timestamp: in.BlockTime,
		Account: "A-ata", Owner: "A", Action: Frozen,
	}, res.Freezes[0])

	assert.Equal(t, "unknown-ata", res.Freezes[1].Account)
	assert.Empty(t, res.Freezes[1].Owner, "owner left for ledger lookup")
	assert.Equal(t, Thawed, res.Freezes[1].Action)
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := NewAnalyzer(mint, 6)
	in := tx(
		[]ledger.TokenBalance{bal(1, "S2", 10), bal(2, "S1", 10), bal(3, "R1", 0), bal(4, "R2", 0)},
		[]ledger.TokenBalance{bal(1, "S2", 0), bal(2, "S1", 5), bal(3, "R1", 7), bal(4, "R2", 8)},
	)

	first, err := json.Marshal(a.Analyze(in))
	require.NoError(t, err)

	for range 20 {
		again, err := json.Marshal(a.Analyze(in))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestSender_JSON(t *testing.T) {
	for _, s := range []Sender{ExactSender("payer"), AmbiguousSenders("B", "A", "B")} {
		raw, err := json.Marshal(s)
		require.NoError(t, err)

		var back Sender
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, s, back)
	}

	raw, _ := json.Marshal(AmbiguousSenders("B", "A"))
	assert.JSONEq(t, `{"kind":"ambiguous","candidates":["A","B"]}`, string(raw))

	var s Sender
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"guess"}`), &s))
}
