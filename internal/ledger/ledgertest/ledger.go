// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"

	"github.com/shopspring/decimal"
)

// FreezeCall records one SubmitFreeze invocation.
type FreezeCall struct {
	Owner  string
	Mint   string
	Action ledger.FreezeAction
}

type failure struct {
	remaining int
	err       error
}

// Ledger is a scriptable in-memory ledger. The zero value is not usable; call New.
type Ledger struct {
	mu sync.Mutex

	history  map[string][]ledger.SignatureInfo // oldest first
	txs      map[string]ledger.Transaction
	balances map[string]decimal.Decimal
	owners   map[string]string
	freezes  []FreezeCall
	failures map[string]*failure
	partial  map[string]partialFreeze
	calls    map[string]int
}

type partialFreeze struct {
	signatures []string
	err        error
}

var _ ledger.Client = (*Ledger)(nil)

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		history:  make(map[string][]ledger.SignatureInfo),
		txs:      make(map[string]ledger.Transaction),
		partial:  make(map[string]partialFreeze),
		balances: make(map[string]decimal.Decimal),
		owners:   make(map[string]string),
		failures: make(map[string]*failure),
		calls:    make(map[string]int),
	}
}

// AddTransaction stores tx and appends its signature to the history of every
// address in involved.
func (l *Ledger) AddTransaction(tx ledger.Transaction, involved ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.txs[tx.Signature] = tx
	for _, addr := range involved {
		l.history[addr] = append(l.history[addr], ledger.SignatureInfo{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			BlockTime: tx.BlockTime,
			Failed:    !tx.Success,
		})
	}
}

// AddSignatures appends bare signatures (without transactions) to address.
func (l *Ledger) AddSignatures(address string, sigs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range sigs {
		l.history[address] = append(l.history[address], ledger.SignatureInfo{Signature: s})
	}
}

// SetBalance sets the token balance reported for owner.
func (l *Ledger) SetBalance(owner string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[owner] = amount
}

// SetAccountOwner sets the owner reported for a token account.
func (l *Ledger) SetAccountOwner(account, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.owners[account] = owner
}

// FailNext makes the next n calls of method for key return err. key is the
// address, signature or token account the method is called with.
func (l *Ledger) FailNext(method, key string, n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[method+":"+key] = &failure{remaining: n, err: err}
}

// PartialFreeze makes the next SubmitFreeze for owner accept signatures and
// then fail with err, as when only some of the owner's accounts were frozen.
func (l *Ledger) PartialFreeze(owner string, signatures []string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.partial[owner] = partialFreeze{signatures: signatures, err: err}
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls[method]
}

// Freezes returns the recorded SubmitFreeze calls.
func (l *Ledger) Freezes() []FreezeCall {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.freezes)
}

func (l *Ledger) enter(method, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[method]++
	if f, ok := l.failures[method+":"+key]; ok && f.remaining > 0 {
		f.remaining--
		return f.err
	}
	return nil
}

func (l *Ledger) ListSignatures(_ context.Context, address, before string, limit int) ([]ledger.SignatureInfo, error) {
	if err := l.enter("ListSignatures", address); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	newestFirst := slices.Clone(l.history[address])
	slices.Reverse(newestFirst)

	start := 0
	if before != "" {
		idx := slices.IndexFunc(newestFirst, func(s ledger.SignatureInfo) bool { return s.Signature == before })
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown before signature %q", ledger.ErrInvalidRequest, before)
		}
		start = idx + 1
	}

	end := min(start+limit, len(newestFirst))
	return slices.Clone(newestFirst[start:end]), nil
}

func (l *Ledger) GetTransaction(_ context.Context, signature string) (ledger.Transaction, error) {
	if err := l.enter("GetTransaction", signature); err != nil {
		return ledger.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.txs[signature]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func (l *Ledger) GetTokenBalance(_ context.Context, owner, _ string) (decimal.Decimal, error) {
	if err := l.enter("GetTokenBalance", owner); err != nil {
		return decimal.Zero, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[owner], nil
}

func (l *Ledger) GetAccountOwner(_ context.Context, tokenAccount string) (string, error) {
	if err := l.enter("GetAccountOwner", tokenAccount); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[tokenAccount]
	if !ok {
		return "", fmt.Errorf("%w: account %s not found", ledger.ErrInvalidRequest, tokenAccount)
	}
	return owner, nil
}

func (l *Ledger) SubmitFreeze(_ context.Context, owner, mint string, action ledger.FreezeAction) ([]string, error) {
	if err := l.enter("SubmitFreeze", owner); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.freezes = append(l.freezes, FreezeCall{Owner: owner, Mint: mint, Action: action})
	if p, ok := l.partial[owner]; ok {
		delete(l.partial, owner)
		return p.signatures, p.err
	}
	return []string{fmt.Sprintf("%s-%s-%d", action, owner, len(l.freezes))}, nil
}

// TransferTx builds a successful transaction moving raw base units of mint from
// one owner to another. Each owner holds a single token account named
// "<owner>-ata".
func TransferTx(signature string, slot uint64, mint, from, to string, raw int64) ledger.Transaction {
	amount := decimal.NewFromInt(raw)

	return ledger.Transaction{
		Signature: signature,
		Slot:      slot,
		BlockTime: time.Unix(1_700_000_000+int64(slot), 0).UTC(),
		Success:   true,
		PreTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Account: from + "-ata", Mint: mint, Owner: from, RawAmount: amount},
			{AccountIndex: 2, Account: to + "-ata", Mint: mint, Owner: to, RawAmount: decimal.Zero},
		},
		PostTokenBalances: []ledger.TokenBalance{
			{AccountIndex: 1, Account: from + "-ata", Mint: mint, Owner: from, RawAmount: decimal.Zero},
			{AccountIndex: 2, Account: to + "-ata", Mint: mint, Owner: to, RawAmount: amount},
		},
	}
}
