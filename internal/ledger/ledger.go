// Package ledger defines the view of the ledger the audit engine works with:
// signature listings, transaction snapshots reduced to token balances and
// token-program instructions, balance queries and freeze submission.
//
// Implementations live under internal/infra/ledger. Every operation may fail
// transiently; callers wrap them in a retry policy.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound is returned when the node has no record of a signature
	// at the requested commitment.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNoTokenAccount is returned when an owner holds no token account for a mint.
	ErrNoTokenAccount = errors.New("no token account for mint")

	// ErrInvalidRequest marks errors the node will keep returning no matter how
	// often the request is repeated.
	ErrInvalidRequest = errors.New("invalid ledger request")
)

// MaxSignaturesPerPage is the largest page the node serves for a signature listing.
const MaxSignaturesPerPage = 1000

// SignatureInfo is one entry of an address's signature history.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Failed    bool
}

// TokenBalance is a token account balance as captured before or after a
// transaction executed.
type TokenBalance struct {
	AccountIndex int
	Account      string
	Mint         string
	Owner        string

	// RawAmount is the integer amount in base units.
	RawAmount decimal.Decimal
}

// InstructionKind tags the token-program instructions the engine reacts to.
type InstructionKind int

const (
	InstructionOther InstructionKind = iota
	InstructionFreezeAccount
	InstructionThawAccount
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionFreezeAccount:
		return "freezeAccount"
	case InstructionThawAccount:
		return "thawAccount"
	default:
		return "other"
	}
}

// Instruction is a parsed instruction. Account, Mint and Authority are only set
// for freeze and thaw instructions.
type Instruction struct {
	ProgramID string
	Kind      InstructionKind
	Account   string
	Mint      string
	Authority string
}

// Transaction is the snapshot of an executed transaction needed for analysis.
type Transaction struct {
	Signature         string
	Slot              uint64
	BlockTime         time.Time
	Success           bool
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance

	// Instructions holds outer instructions followed by inner ones.
	Instructions []Instruction
}

// FreezeAction selects between freezing and thawing a token account.
type FreezeAction string

const (
	ActionFreeze FreezeAction = "freeze"
	ActionThaw   FreezeAction = "thaw"
)

// Client is the ledger facade consumed by the engine.
type Client interface {
	// ListSignatures returns up to limit signatures involving address, newest
	// first, strictly older than before when before is not empty.
	ListSignatures(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error)

	// GetTransaction returns the snapshot of signature or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, signature string) (Transaction, error)

	// GetTokenBalance returns the balance of mint held by owner across all of its
	// token accounts, in token units. Owners without accounts hold zero.
	GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)

	// GetAccountOwner returns the wallet owning tokenAccount.
	GetAccountOwner(ctx context.Context, tokenAccount string) (string, error)

	// SubmitFreeze freezes or thaws every token account of mint held by owner and
	// returns the submitted transaction signatures.
	SubmitFreeze(ctx context.Context, owner, mint string, action FreezeAction) ([]string, error)
}

// IsRetryable is the retry predicate for ledger calls.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrInvalidRequest) &&
		!errors.Is(err, ErrNoTokenAccount) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
