// Package watchset runs the audit: it syncs every watched address, classifies
// the transfers found, grows the greylist with unauthorized recipients and keeps
// going, pass after pass, until a pass discovers nobody new. Progress is
// persisted only when a run converges.
package watchset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/sigsync"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/transfer"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gabapcia/mintwatch/internal/watchset"

var (
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrPersistState wraps failures to save the sync state. The run's progress is
	// lost and the next run starts from the previously saved cursors.
	ErrPersistState = errors.New("persist sync state")
)

// Ledger is the part of the ledger facade the loop needs.
type Ledger interface {
	sigsync.SignatureLister
	GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)
	GetAccountOwner(ctx context.Context, tokenAccount string) (string, error)
}

// AllowList supplies the static policy. It is read once per run.
type AllowList interface {
	Load(ctx context.Context) (types.Set[string], error)
}

// Locker excludes concurrent runs across processes sharing the same state.
type Locker interface {
	// Acquire returns ErrRunInProgress when another process holds the lock.
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

// ViolationHandler reacts to the violations classified in one pass.
type ViolationHandler func(ctx context.Context, violations []transfer.Event)

// Service runs audit passes.
type Service interface {
	Run(ctx context.Context) (Summary, error)
}

// Summary describes a finished run.
type Summary struct {
	RunID           string        `json:"run_id"`
	Passes          int           `json:"passes"`
	Scanned         int           `json:"scanned"`
	Skipped         int           `json:"skipped"`
	Failed          []string      `json:"failed,omitempty"`
	Transactions    int           `json:"transactions"`
	Transfers       int           `json:"transfers"`
	Violations      int           `json:"violations"`
	Freezes         int           `json:"freezes"`
	Appended        int           `json:"appended"`
	NewlyGreylisted []string      `json:"newly_greylisted,omitempty"`
	Greylist        []string      `json:"greylist"`
	Duration        time.Duration `json:"duration_ns"`
}

type service struct {
	mu sync.Mutex

	ledger    Ledger
	fetcher   *sigsync.Fetcher
	analyzer  transfer.Analyzer
	store     syncstate.Store
	log       eventlog.Log
	allowList AllowList

	mint  string
	payer string

	retry            retry.Retry
	maxConcurrency   int
	skipEpsilon      decimal.Decimal
	violationHandler ViolationHandler
	locker           Locker
	lockTTL          time.Duration

	tracer  trace.Tracer
	metrics *metrics
}

var _ Service = (*service)(nil)

// Params are the run parameters that identify what is audited.
type Params struct {
	Mint     string
	Decimals uint8
	Payer    string
}

type config struct {
	retry            retry.Retry
	maxConcurrency   int
	pageSize         int
	skipEpsilon      decimal.Decimal
	violationHandler ViolationHandler
	locker           Locker
	lockTTL          time.Duration
}

// Option configures the service.
type Option func(*config)

// New builds the expansion loop.
//
// Defaults: ledger calls retried 3 times with exponential backoff, 4 addresses
// synced concurrently, full signature pages, skip epsilon 1e-9, violations only
// logged.
func New(l Ledger, store syncstate.Store, log eventlog.Log, allowList AllowList, p Params, opts ...Option) *service {
	cfg := config{
		retry:            retry.New(retry.WithRetryIf(ledger.IsRetryable)),
		maxConcurrency:   4,
		pageSize:         ledger.MaxSignaturesPerPage,
		skipEpsilon:      transfer.Tolerance,
		violationHandler: defaultOnViolations,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		ledger:           l,
		fetcher:          sigsync.New(l, sigsync.WithRetry(cfg.retry), sigsync.WithPageSize(cfg.pageSize)),
		analyzer:         transfer.NewAnalyzer(p.Mint, p.Decimals),
		store:            store,
		log:              log,
		allowList:        allowList,
		mint:             p.Mint,
		payer:            p.Payer,
		retry:            cfg.retry,
		maxConcurrency:   cfg.maxConcurrency,
		skipEpsilon:      cfg.skipEpsilon,
		violationHandler: cfg.violationHandler,
		locker:           cfg.locker,
		lockTTL:          cfg.lockTTL,
		tracer:           otel.Tracer(instrumentationName),
		metrics:          newMetrics(otel.Meter(instrumentationName)),
	}
}

func defaultOnViolations(ctx context.Context, violations []transfer.Event) {
	for _, v := range violations {
		logger.Warn(ctx, "unauthorized transfer",
			"transfer.signature", v.Signature,
			"transfer.sender", v.Sender.String(),
			"transfer.recipient", v.Recipient,
			"transfer.amount", v.Amount.String(),
		)
	}
}

// WithRetry sets the retry policy applied to every ledger call.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

// WithMaxConcurrency bounds how many addresses are synced at once.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.maxConcurrency = max(n, 1)
	}
}

// WithPageSize sets the signature page size.
func WithPageSize(n int) Option {
	return func(c *config) {
		c.pageSize = n
	}
}

// WithSkipEpsilon sets the balance difference below which a greylisted address
// is considered unchanged by the sync-skip check.
func WithSkipEpsilon(eps decimal.Decimal) Option {
	return func(c *config) {
		c.skipEpsilon = eps
	}
}

// WithViolationHandler replaces the default handler, which only logs.
func WithViolationHandler(h ViolationHandler) Option {
	return func(c *config) {
		c.violationHandler = h
	}
}

// WithLocker guards each run with l. ttl bounds how long a crashed process keeps
// others out.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(c *config) {
		c.locker, c.lockTTL = l, ttl
	}
}
