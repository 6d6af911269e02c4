package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/gabapcia/mintwatch/internal/allowlist"
	"github.com/gabapcia/mintwatch/internal/config"
	"github.com/gabapcia/mintwatch/internal/eventlog"
	"github.com/gabapcia/mintwatch/internal/handlers/cli"
	"github.com/gabapcia/mintwatch/internal/infra/ledger/solana"
	"github.com/gabapcia/mintwatch/internal/infra/storage/file"
	"github.com/gabapcia/mintwatch/internal/infra/storage/postgres"
	"github.com/gabapcia/mintwatch/internal/infra/storage/redis"
	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/mintwatch/internal/pkg/telemetry"
	"github.com/gabapcia/mintwatch/internal/pkg/transport/http"
	"github.com/gabapcia/mintwatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/mintwatch/internal/reconcile"
	"github.com/gabapcia/mintwatch/internal/sanction"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/watchset"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "mintwatch:", err)
		os.Exit(1)
	}
}

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) close() error {
	var errs []error
	for _, fn := range slices.Backward(c) {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

func run(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.TelemetryEnabled {
		shutdown, initErr := telemetry.Init(ctx, cfg.ServiceName)
		if initErr != nil {
			return fmt.Errorf("init telemetry: %w", initErr)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			err = errors.Join(err, shutdown(ctx))
		}()
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	var cs closers
	defer func() { err = errors.Join(err, cs.close()) }()

	conn := jsonrpc.NewClient(http.NewClient(http.WithTimeout(cfg.RPCTimeout)), cfg.RPCURL)

	ledgerOpts := []solana.Option{solana.WithCommitment(cfg.Commitment)}
	if cfg.AuthoritySecret != "" {
		authority, err := solana.ParseAuthority(cfg.AuthoritySecret)
		if err != nil {
			return err
		}
		ledgerOpts = append(ledgerOpts, solana.WithAuthority(authority))
	}
	ledgerClient := solana.NewClient(conn, ledgerOpts...)

	log, err := openEventLog(ctx, cfg, &cs)
	if err != nil {
		return err
	}

	runOpts := []watchset.Option{
		watchset.WithMaxConcurrency(cfg.MaxConcurrency),
		watchset.WithPageSize(cfg.PageSize),
	}

	var store syncstate.Store
	switch cfg.StateBackend {
	case config.BackendRedis:
		rdb, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB, cfg.Mint)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		cs = append(cs, rdb.Close)

		store = rdb
		if cfg.RunLockTTL > 0 {
			runOpts = append(runOpts, watchset.WithLocker(rdb, cfg.RunLockTTL))
		}
	default:
		store = file.NewStateStore(cfg.StatePath)
	}

	policy := sanction.Policy{FreezeRecipient: cfg.FreezeRecipient, FreezeSender: cfg.FreezeSender}
	if policy.Enabled() {
		sanctions := sanction.New(ledgerClient, log, cfg.Mint, policy, retry.New(retry.WithRetryIf(ledger.IsRetryable)))
		runOpts = append(runOpts, watchset.WithViolationHandler(sanctions.HandleViolations))
	}

	allow := allowlist.File{Path: cfg.AllowlistPath}
	runs := watchset.New(ledgerClient, store, log, allow, watchset.Params{
		Mint:     cfg.Mint,
		Decimals: cfg.Decimals,
		Payer:    cfg.Payer,
	}, runOpts...)

	validator := reconcile.New(ledgerClient, log, cfg.Mint, cfg.Payer,
		reconcile.WithTolerance(cfg.Tolerance),
		reconcile.WithMaxConcurrency(cfg.MaxConcurrency),
	)

	return cli.Run(ctx, cli.App{
		Runs:         runs,
		Validator:    validator,
		State:        store,
		AllowList:    allow,
		Log:          log,
		Payer:        cfg.Payer,
		Interval:     cfg.Interval,
		ErrorBackoff: cfg.ErrorBackoff,
	})
}

func openEventLog(ctx context.Context, cfg config.Config, cs *closers) (eventlog.Log, error) {
	if cfg.EventLogBackend == config.BackendPostgres {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		*cs = append(*cs, func() error { pool.Close(); return nil })

		if err := pool.Migrate(ctx); err != nil {
			return nil, err
		}
		return postgres.NewEventLog(pool, cfg.Mint), nil
	}

	log, err := file.OpenEventLog(cfg.EventLogPath)
	if err != nil {
		return nil, err
	}
	*cs = append(*cs, log.Close)
	return log, nil
}
