// Package config loads the process configuration from MINTWATCH_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/validator"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Prefix is prepended to every variable name.
const Prefix = "MINTWATCH"

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	RPCURL     string `envconfig:"RPC_URL" required:"true" validate:"required,url"`
	Commitment string `default:"finalized" validate:"oneof=processed confirmed finalized"`

	Mint     string `required:"true" validate:"required,solana_address"`
	Decimals uint8  `required:"true"`
	Payer    string `required:"true" validate:"required,solana_address"`

	// AuthoritySecret is the base58 keypair of the mint freeze authority. Only
	// needed when a freeze toggle is on.
	AuthoritySecret string `split_words:"true" validate:"required_if=FreezeRecipient true,required_if=FreezeSender true"`
	FreezeRecipient bool   `split_words:"true"`
	FreezeSender    bool   `split_words:"true"`

	AllowlistPath string `envconfig:"ALLOWLIST"`

	StateBackend  string        `split_words:"true" default:"file" validate:"oneof=file redis"`
	StatePath     string        `split_words:"true" default:"mintwatch-state.json" validate:"required_if=StateBackend file"`
	RedisAddr     string        `split_words:"true" validate:"required_if=StateBackend redis"`
	RedisUsername string        `split_words:"true"`
	RedisPassword string        `split_words:"true"`
	RedisDB       int           `envconfig:"REDIS_DB" validate:"min=0"`
	RunLockTTL    time.Duration `split_words:"true" default:"30m" validate:"min=0"`

	EventLogBackend string `split_words:"true" default:"file" validate:"oneof=file postgres"`
	EventLogPath    string `split_words:"true" default:"mintwatch-events.jsonl" validate:"required_if=EventLogBackend file"`
	PostgresDSN     string `envconfig:"POSTGRES_DSN" validate:"required_if=EventLogBackend postgres"`

	MaxConcurrency int             `split_words:"true" default:"4" validate:"min=1"`
	PageSize       int             `split_words:"true" default:"1000" validate:"min=1,max=1000"`
	Tolerance      decimal.Decimal `default:"0.0001"`
	RPCTimeout     time.Duration   `envconfig:"RPC_TIMEOUT" default:"30s" validate:"gt=0"`

	Interval     time.Duration `default:"10m" validate:"gte=1s"`
	ErrorBackoff time.Duration `split_words:"true" default:"5m" validate:"min=0"`

	LogLevel         string `split_words:"true" default:"info" validate:"oneof=debug info warn error"`
	TelemetryEnabled bool   `split_words:"true"`
	ServiceName      string `split_words:"true" default:"mintwatch" validate:"required"`
}

// Load reads files (".env" when none is given) into the environment without
// overriding variables already set, then decodes and validates Config. Missing
// files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.Tolerance.IsNegative() {
		return Config{}, fmt.Errorf("%w: tolerance must not be negative", validator.ErrValidationFailed)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// FreezeEnabled reports whether any sanction toggle is on.
func (c Config) FreezeEnabled() bool {
	return c.FreezeRecipient || c.FreezeSender
}
