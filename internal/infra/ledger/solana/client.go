// Package solana implements ledger.Client against a Solana JSON-RPC node.
// Transactions are requested in jsonParsed encoding so token balances and
// token-program instructions arrive decoded. Every call goes through a circuit
// breaker; HTTP level retries belong to the transport the jsonrpc.Client uses.
package solana

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/resilience/breaker"
	"github.com/gabapcia/mintwatch/internal/pkg/transport/jsonrpc"

	"github.com/mr-tron/base58"
)

const (
	// TokenProgramID is the SPL token program.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	// CommitmentFinalized only sees blocks confirmed by a supermajority and rooted.
	CommitmentFinalized = "finalized"
)

// JSON-RPC error codes the node returns for requests that can never succeed.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// ErrNoAuthority is returned by SubmitFreeze when no freeze authority key was
// configured.
var ErrNoAuthority = errors.New("no freeze authority configured")

type client struct {
	conn       jsonrpc.Client
	breaker    *breaker.Breaker
	commitment string
	authority  ed25519.PrivateKey
}

var _ ledger.Client = (*client)(nil)

// Option configures the client.
type Option func(*client)

// WithCommitment sets the commitment level of every read. Defaults to finalized.
func WithCommitment(commitment string) Option {
	return func(c *client) {
		c.commitment = commitment
	}
}

// WithAuthority sets the freeze authority key used by SubmitFreeze.
func WithAuthority(key ed25519.PrivateKey) Option {
	return func(c *client) {
		c.authority = key
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *client) {
		c.breaker = b
	}
}

// NewClient returns a ledger.Client talking to the node behind conn.
func NewClient(conn jsonrpc.Client, opts ...Option) *client {
	c := &client{
		conn:       conn,
		commitment: CommitmentFinalized,
		breaker: breaker.New("solana-rpc", breaker.WithIsSuccessful(func(err error) bool {
			// The node answered; the request itself was at fault.
			return err == nil || errors.Is(err, ledger.ErrInvalidRequest) || errors.Is(err, ledger.ErrTransactionNotFound)
		})),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseAuthority decodes a base58 encoded 64 byte keypair (secret seed followed
// by public key), the format Solana CLI wallets use.
func ParseAuthority(secret string) (ed25519.PrivateKey, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode authority: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("authority must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		return nil, errors.New("authority public key does not match its seed")
	}
	return key, nil
}

// mapError tags node answers that will not change on retry.
func mapError(err error) error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
			return errors.Join(ledger.ErrInvalidRequest, err)
		}
	}
	return err
}

// call runs method through the breaker and decodes its result into T.
func call[T any](ctx context.Context, c *client, method string, params ...any) (T, error) {
	return breaker.Do(c.breaker, func() (T, error) {
		var out T
		err := jsonrpc.Call(ctx, c.conn, &out, method, params...)
		return out, mapError(err)
	})
}
