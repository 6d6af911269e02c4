package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/ledger"

	"github.com/mr-tron/base58"
)

// LatestBlockhashResponse is the value of getLatestBlockhash.
type LatestBlockhashResponse struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

func (c *client) latestBlockhash(ctx context.Context) (string, error) {
	resp, err := call[contextResponse[LatestBlockhashResponse]](ctx, c, "getLatestBlockhash", map[string]any{
		"commitment": c.commitment,
	})
	if err != nil {
		return "", err
	}
	return resp.Value.Blockhash, nil
}

// SubmitFreeze implements ledger.Client. One transaction is sent per token
// account; accounts already in the requested state are left alone. The
// returned signatures are those the node accepted.
func (c *client) SubmitFreeze(ctx context.Context, owner, mint string, action ledger.FreezeAction) ([]string, error) {
	if c.authority == nil {
		return nil, errors.Join(ledger.ErrInvalidRequest, ErrNoAuthority)
	}

	accounts, err := c.tokenAccounts(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s holds no %s account", ledger.ErrNoTokenAccount, owner, mint)
	}

	want := stateFrozen
	if action == ledger.ActionThaw {
		want = stateInitialized
	}

	var pending []string
	for _, acc := range accounts {
		if acc.Account.Data.Parsed.Info.State != want {
			pending = append(pending, acc.Pubkey)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	authority := base58.Encode(c.authority.Public().(ed25519.PublicKey))

	var (
		signatures []string
		errs       []error
	)
	for _, account := range pending {
		msg, err := freezeMessage(authority, account, mint, blockhash, action)
		if err != nil {
			return signatures, err
		}

		tx := signedTransaction(ed25519.Sign(c.authority, msg), msg)
		sig, err := call[string](ctx, c, "sendTransaction", base64.StdEncoding.EncodeToString(tx), map[string]any{
			"encoding":            "base64",
			"preflightCommitment": c.commitment,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", action, account, err))
			continue
		}
		signatures = append(signatures, sig)
	}

	return signatures, errors.Join(errs...)
}
