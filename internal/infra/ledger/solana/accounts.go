package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/ledger"

	"github.com/shopspring/decimal"
)

// Token account states as reported by jsonParsed account data.
const (
	stateInitialized = "initialized"
	stateFrozen      = "frozen"
)

type (
	// TokenAccountInfo is data.parsed.info of a token account.
	TokenAccountInfo struct {
		Mint        string        `json:"mint"`
		Owner       string        `json:"owner"`
		State       string        `json:"state"`
		TokenAmount UITokenAmount `json:"tokenAmount"`
	}

	// AccountData is the data field of a jsonParsed account. Accounts the node
	// cannot parse come back as a [data, encoding] pair and decode empty.
	AccountData struct {
		Program string `json:"program"`
		Parsed  struct {
			Type string           `json:"type"`
			Info TokenAccountInfo `json:"info"`
		} `json:"parsed"`
	}

	// ParsedAccountResponse is an account in jsonParsed encoding.
	ParsedAccountResponse struct {
		Owner string      `json:"owner"`
		Data  AccountData `json:"data"`
	}

	// KeyedAccountResponse is an entry of getTokenAccountsByOwner.
	KeyedAccountResponse struct {
		Pubkey  string                `json:"pubkey"`
		Account ParsedAccountResponse `json:"account"`
	}

	// contextResponse wraps results that carry the slot they were read at.
	contextResponse[T any] struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value T `json:"value"`
	}
)

func (d *AccountData) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '{' {
		*d = AccountData{}
		return nil
	}

	type plain AccountData
	return json.Unmarshal(b, (*plain)(d))
}

// amount converts the raw amount into token units.
func (a UITokenAmount) amount() (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token amount %q: %w", a.Amount, err)
	}
	return raw.Shift(-int32(a.Decimals)), nil
}

// tokenAccounts lists the accounts of mint held by owner.
func (c *client) tokenAccounts(ctx context.Context, owner, mint string) ([]KeyedAccountResponse, error) {
	resp, err := call[contextResponse[[]KeyedAccountResponse]](ctx, c, "getTokenAccountsByOwner",
		owner,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": c.commitment},
	)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetTokenBalance implements ledger.Client.
func (c *client) GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error) {
	accounts, err := c.tokenAccounts(ctx, owner, mint)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, acc := range accounts {
		amount, err := acc.Account.Data.Parsed.Info.TokenAmount.amount()
		if err != nil {
			return decimal.Zero, fmt.Errorf("account %s: %w", acc.Pubkey, err)
		}
		total = total.Add(amount)
	}
	return total, nil
}

// GetAccountOwner implements ledger.Client. Closed accounts and accounts that
// are not token accounts are reported as invalid requests.
func (c *client) GetAccountOwner(ctx context.Context, tokenAccount string) (string, error) {
	resp, err := call[contextResponse[*ParsedAccountResponse]](ctx, c, "getAccountInfo", tokenAccount, map[string]any{
		"encoding":   "jsonParsed",
		"commitment": c.commitment,
	})
	if err != nil {
		return "", err
	}

	if resp.Value == nil {
		return "", errors.Join(ledger.ErrInvalidRequest, fmt.Errorf("account %s does not exist", tokenAccount))
	}

	owner := resp.Value.Data.Parsed.Info.Owner
	if resp.Value.Owner != TokenProgramID || owner == "" {
		return "", errors.Join(ledger.ErrInvalidRequest, fmt.Errorf("account %s is not a token account", tokenAccount))
	}
	return owner, nil
}
