package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"

	"github.com/shopspring/decimal"
)

type (
	// UITokenAmount is the amount object of jsonParsed token data.
	UITokenAmount struct {
		Amount         string `json:"amount"`
		Decimals       uint8  `json:"decimals"`
		UIAmountString string `json:"uiAmountString"`
	}

	// TokenBalanceResponse is an entry of meta.preTokenBalances or
	// meta.postTokenBalances.
	TokenBalanceResponse struct {
		AccountIndex  int           `json:"accountIndex"`
		Mint          string        `json:"mint"`
		Owner         string        `json:"owner"`
		ProgramID     string        `json:"programId"`
		UITokenAmount UITokenAmount `json:"uiTokenAmount"`
	}

	// AccountKeyResponse is an entry of message.accountKeys in jsonParsed
	// encoding. Lookup-table addresses are included.
	AccountKeyResponse struct {
		Pubkey   string `json:"pubkey"`
		Signer   bool   `json:"signer"`
		Writable bool   `json:"writable"`
		Source   string `json:"source"`
	}

	// InstructionResponse is a parsed or partially decoded instruction. Parsed
	// is an object for programs the node can decode and a string or absent
	// otherwise.
	InstructionResponse struct {
		ProgramID string          `json:"programId"`
		Program   string          `json:"program"`
		Parsed    json.RawMessage `json:"parsed"`
	}

	// InnerInstructionsResponse groups the instructions invoked by one outer
	// instruction.
	InnerInstructionsResponse struct {
		Index        int                   `json:"index"`
		Instructions []InstructionResponse `json:"instructions"`
	}

	// TransactionMetaResponse is the meta object of getTransaction.
	TransactionMetaResponse struct {
		Err               json.RawMessage             `json:"err"`
		PreTokenBalances  []TokenBalanceResponse      `json:"preTokenBalances"`
		PostTokenBalances []TokenBalanceResponse      `json:"postTokenBalances"`
		InnerInstructions []InnerInstructionsResponse `json:"innerInstructions"`
	}

	// TransactionResponse is the result of getTransaction with jsonParsed
	// encoding.
	TransactionResponse struct {
		Slot        uint64                   `json:"slot"`
		BlockTime   *int64                   `json:"blockTime"`
		Meta        *TransactionMetaResponse `json:"meta"`
		Transaction struct {
			Signatures []string `json:"signatures"`
			Message    struct {
				AccountKeys  []AccountKeyResponse  `json:"accountKeys"`
				Instructions []InstructionResponse `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}

	// freezeInfo is the info object of parsed freezeAccount and thawAccount
	// instructions.
	freezeInfo struct {
		Account                 string `json:"account"`
		Mint                    string `json:"mint"`
		FreezeAuthority         string `json:"freezeAuthority"`
		MultisigFreezeAuthority string `json:"multisigFreezeAuthority"`
	}

	parsedInstruction struct {
		Type string          `json:"type"`
		Info json.RawMessage `json:"info"`
	}
)

func (b TokenBalanceResponse) toLedger(accountKeys []AccountKeyResponse) (ledger.TokenBalance, error) {
	amount, err := decimal.NewFromString(b.UITokenAmount.Amount)
	if err != nil {
		return ledger.TokenBalance{}, fmt.Errorf("token balance amount %q: %w", b.UITokenAmount.Amount, err)
	}

	tb := ledger.TokenBalance{
		AccountIndex: b.AccountIndex,
		Mint:         b.Mint,
		Owner:        b.Owner,
		RawAmount:    amount,
	}
	if b.AccountIndex >= 0 && b.AccountIndex < len(accountKeys) {
		tb.Account = accountKeys[b.AccountIndex].Pubkey
	}
	return tb, nil
}

// toLedger decodes the instruction. Only freeze and thaw instructions of the
// token program are decoded further; everything else keeps its program id.
func (ix InstructionResponse) toLedger() ledger.Instruction {
	out := ledger.Instruction{ProgramID: ix.ProgramID, Kind: ledger.InstructionOther}
	if ix.ProgramID != TokenProgramID || len(ix.Parsed) == 0 {
		return out
	}

	var parsed parsedInstruction
	if err := json.Unmarshal(ix.Parsed, &parsed); err != nil {
		return out
	}

	var kind ledger.InstructionKind
	switch parsed.Type {
	case "freezeAccount":
		kind = ledger.InstructionFreezeAccount
	case "thawAccount":
		kind = ledger.InstructionThawAccount
	default:
		return out
	}

	var info freezeInfo
	if err := json.Unmarshal(parsed.Info, &info); err != nil || info.Account == "" {
		return out
	}

	out.Kind = kind
	out.Account = info.Account
	out.Mint = info.Mint
	out.Authority = info.FreezeAuthority
	if out.Authority == "" {
		out.Authority = info.MultisigFreezeAuthority
	}
	return out
}

func (t TransactionResponse) toLedger(signature string) (ledger.Transaction, error) {
	tx := ledger.Transaction{
		Signature: signature,
		Slot:      t.Slot,
		Success:   t.Meta != nil && !failed(t.Meta.Err),
	}
	if t.BlockTime != nil {
		tx.BlockTime = time.Unix(*t.BlockTime, 0).UTC()
	}

	keys := t.Transaction.Message.AccountKeys
	if t.Meta != nil {
		for _, b := range t.Meta.PreTokenBalances {
			tb, err := b.toLedger(keys)
			if err != nil {
				return ledger.Transaction{}, err
			}
			tx.PreTokenBalances = append(tx.PreTokenBalances, tb)
		}
		for _, b := range t.Meta.PostTokenBalances {
			tb, err := b.toLedger(keys)
			if err != nil {
				return ledger.Transaction{}, err
			}
			tx.PostTokenBalances = append(tx.PostTokenBalances, tb)
		}
	}

	for _, ix := range t.Transaction.Message.Instructions {
		tx.Instructions = append(tx.Instructions, ix.toLedger())
	}
	if t.Meta != nil {
		for _, inner := range t.Meta.InnerInstructions {
			for _, ix := range inner.Instructions {
				tx.Instructions = append(tx.Instructions, ix.toLedger())
			}
		}
	}

	return tx, nil
}

// GetTransaction implements ledger.Client. A null result, which the node
// returns for signatures not yet visible at the commitment level, maps to
// ledger.ErrTransactionNotFound.
func (c *client) GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error) {
	resp, err := call[*TransactionResponse](ctx, c, "getTransaction", signature, map[string]any{
		"encoding":                       "jsonParsed",
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	if resp == nil {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, signature)
	}

	return resp.toLedger(signature)
}
