package solana

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gabapcia/mintwatch/internal/ledger"
)

// SignatureResponse is one entry of getSignaturesForAddress.
type SignatureResponse struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

func (s SignatureResponse) toLedger() ledger.SignatureInfo {
	info := ledger.SignatureInfo{
		Signature: s.Signature,
		Slot:      s.Slot,
		Failed:    failed(s.Err),
	}
	if s.BlockTime != nil {
		info.BlockTime = time.Unix(*s.BlockTime, 0).UTC()
	}
	return info
}

// failed reports whether an err field holds an execution error.
func failed(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ListSignatures implements ledger.Client.
func (c *client) ListSignatures(ctx context.Context, address, before string, limit int) ([]ledger.SignatureInfo, error) {
	config := map[string]any{
		"limit":      limit,
		"commitment": c.commitment,
	}
	if before != "" {
		config["before"] = before
	}

	resp, err := call[[]SignatureResponse](ctx, c, "getSignaturesForAddress", address, config)
	if err != nil {
		return nil, err
	}

	infos := make([]ledger.SignatureInfo, len(resp))
	for i, s := range resp {
		infos[i] = s.toLedger()
	}
	return infos, nil
}
