package solana

import (
	"fmt"

	"github.com/gabapcia/mintwatch/internal/ledger"
	"github.com/gabapcia/mintwatch/internal/pkg/types"

	"github.com/mr-tron/base58"
)

// Token program instruction discriminators.
const (
	instructionFreezeAccount byte = 10
	instructionThawAccount   byte = 11
)

// appendShortVec appends n in the compact-u16 encoding used for lengths in
// transaction wire format: 7 bits per byte, high bit set when more follow.
func appendShortVec(b []byte, n int) []byte {
	for {
		elem := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}

func decodeKey(s string) ([]byte, error) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return addr.Bytes(), nil
}

// freezeMessage compiles the legacy message of a single freezeAccount or
// thawAccount instruction paid and signed by authority.
//
// Account keys, ordered signer-writable first and read-only last:
//
//	0 authority      signer, writable (fee payer)
//	1 token account  writable
//	2 mint           read-only
//	3 token program  read-only
func freezeMessage(authority, account, mint, blockhash string, action ledger.FreezeAction) ([]byte, error) {
	var data byte
	switch action {
	case ledger.ActionFreeze:
		data = instructionFreezeAccount
	case ledger.ActionThaw:
		data = instructionThawAccount
	default:
		return nil, fmt.Errorf("unknown freeze action %q", action)
	}

	keys := make([][]byte, 0, 4)
	for _, k := range []string{authority, account, mint, TokenProgramID} {
		raw, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		keys = append(keys, raw)
	}

	hash, err := base58.Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", blockhash)
	}

	msg := []byte{1, 0, 2} // required signatures, read-only signed, read-only unsigned
	msg = appendShortVec(msg, len(keys))
	for _, k := range keys {
		msg = append(msg, k...)
	}
	msg = append(msg, hash...)

	msg = appendShortVec(msg, 1) // instructions
	msg = append(msg, 3)         // program id index
	msg = appendShortVec(msg, 3)
	msg = append(msg, 1, 2, 0) // account, mint, authority
	msg = appendShortVec(msg, 1)
	msg = append(msg, data)

	return msg, nil
}

// signedTransaction prepends the signature section to msg.
func signedTransaction(signature, msg []byte) []byte {
	tx := appendShortVec(make([]byte, 0, 1+len(signature)+len(msg)), 1)
	tx = append(tx, signature...)
	return append(tx, msg...)
}
