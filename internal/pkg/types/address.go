package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the size in bytes of a decoded ledger public key.
const AddressLength = 32

// ErrInvalidAddress is returned when a string is not a base58-encoded 32-byte key.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a base58-encoded ledger public key (wallet, token account, mint or
// program id).
type Address string

// ParseAddress validates s and returns it as an Address.
func ParseAddress(s string) (Address, error) {
	if _, err := decodeAddress(s); err != nil {
		return "", err
	}
	return Address(s), nil
}

// AddressFromBytes encodes a raw 32-byte key.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	return Address(base58.Encode(b)), nil
}

func decodeAddress(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}

	if len(b) != AddressLength {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(b))
	}

	return b, nil
}

// IsValidAddress reports whether s is a base58-encoded 32-byte key.
func IsValidAddress(s string) bool {
	_, err := decodeAddress(s)
	return err == nil
}

// Bytes returns the decoded key. It panics on an invalid Address, which can only
// be built by converting an unchecked string.
func (a Address) Bytes() []byte {
	b, err := decodeAddress(string(a))
	if err != nil {
		panic(err)
	}
	return b
}

// IsOnCurve reports whether the key is a point on the ed25519 curve. Wallet keys
// are on the curve; program derived addresses are deliberately off it.
func (a Address) IsOnCurve() bool {
	b, err := decodeAddress(string(a))
	if err != nil {
		return false
	}

	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func (a Address) String() string {
	return string(a)
}

// UnmarshalJSON parses and validates a JSON-encoded address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}

	*a = parsed
	return nil
}
