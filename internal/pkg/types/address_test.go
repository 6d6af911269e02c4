package types

import (
	"encoding/json"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

func TestParseAddress(t *testing.T) {
	t.Run("valid program id", func(t *testing.T) {
		a, err := ParseAddress(tokenProgram)
		require.NoError(t, err)
		assert.Equal(t, tokenProgram, a.String())
		assert.Len(t, a.Bytes(), AddressLength)
	})

	t.Run("rejects non base58 characters", func(t *testing.T) {
		_, err := ParseAddress("0OIl")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := ParseAddress(base58.Encode([]byte{1, 2, 3}))
		assert.ErrorIs(t, err, ErrInvalidAddress)
		assert.False(t, IsValidAddress(base58.Encode([]byte{1, 2, 3})))
	})
}

func TestAddressFromBytes(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[0] = 9

	a, err := AddressFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, a.Bytes())

	_, err = AddressFromBytes(raw[:31])
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddress_IsOnCurve(t *testing.T) {
	t.Run("ed25519 point is on curve", func(t *testing.T) {
		a, err := AddressFromBytes(edwards25519.NewGeneratorPoint().Bytes())
		require.NoError(t, err)
		assert.True(t, a.IsOnCurve())
	})

	t.Run("invalid address is not on curve", func(t *testing.T) {
		assert.False(t, Address("nope").IsOnCurve())
	})
}

func TestAddress_UnmarshalJSON(t *testing.T) {
	var a Address
	require.NoError(t, json.Unmarshal([]byte(`"`+tokenProgram+`"`), &a))
	assert.Equal(t, Address(tokenProgram), a)

	assert.ErrorIs(t, json.Unmarshal([]byte(`"abc"`), &a), ErrInvalidAddress)
	assert.ErrorIs(t, json.Unmarshal([]byte(`12`), &a), ErrInvalidAddress)
}
