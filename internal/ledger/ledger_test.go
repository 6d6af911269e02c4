package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"transient":         {errors.New("connection reset"), true},
		"not found":         {ErrTransactionNotFound, true},
		"invalid request":   {fmt.Errorf("getTransaction: %w", ErrInvalidRequest), false},
		"no token account":  {ErrNoTokenAccount, false},
		"canceled":          {context.Canceled, false},
		"deadline exceeded": {context.DeadlineExceeded, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestInstructionKind_String(t *testing.T) {
	assert.Equal(t, "freezeAccount", InstructionFreezeAccount.String())
	assert.Equal(t, "thawAccount", InstructionThawAccount.String())
	assert.Equal(t, "other", InstructionOther.String())
}
