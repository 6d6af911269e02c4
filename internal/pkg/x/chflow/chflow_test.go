package chflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Run("value available", func(t *testing.T) {
		ch := make(chan int, 1)
		ch <- 42

		v, ok := Receive(t.Context(), ch)
		assert.True(t, ok)
		assert.Equal(t, 42, v)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		v, ok := Receive(ctx, make(chan int))
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("closed channel", func(t *testing.T) {
		ch := make(chan string)
		close(ch)

		_, ok := Receive(t.Context(), ch)
		assert.False(t, ok)
	})
}

func TestSend(t *testing.T) {
	t.Run("buffered channel accepts", func(t *testing.T) {
		ch := make(chan int, 1)
		assert.True(t, Send(t.Context(), ch, 7))
		assert.Equal(t, 7, <-ch)
	})

	t.Run("canceled context with no receiver", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.False(t, Send(ctx, make(chan int), 1))
	})
}

func TestCollect(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	assert.Equal(t, []int{1, 2, 3}, Collect(t.Context(), ch))
}
