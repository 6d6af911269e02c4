// Package chflow provides context-aware channel helpers so producers and
// consumers stop promptly when their context is canceled.
package chflow

import "context"

// Receive waits for a value from ch or for ctx to be done. ok is false when ctx
// ended first or ch was closed.
func Receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var data T
	select {
	case <-ctx.Done():
		return data, false
	case data, ok := <-ch:
		return data, ok
	}
}

// Send delivers data to ch unless ctx is done first. It reports whether the
// value was delivered.
func Send[T any](ctx context.Context, ch chan<- T, data T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- data:
		return true
	}
}

// Collect drains ch until it is closed or ctx is done and returns what was
// received, in arrival order.
func Collect[T any](ctx context.Context, ch <-chan T) []T {
	var out []T
	for {
		v, ok := Receive(ctx, ch)
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
