package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/pkg/types"
	"github.com/gabapcia/mintwatch/internal/syncstate"

	"github.com/redis/go-redis/v9"
)

// cursorsKey is a hash of address -> JSON encoded cursor.
func (c *client) cursorsKey() string {
	return c.key("cursors")
}

// greylistKey is a set of greylisted addresses.
func (c *client) greylistKey() string {
	return c.key("greylist")
}

// Load reads the whole sync state inside MULTI/EXEC, so a concurrent Save is
// seen either entirely or not at all. Missing keys yield an empty state.
//
// Returns:
//   - the persisted state, never with nil collections.
//   - an error if Redis fails or a cursor cannot be decoded.
func (c *client) Load(ctx context.Context) (syncstate.State, error) {
	var (
		cursorsCmd  *redis.MapStringStringCmd
		greylistCmd *redis.StringSliceCmd
	)

	_, err := c.conn.TxPipelined(ctx, func(p redis.Pipeliner) error {
		cursorsCmd = p.HGetAll(ctx, c.cursorsKey())
		greylistCmd = p.SMembers(ctx, c.greylistKey())
		return nil
	})
	if err != nil {
		return syncstate.State{}, err
	}

	state := syncstate.New()
	for addr, raw := range cursorsCmd.Val() {
		var cursor syncstate.Cursor
		if err := json.Unmarshal([]byte(raw), &cursor); err != nil {
			return syncstate.State{}, fmt.Errorf("decode cursor of %s: %w", addr, err)
		}
		state.SetCursor(addr, cursor)
	}
	state.Greylist = types.NewSet(greylistCmd.Val()...)

	return state, nil
}

// Save replaces the persisted state inside a MULTI/EXEC transaction, so readers
// see either the previous state or the new one.
func (c *client) Save(ctx context.Context, s syncstate.State) error {
	s = s.Normalize()

	cursors := make(map[string]any, len(s.Cursors))
	for addr, cursor := range s.Cursors {
		raw, err := json.Marshal(cursor)
		if err != nil {
			return fmt.Errorf("encode cursor of %s: %w", addr, err)
		}
		cursors[addr] = string(raw)
	}

	greylist := make([]any, 0, s.Greylist.Len())
	for _, addr := range types.Sorted(s.Greylist) {
		greylist = append(greylist, addr)
	}

	_, err := c.conn.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.cursorsKey(), c.greylistKey())
		if len(cursors) > 0 {
			p.HSet(ctx, c.cursorsKey(), cursors)
		}
		if len(greylist) > 0 {
			p.SAdd(ctx, c.greylistKey(), greylist...)
		}
		return nil
	})
	return err
}

// Compile-time assertion to ensure client implements the sync state Store.
var _ syncstate.Store = new(client)
