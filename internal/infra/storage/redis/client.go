// Package redis implements the sync state store and the cross-process run lock
// on top of Redis.
package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// keyPrefix is the namespace shared by every key this package writes.
const keyPrefix = "mintwatch"

type client struct {
	conn *redis.Client

	// namespace scopes keys to one audited mint so several mints can share a
	// database.
	namespace string
}

func (c *client) Close() error {
	return c.conn.Close()
}

// key builds "mintwatch:<mint>:<parts...>".
func (c *client) key(parts string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, c.namespace, parts)
}

// NewClient connects to Redis and checks the connection with a PING. Keys are
// scoped to mint.
func NewClient(ctx context.Context, addr, username, password string, db int, mint string) (*client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{
		conn:      conn,
		namespace: mint,
	}, nil
}
