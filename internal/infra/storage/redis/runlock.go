package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/watchset"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// refreshLockScript extends the lock only while it still holds our token.
	refreshLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	// releaseLockScript deletes the lock only while it still holds our token.
	releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// runLockKey guards audit runs of one mint across processes.
func (c *client) runLockKey() string {
	return c.key("run-lock")
}

// Acquire claims the run lock for ttl and keeps extending it every ttl/3 until
// released, so a run longer than ttl stays exclusive. The lock lapses after ttl
// if the process dies.
//
// Returns:
//   - a release function to call when the run ends.
//   - watchset.ErrRunInProgress if another process holds the lock.
//   - any other error if the Redis operation fails.
func (c *client) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	key := c.runLockKey()
	token := uuid.NewString()

	ok, err := c.conn.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, watchset.ErrRunInProgress
	}

	refreshCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepLock(refreshCtx, key, token, ttl)
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			wg.Wait()

			err = releaseLockScript.Run(ctx, c.conn, []string{key}, token).Err()
		})
		return err
	}

	return release, nil
}

// keepLock extends the lock until ctx is done or the lock is lost.
func (c *client) keepLock(ctx context.Context, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := refreshLockScript.Run(ctx, c.conn, []string{key}, token, ttl.Milliseconds()).Int64()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			logger.Warn(ctx, "run lock refresh failed", "error", err)
		case n == 0:
			logger.Error(ctx, "run lock lost", "error", fmt.Errorf("lock %s no longer held", key))
			return
		}
	}
}

// Compile-time assertion to ensure client implements the watchset Locker.
var _ watchset.Locker = new(client)
