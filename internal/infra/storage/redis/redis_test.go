package redis

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"
	"github.com/gabapcia/mintwatch/internal/syncstate"
	"github.com/gabapcia/mintwatch/internal/watchset"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error")
	os.Exit(m.Run())
}

// fakeServer answers commands in-process through a client hook, recording what
// was sent.
type fakeServer struct {
	mu        sync.Mutex
	pipelines [][]string
	scripts   map[string]int

	lockFree      bool
	refreshResult int64
	cursors       map[string]string
	greylist      []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{scripts: make(map[string]int), lockFree: true, refreshResult: 1}
}

func (f *fakeServer) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (f *fakeServer) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch cmd.Name() {
		case "set":
			cmd.(*redis.BoolCmd).SetVal(f.lockFree)
		case "evalsha":
			sha, _ := cmd.Args()[1].(string)
			f.scripts[sha]++
			result := int64(1)
			if sha == refreshLockScript.Hash() {
				result = f.refreshResult
			}
			cmd.(*redis.Cmd).SetVal(result)
		}
		return nil
	}
}

func (f *fakeServer) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
			switch c := cmd.(type) {
			case *redis.MapStringStringCmd:
				c.SetVal(f.cursors)
			case *redis.StringSliceCmd:
				c.SetVal(f.greylist)
			}
		}
		f.pipelines = append(f.pipelines, names)
		return nil
	}
}

func (f *fakeServer) calls(script *redis.Script) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scripts[script.Hash()]
}

func (f *fakeServer) sentPipelines() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipelines
}

func newTestClient(t *testing.T, srv *fakeServer) *client {
	t.Helper()

	conn := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	conn.AddHook(srv)
	t.Cleanup(func() { _ = conn.Close() })

	return &client{conn: conn, namespace: "MINT"}
}

func TestSyncState(t *testing.T) {
	t.Run("load reads both keys in one transaction", func(t *testing.T) {
		srv := newFakeServer()
		srv.cursors = map[string]string{"A": `{"last_signature":"s1","last_balance":"2.5","has_balance":true}`}
		srv.greylist = []string{"A", "B"}

		state, err := newTestClient(t, srv).Load(t.Context())
		require.NoError(t, err)

		require.Len(t, srv.sentPipelines(), 1)
		assert.Equal(t, []string{"multi", "hgetall", "smembers", "exec"}, srv.sentPipelines()[0])

		assert.Equal(t, "s1", state.Cursor("A").LastSignature)
		assert.True(t, decimal.RequireFromString("2.5").Equal(state.Cursor("A").LastBalance))
		assert.True(t, state.Greylist.Has("B"))
	})

	t.Run("load rejects malformed cursors", func(t *testing.T) {
		srv := newFakeServer()
		srv.cursors = map[string]string{"A": `{`}

		_, err := newTestClient(t, srv).Load(t.Context())
		assert.ErrorContains(t, err, "decode cursor of A")
	})

	t.Run("save replaces both keys in one transaction", func(t *testing.T) {
		srv := newFakeServer()
		state := syncstate.New()
		state.AddGreylist("A")
		state.SetCursor("A", syncstate.Cursor{LastSignature: "s1"})

		require.NoError(t, newTestClient(t, srv).Save(t.Context(), state))

		require.Len(t, srv.sentPipelines(), 1)
		sent := srv.sentPipelines()[0]
		assert.Equal(t, "multi", sent[0])
		assert.Equal(t, "exec", sent[len(sent)-1])
		assert.Contains(t, sent, "hset")
		assert.Contains(t, sent, "sadd")
	})
}

func TestRunLock(t *testing.T) {
	t.Run("held by another process", func(t *testing.T) {
		srv := newFakeServer()
		srv.lockFree = false

		_, err := newTestClient(t, srv).Acquire(t.Context(), time.Minute)
		assert.ErrorIs(t, err, watchset.ErrRunInProgress)
	})

	t.Run("extended until released", func(t *testing.T) {
		srv := newFakeServer()

		release, err := newTestClient(t, srv).Acquire(t.Context(), 30*time.Millisecond)
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return srv.calls(refreshLockScript) >= 3 }, time.Second, 5*time.Millisecond)

		require.NoError(t, release(t.Context()))
		require.NoError(t, release(t.Context()))
		assert.Equal(t, 1, srv.calls(releaseLockScript))

		refreshes := srv.calls(refreshLockScript)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, refreshes, srv.calls(refreshLockScript))
	})

	t.Run("stops extending a lost lock", func(t *testing.T) {
		srv := newFakeServer()
		srv.refreshResult = 0

		release, err := newTestClient(t, srv).Acquire(t.Context(), 30*time.Millisecond)
		require.NoError(t, err)
		defer func() { _ = release(t.Context()) }()

		assert.Eventually(t, func() bool { return srv.calls(refreshLockScript) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, srv.calls(refreshLockScript))
	})
}
