package goOffline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostOfflineQueuesAction(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.client.Gate().SetOnline(false)

	resp, err := env.client.Post(ctx, "/delivery/accept", []byte(`{"id":"d1"}`))
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	assert.NotEmpty(t, resp.ActionID)

	// Nothing reached the network.
	assert.Empty(t, env.handler.requests())

	// Background replay was requested under the well-known tag.
	assert.Contains(t, env.registrar.recorded(), SyncTag)

	stats, err := env.client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.QueuedActions)
}

func TestSyncReplaysByPriorityThenArrival(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.client.Gate().SetOnline(false)

	// Interleave tiers; distinct timestamps pin the FIFO order within each.
	paths := []string{
		"/misc/low-first",         // low
		"/delivery/status/s1",     // medium
		"/delivery/emergency/e1",  // high
		"/misc/low-second",        // low
		"/auth/refresh",           // medium
		"/location/update",        // high
	}
	for _, p := range paths {
		_, err := env.client.Post(ctx, p, []byte(`{}`))
		require.NoError(t, err)
		env.clock.Advance(time.Millisecond)
	}

	result, err := env.client.SyncOfflineActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, 6, result.Succeeded)
	assert.Zero(t, result.Failed)

	want := []string{
		"POST /delivery/emergency/e1",
		"POST /location/update",
		"POST /delivery/status/s1",
		"POST /auth/refresh",
		"POST /misc/low-first",
		"POST /misc/low-second",
	}
	assert.Equal(t, want, env.handler.requests())

	stats, err := env.client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.QueuedActions)
}

func TestSyncRetainsServerFailuresOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.handler.setStatus(func(r *http.Request) int {
		if strings.Contains(r.URL.Path, "flaky") {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	})

	env.client.Gate().SetOnline(false)
	for _, p := range []string{"/misc/first", "/misc/flaky", "/misc/last"} {
		_, err := env.client.Post(ctx, p, []byte(`{}`))
		require.NoError(t, err)
		env.clock.Advance(time.Millisecond)
	}

	result, err := env.client.SyncOfflineActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	// Server recovers; the retry replays only the retained action.
	env.handler.setStatus(nil)

	result, err = env.client.SyncOfflineActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)

	assert.Equal(t, 1, env.handler.count("POST /misc/first"))
	assert.Equal(t, 1, env.handler.count("POST /misc/last"))
	assert.Equal(t, 2, env.handler.count("POST /misc/flaky"))
}

func TestSyncConsumesClientErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.handler.setStatus(func(*http.Request) int { return http.StatusUnprocessableEntity })

	env.client.Gate().SetOnline(false)
	_, err := env.client.Post(ctx, "/misc/bad-payload", []byte(`{}`))
	require.NoError(t, err)

	// A 4xx will not get better on retry; the action is consumed.
	result, err := env.client.SyncOfflineActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	stats, err := env.client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.QueuedActions)
}

func TestSyncEmptyQueue(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.client.SyncOfflineActions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestReconnectTriggersExactlyOneReplay(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.client.Gate().SetOnline(false)
	_, err := env.client.Post(ctx, "/delivery/accept", []byte(`{"id":"d1"}`))
	require.NoError(t, err)

	env.client.Gate().SetOnline(true)

	require.Eventually(t, func() bool {
		return env.handler.count("POST /delivery/accept") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Let any stray replay surface before asserting exactly-once.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, env.handler.count("POST /delivery/accept"))

	stats, err := env.client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.QueuedActions)
}

func TestConcurrentSyncCoalesces(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.handler.mu.Lock()
	env.handler.delay = 50 * time.Millisecond
	env.handler.mu.Unlock()

	env.client.Gate().SetOnline(false)
	_, err := env.client.Post(ctx, "/delivery/accept", []byte(`{}`))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.client.SyncOfflineActions(ctx)
		}()
	}
	wg.Wait()

	// Concurrent callers share one drain; the action replays once.
	assert.Equal(t, 1, env.handler.count("POST /delivery/accept"))
}

func TestClearQueue(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.client.Gate().SetOnline(false)
	for _, p := range []string{"/misc/a", "/misc/b"} {
		_, err := env.client.Post(ctx, p, []byte(`{}`))
		require.NoError(t, err)
	}

	require.NoError(t, env.client.ClearQueue(ctx))

	result, err := env.client.SyncOfflineActions(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Empty(t, env.handler.requests())
}
