package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopavnu/avnu-marketplace-sub008/breaker"
	"github.com/shopavnu/avnu-marketplace-sub008/internal/cacheinfra"
)

var errRemoteDown = errors.New("connection refused")

// flakyRemote is a RemoteStore whose failures can be toggled.
type flakyRemote struct {
	mu      sync.Mutex
	down    bool
	calls   int
	storage map[string][]byte
}

func newFlakyRemote() *flakyRemote {
	return &flakyRemote{storage: make(map[string][]byte)}
}

func (f *flakyRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flakyRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyRemote) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return nil, 0, false, errRemoteDown
	}
	v, ok := f.storage[key]
	return v, 0, ok, nil
}

func (f *flakyRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errRemoteDown
	}
	f.storage[key] = value
	return nil
}

func (f *flakyRemote) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errRemoteDown
	}
	for _, k := range keys {
		delete(f.storage, k)
	}
	return nil
}

func (f *flakyRemote) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errRemoteDown
	}
	f.storage = make(map[string][]byte)
	return nil
}

func testBreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		MaxRetries:       1,
		RetryDelay:       0,
		MonitorInterval:  time.Hour,
	}
}

func newTestFallback(t *testing.T) *cacheinfra.FallbackStore {
	t.Helper()
	fb, err := cacheinfra.NewFallbackStore(cacheinfra.DefaultConfig())
	require.NoError(t, err)
	return fb
}

func newFlakyCache(t *testing.T) (*ResilientCache, *flakyRemote, *cacheinfra.FallbackStore) {
	t.Helper()
	remote := newFlakyRemote()
	fallback := newTestFallback(t)
	cb := breaker.New(testBreakerConfig())
	t.Cleanup(func() { _ = cb.Close() })
	return NewResilientCache(remote, fallback, cb), remote, fallback
}

func TestResilientCache_WithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cb := breaker.New(testBreakerConfig())
	defer cb.Close()

	rc := NewResilientCache(cacheinfra.NewRedisStore(client), newTestFallback(t), cb)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "product:1", []byte("lamp"), 10*time.Minute))

	stored, err := mr.Get("product:1")
	require.NoError(t, err)
	assert.Equal(t, "lamp", stored)
	assert.Equal(t, 10*time.Minute, mr.TTL("product:1"))

	got, ok, err := rc.Get(ctx, "product:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("lamp"), got)

	require.NoError(t, rc.Del(ctx, "product:1"))
	assert.False(t, mr.Exists("product:1"))

	_, ok, err = rc.Get(ctx, "product:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResilientCache_DefaultTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cb := breaker.New(testBreakerConfig())
	defer cb.Close()

	rc := NewResilientCache(cacheinfra.NewRedisStore(client), newTestFallback(t), cb, WithDefaultTTL(time.Minute))
	require.NoError(t, rc.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestResilientCache_RemoteOutageServesFallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	cb := breaker.New(testBreakerConfig())
	defer cb.Close()

	rc := NewResilientCache(cacheinfra.NewRedisStore(client), newTestFallback(t), cb)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "product:2", []byte("chair"), time.Minute))

	mr.Close()

	got, ok, err := rc.Get(ctx, "product:2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("chair"), got)

	assert.NoError(t, rc.Set(ctx, "product:3", []byte("desk"), time.Minute))
	assert.NoError(t, rc.Del(ctx, "product:2"))
	assert.NoError(t, rc.Reset(ctx))
}

func TestResilientCache_GetMirrorsRemoteHitIntoFallback(t *testing.T) {
	rc, remote, fallback := newFlakyCache(t)
	remote.storage["product:4"] = []byte("sofa")

	got, ok, err := rc.Get(context.Background(), "product:4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("sofa"), got)

	mirrored, ok := fallback.Get("product:4")
	assert.True(t, ok)
	assert.Equal(t, []byte("sofa"), mirrored)
}

func TestResilientCache_SetWritesFallbackFirst(t *testing.T) {
	rc, remote, fallback := newFlakyCache(t)
	remote.setDown(true)

	require.NoError(t, rc.Set(context.Background(), "product:5", []byte("rug"), time.Minute))

	v, ok := fallback.Get("product:5")
	assert.True(t, ok)
	assert.Equal(t, []byte("rug"), v)
}

func TestResilientCache_OpenCircuitSkipsRemote(t *testing.T) {
	rc, remote, fallback := newFlakyCache(t)
	ctx := context.Background()
	remote.setDown(true)

	// Two failures trip the breaker.
	_, _, _ = rc.Get(ctx, "a")
	_, _, _ = rc.Get(ctx, "b")
	require.Equal(t, breaker.StateOpen, rc.Breaker().State())

	calls := remote.callCount()
	fallback.Set("c", []byte("cached"), time.Minute)

	got, ok, err := rc.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("cached"), got)

	require.NoError(t, rc.Set(ctx, "d", []byte("x"), time.Minute))
	assert.Equal(t, calls, remote.callCount(), "remote must not be called while open")
}

func TestResilientCache_MissInBothTiers(t *testing.T) {
	rc, _, _ := newFlakyCache(t)

	got, ok, err := rc.Get(context.Background(), "nothing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestResilientCache_HealthyRemoteMissIgnoresFallback(t *testing.T) {
	rc, _, fallback := newFlakyCache(t)
	fallback.Set("written-during-outage", []byte("v"), time.Minute)

	got, ok, err := rc.Get(context.Background(), "written-during-outage")
	require.NoError(t, err)
	assert.False(t, ok, "a healthy remote is authoritative")
	assert.Nil(t, got)
}

func TestResilientCache_ExpiredRemoteEntryIsAMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cb := breaker.New(testBreakerConfig())
	defer cb.Close()

	rc := NewResilientCache(cacheinfra.NewRedisStore(client), newTestFallback(t), cb)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "products:query:k", []byte("v"), 10*time.Second))
	_, ok, err := rc.Get(ctx, "products:query:k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)
	require.False(t, mr.Exists("products:query:k"))

	got, ok, err := rc.Get(ctx, "products:query:k")
	require.NoError(t, err)
	assert.False(t, ok, "an entry past its ttl must not be served from the fallback")
	assert.Nil(t, got)
}

func TestResilientCache_DegradedReadServesMirroredEntry(t *testing.T) {
	rc, remote, fallback := newFlakyCache(t)
	remote.storage["product:6"] = []byte("vase")

	_, ok, err := rc.Get(context.Background(), "product:6")
	require.NoError(t, err)
	require.True(t, ok)

	remote.setDown(true)
	got, ok, err := rc.Get(context.Background(), "product:6")
	require.NoError(t, err)
	assert.True(t, ok, "degraded reads are served from the fallback")
	assert.Equal(t, []byte("vase"), got)

	_, ok = fallback.Get("product:6")
	assert.True(t, ok)
}

func TestResilientCache_DelAndResetClearFallback(t *testing.T) {
	rc, remote, fallback := newFlakyCache(t)
	ctx := context.Background()
	remote.setDown(true)

	fallback.Set("a", []byte("1"), time.Minute)
	fallback.Set("b", []byte("2"), time.Minute)

	require.NoError(t, rc.Del(ctx, "a"))
	_, ok := fallback.Get("a")
	assert.False(t, ok)

	require.NoError(t, rc.Reset(ctx))
	assert.Equal(t, 0, fallback.Len())
}

func TestResilientCache_CancelledContext(t *testing.T) {
	rc, _, _ := newFlakyCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := rc.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
