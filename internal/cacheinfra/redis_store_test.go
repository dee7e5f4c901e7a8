package cacheinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client)
}

func TestRedisStore_SetGet(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "product:1", []byte("data"), time.Minute))

	got, _, ok, err := store.GetWithTTL(ctx, "product:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("data"), got)
	assert.Equal(t, time.Minute, mr.TTL("product:1"))
}

func TestRedisStore_MissIsNotAnError(t *testing.T) {
	_, store := newTestRedis(t)

	got, _, ok, err := store.GetWithTTL(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedisStore_ExpiresWithTTL(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, _, ok, err := store.GetWithTTL(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_GetWithTTL(t *testing.T) {
	_, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "expiring", []byte("v"), 30*time.Second))
	require.NoError(t, store.Set(ctx, "persistent", []byte("p"), 0))

	got, ttl, ok, err := store.GetWithTTL(ctx, "expiring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 30*time.Second, ttl)

	_, ttl, ok, err = store.GetWithTTL(ctx, "persistent")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, ttl)

	_, _, ok, err = store.GetWithTTL(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DeleteAndReset(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	require.NoError(t, store.Delete(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.True(t, mr.Exists("c"))

	require.NoError(t, store.Delete(ctx))

	require.NoError(t, store.Reset(ctx))
	assert.False(t, mr.Exists("c"))
}

func TestRedisStore_ErrorsSurface(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	mr.SetError("ERR simulated failure")
	defer mr.SetError("")

	_, _, _, err := store.GetWithTTL(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.Set(ctx, "k", []byte("v"), time.Second))
}

func TestRedisConfig_Validate(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultRedisConfig()
	cfg.DB = -1
	assert.Error(t, cfg.Validate())

	_, err := NewRedisClient(RedisConfig{})
	assert.Error(t, err)
}

func TestCodec_RoundTripUsesJSONTags(t *testing.T) {
	type payload struct {
		ID    string   `json:"id"`
		Tags  []string `json:"tags,omitempty"`
		Price float64  `json:"price"`
	}

	data, err := Encode(payload{ID: "p1", Tags: []string{"a"}, Price: 9.5})
	require.NoError(t, err)

	asMap, err := Decode[map[string]any](data)
	require.NoError(t, err)
	assert.Contains(t, asMap, "id")
	assert.Contains(t, asMap, "price")

	back, err := Decode[payload](data)
	require.NoError(t, err)
	assert.Equal(t, payload{ID: "p1", Tags: []string{"a"}, Price: 9.5}, back)

	_, err = Decode[payload]([]byte{0xc1})
	assert.Error(t, err)
}
