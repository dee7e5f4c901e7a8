package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// MemoryCache is a map backed cache.Cache that records every call. It
// ignores expiry; the requested TTL of each key is kept for assertions.
type MemoryCache struct {
	mu      sync.Mutex
	calls   []string
	entries map[string][]byte
	ttls    map[string]time.Duration

	// GetErr, when set, is returned by every Get.
	GetErr error
	// SetErr, when set, is returned by every Set.
	SetErr error
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Get:"+key)
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Set:"+key)
	if m.SetErr != nil {
		return m.SetErr
	}
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *MemoryCache) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Del:"+key)
	delete(m.entries, key)
	delete(m.ttls, key)
	return nil
}

func (m *MemoryCache) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Reset")
	m.entries = make(map[string][]byte)
	m.ttls = make(map[string]time.Duration)
	return nil
}

// Has reports whether key is stored.
func (m *MemoryCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// TTL returns the TTL key was last stored with.
func (m *MemoryCache) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Len returns the number of stored keys.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Calls returns a copy of the call log, e.g. "Get:product:1".
func (m *MemoryCache) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Count returns how many logged calls equal call.
func (m *MemoryCache) Count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Miniredis starts an in-process redis server and a client connected to it.
// Both are closed when the test ends.
func Miniredis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}
