package cacheinfra

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 1000 {
		t.Errorf("expected Capacity to be 1000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 16 {
		t.Errorf("expected NumShards to be 16, got %d", cfg.NumShards)
	}

	if cfg.TTL != time.Minute {
		t.Errorf("expected TTL to be 1 minute, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"invalid capacity - zero", func(c *Config) { c.Capacity = 0 }, "Capacity"},
		{"invalid num shards - zero", func(c *Config) { c.NumShards = 0 }, "NumShards"},
		{"invalid num shards - above capacity", func(c *Config) { c.Capacity = 4; c.NumShards = 8 }, "NumShards"},
		{"invalid TTL - zero", func(c *Config) { c.TTL = 0 }, "TTL"},
		{"invalid eviction percentage - too low", func(c *Config) { c.EvictionPercentage = 0 }, "EvictionPercentage"},
		{"invalid eviction percentage - too high", func(c *Config) { c.EvictionPercentage = 101 }, "EvictionPercentage"},
		{"invalid eviction interval", func(c *Config) { c.EvictionInterval = -time.Second }, "EvictionInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	want := "config error in field TTL: must be greater than 0"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestToSturdycOptions(t *testing.T) {
	cfg := DefaultConfig()
	if opts := cfg.ToSturdycOptions(); len(opts) != 0 {
		t.Errorf("expected no options for default config, got %d", len(opts))
	}

	cfg.EvictionInterval = time.Second
	if opts := cfg.ToSturdycOptions(); len(opts) != 1 {
		t.Errorf("expected 1 option with eviction interval, got %d", len(opts))
	}
}

func TestNewFallbackStore_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 0

	store, err := NewFallbackStore(cfg)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if store != nil {
		t.Error("expected nil store on error")
	}
}

func TestFallbackStore_SetGetDelete(t *testing.T) {
	store, err := NewFallbackStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	store.Set("product:1", []byte("payload"), time.Minute)
	got, ok := store.Get("product:1")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(got) != "payload" {
		t.Errorf("expected payload, got %q", got)
	}

	store.Delete("product:1")
	if _, ok := store.Get("product:1"); ok {
		t.Error("expected miss after delete")
	}
}

func TestFallbackStore_Reset(t *testing.T) {
	store, err := NewFallbackStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	for i := 0; i < 20; i++ {
		store.Set(fmt.Sprintf("key:%d", i), []byte("v"), 0)
	}
	if store.Len() != 20 {
		t.Fatalf("expected 20 entries, got %d", store.Len())
	}

	store.Reset()
	if store.Len() != 0 {
		t.Errorf("expected empty store after reset, got %d", store.Len())
	}
}

func TestFallbackStore_Expiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 20 * time.Millisecond
	store, err := NewFallbackStore(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	store.Set("short", []byte("lived"), time.Hour)
	time.Sleep(50 * time.Millisecond)

	if _, ok := store.Get("short"); ok {
		t.Error("expected entry to expire after the store TTL")
	}
}

func TestFallbackStore_EntryTTLShorterThanStore(t *testing.T) {
	store, err := NewFallbackStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Set("listing", []byte("page"), 10*time.Second)
	store.Set("uncapped", []byte("page"), time.Hour)

	now = now.Add(11 * time.Second)
	if _, ok := store.Get("listing"); ok {
		t.Error("expected entry to expire after its own TTL")
	}
	if _, ok := store.Get("uncapped"); !ok {
		t.Error("expected entry with a longer TTL to still be live")
	}

	now = now.Add(time.Minute)
	if _, ok := store.Get("uncapped"); ok {
		t.Error("expected entry lifetime capped at the store TTL")
	}
}

func TestFallbackStore_ConcurrentAccess(t *testing.T) {
	store, err := NewFallbackStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("g%d:%d", g, i)
				store.Set(key, []byte(key), time.Minute)
				if v, ok := store.Get(key); ok && string(v) != key {
					t.Errorf("unexpected value for %s: %s", key, v)
				}
			}
		}(g)
	}
	wg.Wait()
}
