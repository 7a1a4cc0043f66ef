package cache

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	cache, err := NewRistrettoCache(&RistrettoConfig{
		Name:        "test",
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		DefaultTTL:  time.Hour,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(cache.Close)
	return cache
}

func TestNewRistrettoCache_Validation(t *testing.T) {
	if _, err := NewRistrettoCache(nil); err == nil {
		t.Error("expected error for nil config")
	}

	if _, err := NewRistrettoCache(&RistrettoConfig{NumCounters: 10, MaxCost: 1, BufferItems: 64}); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestRistrettoCache(t *testing.T) {
	cache := newTestCache(t)

	t.Run("set-and-get", func(t *testing.T) {
		if !cache.Set("test-key", "test-value", time.Hour) {
			t.Error("expected Set to succeed")
		}
		cache.Wait()

		retrieved, found := cache.Get("test-key")
		if !found {
			t.Fatal("expected key to be found")
		}
		if retrieved != "test-value" {
			t.Errorf("expected %q, got %q", "test-value", retrieved)
		}
	})

	t.Run("default-ttl", func(t *testing.T) {
		if !cache.Set("default-ttl", 42, 0) {
			t.Error("expected Set to succeed")
		}
		cache.Wait()

		if _, found := cache.Get("default-ttl"); !found {
			t.Error("expected key stored with default TTL to be found")
		}
	})

	t.Run("get-missing-key", func(t *testing.T) {
		if _, found := cache.Get("nonexistent"); found {
			t.Error("expected key to not be found")
		}
	})

	t.Run("delete", func(t *testing.T) {
		cache.Set("delete-test", "delete-value", time.Hour)
		cache.Wait()

		cache.Delete("delete-test")

		if _, found := cache.Get("delete-test"); found {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("ttl-expiration", func(t *testing.T) {
		cache.Set("ttl-test", "ttl-value", 200*time.Millisecond)
		cache.Wait()

		if _, found := cache.Get("ttl-test"); !found {
			t.Error("expected key to exist before TTL expires")
		}

		time.Sleep(300 * time.Millisecond)

		if _, found := cache.Get("ttl-test"); found {
			t.Error("expected key to be expired after TTL")
		}
	})
}
