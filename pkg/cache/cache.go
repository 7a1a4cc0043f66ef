// Package cache provides a bounded in-memory store for recently settled data.
package cache

import "time"

// Cache is a bounded key/value store with per-entry TTL.
type Cache interface {
	// Get returns (value, true) if found, (nil, false) otherwise.
	Get(key string) (any, bool)

	// Set stores a value with a TTL. A zero TTL uses the cache default.
	// Returns false if the entry was not admitted.
	Set(key string, value any, ttl time.Duration) bool

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Wait blocks until pending writes are visible to Get.
	Wait()

	// Close releases resources.
	Close()
}
