package cache

import "time"

// CacheService defines the interface for cooldown and marker caching
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// Mark sets a presence marker under the given key. Fetch clients use markers
// to back off from a marketplace after a rate-limit response.
func Mark(c CacheService, key string, ttl time.Duration) error {
	return c.Set(key, []byte("1"), ttl)
}

// Marked reports whether a presence marker exists for the given key.
func Marked(c CacheService, key string) bool {
	if c == nil {
		return false
	}
	_, err := c.Get(key)
	return err == nil
}
