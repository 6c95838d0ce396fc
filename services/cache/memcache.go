package cache

import (
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"pricesentry/logger"
)

// MemcacheService implements CacheService on memcached. Cooldown marks live
// here so a restart does not reset an active backoff.
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

var _ CacheService = (*MemcacheService)(nil)

// NewMemcacheService creates a new memcache-backed cache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
		log:    logger.ForCache(),
	}
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	m.log.Debug().Str("key", key).Dur("ttl", expiration).Msg("Cache entry stored")
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	if err := m.client.Delete(key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}
