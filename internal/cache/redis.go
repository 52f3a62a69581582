// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client and checks it with a PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// TokenCache maps a token hash to what was learned when the token was verified.
// Entries are written once and left for Redis to evict when the token expires.
type TokenCache struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewTokenCache(rdb redis.UniversalClient, prefix string) *TokenCache {
	return &TokenCache{rdb: rdb, prefix: prefix, now: time.Now}
}

// Get returns the live entry for hash. found is false when there is none or it has expired.
func (c *TokenCache) Get(ctx context.Context, hash string) (entry models.TokenCacheEntry, found bool, err error) {
	data, err := c.rdb.Get(ctx, c.prefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, fmt.Errorf("get token entry: %w", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, false, fmt.Errorf("decode token entry: %w", err)
	}
	// Eviction is lazy on some deployments.
	if entry.ExpirationEpoch <= c.now().Unix() {
		return models.TokenCacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put writes entry for hash unless one already exists. It reports whether it wrote.
// An entry that has already expired is not written.
func (c *TokenCache) Put(ctx context.Context, hash string, entry models.TokenCacheEntry) (bool, error) {
	ttl := time.Unix(entry.ExpirationEpoch, 0).Sub(c.now())
	if ttl <= 0 {
		return false, nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal TokenCacheEntry: %w", err)
	}
	ok, err := c.rdb.SetNX(ctx, c.prefix+hash, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("put token entry: %w", err)
	}
	return ok, nil
}
