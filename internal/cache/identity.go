package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quickai/quickai/internal/model"
)

const (
	// identityCachePrefix is the Redis key prefix for resolved identities.
	identityCachePrefix = "identity:user:"
	// identityCacheTTL bounds how stale a cached plan can be.
	// The usage counter is gated in Redis, not from this cache, so a
	// short TTL only delays plan upgrades becoming visible.
	identityCacheTTL = 60 * time.Second
)

// GetIdentity retrieves a cached identity by user ID.
// Returns nil on a cache miss.
func (c *Cache) GetIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	data, err := c.client.Get(ctx, identityCachePrefix+userID).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &id, nil
}

// SetIdentity caches a resolved identity.
func (c *Cache) SetIdentity(ctx context.Context, id *model.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	return c.client.Set(ctx, identityCachePrefix+id.UserID, data, identityCacheTTL).Err()
}

// DeleteIdentity removes a cached identity so the next request
// re-resolves it from the provider. The usage sync worker calls this
// after writing a fresh counter value upstream.
func (c *Cache) DeleteIdentity(ctx context.Context, userID string) error {
	return c.client.Del(ctx, identityCachePrefix+userID).Err()
}
