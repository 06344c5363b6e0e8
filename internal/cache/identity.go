package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tollgate/tollgate/internal/model"
)

// identityCachePrefix is the Redis key prefix for resolved bearer identities.
const identityCachePrefix = "identity:ctx:"

// GetIdentity returns a cached identity for a credential hash.
// Returns nil on miss or a corrupted entry.
func (c *Cache) GetIdentity(ctx context.Context, cacheKey string) (*model.Identity, error) {
	data, err := c.client.Get(ctx, identityCachePrefix+cacheKey).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil || id.UserID == "" {
		return nil, nil //nolint:nilerr
	}
	return &id, nil
}

// SetIdentity caches a resolved identity. A non-positive ttl disables caching.
func (c *Cache) SetIdentity(ctx context.Context, cacheKey string, id *model.Identity, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return c.client.Set(ctx, identityCachePrefix+cacheKey, data, ttl).Err()
}
