package cache

import (
	"context"
	"fmt"
	"time"
)

// billingEventPrefix is the Redis key prefix for processed billing event IDs.
const billingEventPrefix = "billing:event:"

// MarkBillingEvent records a billing event ID as in flight.
// It returns false when the ID was already marked within ttl.
func (c *Cache) MarkBillingEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, billingEventKey(eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark billing event: %w", err)
	}
	return ok, nil
}

// ReleaseBillingEvent removes a mark so a redelivery is processed again.
func (c *Cache) ReleaseBillingEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, billingEventKey(eventID)).Err()
}

func billingEventKey(eventID string) string {
	return billingEventPrefix + eventID
}
