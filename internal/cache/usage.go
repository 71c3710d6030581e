package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// usageKeyPrefix is the Redis key prefix for free-tier usage counters.
const usageKeyPrefix = "usage:free:"

// UsageReservation is the result of an atomic quota reservation.
type UsageReservation struct {
	// Allowed reports whether the request fit under the quota.
	Allowed bool
	// Used is the counter value after the reservation (or the value
	// that blocked it).
	Used int64
}

// reserveUsageScript atomically seeds, checks, and increments the
// free-usage counter. Two concurrent requests from the same user can
// never both consume the final quota slot.
var reserveUsageScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local seed = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if not current then
		redis.call('SET', key, seed)
		current = seed
	else
		current = tonumber(current)
	end

	if current >= limit then
		return {0, current}
	end

	return {1, redis.call('INCR', key)}
`)

// ReserveUsage reserves one unit of free-tier quota for the user.
// The counter is seeded from the identity provider's value on first
// sight so existing users keep their consumed quota.
func (c *Cache) ReserveUsage(ctx context.Context, userID string, limit, seed int) (*UsageReservation, error) {
	result, err := reserveUsageScript.Run(ctx, c.client,
		[]string{usageKey(userID)},
		limit, seed,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}

	return &UsageReservation{
		Allowed: result[0] == 1,
		Used:    result[1],
	}, nil
}

// releaseUsageScript undoes a reservation without going below zero.
var releaseUsageScript = redis.NewScript(`
	local key = KEYS[1]
	local current = tonumber(redis.call('GET', key) or '0')
	if current <= 0 then
		return 0
	end
	return redis.call('DECR', key)
`)

// ReleaseUsage returns a reserved quota unit after a downstream
// failure so failed requests do not count against the user.
func (c *Cache) ReleaseUsage(ctx context.Context, userID string) error {
	if err := releaseUsageScript.Run(ctx, c.client, []string{usageKey(userID)}).Err(); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// GetUsage reads the current counter value. Returns 0 when unset.
func (c *Cache) GetUsage(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Get(ctx, usageKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

// usageKey builds the Redis key for a user's free-usage counter.
func usageKey(userID string) string {
	return usageKeyPrefix + userID
}
