package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "scout_auth:rl:"

// incrementScript counts a hit and starts the window on the first one.
// A key found without a TTL gets one, so a window can never stick.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// decrementScript takes back one hit without going below zero.
var decrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// WindowStore implements ports.WindowStore with Redis counters, so limits
// hold across every instance sharing the Redis database.
type WindowStore struct {
	client redis.UniversalClient
}

func NewWindowStore(client redis.UniversalClient) *WindowStore {
	return &WindowStore{client: client}
}

func (s *WindowStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{keyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: unexpected reply %v", key, res)
	}
	return int(res[0]), now.Add(time.Duration(res[1]) * time.Millisecond), nil
}

func (s *WindowStore) Decrement(ctx context.Context, key string) error {
	if err := decrementScript.Run(ctx, s.client, []string{keyPrefix + key}).Err(); err != nil {
		return fmt.Errorf("redis decrement %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *WindowStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
