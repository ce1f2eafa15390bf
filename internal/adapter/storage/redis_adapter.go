package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idem:"
	pendingMarker         = "__pending__"
	DefaultIdempotencyTTL = 24 * time.Hour
)

// Returns {1, ""} when the key was claimed, {0, value} when it was already held.
var claimScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	return {0, current}
end

redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return {1, ''}
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) ClaimIdempotency(ctx context.Context, key string) (string, bool, error) {
	res, err := claimScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, pendingMarker, r.ttl.Milliseconds()).Slice()
	if err != nil {
		return "", false, err
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("unexpected claim reply: %v", res)
	}

	claimed, _ := res[0].(int64)
	if claimed == 1 {
		return "", true, nil
	}

	value, _ := res[1].(string)
	if value == pendingMarker {
		value = ""
	}
	return value, false, nil
}

func (r *RedisAdapter) CompleteIdempotency(ctx context.Context, key, value string) error {
	err := r.client.SetArgs(ctx, idempotencyKeyPrefix+key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		// claim expired before completion
		return nil
	}
	return err
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
