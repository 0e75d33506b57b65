package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeOtpLua deletes KEYS[1] only when its code field equals ARGV[1].
// Returns false when the key is absent, otherwise {matched, code, expires_at}.
var consumeOtpLua = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'code', 'expires_at')
if not vals[1] then
  return false
end
local expiresAt = vals[2] or '0'
if vals[1] ~= ARGV[1] then
  return {0, vals[1], expiresAt}
end
redis.call('DEL', KEYS[1])
return {1, vals[1], expiresAt}
`)

type RedisTier struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisTier(client redis.UniversalClient, prefix string) *RedisTier {
	return &RedisTier{redis: client, prefix: prefix}
}

func (t *RedisTier) key(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

func (t *RedisTier) Save(ctx context.Context, key string, entry FastEntry, ttl time.Duration) error {
	k := t.key(key)
	pipe := t.redis.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, "code", entry.Code, "expires_at", entry.ExpiresAt)
	pipe.Expire(ctx, k, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTier) ConsumeMatching(ctx context.Context, key, code string) (FastEntry, bool, error) {
	res, err := consumeOtpLua.Run(ctx, t.redis, []string{t.key(key)}, code).Slice()
	if errors.Is(err, redis.Nil) {
		return FastEntry{}, false, ErrFastMiss
	}
	if err != nil {
		return FastEntry{}, false, err
	}
	if len(res) != 3 {
		return FastEntry{}, false, fmt.Errorf("unexpected otp consume reply: %v", res)
	}
	matched, _ := res[0].(int64)
	stored, _ := res[1].(string)
	raw, _ := res[2].(string)
	expiresAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return FastEntry{}, false, fmt.Errorf("parse otp expiry: %w", err)
	}
	return FastEntry{Code: stored, ExpiresAt: expiresAt}, matched == 1, nil
}

func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.redis.Del(ctx, t.key(key)).Err()
}
