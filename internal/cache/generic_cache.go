package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	trackSegment  = "__track:"
	scanBatchSize = 100
)

// trackKeyLua adds ARGV[1] to the tracking set KEYS[1] and raises the set's
// TTL to ARGV[2] milliseconds when it is currently shorter.
var trackKeyLua = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
local cur = redis.call('PTTL', KEYS[1])
if cur < tonumber(ARGV[2]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// GenericCache is a namespaced JSON cache-aside store. Keys written with a TTL
// are recorded in a tracking set for every colon-delimited prefix so that
// DelPattern can remove a group without scanning the keyspace.
type GenericCache struct {
	redis     redis.UniversalClient
	namespace string
}

func NewGenericCache(client redis.UniversalClient, namespace string) *GenericCache {
	return &GenericCache{redis: client, namespace: namespace}
}

func (c *GenericCache) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

func (c *GenericCache) trackKey(prefix string) string {
	return c.key(trackSegment + prefix)
}

// trackPrefixes returns "a:" and "a:b:" for "a:b:c".
func trackPrefixes(key string) []string {
	var prefixes []string
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			prefixes = append(prefixes, key[:i+1])
		}
	}
	return prefixes
}

func (c *GenericCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cache value %s: %w", key, err)
	}
	return true, nil
}

func (c *GenericCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	full := c.key(key)
	if err := c.redis.Set(ctx, full, raw, ttl).Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	for _, prefix := range trackPrefixes(key) {
		if err := trackKeyLua.Run(ctx, c.redis, []string{c.trackKey(prefix)}, full, ttl.Milliseconds()).Err(); err != nil {
			return fmt.Errorf("track cache key %s: %w", key, err)
		}
	}
	return nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *GenericCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return c.redis.SetNX(ctx, c.key(key), raw, ttl).Result()
}

func (c *GenericCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.redis.Del(ctx, full...).Err()
}

// DelPattern removes every key under "prefix*" and returns how many were deleted.
func (c *GenericCache) DelPattern(ctx context.Context, pattern string) (int64, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete the whole namespace")
	}
	if strings.HasSuffix(prefix, ":") {
		trackKey := c.trackKey(prefix)
		exists, err := c.redis.Exists(ctx, trackKey).Result()
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			return c.delTracked(ctx, prefix)
		}
	}
	return c.delScan(ctx, c.key(prefix)+"*")
}

// delTracked deletes the members of prefix's tracking set and drops them from
// the set of prefix and of every ancestor prefix.
func (c *GenericCache) delTracked(ctx context.Context, prefix string) (int64, error) {
	members, err := c.redis.SMembers(ctx, c.trackKey(prefix)).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	pipe := c.redis.TxPipeline()
	del := pipe.Del(ctx, members...)
	rem := make([]interface{}, 0, len(members))
	for _, m := range members {
		rem = append(rem, m)
	}
	for _, p := range trackPrefixes(prefix) {
		pipe.SRem(ctx, c.trackKey(p), rem...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return del.Val(), nil
}

func (c *GenericCache) delScan(ctx context.Context, match string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// GetOrSet returns the cached value for key or fills it from fetch. Cache
// failures are logged and never fail the call.
func GetOrSet[T any](ctx context.Context, c *GenericCache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	ok, err := c.Get(ctx, key, &cached)
	if err != nil {
		logutil.GetLogger(ctx).Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}
	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		logutil.GetLogger(ctx).Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
